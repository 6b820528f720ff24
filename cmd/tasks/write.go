package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	internalstrings "github.com/amonks/tasksync/internal/strings"
	"github.com/amonks/tasksync/internal/ui"
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/todo"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <content>...",
	Short: "Add a todo",
	Long: `Add a todo.

The todo appears in its views immediately. If the server cannot be reached
within --wait, the todo is queued and sent by a later sync.`,
	Aliases: []string{"create"},
	Args:    cobra.MinimumNArgs(1),
	RunE:    runAdd,
}

var (
	addDescription string
	addDue         string
	addTime        string
	addPriority    int
)

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	Short:   "Change a todo",
	Aliases: []string{"update"},
	Args:    cobra.ExactArgs(1),
	RunE:    runEdit,
}

var (
	editContent          string
	editDescription      string
	editClearDescription bool
	editDue              string
	editTime             string
	editPriority         int
)

var doneCmd = &cobra.Command{
	Use:     "done <id>...",
	Short:   "Mark todos completed",
	Aliases: []string{"complete"},
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetCompleted(cmd, args, true)
	},
}

var undoCmd = &cobra.Command{
	Use:     "undo <id>...",
	Short:   "Mark todos not completed",
	Aliases: []string{"reopen"},
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetCompleted(cmd, args, false)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Short:   "Delete todos",
	Aliases: []string{"delete"},
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRemove,
}

func init() {
	rootCmd.AddCommand(addCmd, editCmd, doneCmd, undoCmd, rmCmd)
	addDescriptionFlagAliases(addCmd, editCmd)

	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Description (markdown)")
	addCmd.Flags().StringVar(&addDue, "due", "", "Due date (YYYY-MM-DD, today, tomorrow)")
	addCmd.Flags().StringVar(&addTime, "time", "", "Due time (HH:MM)")
	addCmd.Flags().IntVarP(&addPriority, "priority", "p", todo.PriorityDefault, "Priority (1=highest, 4=lowest)")

	editCmd.Flags().StringVar(&editContent, "content", "", "New content")
	editCmd.Flags().StringVarP(&editDescription, "description", "d", "", "New description (markdown)")
	editCmd.Flags().BoolVar(&editClearDescription, "clear-description", false, "Remove the description")
	editCmd.Flags().StringVar(&editDue, "due", "", "New due date (YYYY-MM-DD, today, tomorrow, none)")
	editCmd.Flags().StringVar(&editTime, "time", "", "New due time (HH:MM, none)")
	editCmd.Flags().IntVarP(&editPriority, "priority", "p", 0, "New priority (1-4)")
	editCmd.MarkFlagsMutuallyExclusive("description", "clear-description")
}

func runAdd(cmd *cobra.Command, args []string) error {
	input := todo.NewTodo{Content: internalstrings.NormalizeWhitespace(strings.Join(args, " "))}
	if cmd.Flags().Changed("description") && !internalstrings.IsBlank(addDescription) {
		description := addDescription
		input.Description = &description
	}
	if cmd.Flags().Changed("due") {
		date, clear, err := parseDueDate(addDue, time.Now())
		if err != nil {
			return err
		}
		if !clear {
			input.DueDate = &date
		}
	}
	if cmd.Flags().Changed("time") {
		clock, clear, err := parseDueTime(addTime)
		if err != nil {
			return err
		}
		if !clear {
			input.DueTime = &clock
		}
	}
	if cmd.Flags().Changed("priority") {
		priority := addPriority
		input.Priority = &priority
	}
	if err := todo.ValidateNew(input); err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	handle, err := s.engine.Create(input)
	if err != nil {
		return err
	}
	return reportWrite(cmd, s, handle, "Created", input.Content)
}

func runEdit(cmd *cobra.Command, args []string) error {
	patch, err := editPatch(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := resolveTodo(cmd.Context(), s, args[0])
	if err != nil {
		return err
	}
	handle, err := s.engine.Update(item.ID, patch)
	if err != nil {
		return err
	}
	return reportWrite(cmd, s, handle, "Updated", patch.Apply(item).Content)
}

func editPatch(cmd *cobra.Command) (todo.Patch, error) {
	var patch todo.Patch
	flags := cmd.Flags()
	if flags.Changed("content") {
		content := internalstrings.NormalizeWhitespace(editContent)
		patch.Content = &content
	}
	if flags.Changed("description") {
		description := editDescription
		patch.Description = &description
	}
	patch.ClearDescription = editClearDescription
	if flags.Changed("due") {
		date, clear, err := parseDueDate(editDue, time.Now())
		if err != nil {
			return todo.Patch{}, err
		}
		if clear {
			patch.ClearDueDate = true
		} else {
			patch.DueDate = &date
		}
	}
	if flags.Changed("time") {
		clock, clear, err := parseDueTime(editTime)
		if err != nil {
			return todo.Patch{}, err
		}
		if clear {
			patch.ClearDueTime = true
		} else {
			patch.DueTime = &clock
		}
	}
	if flags.Changed("priority") {
		priority := editPriority
		patch.Priority = &priority
	}
	if err := todo.ValidatePatch(patch); err != nil {
		return todo.Patch{}, err
	}
	return patch, nil
}

func runSetCompleted(cmd *cobra.Command, args []string, completed bool) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	verb := "Completed"
	if !completed {
		verb = "Reopened"
	}
	return issueForEach(cmd, s, args, verb, func(item todo.Todo) (*mutation.Handle, error) {
		return s.engine.SetCompleted(item.ID, completed)
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	return issueForEach(cmd, s, args, "Deleted", func(item todo.Todo) (*mutation.Handle, error) {
		return s.engine.Delete(item.ID)
	})
}

// issueForEach resolves every argument first, so a bad prefix issues
// nothing, then issues one mutation per todo and reports each.
func issueForEach(cmd *cobra.Command, s *session, args []string, verb string, issue func(todo.Todo) (*mutation.Handle, error)) error {
	items := make([]todo.Todo, 0, len(args))
	for _, arg := range args {
		item, err := resolveTodo(cmd.Context(), s, arg)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	handles := make([]*mutation.Handle, 0, len(items))
	for _, item := range items {
		handle, err := issue(item)
		if err != nil {
			return err
		}
		handles = append(handles, handle)
	}

	for i, handle := range handles {
		if err := reportWrite(cmd, s, handle, verb, items[i].Content); err != nil {
			return err
		}
	}
	return nil
}

// reportWrite waits for a mutation and prints its outcome. A mutation that
// is still pending is reported as queued.
func reportWrite(cmd *cobra.Command, s *session, handle *mutation.Handle, verb, content string) error {
	_, done, err := awaitWrite(cmd.Context(), s, handle)
	if err != nil {
		return fmt.Errorf("%s todo %s: %w", strings.ToLower(verb), handle.TodoID(), err)
	}
	out := cmd.OutOrStdout()
	if !done {
		fmt.Fprintf(out, "Queued todo %s: %s\n", handle.TodoID(), content)
		printQueuedNotice(cmd.ErrOrStderr())
		return nil
	}
	fmt.Fprintf(out, "%s todo %s: %s\n", verb, handle.TodoID(), content)
	return nil
}

func printQueuedNotice(w io.Writer) {
	message := "queued offline: the change is saved locally and will be sent by `tasks sync` once the server is reachable"
	fmt.Fprintln(w, ui.Warn(ui.Wrap(message, ui.TerminalWidth())))
}

// parseDueDate accepts YYYY-MM-DD, today, tomorrow, or none (which
// clears the date).
func parseDueDate(value string, now time.Time) (todo.Date, bool, error) {
	switch internalstrings.NormalizeLowerTrimSpace(value) {
	case "", "none":
		return todo.Date{}, true, nil
	case "today":
		return todo.Today(now, nil), false, nil
	case "tomorrow":
		return todo.Today(now, nil).AddDays(1), false, nil
	}
	date, err := todo.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return todo.Date{}, false, err
	}
	return date, false, nil
}

// parseDueTime accepts HH:MM, HH:MM:SS, or none (which clears the time).
func parseDueTime(value string) (todo.Clock, bool, error) {
	switch internalstrings.NormalizeLowerTrimSpace(value) {
	case "", "none":
		return todo.Clock{}, true, nil
	}
	clock, err := todo.ParseClock(strings.TrimSpace(value))
	if err != nil {
		return todo.Clock{}, false, err
	}
	return clock, false, nil
}
