package main

import (
	"fmt"
	"time"

	"github.com/amonks/tasksync/internal/markdown"
	"github.com/amonks/tasksync/internal/ui"
	"github.com/amonks/tasksync/todo"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the todos in a view",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var (
	listView string
	listJSON bool
	listYAML bool
)

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show how many todos each view holds",
	Args:  cobra.NoArgs,
	RunE:  runCounts,
}

var countsJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>...",
	Short: "Show detailed information about todos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runShow,
}

var showJSON bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List writes that have not reached the server",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

var pendingJSON bool

func init() {
	rootCmd.AddCommand(listCmd, countsCmd, showCmd, pendingCmd)

	listCmd.Flags().StringVar(&listView, "view", string(todo.ViewInbox), "View to list (inbox, today, upcoming, completed, all)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listYAML, "yaml", false, "Output as YAML")
	listCmd.MarkFlagsMutuallyExclusive("json", "yaml")

	countsCmd.Flags().BoolVar(&countsJSON, "json", false, "Output as JSON")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	view, err := todo.ParseView(listView)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.Todos(cmd.Context(), view)
	if err != nil {
		return err
	}
	if result.Offline {
		printNotice(cmd.ErrOrStderr(), "offline: showing cached %s (fetched %s)", view.Label(), ui.FormatTimeAgo(result.FetchedAt, time.Now()))
	}

	out := cmd.OutOrStdout()
	switch {
	case listJSON:
		return printJSON(out, nonNil(result.Todos))
	case listYAML:
		return printYAML(out, nonNil(result.Todos))
	}

	if len(result.Todos) == 0 {
		fmt.Fprintln(out, emptyListMessage(view.Label()))
		return nil
	}
	prefixLengths := todo.NewIDIndex(s.engine.Peek(todo.ViewAll).Todos).PrefixLengths()
	today := todo.Today(time.Now(), nil)
	fmt.Fprint(out, formatTodoTable(result.Todos, prefixLengths, today))
	return nil
}

func runCounts(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.Counts(cmd.Context())
	if err != nil {
		return err
	}
	if result.Local {
		printNotice(cmd.ErrOrStderr(), "offline: counts derived from cached todos")
	}
	if countsJSON {
		return printJSON(cmd.OutOrStdout(), result.Counts)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatCountsTable(result.Counts))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	items := make([]todo.Todo, 0, len(args))
	for _, arg := range args {
		item, err := resolveTodo(cmd.Context(), s, arg)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	out := cmd.OutOrStdout()
	if showJSON {
		return printJSON(out, items)
	}

	today := todo.Today(time.Now(), nil)
	width := ui.TerminalWidth()
	for i, item := range items {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s %s\n", ui.Header("ID:"), item.ID)
		fmt.Fprintf(out, "%s %s\n", ui.Header("Content:"), item.Content)
		fmt.Fprintf(out, "%s %s\n", ui.Header("Priority:"), formatPriority(item.Priority))
		fmt.Fprintf(out, "%s %s\n", ui.Header("Due:"), formatDue(item, today))
		fmt.Fprintf(out, "%s %t\n", ui.Header("Completed:"), item.IsCompleted)
		if !item.CreatedAt.IsZero() {
			fmt.Fprintf(out, "%s %s\n", ui.Header("Created:"), item.CreatedAt.Format(time.RFC3339))
		}
		if item.Description != nil {
			if rendered := markdown.Render(width, 2, []byte(*item.Description)); rendered != nil {
				fmt.Fprintf(out, "%s\n%s\n", ui.Header("Description:"), rendered)
			}
		}
	}
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	records := s.engine.Pending()
	out := cmd.OutOrStdout()
	if pendingJSON {
		return printJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "Nothing pending.")
		return nil
	}
	fmt.Fprint(out, formatPendingTable(records))
	fmt.Fprintf(out, "%d %s pending\n", len(records), pluralize(len(records), "write", "writes"))
	return nil
}

func nonNil(items []todo.Todo) []todo.Todo {
	if items == nil {
		return []todo.Todo{}
	}
	return items
}
