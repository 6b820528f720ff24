package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/amonks/tasksync/internal/ui"
	"github.com/amonks/tasksync/mutation"
	"gopkg.in/yaml.v3"
)

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printYAML(w io.Writer, value any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}

// printNotice writes a wrapped informational line to w.
func printNotice(w io.Writer, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, ui.Muted(ui.Wrap(message, ui.TerminalWidth())))
}

func printNotification(w io.Writer, n mutation.Notification) {
	if n.Err != nil {
		fmt.Fprintln(w, ui.Error(fmt.Sprintf("%s: %v", n.Message, n.Err)))
		return
	}
	fmt.Fprintln(w, ui.Muted(n.Message))
}

func pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

func emptyListMessage(label string) string {
	return fmt.Sprintf("No todos in %s.", strings.ToLower(label))
}
