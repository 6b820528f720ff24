package main

import (
	"fmt"
	"strings"

	"github.com/amonks/tasksync/internal/ui"
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/todo"
)

func formatTodoTable(items []todo.Todo, prefixLengths map[string]int, today todo.Date) string {
	builder := ui.NewTableBuilder([]string{"ID", "PRI", "DUE", "CONTENT"}, len(items))
	for _, item := range items {
		content := ui.TruncateTableCell(item.Content)
		if item.IsCompleted {
			content = ui.Done(content)
		}
		builder.AddRow([]string{
			ui.HighlightID(shortID(item.ID, prefixLengths), ui.PrefixLength(prefixLengths, item.ID)),
			formatPriority(item.Priority),
			formatDue(item, today),
			content,
		})
	}
	return builder.String()
}

// shortID trims an ID to a readable length that still covers its unique
// prefix.
func shortID(id string, prefixLengths map[string]int) string {
	length := max(ui.PrefixLength(prefixLengths, id), 8)
	if length >= len(id) {
		return id
	}
	return id[:length]
}

func formatPriority(priority int) string {
	label := fmt.Sprintf("p%d", priority)
	return ui.Priority(priority, label)
}

func formatDue(item todo.Todo, today todo.Date) string {
	if item.DueDate == nil {
		return "-"
	}
	value := item.DueDate.String()
	if item.DueTime != nil {
		value += " " + item.DueTime.Short()
	}
	if !item.IsCompleted && item.DueDate.Before(today) {
		return ui.Overdue(value)
	}
	return value
}

func formatPendingTable(records []mutation.Record) string {
	builder := ui.NewTableBuilder([]string{"RECORD", "KIND", "TODO", "STATE", "FAILURES", "LAST ERROR"}, len(records))
	for _, record := range records {
		failures := record.NetworkFailures + record.ApplicationFailures
		builder.AddRow([]string{
			record.ID,
			string(record.Kind),
			shortID(record.TodoID, nil),
			string(record.State),
			fmt.Sprintf("%d", failures),
			ui.TruncateTableCell(strings.TrimSpace(record.LastError)),
		})
	}
	return builder.String()
}

func formatCountsTable(counts todo.Counts) string {
	builder := ui.NewTableBuilder([]string{"VIEW", "COUNT"}, len(todo.Views()))
	for _, view := range todo.Views() {
		builder.AddRow([]string{view.Label(), fmt.Sprintf("%d", counts.Get(view))})
	}
	return builder.String()
}
