package todo

import (
	"slices"
	"strings"
)

// Compare orders todos for display. It is a strict total order:
// incomplete before complete, then no due date before a due date, then
// earlier due date, then more urgent priority, then newest first, then ID.
func Compare(a, b Todo) int {
	if a.IsCompleted != b.IsCompleted {
		if a.IsCompleted {
			return 1
		}
		return -1
	}

	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return -1
	case a.DueDate != nil && b.DueDate == nil:
		return 1
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
	}

	if a.Priority != b.Priority {
		if a.Priority < b.Priority {
			return -1
		}
		return 1
	}

	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

// Sort returns a sorted copy of todos.
func Sort(todos []Todo) []Todo {
	sorted := slices.Clone(todos)
	SortInPlace(sorted)
	return sorted
}

// SortInPlace sorts todos with Compare.
func SortInPlace(todos []Todo) {
	slices.SortFunc(todos, Compare)
}
