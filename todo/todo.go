// Package todo defines the task entity shared by the client and the server,
// along with the pure functions that decide which view a task belongs to and
// the order tasks are listed in.
//
// Nothing in this package performs I/O. The cache store, the mutation
// pipeline and the reference server all evaluate membership and ordering
// through the same functions, so an optimistically created task lands in
// exactly the views the server would later report it in.
package todo

import "time"

const (
	// PriorityMin is the most urgent priority.
	PriorityMin = 1

	// PriorityMax is the least urgent priority.
	PriorityMax = 4

	// PriorityDefault is assigned when a new todo omits its priority.
	PriorityDefault = PriorityMax
)

// Todo represents a single task as the server stores it.
type Todo struct {
	// ID is a UUID generated by the client before the first network call.
	ID string `json:"id" yaml:"id"`

	// OwnerID identifies the user that owns the todo. Only the server sets it.
	OwnerID string `json:"userId,omitempty" yaml:"userId,omitempty"`

	// Content is the short, non-empty summary of the todo.
	Content string `json:"content" yaml:"content"`

	// Description provides optional longer text (markdown).
	Description *string `json:"description" yaml:"description,omitempty"`

	// IsCompleted reports whether the todo has been checked off.
	IsCompleted bool `json:"isCompleted" yaml:"isCompleted"`

	// DueDate is a calendar date with no time zone.
	DueDate *Date `json:"dueDate" yaml:"dueDate,omitempty"`

	// DueTime is a time of day, independent of DueDate.
	DueTime *Clock `json:"dueTime" yaml:"dueTime,omitempty"`

	// Priority is the urgency level (1=urgent, 4=none).
	Priority int `json:"priority" yaml:"priority"`

	// CreatedAt is set once when the todo is created.
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Clone returns a deep copy of t.
func (t Todo) Clone() Todo {
	clone := t
	if t.Description != nil {
		description := *t.Description
		clone.Description = &description
	}
	if t.DueDate != nil {
		date := *t.DueDate
		clone.DueDate = &date
	}
	if t.DueTime != nil {
		clock := *t.DueTime
		clone.DueTime = &clock
	}
	return clone
}

// NewTodo is the payload used to create a todo.
type NewTodo struct {
	// ID is assigned by the client before the create is issued.
	ID string `json:"id,omitempty"`

	Content     string  `json:"content"`
	Description *string `json:"description,omitempty"`
	IsCompleted bool    `json:"isCompleted,omitempty"`
	DueDate     *Date   `json:"dueDate,omitempty"`
	DueTime     *Clock  `json:"dueTime,omitempty"`

	// Priority defaults to PriorityDefault when nil.
	Priority *int `json:"priority,omitempty"`
}

// Optimistic builds the entity the server is expected to return for n, so
// it can be shown before the create has been acknowledged.
func (n NewTodo) Optimistic(now time.Time) Todo {
	priority := PriorityDefault
	if n.Priority != nil {
		priority = *n.Priority
	}
	t := Todo{
		ID:          n.ID,
		Content:     n.Content,
		Description: n.Description,
		IsCompleted: n.IsCompleted,
		DueDate:     n.DueDate,
		DueTime:     n.DueTime,
		Priority:    priority,
		CreatedAt:   now,
	}
	return t.Clone()
}
