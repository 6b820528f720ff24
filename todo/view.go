package todo

import (
	"strings"

	"github.com/amonks/tasksync/internal/validation"
)

// View is a named list of todos. Membership is computed, never stored.
type View string

const (
	// ViewAll matches every todo. It is the unfiltered list.
	ViewAll View = ""

	// ViewInbox holds incomplete todos without a due date.
	ViewInbox View = "inbox"

	// ViewToday holds incomplete todos due today or earlier.
	ViewToday View = "today"

	// ViewUpcoming holds incomplete todos due after today.
	ViewUpcoming View = "upcoming"

	// ViewCompleted holds completed todos.
	ViewCompleted View = "completed"
)

// Views returns the named views in display order.
func Views() []View {
	return []View{ViewInbox, ViewToday, ViewUpcoming, ViewCompleted}
}

// IsValid returns true if the view is ViewAll or a named view.
func (v View) IsValid() bool {
	if v == ViewAll {
		return true
	}
	for _, valid := range Views() {
		if v == valid {
			return true
		}
	}
	return false
}

// Label returns the view name for display; ViewAll is "all".
func (v View) Label() string {
	if v == ViewAll {
		return "all"
	}
	return string(v)
}

// ParseView parses a view name. "all" and the empty string are ViewAll.
func ParseView(value string) (View, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "all" {
		return ViewAll, nil
	}
	view := View(normalized)
	if !view.IsValid() {
		valid := append(Views(), "all")
		return "", validation.FormatInvalidValueError(ErrInvalidView, View(value), valid)
	}
	return view, nil
}

// Predicate decides whether t belongs to a view given the current date.
// Predicates must be pure.
type Predicate func(t Todo, today Date) bool

// Policy maps each named view to its membership predicate.
type Policy map[View]Predicate

// DefaultPolicy returns the standard membership rules: completed todos
// appear only in the completed view.
func DefaultPolicy() Policy {
	return Policy{
		ViewInbox: func(t Todo, _ Date) bool {
			return !t.IsCompleted && t.DueDate == nil
		},
		ViewToday: func(t Todo, today Date) bool {
			return !t.IsCompleted && t.DueDate != nil && !t.DueDate.After(today)
		},
		ViewUpcoming: func(t Todo, today Date) bool {
			return !t.IsCompleted && t.DueDate != nil && t.DueDate.After(today)
		},
		ViewCompleted: func(t Todo, _ Date) bool {
			return t.IsCompleted
		},
	}
}

// RetainCompletedPolicy keeps completed todos in the inbox and the date
// views, so checking a todo off does not move it out of the list it was
// checked off in. Todo order still sinks completed todos to the bottom.
func RetainCompletedPolicy() Policy {
	return Policy{
		ViewInbox: func(t Todo, _ Date) bool {
			return t.DueDate == nil
		},
		ViewToday: func(t Todo, today Date) bool {
			return t.DueDate != nil && !t.DueDate.After(today)
		},
		ViewUpcoming: func(t Todo, today Date) bool {
			return t.DueDate != nil && t.DueDate.After(today)
		},
		ViewCompleted: func(t Todo, _ Date) bool {
			return t.IsCompleted
		},
	}
}

// Matches reports whether t belongs to view v. Unknown views match nothing;
// ViewAll matches everything.
func (p Policy) Matches(t Todo, v View, today Date) bool {
	if v == ViewAll {
		return true
	}
	predicate, ok := p[v]
	if !ok {
		return false
	}
	return predicate(t, today)
}

// Filter returns the members of view v in display order.
func (p Policy) Filter(todos []Todo, v View, today Date) []Todo {
	matched := make([]Todo, 0, len(todos))
	for _, t := range todos {
		if p.Matches(t, v, today) {
			matched = append(matched, t)
		}
	}
	SortInPlace(matched)
	return matched
}

var defaultPolicy = DefaultPolicy()

// MatchesView reports whether t belongs to v under DefaultPolicy.
func MatchesView(t Todo, v View, today Date) bool {
	return defaultPolicy.Matches(t, v, today)
}

// Counts is the number of todos in each named view.
type Counts struct {
	Inbox     int `json:"inbox" yaml:"inbox"`
	Today     int `json:"today" yaml:"today"`
	Upcoming  int `json:"upcoming" yaml:"upcoming"`
	Completed int `json:"completed" yaml:"completed"`
}

// Get returns the count for v.
func (c Counts) Get(v View) int {
	switch v {
	case ViewInbox:
		return c.Inbox
	case ViewToday:
		return c.Today
	case ViewUpcoming:
		return c.Upcoming
	case ViewCompleted:
		return c.Completed
	default:
		return c.Inbox + c.Today + c.Upcoming + c.Completed
	}
}

// CountViews derives view counts from a set of todos. A nil policy means
// DefaultPolicy.
func CountViews(todos []Todo, today Date, policy Policy) Counts {
	if policy == nil {
		policy = defaultPolicy
	}
	var counts Counts
	for _, t := range todos {
		if policy.Matches(t, ViewInbox, today) {
			counts.Inbox++
		}
		if policy.Matches(t, ViewToday, today) {
			counts.Today++
		}
		if policy.Matches(t, ViewUpcoming, today) {
			counts.Upcoming++
		}
		if policy.Matches(t, ViewCompleted, today) {
			counts.Completed++
		}
	}
	return counts
}
