package todo

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func datePtr(d Date) *Date {
	return &d
}

func TestMatchesView(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	yesterday := today.AddDays(-1)
	tomorrow := today.AddDays(1)

	tests := []struct {
		name string
		todo Todo
		want map[View]bool
	}{
		{
			name: "no due date",
			todo: Todo{Content: "a"},
			want: map[View]bool{ViewInbox: true},
		},
		{
			name: "due today",
			todo: Todo{Content: "a", DueDate: datePtr(today)},
			want: map[View]bool{ViewToday: true},
		},
		{
			name: "overdue",
			todo: Todo{Content: "a", DueDate: datePtr(yesterday)},
			want: map[View]bool{ViewToday: true},
		},
		{
			name: "due tomorrow",
			todo: Todo{Content: "a", DueDate: datePtr(tomorrow)},
			want: map[View]bool{ViewUpcoming: true},
		},
		{
			name: "completed with due date",
			todo: Todo{Content: "a", IsCompleted: true, DueDate: datePtr(today)},
			want: map[View]bool{ViewCompleted: true},
		},
		{
			name: "completed without due date",
			todo: Todo{Content: "a", IsCompleted: true},
			want: map[View]bool{ViewCompleted: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, view := range Views() {
				if got := MatchesView(tt.todo, view, today); got != tt.want[view] {
					t.Fatalf("view %s: expected %v, got %v", view, tt.want[view], got)
				}
			}
			if !MatchesView(tt.todo, ViewAll, today) {
				t.Fatal("expected ViewAll to match")
			}
		})
	}
}

func TestMatchesViewIsPure(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	item := Todo{ID: "a", Content: "a", DueDate: datePtr(today)}

	first := MatchesView(item, ViewToday, today)
	for range 10 {
		if MatchesView(item, ViewToday, today) != first {
			t.Fatal("expected repeated evaluation to agree")
		}
	}
	if item.DueDate.Compare(today) != 0 {
		t.Fatal("expected predicate not to modify the todo")
	}
}

func TestMatchesViewExactlyOneNamedView(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	candidates := []Todo{
		{},
		{IsCompleted: true},
		{DueDate: datePtr(today.AddDays(-3))},
		{DueDate: datePtr(today.AddDays(3))},
		{IsCompleted: true, DueDate: datePtr(today.AddDays(3))},
	}
	for i, item := range candidates {
		matches := 0
		for _, view := range Views() {
			if MatchesView(item, view, today) {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("candidate %d: expected exactly one view, got %d", i, matches)
		}
	}
}

func TestRetainCompletedPolicyKeepsCompletedInDateViews(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	policy := RetainCompletedPolicy()
	item := Todo{Content: "a", IsCompleted: true, DueDate: datePtr(today)}

	if !policy.Matches(item, ViewToday, today) {
		t.Fatal("expected completed todo to stay in today")
	}
	if !policy.Matches(item, ViewCompleted, today) {
		t.Fatal("expected completed todo in completed")
	}
	if policy.Matches(item, ViewUpcoming, today) {
		t.Fatal("expected todo due today not to be upcoming")
	}
}

func TestPolicyUnknownViewMatchesNothing(t *testing.T) {
	if DefaultPolicy().Matches(Todo{}, View("someday"), Date{}) {
		t.Fatal("expected unknown view to match nothing")
	}
}

func TestParseView(t *testing.T) {
	for _, input := range []string{"inbox", " Today ", "UPCOMING", "completed"} {
		if _, err := ParseView(input); err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
	}

	view, err := ParseView("all")
	if err != nil || view != ViewAll {
		t.Fatalf("expected all to parse as ViewAll, got %q, %v", view, err)
	}

	_, err = ParseView("someday")
	if !errors.Is(err, ErrInvalidView) {
		t.Fatalf("expected ErrInvalidView, got %v", err)
	}
	if !strings.Contains(err.Error(), "valid: inbox, today, upcoming, completed, all") {
		t.Fatalf("expected valid views in error, got %q", err)
	}
}

func TestCountViews(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	todos := []Todo{
		{ID: "1"},
		{ID: "2"},
		{ID: "3", DueDate: datePtr(today)},
		{ID: "4", DueDate: datePtr(today.AddDays(7))},
		{ID: "5", IsCompleted: true},
	}

	counts := CountViews(todos, today, nil)
	want := Counts{Inbox: 2, Today: 1, Upcoming: 1, Completed: 1}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}
	if counts.Get(ViewAll) != len(todos) {
		t.Fatalf("expected total %d, got %d", len(todos), counts.Get(ViewAll))
	}
}

func TestPolicyFilterSorts(t *testing.T) {
	today := NewDate(2026, time.March, 10)
	created := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	todos := []Todo{
		{ID: "b", Priority: 4, CreatedAt: created},
		{ID: "a", Priority: 1, CreatedAt: created},
		{ID: "c", Priority: 2, DueDate: datePtr(today)},
	}

	inbox := DefaultPolicy().Filter(todos, ViewInbox, today)
	if len(inbox) != 2 || inbox[0].ID != "a" || inbox[1].ID != "b" {
		t.Fatalf("unexpected inbox order: %+v", inbox)
	}
}
