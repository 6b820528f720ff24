package todo

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	date, err := ParseDate("2026-02-28")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if date != NewDate(2026, time.February, 28) {
		t.Fatalf("unexpected date: %v", date)
	}
	if next := date.AddDays(1); next.String() != "2026-03-01" {
		t.Fatalf("expected 2026-03-01, got %s", next)
	}

	withTime, err := ParseDate("2026-02-28T00:00:00.000Z")
	if err != nil || withTime != date {
		t.Fatalf("expected timestamp to truncate to date, got %v, %v", withTime, err)
	}

	if _, err := ParseDate("28/02/2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestTodayUsesLocation(t *testing.T) {
	now := time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	if got := Today(now, time.UTC); got.String() != "2026-03-10" {
		t.Fatalf("expected 2026-03-10 in UTC, got %s", got)
	}
	if got := Today(now, tokyo); got.String() != "2026-03-11" {
		t.Fatalf("expected 2026-03-11 in JST, got %s", got)
	}
}

func TestParseClock(t *testing.T) {
	short, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse short: %v", err)
	}
	long, err := ParseClock("09:30:00")
	if err != nil {
		t.Fatalf("parse long: %v", err)
	}
	if short != long {
		t.Fatalf("expected %v == %v", short, long)
	}
	if short.Short() != "09:30" {
		t.Fatalf("unexpected short form %q", short.Short())
	}
	if _, err := ParseClock("25:00"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("expected ErrInvalidClock, got %v", err)
	}
}

func TestTodoJSONWireNames(t *testing.T) {
	date := NewDate(2026, time.April, 2)
	clock := Clock{Hour: 8}
	item := Todo{
		ID:        "11111111-1111-1111-1111-111111111111",
		OwnerID:   "u1",
		Content:   "Buy milk",
		DueDate:   &date,
		DueTime:   &clock,
		Priority:  2,
		CreatedAt: time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range []string{"id", "userId", "content", "description", "isCompleted", "dueDate", "dueTime", "priority", "createdAt"} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("expected wire field %q in %s", name, data)
		}
	}
	if fields["dueDate"] != "2026-04-02" || fields["dueTime"] != "08:00:00" {
		t.Fatalf("unexpected date fields: %v %v", fields["dueDate"], fields["dueTime"])
	}

	var decoded Todo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.DueDate == nil || *decoded.DueDate != date || decoded.Description != nil {
		t.Fatalf("unexpected decoded todo: %+v", decoded)
	}
}
