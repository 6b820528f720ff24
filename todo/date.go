package todo

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout       = "2006-01-02"
	clockLayout      = "15:04:05"
	shortClockLayout = "15:04"
)

var (
	// ErrInvalidDate is returned when a due date cannot be parsed.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidClock is returned when a due time cannot be parsed.
	ErrInvalidClock = errors.New("invalid time of day")
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// Today returns the current calendar date in loc. A nil loc means local time.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// ParseDate parses a YYYY-MM-DD date. A full RFC 3339 timestamp is accepted
// and truncated to its date part.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if len(value) > len(dateLayout) && value[len(dateLayout)] == 'T' {
		value = value[:len(dateLayout)]
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(parsed), nil
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmp.Compare(d.Year, other.Year)
	case d.Month != other.Month:
		return cmp.Compare(d.Month, other.Month)
	default:
		return cmp.Compare(d.Day, other.Day)
	}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText encodes d as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a YYYY-MM-DD date.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a time of day without a date or zone.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses HH:MM or HH:MM:SS.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	layout := clockLayout
	if strings.Count(value, ":") == 1 {
		layout = shortClockLayout
	}
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return Clock{Hour: parsed.Hour(), Minute: parsed.Minute(), Second: parsed.Second()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// Short formats c as HH:MM.
func (c Clock) Short() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalText encodes c as HH:MM:SS.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes HH:MM or HH:MM:SS.
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
