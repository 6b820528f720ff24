package todo

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the maximum allowed length for todo content.
const MaxContentLength = 500

var (
	// ErrEmptyContent is returned when todo content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrContentTooLong is returned when todo content exceeds MaxContentLength.
	ErrContentTooLong = errors.New("content exceeds maximum length")

	// ErrInvalidPriority is returned when priority is outside valid range.
	ErrInvalidPriority = errors.New("priority must be between 1 and 4")

	// ErrInvalidView is returned when a view name is not recognized.
	ErrInvalidView = errors.New("invalid view")

	// ErrInvalidID is returned when a todo ID is not a UUID.
	ErrInvalidID = errors.New("invalid todo ID")

	// ErrEmptyPatch is returned when an update changes nothing.
	ErrEmptyPatch = errors.New("update changes nothing")

	// ErrTodoNotFound is returned when a todo with the given ID doesn't exist.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrAmbiguousTodoIDPrefix is returned when an ID prefix matches multiple todos.
	ErrAmbiguousTodoIDPrefix = errors.New("ambiguous todo ID prefix")
)

// ValidateContent checks if the content is valid.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return fmt.Errorf("%w: %d > %d", ErrContentTooLong, n, MaxContentLength)
	}
	return nil
}

// ValidatePriority checks if the priority is valid.
func ValidatePriority(priority int) error {
	if priority < PriorityMin || priority > PriorityMax {
		return fmt.Errorf("%w: got %d", ErrInvalidPriority, priority)
	}
	return nil
}

// ValidateNew checks a create payload.
func ValidateNew(n NewTodo) error {
	if n.ID != "" {
		if err := ValidateID(n.ID); err != nil {
			return err
		}
	}
	if err := ValidateContent(n.Content); err != nil {
		return err
	}
	if n.Priority != nil {
		if err := ValidatePriority(*n.Priority); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePatch checks an update payload.
func ValidatePatch(p Patch) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Content != nil {
		if err := ValidateContent(*p.Content); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := ValidatePriority(*p.Priority); err != nil {
			return err
		}
	}
	return nil
}
