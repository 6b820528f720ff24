package todo

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("Buy milk"); err != nil {
		t.Fatalf("expected valid content: %v", err)
	}
	if err := ValidateContent("   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentLength+1)); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
}

func TestValidateNew(t *testing.T) {
	priority := 0
	if err := ValidateNew(NewTodo{Content: "x", Priority: &priority}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if err := ValidateNew(NewTodo{ID: "not-a-uuid", Content: "x"}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := ValidateNew(NewTodo{ID: NewID(), Content: "x"}); err != nil {
		t.Fatalf("expected valid payload: %v", err)
	}
}

func TestValidatePatch(t *testing.T) {
	if err := ValidatePatch(Patch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	empty := ""
	if err := ValidatePatch(Patch{Content: &empty}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	priority := 5
	if err := ValidatePatch(Patch{Priority: &priority}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
}
