package todo

import (
	"fmt"

	"github.com/amonks/tasksync/internal/ids"
	"github.com/google/uuid"
)

// NewID returns a fresh client-generated todo ID.
func NewID() string {
	return uuid.NewString()
}

// ValidateID checks that id is a UUID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// IDIndex indexes todo IDs for prefix matching and display.
type IDIndex struct {
	ids []string
}

// NewIDIndex builds an IDIndex from a slice of todos.
func NewIDIndex(todos []Todo) IDIndex {
	todoIDs := make([]string, 0, len(todos))
	for _, todo := range todos {
		todoIDs = append(todoIDs, todo.ID)
	}
	return IDIndex{ids: ids.NormalizeUnique(todoIDs)}
}

// Resolve returns the full todo ID for a prefix.
func (index IDIndex) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrTodoNotFound
	}

	match, found, ambiguous := ids.MatchPrefix(index.ids, prefix)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrTodoNotFound, prefix)
	}
	if ambiguous {
		return "", fmt.Errorf("%w: %s", ErrAmbiguousTodoIDPrefix, prefix)
	}

	return match, nil
}

// PrefixLengths returns the shortest unique prefix length for each ID.
func (index IDIndex) PrefixLengths() map[string]int {
	return ids.UniquePrefixLengths(index.ids)
}
