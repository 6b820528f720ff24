// Package todoserver is an in-memory implementation of the todo HTTP API.
//
// It is the counterpart of remote.Client: tests run the sync engine against
// it through httptest, and `tasks serve` runs it for local development.
package todoserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amonks/tasksync/todo"
)

// ErrConflict is returned when a create reuses an ID owned by someone else.
var ErrConflict = errors.New("todo ID already in use")

// StoreOptions configures a Store.
type StoreOptions struct {
	// Policy decides view membership. Nil means todo.DefaultPolicy.
	Policy todo.Policy

	// Location is the zone "today" is computed in. Nil means time.Local.
	Location *time.Location

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Store holds todos for every owner.
type Store struct {
	policy   todo.Policy
	location *time.Location
	now      func() time.Time

	mu    sync.Mutex
	todos map[string]todo.Todo
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions) *Store {
	policy := opts.Policy
	if policy == nil {
		policy = todo.DefaultPolicy()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		policy:   policy,
		location: opts.Location,
		now:      now,
		todos:    make(map[string]todo.Todo),
	}
}

func (s *Store) today() todo.Date {
	return todo.Today(s.now(), s.location)
}

// List returns the owner's todos in a view, in display order.
func (s *Store) List(owner string, view todo.View) []todo.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.policy.Filter(s.ownedLocked(owner), view, s.today())
}

// Counts returns the owner's per-view counts.
func (s *Store) Counts(owner string) todo.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return todo.CountViews(s.ownedLocked(owner), s.today(), s.policy)
}

// Create stores a new todo. Creating an ID the owner already has returns
// the stored todo unchanged, so a replayed create is harmless.
func (s *Store) Create(owner string, input todo.NewTodo) (todo.Todo, error) {
	if err := todo.ValidateNew(input); err != nil {
		return todo.Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := input.ID
	if id == "" {
		id = todo.NewID()
	}
	if existing, ok := s.todos[id]; ok {
		if existing.OwnerID != owner {
			return todo.Todo{}, fmt.Errorf("%w: %s", ErrConflict, id)
		}
		return existing.Clone(), nil
	}

	input.ID = id
	created := input.Optimistic(s.now().UTC())
	created.OwnerID = owner
	s.todos[id] = created
	return created.Clone(), nil
}

// Update applies a patch to one of the owner's todos.
func (s *Store) Update(owner, id string, patch todo.Patch) (todo.Todo, error) {
	if err := todo.ValidatePatch(patch); err != nil {
		return todo.Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.todos[id]
	if !ok || existing.OwnerID != owner {
		return todo.Todo{}, fmt.Errorf("%w: %s", todo.ErrTodoNotFound, id)
	}
	updated := patch.Apply(existing)
	s.todos[id] = updated
	return updated.Clone(), nil
}

// Delete removes one of the owner's todos and returns it.
func (s *Store) Delete(owner, id string) (todo.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.todos[id]
	if !ok || existing.OwnerID != owner {
		return todo.Todo{}, fmt.Errorf("%w: %s", todo.ErrTodoNotFound, id)
	}
	delete(s.todos, id)
	return existing, nil
}

// Get returns one of the owner's todos.
func (s *Store) Get(owner, id string) (todo.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.todos[id]
	if !ok || existing.OwnerID != owner {
		return todo.Todo{}, false
	}
	return existing.Clone(), true
}

func (s *Store) ownedLocked(owner string) []todo.Todo {
	owned := make([]todo.Todo, 0, len(s.todos))
	for _, item := range s.todos {
		if item.OwnerID == owner {
			owned = append(owned, item.Clone())
		}
	}
	return owned
}
