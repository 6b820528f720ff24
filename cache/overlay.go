package cache

import (
	"maps"

	"github.com/amonks/tasksync/todo"
)

// Op is the kind of change an overlay makes.
type Op string

const (
	// OpPut adds a todo that the server has not confirmed yet. It is ignored
	// once the known set holds the same ID.
	OpPut Op = "put"

	// OpPatch applies a partial update to the visible todo.
	OpPatch Op = "patch"

	// OpRemove hides a todo.
	OpRemove Op = "remove"
)

// Overlay is the optimistic effect of one unsettled mutation.
type Overlay struct {
	// ID identifies the mutation that owns the overlay.
	ID     string
	TodoID string
	Op     Op
	Todo   todo.Todo
	Patch  todo.Patch
}

// Apply adds an overlay on top of every earlier one.
func (s *Store) Apply(overlay Overlay) {
	s.mu.Lock()
	s.overlays = append(s.overlays, overlay)
	s.mu.Unlock()

	s.changed()
}

// Discard removes an overlay, reverting its effect. It reports whether the
// overlay was present.
func (s *Store) Discard(overlayID string) bool {
	s.mu.Lock()
	removed := s.removeOverlayLocked(overlayID)
	s.mu.Unlock()

	if removed {
		s.changed()
	}
	return removed
}

// Confirm folds a server result into the known set and drops the overlay
// in one step, so no reader sees the todo disappear in between. When
// removed is true the todo is dropped from the known set instead.
func (s *Store) Confirm(overlayID string, result todo.Todo, removed bool) {
	s.mu.Lock()
	s.removeOverlayLocked(overlayID)
	if removed {
		delete(s.known, result.ID)
	} else if result.ID != "" {
		s.known[result.ID] = result.Clone()
	}
	s.mu.Unlock()

	s.changed()
}

// Forget drops a todo from the known set, for a todo the server no longer
// has.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()

	s.changed()
}

// Overlays returns the pending overlays in apply order.
func (s *Store) Overlays() []Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Overlay, len(s.overlays))
	copy(out, s.overlays)
	return out
}

func (s *Store) removeOverlayLocked(overlayID string) bool {
	for i, overlay := range s.overlays {
		if overlay.ID == overlayID {
			s.overlays = append(s.overlays[:i:i], s.overlays[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) effectiveLocked() map[string]todo.Todo {
	effective := maps.Clone(s.known)
	for _, overlay := range s.overlays {
		switch overlay.Op {
		case OpPut:
			if _, ok := effective[overlay.TodoID]; !ok {
				effective[overlay.TodoID] = overlay.Todo
			}
		case OpPatch:
			if current, ok := effective[overlay.TodoID]; ok {
				effective[overlay.TodoID] = overlay.Patch.Apply(current)
			}
		case OpRemove:
			delete(effective, overlay.TodoID)
		}
	}
	return effective
}
