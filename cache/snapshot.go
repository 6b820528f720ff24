package cache

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/amonks/tasksync/todo"
)

// Snapshot is the durable form of the store. Overlays are not included:
// they belong to pending mutations, which are persisted separately and
// re-apply their overlays when restored.
type Snapshot struct {
	Entities []todo.Todo   `json:"entities"`
	Views    []ViewSummary `json:"views"`
	Counts   *CountsState  `json:"counts,omitempty"`
}

// ViewSummary is the fetch state of one view.
type ViewSummary struct {
	View      todo.View `json:"view"`
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale,omitempty"`
}

// CountsState is the fetch state of the server counts.
type CountsState struct {
	Counts    todo.Counts `json:"counts"`
	FetchedAt time.Time   `json:"fetchedAt"`
	Stale     bool        `json:"stale,omitempty"`
}

// Snapshot captures the known set and fetch state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{
		Entities: cloneAll(todo.Sort(slices.Collect(maps.Values(s.known)))),
		Views:    []ViewSummary{},
	}
	for view, state := range s.views {
		if !state.fetched {
			continue
		}
		snapshot.Views = append(snapshot.Views, ViewSummary{
			View:      view,
			FetchedAt: state.fetchedAt,
			Stale:     state.invalidated,
		})
	}
	slices.SortFunc(snapshot.Views, func(a, b ViewSummary) int {
		return cmp.Compare(a.View, b.View)
	})
	if s.counts.fetched {
		snapshot.Counts = &CountsState{
			Counts:    s.counts.counts,
			FetchedAt: s.counts.fetchedAt,
			Stale:     s.counts.invalidated,
		}
	}
	return snapshot
}

// Restore replaces the known set and fetch state with a snapshot. Views
// fetched in an earlier session are marked rendered, so they are
// revalidated on the next reconnect. Overlays are left alone.
func (s *Store) Restore(snapshot Snapshot) {
	s.mu.Lock()
	s.known = make(map[string]todo.Todo, len(snapshot.Entities))
	for _, item := range snapshot.Entities {
		if item.ID == "" {
			continue
		}
		s.known[item.ID] = item.Clone()
	}
	s.views = make(map[todo.View]*viewState, len(snapshot.Views))
	for _, summary := range snapshot.Views {
		if !summary.View.IsValid() {
			continue
		}
		s.views[summary.View] = &viewState{
			fetched:     true,
			fetchedAt:   summary.FetchedAt,
			invalidated: summary.Stale,
			rendered:    true,
		}
	}
	s.counts = countsState{}
	if snapshot.Counts != nil {
		s.counts = countsState{
			counts:      snapshot.Counts.Counts,
			fetched:     true,
			fetchedAt:   snapshot.Counts.FetchedAt,
			invalidated: snapshot.Counts.Stale,
		}
	}
	s.mu.Unlock()
}
