// Package cache is the local mirror of server todos.
//
// The store keeps two layers. The known set holds the last server-confirmed
// copy of every todo the client has seen. On top of it sits an ordered list
// of optimistic overlays, one per unsettled mutation. Every view is derived
// from known+overlays through the view policy and the display order, so
// removing a failed mutation's overlay is all a rollback needs: later
// mutations keep their effect and nothing is restored from a stale copy.
package cache

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/amonks/tasksync/todo"
)

// DefaultStaleTime is how long a fetched view is served without refetching.
const DefaultStaleTime = 5 * time.Minute

// Options configures a Store.
type Options struct {
	// Policy decides view membership. Nil means todo.DefaultPolicy.
	Policy todo.Policy

	// StaleTime is the age at which a fetched view needs refetching. Zero
	// means DefaultStaleTime; negative means fetched views never age.
	StaleTime time.Duration

	// Location is the zone "today" is computed in. Nil means time.Local.
	Location *time.Location

	// Now overrides the clock for tests.
	Now func() time.Time

	// OnChange is called after every change to the stored data, outside the
	// store lock.
	OnChange func()
}

// Store is the cache. It is safe for concurrent use.
type Store struct {
	policy    todo.Policy
	staleTime time.Duration
	location  *time.Location
	now       func() time.Time
	onChange  func()

	mu       sync.Mutex
	known    map[string]todo.Todo
	overlays []Overlay
	views    map[todo.View]*viewState
	counts   countsState
}

type viewState struct {
	fetched     bool
	fetchedAt   time.Time
	invalidated bool
	rendered    bool
}

type countsState struct {
	counts      todo.Counts
	fetched     bool
	fetchedAt   time.Time
	invalidated bool
}

// Entry is a view as currently derived from the cache.
type Entry struct {
	View      todo.View
	Todos     []todo.Todo
	Fetched   bool
	FetchedAt time.Time

	// Stale reports that the view should be refetched: it was never
	// fetched, was invalidated, or is older than the stale time.
	Stale bool
}

// CountsEntry is the cached server counts.
type CountsEntry struct {
	Counts    todo.Counts
	Fetched   bool
	FetchedAt time.Time
	Stale     bool
}

// New creates an empty store.
func New(opts Options) *Store {
	policy := opts.Policy
	if policy == nil {
		policy = todo.DefaultPolicy()
	}
	staleTime := opts.StaleTime
	if staleTime == 0 {
		staleTime = DefaultStaleTime
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		policy:    policy,
		staleTime: staleTime,
		location:  opts.Location,
		now:       now,
		onChange:  opts.OnChange,
		known:     make(map[string]todo.Todo),
		views:     make(map[todo.View]*viewState),
	}
}

// Policy returns the view policy the store derives views with.
func (s *Store) Policy() todo.Policy {
	return s.policy
}

// Today returns the date views are currently derived for.
func (s *Store) Today() todo.Date {
	return todo.Today(s.now(), s.location)
}

// Read derives a view and marks it rendered, so it is revalidated when
// connectivity returns.
func (s *Store) Read(view todo.View) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewLocked(view).rendered = true
	return s.entryLocked(view)
}

// Lookup derives a view without marking it rendered.
func (s *Store) Lookup(view todo.View) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entryLocked(view)
}

// Write records a fetched view. Known todos the policy places in view that
// the server did not return are dropped; returned todos replace their
// known copies.
func (s *Store) Write(view todo.View, todos []todo.Todo) {
	s.mu.Lock()
	today := s.Today()
	returned := make(map[string]bool, len(todos))
	for _, item := range todos {
		returned[item.ID] = true
	}
	for id, item := range s.known {
		if !returned[id] && s.policy.Matches(item, view, today) {
			delete(s.known, id)
		}
	}
	for _, item := range todos {
		s.known[item.ID] = item.Clone()
	}
	state := s.viewLocked(view)
	state.fetched = true
	state.fetchedAt = s.now()
	state.invalidated = false
	s.mu.Unlock()

	s.changed()
}

// Invalidate marks views stale. With no arguments it marks every view and
// the counts stale.
func (s *Store) Invalidate(views ...todo.View) {
	s.mu.Lock()
	if len(views) == 0 {
		for _, state := range s.views {
			state.invalidated = true
		}
		s.counts.invalidated = true
	}
	for _, view := range views {
		s.viewLocked(view).invalidated = true
	}
	s.mu.Unlock()

	s.changed()
}

// SetCounts records fetched server counts.
func (s *Store) SetCounts(counts todo.Counts) {
	s.mu.Lock()
	s.counts = countsState{counts: counts, fetched: true, fetchedAt: s.now()}
	s.mu.Unlock()

	s.changed()
}

// Counts returns the cached server counts.
func (s *Store) Counts() CountsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CountsEntry{
		Counts:    s.counts.counts,
		Fetched:   s.counts.fetched,
		FetchedAt: s.counts.fetchedAt,
		Stale:     !s.counts.fetched || s.counts.invalidated || s.expiredLocked(s.counts.fetchedAt),
	}
}

// LocalCounts derives counts from the todos the cache holds, including
// optimistic changes.
func (s *Store) LocalCounts() todo.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	return todo.CountViews(slices.Collect(maps.Values(s.effectiveLocked())), s.Today(), s.policy)
}

// Find returns a todo as currently visible, including optimistic changes.
func (s *Store) Find(id string) (todo.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.effectiveLocked()[id]
	if !ok {
		return todo.Todo{}, false
	}
	return item.Clone(), true
}

// Known returns the server-confirmed copy of a todo.
func (s *Store) Known(id string) (todo.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.known[id]
	if !ok {
		return todo.Todo{}, false
	}
	return item.Clone(), true
}

// Entities returns every visible todo in display order.
func (s *Store) Entities() []todo.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAll(todo.Sort(slices.Collect(maps.Values(s.effectiveLocked()))))
}

// Rendered returns the views that have been read, in a stable order.
func (s *Store) Rendered() []todo.View {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rendered []todo.View
	for view, state := range s.views {
		if state.rendered {
			rendered = append(rendered, view)
		}
	}
	slices.Sort(rendered)
	return rendered
}

func (s *Store) entryLocked(view todo.View) Entry {
	state := s.views[view]
	entry := Entry{View: view, Stale: true}
	if state != nil {
		entry.Fetched = state.fetched
		entry.FetchedAt = state.fetchedAt
		entry.Stale = !state.fetched || state.invalidated || s.expiredLocked(state.fetchedAt)
	}
	effective := slices.Collect(maps.Values(s.effectiveLocked()))
	entry.Todos = cloneAll(s.policy.Filter(effective, view, s.Today()))
	return entry
}

func (s *Store) viewLocked(view todo.View) *viewState {
	state, ok := s.views[view]
	if !ok {
		state = &viewState{}
		s.views[view] = state
	}
	return state
}

func (s *Store) expiredLocked(fetchedAt time.Time) bool {
	if s.staleTime < 0 {
		return false
	}
	return s.now().Sub(fetchedAt) >= s.staleTime
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func cloneAll(todos []todo.Todo) []todo.Todo {
	out := make([]todo.Todo, len(todos))
	for i, item := range todos {
		out[i] = item.Clone()
	}
	return out
}
