package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amonks/tasksync/cache"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
	"golang.org/x/sync/errgroup"
)

// Result is a view as returned to callers.
type Result struct {
	View      todo.View
	Todos     []todo.Todo
	FetchedAt time.Time

	// Stale reports that the list could not be refreshed and may be out of
	// date.
	Stale bool

	// Offline reports that the server was not reachable.
	Offline bool
}

// CountsResult is the per-view counts as returned to callers.
type CountsResult struct {
	Counts    todo.Counts
	FetchedAt time.Time

	// Local reports that the counts were derived from cached todos because
	// the server could not be asked.
	Local bool
}

// Todos returns a view. A missing or stale view is fetched when online;
// otherwise the cached list is returned with Offline set. Reading a view
// marks it for revalidation on reconnect.
func (e *Engine) Todos(ctx context.Context, view todo.View) (Result, error) {
	if !view.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", todo.ErrInvalidView, view)
	}
	entry := e.cache.Read(view)
	if !entry.Stale {
		return resultOf(entry, false), nil
	}
	if !e.controller.Online() {
		return resultOf(entry, true), nil
	}

	err := e.fetchView(ctx, view)
	if errors.Is(err, ErrOffline) {
		return resultOf(e.cache.Read(view), true), nil
	}
	if err != nil {
		return Result{}, err
	}
	return resultOf(e.cache.Read(view), false), nil
}

// Peek returns a view from the cache without fetching.
func (e *Engine) Peek(view todo.View) Result {
	return resultOf(e.cache.Lookup(view), !e.controller.Online())
}

// Counts returns the number of todos in each view. Fresh server counts are
// used when available; otherwise they are fetched, and when the server
// cannot be reached they are derived from the cache.
func (e *Engine) Counts(ctx context.Context) (CountsResult, error) {
	entry := e.cache.Counts()
	if entry.Fetched && !entry.Stale {
		return CountsResult{Counts: entry.Counts, FetchedAt: entry.FetchedAt}, nil
	}
	if e.controller.Online() {
		err := e.fetchCounts(ctx)
		if err == nil {
			entry = e.cache.Counts()
			if !entry.Stale {
				return CountsResult{Counts: entry.Counts, FetchedAt: entry.FetchedAt}, nil
			}
		} else if !errors.Is(err, ErrOffline) {
			return CountsResult{}, err
		}
	}
	return CountsResult{Counts: e.cache.LocalCounts(), Local: true}, nil
}

// Revalidate refetches every rendered view, and the counts if they were
// fetched before, concurrently.
func (e *Engine) Revalidate(ctx context.Context) error {
	if !e.controller.Online() {
		return ErrOffline
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, view := range e.cache.Rendered() {
		g.Go(func() error {
			return e.fetchView(ctx, view)
		})
	}
	if e.cache.Counts().Fetched {
		g.Go(func() error {
			return e.fetchCounts(ctx)
		})
	}
	return g.Wait()
}

// Find returns a todo as currently visible, including optimistic changes.
func (e *Engine) Find(id string) (todo.Todo, bool) {
	return e.cache.Find(id)
}

// ResolveID expands an ID prefix against the cached todos. When nothing
// matches and the engine is online, the full list is fetched and the
// prefix is tried again.
func (e *Engine) ResolveID(ctx context.Context, prefix string) (string, error) {
	id, err := todo.NewIDIndex(e.cache.Entities()).Resolve(prefix)
	if err == nil || !errors.Is(err, todo.ErrTodoNotFound) || !e.controller.Online() {
		return id, err
	}
	if err := e.fetchView(ctx, todo.ViewAll); err != nil && !errors.Is(err, ErrOffline) {
		return "", err
	}
	return todo.NewIDIndex(e.cache.Entities()).Resolve(prefix)
}

func (e *Engine) fetchView(ctx context.Context, view todo.View) error {
	epoch := e.epoch.Load()
	todos, err := e.gateway.List(ctx, view)
	if err != nil {
		return e.fetchFailed(ctx, "list "+view.Label(), err)
	}
	if e.epoch.Load() != epoch {
		return nil
	}
	e.cache.Write(view, todos)
	return nil
}

func (e *Engine) fetchCounts(ctx context.Context) error {
	epoch := e.epoch.Load()
	counts, err := e.gateway.Counts(ctx)
	if err != nil {
		return e.fetchFailed(ctx, "counts", err)
	}
	if e.epoch.Load() != epoch {
		return nil
	}
	e.cache.SetCounts(counts)
	return nil
}

func (e *Engine) fetchFailed(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if remote.IsNetwork(err) {
		if e.controller.MarkOffline() {
			e.logf("%s: %v", op, err)
		}
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func resultOf(entry cache.Entry, offline bool) Result {
	return Result{
		View:      entry.View,
		Todos:     entry.Todos,
		FetchedAt: entry.FetchedAt,
		Stale:     entry.Stale,
		Offline:   offline,
	}
}
