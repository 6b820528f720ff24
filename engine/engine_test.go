package engine_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amonks/tasksync/engine"
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/persist"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
	"github.com/amonks/tasksync/todoserver"
)

// flakyGateway forwards to a real client unless it is marked down.
type flakyGateway struct {
	remote.Gateway

	down    atomic.Bool
	lists   atomic.Int32
	creates atomic.Int32
	gate   chan struct{}
	gateMu sync.Mutex
}

func (g *flakyGateway) fail(op string) error {
	if g.down.Load() {
		return &remote.NetworkError{Op: op, Err: errors.New("connection refused")}
	}
	return nil
}

func (g *flakyGateway) wait(ctx context.Context) {
	g.gateMu.Lock()
	gate := g.gate
	g.gateMu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (g *flakyGateway) hold() func() {
	gate := make(chan struct{})
	g.gateMu.Lock()
	g.gate = gate
	g.gateMu.Unlock()
	return func() {
		g.gateMu.Lock()
		g.gate = nil
		g.gateMu.Unlock()
		close(gate)
	}
}

func (g *flakyGateway) List(ctx context.Context, view todo.View) ([]todo.Todo, error) {
	g.lists.Add(1)
	if err := g.fail("list"); err != nil {
		return nil, err
	}
	return g.Gateway.List(ctx, view)
}

func (g *flakyGateway) Create(ctx context.Context, input todo.NewTodo) (todo.Todo, error) {
	g.creates.Add(1)
	g.wait(ctx)
	if err := g.fail("create"); err != nil {
		return todo.Todo{}, err
	}
	return g.Gateway.Create(ctx, input)
}

func (g *flakyGateway) Update(ctx context.Context, id string, patch todo.Patch) (todo.Todo, error) {
	if err := g.fail("update"); err != nil {
		return todo.Todo{}, err
	}
	return g.Gateway.Update(ctx, id, patch)
}

func (g *flakyGateway) Delete(ctx context.Context, id string) (todo.Todo, error) {
	if err := g.fail("delete"); err != nil {
		return todo.Todo{}, err
	}
	return g.Gateway.Delete(ctx, id)
}

func (g *flakyGateway) Counts(ctx context.Context) (todo.Counts, error) {
	if err := g.fail("counts"); err != nil {
		return todo.Counts{}, err
	}
	return g.Gateway.Counts(ctx)
}

type harness struct {
	store   *todoserver.Store
	gateway *flakyGateway
	storage persist.Storage
	notes   *notes
}

type notes struct {
	mu   sync.Mutex
	list []mutation.Notification
}

func (n *notes) Notify(notification mutation.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notification)
}

func (n *notes) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var messages []string
	for _, notification := range n.list {
		messages = append(messages, notification.Message)
	}
	return messages
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := todoserver.NewStore(todoserver.StoreOptions{})
	server := todoserver.New(todoserver.Options{Store: store, Logger: log.New(io.Discard, "", 0)})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &harness{
		store:   store,
		gateway: &flakyGateway{Gateway: remote.NewClient(remote.Options{BaseURL: ts.URL})},
		storage: persist.NewFileStorage(filepath.Join(t.TempDir(), "state"), "cache"),
		notes:   &notes{},
	}
}

func (h *harness) open(t *testing.T, configure func(*engine.Options)) *engine.Engine {
	t.Helper()
	opts := engine.Options{
		Gateway:  h.gateway,
		Storage:  h.storage,
		Notifier: h.notes,
		Retry: mutation.RetryPolicy{
			MaxApplicationRetries: 1,
			MaxNetworkRetries:     5,
			BaseDelay:             time.Millisecond,
			MaxDelay:              time.Millisecond,
		},
		SaveThrottle: 10 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
	}
	if configure != nil {
		configure(&opts)
	}
	e, err := engine.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func ids(todos []todo.Todo) []string {
	out := make([]string, 0, len(todos))
	for _, item := range todos {
		out = append(out, item.ID)
	}
	return out
}

func TestCreateIsVisibleBeforeServerReplies(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, nil)
	ctx := waitCtx(t)

	if _, err := e.Todos(ctx, todo.ViewToday); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	release := h.gateway.hold()
	today := todo.Today(time.Now(), nil)
	handle, err := e.Create(todo.NewTodo{Content: "Pay rent", DueDate: &today})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := todo.ValidateID(handle.TodoID()); err != nil {
		t.Fatalf("expected a client-generated id: %v", err)
	}

	peek := e.Peek(todo.ViewToday)
	if len(peek.Todos) != 1 || peek.Todos[0].ID != handle.TodoID() {
		t.Fatalf("expected optimistic todo in today, got %v", ids(peek.Todos))
	}
	if _, ok := h.store.Get(todoserver.LocalOwner, handle.TodoID()); ok {
		t.Fatal("expected server not to have the todo yet")
	}

	release()
	created, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if created.ID != handle.TodoID() {
		t.Fatalf("expected server to keep the client id %s, got %s", handle.TodoID(), created.ID)
	}

	result, err := e.Todos(ctx, todo.ViewToday)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(result.Todos) != 1 || result.Todos[0].ID != handle.TodoID() || result.Offline {
		t.Fatalf("unexpected today after settle: %+v", result)
	}
	if got := h.notes.messages(); len(got) != 1 || got[0] != "Todo created" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestRollbackOnNotFoundRestoresList(t *testing.T) {
	h := newHarness(t)
	original, err := h.store.Create(todoserver.LocalOwner, todo.NewTodo{ID: todo.NewID(), Content: "Water plants"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := h.open(t, nil)
	ctx := waitCtx(t)

	before, err := e.Todos(ctx, todo.ViewInbox)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if _, err := h.store.Delete(todoserver.LocalOwner, original.ID); err != nil {
		t.Fatalf("delete on server: %v", err)
	}
	content := "Water all the plants"
	handle, err := e.Update(original.ID, todo.Patch{Content: &content})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := handle.Wait(ctx); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if handle.State() != mutation.StateRolledBack {
		t.Fatalf("expected rolled back, got %s", handle.State())
	}

	after := e.Peek(todo.ViewInbox)
	if len(after.Todos) != len(before.Todos) || after.Todos[0].Content != "Water plants" {
		t.Fatalf("expected list to be restored, got %+v", after.Todos)
	}
	if got := h.notes.messages(); len(got) != 1 || got[0] != "Failed to update todo" {
		t.Fatalf("unexpected notifications: %v", got)
	}
}

func TestNetworkFailurePausesUntilSync(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, nil)
	ctx := waitCtx(t)

	h.gateway.down.Store(true)
	handle, err := e.Create(todo.NewTodo{Content: "Call mom"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if e.Online() {
		t.Fatal("expected network failure to mark the engine offline")
	}
	if handle.State() != mutation.StatePaused {
		t.Fatalf("expected paused, got %s", handle.State())
	}
	if got := e.Peek(todo.ViewInbox); len(got.Todos) != 1 || !got.Offline {
		t.Fatalf("expected optimistic todo to stay visible offline, got %+v", got)
	}

	if err := e.Sync(ctx); !errors.Is(err, engine.ErrOffline) {
		t.Fatalf("expected sync to fail while down, got %v", err)
	}

	h.gateway.down.Store(false)
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait for settle: %v", err)
	}
	if _, ok := h.store.Get(todoserver.LocalOwner, handle.TodoID()); !ok {
		t.Fatal("expected server to have the todo after sync")
	}
	if len(h.store.List(todoserver.LocalOwner, todo.ViewAll)) != 1 {
		t.Fatal("expected duplicate syncs to create the todo once")
	}
	if pending := e.Pending(); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}
}

func TestOfflineMutationsSurviveRestart(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)

	first, err := engine.Open(ctx, engine.Options{
		Gateway: h.gateway,
		Storage: h.storage,
		Offline: true,
		Logger:  log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	handle, err := first.Create(todo.NewTodo{Content: "Renew passport"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if handle.State() != mutation.StatePaused {
		t.Fatalf("expected offline create to pause, got %s", handle.State())
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(h.store.List(todoserver.LocalOwner, todo.ViewAll)); got != 0 {
		t.Fatalf("expected no requests while offline, server has %d todos", got)
	}

	second := h.open(t, nil)
	if got := second.Peek(todo.ViewInbox); len(got.Todos) != 1 || got.Todos[0].ID != handle.TodoID() {
		t.Fatalf("expected restored optimistic todo, got %+v", got.Todos)
	}
	if err := second.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, ok := h.store.Get(todoserver.LocalOwner, handle.TodoID()); !ok {
		t.Fatal("expected restored mutation to reach the server")
	}
	if pending := second.Pending(); len(pending) != 0 {
		t.Fatalf("expected nothing pending after resume, got %+v", pending)
	}
}

func TestOverlappingRunsKeepEachOthersMutations(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	open := func() *engine.Engine {
		e, err := engine.Open(ctx, engine.Options{
			Gateway: h.gateway,
			Storage: h.storage,
			Offline: true,
			Logger:  log.New(io.Discard, "", 0),
		})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return e
	}

	first, second := open(), open()
	if _, err := first.Create(todo.NewTodo{Content: "Renew passport"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := second.Create(todo.NewTodo{Content: "Book flights"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := second.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	third := open()
	defer third.Close(ctx)
	if pending := third.Pending(); len(pending) != 2 {
		t.Fatalf("expected both runs' creates to be pending, got %+v", pending)
	}
	if got := third.Peek(todo.ViewInbox); len(got.Todos) != 2 {
		t.Fatalf("expected both optimistic todos, got %+v", got.Todos)
	}
}

func TestRepeatedSignalsSendPausedCreateOnce(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, func(opts *engine.Options) { opts.Offline = true })
	ctx := waitCtx(t)

	handle, err := e.Create(todo.NewTodo{Content: "Water plants"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if handle.State() != mutation.StatePaused {
		t.Fatalf("expected offline create to pause, got %s", handle.State())
	}

	release := h.gateway.hold()
	e.Controller().Signal(ctx)
	e.Controller().Signal(ctx)
	release()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait for settle: %v", err)
	}
	if got := h.gateway.creates.Load(); got != 1 {
		t.Fatalf("expected one create request, got %d", got)
	}
	if got := len(h.store.List(todoserver.LocalOwner, todo.ViewAll)); got != 1 {
		t.Fatalf("expected one todo on the server, got %d", got)
	}
}

func TestTodosServesCacheWhenServerUnreachable(t *testing.T) {
	h := newHarness(t)
	if _, err := h.store.Create(todoserver.LocalOwner, todo.NewTodo{ID: todo.NewID(), Content: "Buy milk"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var offset atomic.Int64
	base := time.Now()
	e := h.open(t, func(opts *engine.Options) {
		opts.Now = func() time.Time { return base.Add(time.Duration(offset.Load())) }
	})
	ctx := waitCtx(t)

	if _, err := e.Todos(ctx, todo.ViewInbox); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := e.Todos(ctx, todo.ViewInbox); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if got := h.gateway.lists.Load(); got != 1 {
		t.Fatalf("expected fresh view to be served from cache, got %d lists", got)
	}

	offset.Store(int64(10 * time.Minute))
	h.gateway.down.Store(true)
	result, err := e.Todos(ctx, todo.ViewInbox)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if !result.Offline || !result.Stale || len(result.Todos) != 1 {
		t.Fatalf("expected stale cached list offline, got %+v", result)
	}
	if e.Online() {
		t.Fatal("expected failed fetch to mark offline")
	}
}

func TestCountsFallBackToLocal(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, func(opts *engine.Options) { opts.Offline = true })
	ctx := waitCtx(t)

	today := todo.Today(time.Now(), nil)
	for _, input := range []todo.NewTodo{
		{Content: "Inbox item"},
		{Content: "Today item", DueDate: &today},
	} {
		if _, err := e.Create(input); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	result, err := e.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if !result.Local || result.Counts != (todo.Counts{Inbox: 1, Today: 1}) {
		t.Fatalf("unexpected local counts: %+v", result)
	}
}

func TestCountsRefreshAfterSettle(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, nil)
	ctx := waitCtx(t)

	initial, err := e.Counts(ctx)
	if err != nil || initial.Local || initial.Counts != (todo.Counts{}) {
		t.Fatalf("unexpected initial counts: %+v, %v", initial, err)
	}

	handle, err := e.Create(todo.NewTodo{Content: "Stretch"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	after, err := e.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if after.Local || after.Counts != (todo.Counts{Inbox: 1}) {
		t.Fatalf("expected server counts to include the settled todo, got %+v", after)
	}
}

func TestResolveIDFetchesWhenUnknown(t *testing.T) {
	h := newHarness(t)
	seeded, err := h.store.Create(todoserver.LocalOwner, todo.NewTodo{ID: todo.NewID(), Content: "Read book"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := h.open(t, nil)
	ctx := waitCtx(t)

	id, err := e.ResolveID(ctx, seeded.ID[:8])
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != seeded.ID {
		t.Fatalf("expected %s, got %s", seeded.ID, id)
	}

	if _, err := e.ResolveID(ctx, "zzzz"); !errors.Is(err, todo.ErrTodoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndCompleteSettle(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, nil)
	ctx := waitCtx(t)

	keep, err := e.Create(todo.NewTodo{Content: "Keep"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	drop, err := e.Create(todo.NewTodo{Content: "Drop"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := e.SetCompleted(keep.TodoID(), true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	removed, err := e.Delete(drop.TodoID())
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := e.Peek(todo.ViewInbox); len(got.Todos) != 0 {
		t.Fatalf("expected inbox to be empty optimistically, got %v", ids(got.Todos))
	}
	if got := e.Peek(todo.ViewCompleted); len(got.Todos) != 1 || got.Todos[0].ID != keep.TodoID() {
		t.Fatalf("expected completed todo, got %v", ids(got.Todos))
	}

	for _, handle := range []*mutation.Handle{done, removed} {
		if _, err := handle.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	server := h.store.List(todoserver.LocalOwner, todo.ViewAll)
	if len(server) != 1 || server[0].ID != keep.TodoID() || !server[0].IsCompleted {
		t.Fatalf("unexpected server state: %+v", server)
	}
}

func TestRevalidateOnSettleRefetchesRenderedViews(t *testing.T) {
	h := newHarness(t)
	e := h.open(t, func(opts *engine.Options) { opts.RevalidateOnSettle = true })
	ctx := waitCtx(t)

	if _, err := e.Todos(ctx, todo.ViewInbox); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	handle, err := e.Create(todo.NewTodo{Content: "Sweep"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.gateway.lists.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected a background refetch after settle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
