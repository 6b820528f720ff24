// Package engine wires the cache, the mutation pipeline, persistence and
// the reconnection controller into one offline-capable todo client.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amonks/tasksync/cache"
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/persist"
	"github.com/amonks/tasksync/reconnect"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
)

// ErrOffline is returned when an operation needs the server and it cannot
// be reached.
var ErrOffline = errors.New("server unreachable")

// Options configures an Engine.
type Options struct {
	Gateway remote.Gateway

	// Storage holds the persisted snapshot. Nil disables persistence.
	Storage persist.Storage

	// Policy decides view membership. Nil means todo.DefaultPolicy.
	Policy todo.Policy

	// Retry is the mutation retry policy. The zero value means
	// mutation.DefaultRetryPolicy.
	Retry mutation.RetryPolicy

	// StaleTime is how long fetched views are served without refetching.
	// Zero means cache.DefaultStaleTime.
	StaleTime time.Duration

	// SaveThrottle is the minimum interval between snapshot writes. Zero
	// means persist.DefaultThrottle.
	SaveThrottle time.Duration

	// ProbeInterval enables background reconnection probing while offline.
	// Zero disables it.
	ProbeInterval time.Duration

	// RevalidateOnSettle refetches rendered views in the background after
	// each mutation finishes.
	RevalidateOnSettle bool

	// Notifier receives mutation outcomes. Nil logs them.
	Notifier mutation.Notifier

	// Offline starts the engine offline: no requests are made until Sync.
	Offline bool

	Location *time.Location
	Logger   *log.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Engine is an offline-capable todo client.
type Engine struct {
	gateway    remote.Gateway
	cache      *cache.Store
	pipeline   *mutation.Pipeline
	adapter    *persist.Adapter
	controller *reconnect.Controller
	notifier   mutation.Notifier
	logger     *log.Logger

	// epoch counts pipeline changes. A fetch that overlaps a change is not
	// written, so it cannot hide an optimistic or just-settled update.
	epoch atomic.Uint64

	refresh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open builds an engine and restores the persisted snapshot. Restored
// pending mutations are resumed when the engine starts online.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "tasksync: ", log.LstdFlags)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = mutation.LogNotifier{Logger: logger}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		gateway:  opts.Gateway,
		notifier: notifier,
		logger:   logger,
		refresh:  make(chan struct{}, 1),
		ctx:      runCtx,
		cancel:   cancel,
	}
	e.controller = reconnect.New(reconnect.Options{Offline: opts.Offline, Logger: logger})
	e.adapter = persist.NewAdapter(persist.AdapterOptions{
		Storage:  opts.Storage,
		Source:   e.snapshot,
		Finished: e.finished,
		Throttle: opts.SaveThrottle,
		Logger:   logger,
		Now:      opts.Now,
	})
	e.cache = cache.New(cache.Options{
		Policy:    opts.Policy,
		StaleTime: opts.StaleTime,
		Location:  opts.Location,
		Now:       opts.Now,
		OnChange:  e.adapter.Save,
	})

	var notify mutation.Notifier = mutation.NotifierFunc(e.notify)
	if !opts.RevalidateOnSettle {
		notify = notifier
	}
	pipeline, err := mutation.New(mutation.Options{
		Gateway:  opts.Gateway,
		Cache:    e.cache,
		Retry:    opts.Retry,
		Notifier: notify,
		Online:   e.controller.Online,
		OnNetworkFailure: func(error) {
			e.controller.MarkOffline()
		},
		OnChange: e.changed,
		Logger:   logger,
		Now:      opts.Now,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	e.pipeline = pipeline

	restored := 0
	if snapshot, ok := e.adapter.Restore(ctx); ok {
		e.cache.Restore(snapshot.Cache)
		restored = e.pipeline.Restore(snapshot.PendingMutations)
	}

	e.controller.OnReconnect(func(context.Context) {
		if n := e.pipeline.Resume(); n > 0 {
			e.logf("resumed %d pending todo(s)", n)
		}
	})
	e.controller.OnReconnect(func(ctx context.Context) {
		if err := e.Revalidate(ctx); err != nil && !errors.Is(err, ErrOffline) {
			e.logf("revalidate: %v", err)
		}
	})

	if restored > 0 && e.controller.Online() {
		e.pipeline.Resume()
	}

	if opts.RevalidateOnSettle {
		e.wg.Add(1)
		go e.refreshLoop()
	}
	if opts.ProbeInterval > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.controller.Watch(e.ctx, e.probe, opts.ProbeInterval)
		}()
	}
	return e, nil
}

// Controller returns the reconnection controller.
func (e *Engine) Controller() *reconnect.Controller {
	return e.controller
}

// Online reports whether the engine is making requests.
func (e *Engine) Online() bool {
	return e.controller.Online()
}

// Pending returns the unsettled mutations in issue order.
func (e *Engine) Pending() []mutation.Record {
	return e.pipeline.Pending()
}

// Sync reports connectivity restored: paused mutations resume and rendered
// views are refetched. When offline the server is probed first. Sync waits
// for the resumed mutations to be sent and returns ErrOffline if the server
// is still unreachable afterwards.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.controller.Online() {
		if err := e.probe(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrOffline, err)
		}
	}
	e.controller.Signal(ctx)
	if err := e.pipeline.Wait(ctx); err != nil {
		return err
	}
	if !e.controller.Online() {
		return ErrOffline
	}
	return nil
}

// Wait blocks until no mutation is being sent or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	return e.pipeline.Wait(ctx)
}

// Flush writes the snapshot now.
func (e *Engine) Flush(ctx context.Context) error {
	return e.adapter.Flush(ctx)
}

// Close waits for mutations being sent (bounded by ctx), stops the
// pipeline and writes the final snapshot. Unsent mutations stay pending.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		var errs []error
		if err := e.pipeline.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for mutations: %w", err))
		}
		e.cancel()
		e.pipeline.Close()
		e.wg.Wait()

		flushCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := e.adapter.Close(flushCtx); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot: %w", err))
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) snapshot() persist.Snapshot {
	pending := e.pipeline.Pending()
	return persist.Snapshot{
		Cache:            e.cache.Snapshot(),
		PendingMutations: pending,
	}
}

func (e *Engine) finished(recordID string) bool {
	return e.pipeline != nil && e.pipeline.Finished(recordID)
}

func (e *Engine) changed() {
	e.epoch.Add(1)
	e.adapter.Save()
}

func (e *Engine) notify(n mutation.Notification) {
	e.notifier.Notify(n)
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

func (e *Engine) refreshLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.refresh:
		}
		if !e.controller.Online() {
			continue
		}
		if err := e.Revalidate(e.ctx); err != nil && e.ctx.Err() == nil && !errors.Is(err, ErrOffline) {
			e.logf("revalidate: %v", err)
		}
	}
}

func (e *Engine) probe(ctx context.Context) error {
	_, err := e.gateway.Counts(ctx)
	if remote.IsNetwork(err) {
		return err
	}
	return nil
}

func (e *Engine) logf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
