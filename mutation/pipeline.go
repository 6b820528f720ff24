// Package mutation runs optimistic writes against the server.
//
// Issuing a mutation applies its effect to the cache immediately, then
// queues the request on a lane keyed by the todo it targets. Each lane sends
// its records one at a time in issue order, so an edit can never reach the
// server before the create it depends on; lanes for different todos run
// concurrently. A record ends either settled (the server's copy replaces the
// optimistic one) or rolled back (its overlay is removed). Network failures
// pause a lane instead of failing it, and paused records survive restarts
// through Pending and Restore.
package mutation

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/amonks/tasksync/cache"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrAbandoned wraps the last failure of a mutation that ran out of
	// retries.
	ErrAbandoned = errors.New("mutation abandoned")

	// ErrClosed is returned when issuing on a closed pipeline.
	ErrClosed = errors.New("mutation pipeline closed")
)

// Options configures a Pipeline.
type Options struct {
	Gateway remote.Gateway
	Cache   *cache.Store

	// Registry resolves mutation kinds. Nil means DefaultRegistry.
	Registry *Registry

	// Retry is the retry policy. The zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// Notifier receives outcomes. Nil discards them.
	Notifier Notifier

	// Online reports whether requests should be attempted. Nil means
	// always online.
	Online func() bool

	// OnNetworkFailure is called after a request fails without a response.
	OnNetworkFailure func(error)

	// OnChange is called after records are added, change state or leave
	// the pipeline. It is called without pipeline locks held.
	OnChange func()

	Logger *log.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Pipeline issues, sends and retries mutations.
type Pipeline struct {
	gateway          remote.Gateway
	cache            *cache.Store
	registry         *Registry
	retry            RetryPolicy
	notifier         Notifier
	online           func() bool
	onNetworkFailure func(error)
	onChange         func()
	logger           *log.Logger
	now              func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entropy io.Reader
	lanes   map[string]*lane
	records map[string]*entry
	changed chan struct{}
	closed  bool

	// finished holds the IDs of records that settled or rolled back.
	finished map[string]struct{}
}

type lane struct {
	todoID  string
	queue   []*entry
	running bool
	timer   *time.Timer
}

type entry struct {
	record   Record
	executor Executor
	handle   *Handle
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = discardNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "mutation: ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		gateway:          opts.Gateway,
		cache:            opts.Cache,
		registry:         registry,
		retry:            opts.Retry.withDefaults(),
		notifier:         notifier,
		online:           opts.Online,
		onNetworkFailure: opts.OnNetworkFailure,
		onChange:         opts.OnChange,
		logger:           logger,
		now:              now,
		ctx:              ctx,
		cancel:           cancel,
		entropy:          ulid.Monotonic(rand.Reader, 0),
		lanes:            make(map[string]*lane),
		records:          make(map[string]*entry),
		finished:         make(map[string]struct{}),
		changed:          make(chan struct{}),
	}, nil
}

// Issue records a mutation, applies its optimistic effect and queues it.
// Validation failures are returned without issuing anything. When the
// pipeline is offline the record is paused without a request being made.
func (p *Pipeline) Issue(kind Kind, payload any) (*Handle, error) {
	executor, err := p.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	prepared, err := executor.Prepare(raw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	now := p.now()
	record := Record{
		ID:       ulid.MustNew(ulid.Timestamp(now), p.entropy).String(),
		Kind:     kind,
		TodoID:   prepared.TodoID,
		Payload:  prepared.Payload,
		IssuedAt: now,
		State:    StateIssued,
	}
	overlay, err := executor.Overlay(record.Payload, record.IssuedAt)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	overlay.ID = record.ID
	overlay.TodoID = record.TodoID
	p.cache.Apply(overlay)

	record.State = StateApplied
	e := &entry{record: record, executor: executor, handle: newHandle(record.ID, record.TodoID, StateApplied)}
	p.records[record.ID] = e
	l := p.laneLocked(record.TodoID)
	l.queue = append(l.queue, e)
	if !l.running {
		if p.isOnline() {
			p.startLocked(l)
		} else {
			p.pauseLaneLocked(l)
		}
	}
	p.broadcastLocked()
	p.mu.Unlock()

	p.changedHook()
	return e.handle, nil
}

// Restore re-binds persisted records by kind, re-applies their overlays and
// leaves them paused. Records of unknown kinds are dropped. It returns the
// number of records restored.
func (p *Pipeline) Restore(records []Record) int {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int {
		return strings.Compare(a.ID, b.ID)
	})

	p.mu.Lock()
	restored := 0
	for _, record := range sorted {
		if record.ID == "" || record.TodoID == "" {
			p.logf("dropping pending mutation without id")
			continue
		}
		if _, exists := p.records[record.ID]; exists {
			continue
		}
		executor, err := p.registry.Lookup(record.Kind)
		if err != nil {
			p.logf("dropping pending mutation %s: %v", record.ID, err)
			continue
		}
		overlay, err := executor.Overlay(record.Payload, record.IssuedAt)
		if err != nil {
			p.logf("dropping pending mutation %s: %v", record.ID, err)
			continue
		}
		overlay.ID = record.ID
		overlay.TodoID = record.TodoID
		p.cache.Apply(overlay)

		record.State = StatePaused
		e := &entry{record: record, executor: executor, handle: newHandle(record.ID, record.TodoID, StatePaused)}
		p.records[record.ID] = e
		l := p.laneLocked(record.TodoID)
		l.queue = append(l.queue, e)
		restored++
	}
	if restored > 0 {
		p.broadcastLocked()
	}
	p.mu.Unlock()

	if restored > 0 {
		p.changedHook()
	}
	return restored
}

// Resume starts every lane that is not running. Lanes already sending are
// left alone, so repeated calls are harmless. It returns the number of
// lanes started.
func (p *Pipeline) Resume() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}
	var idle []*lane
	for _, l := range p.lanes {
		if !l.running && len(l.queue) > 0 {
			idle = append(idle, l)
		}
	}
	slices.SortFunc(idle, func(a, b *lane) int {
		return strings.Compare(a.queue[0].record.ID, b.queue[0].record.ID)
	})
	for _, l := range idle {
		p.startLocked(l)
	}
	if len(idle) > 0 {
		p.broadcastLocked()
	}
	return len(idle)
}

// Pending returns the unsettled records in issue order.
func (p *Pipeline) Pending() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]Record, 0, len(p.records))
	for _, e := range p.records {
		records = append(records, e.record)
	}
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.ID, b.ID)
	})
	return records
}

// Finished reports whether the record with the given ID settled or rolled
// back in this pipeline.
func (p *Pipeline) Finished(recordID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.finished[recordID]
	return ok
}

// Handle returns the handle of an unsettled record.
func (p *Pipeline) Handle(recordID string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.records[recordID]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Wait blocks until no lane is sending or ctx is done. Paused records do
// not keep Wait blocked.
func (p *Pipeline) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		busy := false
		for _, l := range p.lanes {
			if l.running {
				busy = true
				break
			}
		}
		changed := p.changed
		p.mu.Unlock()

		if !busy {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops every lane. Records in flight are paused and stay pending.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, l := range p.lanes {
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pipeline) runLane(l *lane) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(p.lanes, l.todoID)
			p.broadcastLocked()
			p.mu.Unlock()
			return
		}
		head := l.queue[0]
		if p.ctx.Err() != nil || !p.isOnline() {
			p.pauseLaneLocked(l)
			l.running = false
			p.broadcastLocked()
			p.mu.Unlock()
			p.changedHook()
			return
		}
		head.record.State = StateInFlight
		head.handle.setState(StateInFlight)
		executor := head.executor
		payload := head.record.Payload
		p.broadcastLocked()
		p.mu.Unlock()

		result, err := executor.Execute(p.ctx, p.gateway, payload)
		if !p.handleOutcome(l, head, result, err) {
			return
		}
	}
}

// handleOutcome finishes, retries or pauses the head record. It reports
// whether the lane should keep running.
func (p *Pipeline) handleOutcome(l *lane, head *entry, result todo.Todo, err error) bool {
	switch {
	case err == nil:
		p.settle(l, head, result)
		return true
	case p.ctx.Err() != nil:
		p.halt(l)
		return false
	case remote.IsNetwork(err):
		return p.networkFailure(l, head, err)
	case remote.IsNotFound(err), errors.Is(err, ErrInvalidPayload):
		p.rollback(l, head, err)
		return true
	default:
		return p.applicationFailure(l, head, err)
	}
}

func (p *Pipeline) settle(l *lane, head *entry, result todo.Todo) {
	removes := head.executor.Removes()
	if result.ID == "" || removes {
		result.ID = head.record.TodoID
	}

	p.mu.Lock()
	p.cache.Confirm(head.record.ID, result, removes)
	p.cache.Invalidate()
	p.dequeueLocked(l, head)
	p.finished[head.record.ID] = struct{}{}
	head.record.State = StateSettled
	p.broadcastLocked()
	p.mu.Unlock()

	p.notifier.Notify(Notification{
		Kind:     head.record.Kind,
		RecordID: head.record.ID,
		TodoID:   head.record.TodoID,
		Message:  head.executor.Messages().Success,
	})
	p.changedHook()
	head.handle.resolve(StateSettled, result, nil)
}

func (p *Pipeline) rollback(l *lane, head *entry, err error) {
	p.mu.Lock()
	p.cache.Discard(head.record.ID)
	p.cache.Invalidate()
	p.dequeueLocked(l, head)
	p.finished[head.record.ID] = struct{}{}
	head.record.State = StateRolledBack
	head.record.LastError = err.Error()
	p.broadcastLocked()
	p.mu.Unlock()

	p.logf("%s %s rolled back: %v", head.record.Kind, head.record.TodoID, err)
	p.notifier.Notify(Notification{
		Kind:     head.record.Kind,
		RecordID: head.record.ID,
		TodoID:   head.record.TodoID,
		Message:  head.executor.Messages().Failure,
		Err:      err,
	})
	p.changedHook()
	head.handle.resolve(StateRolledBack, todo.Todo{}, err)
}

func (p *Pipeline) networkFailure(l *lane, head *entry, err error) bool {
	p.mu.Lock()
	head.record.NetworkFailures++
	head.record.LastError = err.Error()
	failures := head.record.NetworkFailures
	if failures > p.retry.MaxNetworkRetries {
		p.mu.Unlock()
		p.rollback(l, head, fmt.Errorf("%w after %d network failures: %w", ErrAbandoned, failures, err))
		return true
	}
	p.pauseLaneLocked(l)
	l.running = false
	p.broadcastLocked()
	p.mu.Unlock()

	p.logf("%s %s paused after network failure %d: %v", head.record.Kind, head.record.TodoID, failures, err)
	if p.onNetworkFailure != nil {
		p.onNetworkFailure(err)
	}

	p.mu.Lock()
	if !p.closed && !l.running && l.timer == nil && p.isOnline() {
		todoID := l.todoID
		l.timer = time.AfterFunc(p.retry.Delay(failures-1), func() {
			p.resumeLane(todoID)
		})
	}
	p.mu.Unlock()

	p.changedHook()
	return false
}

func (p *Pipeline) applicationFailure(l *lane, head *entry, err error) bool {
	p.mu.Lock()
	head.record.ApplicationFailures++
	head.record.LastError = err.Error()
	failures := head.record.ApplicationFailures
	p.mu.Unlock()

	if failures > p.retry.MaxApplicationRetries {
		p.rollback(l, head, fmt.Errorf("%w after %d attempts: %w", ErrAbandoned, failures, err))
		return true
	}

	delay := p.retry.Delay(failures - 1)
	p.logf("%s %s failed, retrying in %s: %v", head.record.Kind, head.record.TodoID, delay, err)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.ctx.Done():
		p.halt(l)
		return false
	}
}

func (p *Pipeline) halt(l *lane) {
	p.mu.Lock()
	p.pauseLaneLocked(l)
	l.running = false
	p.broadcastLocked()
	p.mu.Unlock()

	p.changedHook()
}

func (p *Pipeline) resumeLane(todoID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.lanes[todoID]
	if !ok {
		return
	}
	l.timer = nil
	if p.closed || l.running || !p.isOnline() {
		return
	}
	p.startLocked(l)
	p.broadcastLocked()
}

func (p *Pipeline) laneLocked(todoID string) *lane {
	l, ok := p.lanes[todoID]
	if !ok {
		l = &lane{todoID: todoID}
		p.lanes[todoID] = l
	}
	return l
}

func (p *Pipeline) startLocked(l *lane) {
	if l.running || len(l.queue) == 0 || p.closed {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	for _, e := range l.queue {
		if e.record.State == StatePaused {
			e.record.State = StateApplied
			e.handle.setState(StateApplied)
		}
	}
	l.running = true
	p.wg.Add(1)
	go p.runLane(l)
}

// pauseLaneLocked pauses every record queued on l; the ones behind the
// head wait for the same connectivity.
func (p *Pipeline) pauseLaneLocked(l *lane) {
	for _, e := range l.queue {
		e.record.State = StatePaused
		e.handle.setState(StatePaused)
	}
}

func (p *Pipeline) dequeueLocked(l *lane, e *entry) {
	l.queue = slices.DeleteFunc(l.queue, func(queued *entry) bool {
		return queued == e
	})
	delete(p.records, e.record.ID)
}

func (p *Pipeline) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pipeline) isOnline() bool {
	return p.online == nil || p.online()
}

func (p *Pipeline) changedHook() {
	if p.onChange != nil {
		p.onChange()
	}
}

func (p *Pipeline) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
