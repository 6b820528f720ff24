package persist

import (
	"context"
	"errors"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/amonks/tasksync/mutation"
)

// DefaultThrottle is the minimum interval between background writes.
const DefaultThrottle = time.Second

const writeTimeout = 10 * time.Second

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	Storage Storage

	// Source produces the snapshot to write. It is called from the writer
	// goroutine, never from Save, so callers may invoke Save while holding
	// their own locks.
	Source func() Snapshot

	// Finished reports whether a pending record has settled or rolled back
	// in this process. Such records are dropped when they are found in the
	// slot. Nil means none have.
	Finished func(recordID string) bool

	// Throttle is the minimum interval between background writes. Zero
	// means DefaultThrottle.
	Throttle time.Duration

	Logger *log.Logger

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Adapter writes snapshots to storage in the background.
type Adapter struct {
	storage  Storage
	source   func() Snapshot
	finished func(recordID string) bool
	throttle time.Duration
	logger   *log.Logger
	now      func() time.Time

	writeMu sync.Mutex
	// stored holds the IDs of pending records this adapter has read from
	// or written to the slot.
	stored map[string]struct{}

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool
}

// NewAdapter creates an adapter.
func NewAdapter(opts AdapterOptions) *Adapter {
	throttle := opts.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "persist: ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	source := opts.Source
	if source == nil {
		source = func() Snapshot { return Snapshot{} }
	}
	finished := opts.Finished
	if finished == nil {
		finished = func(string) bool { return false }
	}
	return &Adapter{
		storage:  opts.Storage,
		source:   source,
		finished: finished,
		throttle: throttle,
		logger:   logger,
		now:      now,
		stored:   make(map[string]struct{}),
	}
}

// Save schedules a write of the current snapshot. It returns immediately;
// saves within one throttle interval are coalesced, and failures are
// logged.
func (a *Adapter) Save() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.storage == nil {
		return
	}
	a.dirty = true
	if a.timer == nil {
		a.timer = time.AfterFunc(a.throttle, a.writeScheduled)
	}
}

// Flush writes the current snapshot now, replacing any scheduled write.
func (a *Adapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.dirty = false
	a.mu.Unlock()

	if a.storage == nil {
		return nil
	}
	if err := a.write(ctx); err != nil {
		a.logf("flush snapshot: %v", err)
		return err
	}
	return nil
}

// Restore loads the stored snapshot. It reports false when the slot is
// empty, unreadable or from another version; an incompatible snapshot is
// cleared.
func (a *Adapter) Restore(ctx context.Context) (Snapshot, bool) {
	if a.storage == nil {
		return Snapshot{}, false
	}
	data, err := a.storage.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return Snapshot{}, false
	}
	if err != nil {
		a.logf("restore snapshot: %v", err)
		return Snapshot{}, false
	}
	snapshot, err := Decode(data)
	if err != nil {
		a.logf("discarding snapshot: %v", err)
		if clearErr := a.storage.Clear(ctx); clearErr != nil {
			a.logf("clear snapshot: %v", clearErr)
		}
		return Snapshot{}, false
	}

	a.writeMu.Lock()
	for _, record := range snapshot.PendingMutations {
		a.stored[record.ID] = struct{}{}
	}
	a.writeMu.Unlock()
	return snapshot, true
}

// Close flushes and stops accepting saves.
func (a *Adapter) Close(ctx context.Context) error {
	err := a.Flush(ctx)
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return err
}

func (a *Adapter) writeScheduled() {
	a.mu.Lock()
	a.timer = nil
	dirty := a.dirty
	a.dirty = false
	a.mu.Unlock()

	if !dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := a.write(ctx); err != nil {
		a.logf("save snapshot: %v", err)
	}
}

func (a *Adapter) write(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	snapshot := a.source()
	snapshot.SavedAt = a.now()
	var written []mutation.Record
	err := a.storage.Update(ctx, func(current []byte) ([]byte, error) {
		merged := snapshot
		if current != nil {
			if stored, err := Decode(current); err == nil {
				merged.PendingMutations = a.mergePending(stored.PendingMutations, snapshot.PendingMutations)
			}
		}
		written = merged.PendingMutations
		return Encode(merged)
	})
	if err != nil {
		return err
	}
	for _, record := range written {
		a.stored[record.ID] = struct{}{}
	}
	return nil
}

// mergePending combines the records already in the slot, possibly written
// by another process, with this process's records. Stored records this
// process has finished are dropped. A local record that was in the slot
// earlier and is gone now was finished by another process, so it is not
// written back.
func (a *Adapter) mergePending(stored, local []mutation.Record) []mutation.Record {
	inSlot := make(map[string]struct{}, len(stored))
	byID := make(map[string]mutation.Record, len(stored)+len(local))
	for _, record := range stored {
		inSlot[record.ID] = struct{}{}
		if a.finished(record.ID) {
			continue
		}
		byID[record.ID] = record
	}
	for _, record := range local {
		_, wasStored := a.stored[record.ID]
		_, stillStored := inSlot[record.ID]
		if wasStored && !stillStored {
			continue
		}
		byID[record.ID] = record
	}

	merged := make([]mutation.Record, 0, len(byID))
	for _, record := range byID {
		merged = append(merged, record)
	}
	slices.SortFunc(merged, func(x, y mutation.Record) int {
		return strings.Compare(x.ID, y.ID)
	})
	return merged
}

func (a *Adapter) logf(format string, args ...any) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}
