// Package persist keeps the cache and the pending mutations across
// restarts.
//
// Everything lives in one slot as a single versioned JSON document, so a
// restore sees the cache and the pending records as they were at one
// moment. Persistence is best-effort: write failures are logged and never
// reach the user, and any problem reading the slot means starting empty.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amonks/tasksync/cache"
	"github.com/amonks/tasksync/mutation"
)

// Version is the snapshot format version. Snapshots with another version
// are discarded on restore.
const Version = 1

// ErrVersionMismatch is returned when a stored snapshot has another version.
var ErrVersionMismatch = errors.New("snapshot version mismatch")

// Snapshot is the persisted state.
type Snapshot struct {
	Version          int               `json:"version"`
	SavedAt          time.Time         `json:"savedAt"`
	Cache            cache.Snapshot    `json:"cache"`
	PendingMutations []mutation.Record `json:"pendingMutations"`
}

// Encode serializes a snapshot, stamping the current version.
func Encode(snapshot Snapshot) ([]byte, error) {
	snapshot.Version = Version
	if snapshot.PendingMutations == nil {
		snapshot.PendingMutations = []mutation.Record{}
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot. The version is checked before the body is
// decoded, so a newer or older layout is rejected without guessing at it.
func Decode(data []byte) (Snapshot, error) {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if header.Version != Version {
		return Snapshot{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, header.Version, Version)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}
