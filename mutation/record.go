package mutation

import (
	"encoding/json"
	"time"
)

// Kind is the stable key a mutation is registered and persisted under.
type Kind string

const (
	KindCreate Kind = "createTodo"
	KindUpdate Kind = "updateTodo"
	KindDelete Kind = "deleteTodo"
)

// State is where a record is in its lifecycle.
type State string

const (
	// StateIssued is a record that has been accepted but not yet applied.
	StateIssued State = "issued"

	// StateApplied is a record whose optimistic effect is visible and which
	// is waiting for its lane.
	StateApplied State = "applied"

	// StateInFlight is a record whose request is being sent or retried.
	StateInFlight State = "in_flight"

	// StatePaused is a record waiting for connectivity.
	StatePaused State = "paused"

	// StateSettled is a record the server acknowledged.
	StateSettled State = "settled"

	// StateRolledBack is a record whose optimistic effect was reverted.
	StateRolledBack State = "rolled_back"
)

// IsTerminal reports whether the record has left the pipeline.
func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateRolledBack
}

// Record is an issued mutation. Only the kind and the JSON payload are
// needed to replay it, so records survive a restart.
type Record struct {
	// ID is a ULID; lexicographic order is issue order.
	ID string `json:"id"`

	Kind    Kind            `json:"kind"`
	TodoID  string          `json:"todoId"`
	Payload json.RawMessage `json:"payload"`

	IssuedAt time.Time `json:"issuedAt"`
	State    State     `json:"state"`

	NetworkFailures     int    `json:"networkFailures,omitempty"`
	ApplicationFailures int    `json:"applicationFailures,omitempty"`
	LastError           string `json:"lastError,omitempty"`
}
