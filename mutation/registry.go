package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amonks/tasksync/cache"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
)

var (
	// ErrUnknownKind is returned when no executor is registered for a kind.
	ErrUnknownKind = errors.New("unknown mutation kind")

	// ErrInvalidPayload is returned when a payload cannot be decoded or
	// fails validation.
	ErrInvalidPayload = errors.New("invalid mutation payload")
)

// Prepared is a validated payload ready to be recorded.
type Prepared struct {
	TodoID  string
	Payload json.RawMessage
}

// Messages are the user-facing notification texts for a kind.
type Messages struct {
	Success string
	Failure string
}

// Executor knows how to apply, send and describe one kind of mutation.
// Executors receive the JSON payload, so a record restored from disk is
// handled exactly like a freshly issued one.
type Executor interface {
	// Prepare validates a payload before it is issued and fills in
	// anything the client must decide up front, such as the todo ID.
	Prepare(payload json.RawMessage) (Prepared, error)

	// Overlay returns the optimistic effect of the payload.
	Overlay(payload json.RawMessage, issuedAt time.Time) (cache.Overlay, error)

	// Execute sends the payload to the server.
	Execute(ctx context.Context, gateway remote.Gateway, payload json.RawMessage) (todo.Todo, error)

	// Removes reports whether a successful mutation deletes the todo.
	Removes() bool

	Messages() Messages
}

// Registry maps mutation kinds to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[Kind]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[Kind]Executor)}
}

// DefaultRegistry returns a registry with the todo create, update and
// delete executors.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(KindCreate, createExecutor{})
	registry.Register(KindUpdate, updateExecutor{})
	registry.Register(KindDelete, deleteExecutor{})
	return registry
}

// Register binds an executor to a kind, replacing any earlier binding.
func (r *Registry) Register(kind Kind, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = executor
}

// Lookup returns the executor for a kind.
func (r *Registry) Lookup(kind Kind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return executor, nil
}

// UpdatePayload is the payload of an updateTodo mutation.
type UpdatePayload struct {
	ID    string     `json:"id"`
	Patch todo.Patch `json:"patch"`
}

// DeletePayload is the payload of a deleteTodo mutation.
type DeletePayload struct {
	ID string `json:"id"`
}

type createExecutor struct{}

func (createExecutor) Prepare(payload json.RawMessage) (Prepared, error) {
	input, err := decode[todo.NewTodo](payload)
	if err != nil {
		return Prepared{}, err
	}
	if input.ID == "" {
		input.ID = todo.NewID()
	}
	if err := todo.ValidateNew(input); err != nil {
		return Prepared{}, err
	}
	return encode(input.ID, input)
}

func (createExecutor) Overlay(payload json.RawMessage, issuedAt time.Time) (cache.Overlay, error) {
	input, err := decode[todo.NewTodo](payload)
	if err != nil {
		return cache.Overlay{}, err
	}
	return cache.Overlay{TodoID: input.ID, Op: cache.OpPut, Todo: input.Optimistic(issuedAt)}, nil
}

func (createExecutor) Execute(ctx context.Context, gateway remote.Gateway, payload json.RawMessage) (todo.Todo, error) {
	input, err := decode[todo.NewTodo](payload)
	if err != nil {
		return todo.Todo{}, err
	}
	return gateway.Create(ctx, input)
}

func (createExecutor) Removes() bool { return false }

func (createExecutor) Messages() Messages {
	return Messages{Success: "Todo created", Failure: "Failed to create todo"}
}

type updateExecutor struct{}

func (updateExecutor) Prepare(payload json.RawMessage) (Prepared, error) {
	input, err := decode[UpdatePayload](payload)
	if err != nil {
		return Prepared{}, err
	}
	if input.ID == "" {
		return Prepared{}, fmt.Errorf("%w: todo ID is required", ErrInvalidPayload)
	}
	if err := todo.ValidatePatch(input.Patch); err != nil {
		return Prepared{}, err
	}
	return encode(input.ID, input)
}

func (updateExecutor) Overlay(payload json.RawMessage, _ time.Time) (cache.Overlay, error) {
	input, err := decode[UpdatePayload](payload)
	if err != nil {
		return cache.Overlay{}, err
	}
	return cache.Overlay{TodoID: input.ID, Op: cache.OpPatch, Patch: input.Patch}, nil
}

func (updateExecutor) Execute(ctx context.Context, gateway remote.Gateway, payload json.RawMessage) (todo.Todo, error) {
	input, err := decode[UpdatePayload](payload)
	if err != nil {
		return todo.Todo{}, err
	}
	return gateway.Update(ctx, input.ID, input.Patch)
}

func (updateExecutor) Removes() bool { return false }

func (updateExecutor) Messages() Messages {
	return Messages{Success: "Todo updated", Failure: "Failed to update todo"}
}

type deleteExecutor struct{}

func (deleteExecutor) Prepare(payload json.RawMessage) (Prepared, error) {
	input, err := decode[DeletePayload](payload)
	if err != nil {
		return Prepared{}, err
	}
	if input.ID == "" {
		return Prepared{}, fmt.Errorf("%w: todo ID is required", ErrInvalidPayload)
	}
	return encode(input.ID, input)
}

func (deleteExecutor) Overlay(payload json.RawMessage, _ time.Time) (cache.Overlay, error) {
	input, err := decode[DeletePayload](payload)
	if err != nil {
		return cache.Overlay{}, err
	}
	return cache.Overlay{TodoID: input.ID, Op: cache.OpRemove}, nil
}

func (deleteExecutor) Execute(ctx context.Context, gateway remote.Gateway, payload json.RawMessage) (todo.Todo, error) {
	input, err := decode[DeletePayload](payload)
	if err != nil {
		return todo.Todo{}, err
	}
	return gateway.Delete(ctx, input.ID)
}

func (deleteExecutor) Removes() bool { return true }

func (deleteExecutor) Messages() Messages {
	return Messages{Success: "Todo deleted", Failure: "Failed to delete todo"}
}

func decode[T any](payload json.RawMessage) (T, error) {
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return value, nil
}

func encode(todoID string, value any) (Prepared, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return Prepared{TodoID: todoID, Payload: data}, nil
}
