package mutation

import (
	"context"
	"sync"

	"github.com/amonks/tasksync/todo"
)

// Handle tracks one issued mutation.
type Handle struct {
	id     string
	todoID string
	done   chan struct{}

	mu     sync.Mutex
	state  State
	result todo.Todo
	err    error
}

func newHandle(id, todoID string, state State) *Handle {
	return &Handle{id: id, todoID: todoID, state: state, done: make(chan struct{})}
}

// ID returns the record ID.
func (h *Handle) ID() string {
	return h.id
}

// TodoID returns the ID of the todo the mutation targets. For a create it
// is the client-generated ID the todo keeps after the server accepts it.
func (h *Handle) TodoID() string {
	return h.todoID
}

// Done is closed when the mutation settles or rolls back.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// State returns the current record state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Result returns the server's copy of the todo once settled.
func (h *Handle) Result() todo.Todo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the failure that rolled the mutation back, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the mutation finishes or ctx is done. A paused
// mutation does not finish; callers bound the wait with ctx.
func (h *Handle) Wait(ctx context.Context) (todo.Todo, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return todo.Todo{}, ctx.Err()
	}
}

func (h *Handle) setState(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *Handle) resolve(state State, result todo.Todo, err error) {
	h.mu.Lock()
	if h.state.IsTerminal() {
		h.mu.Unlock()
		return
	}
	h.state = state
	h.result = result
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
