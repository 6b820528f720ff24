package engine

import (
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/todo"
)

// Create adds a todo. The returned handle carries the client-generated ID
// immediately; the todo is visible in its views before the server replies.
func (e *Engine) Create(input todo.NewTodo) (*mutation.Handle, error) {
	return e.pipeline.Issue(mutation.KindCreate, input)
}

// Update applies a partial change to a todo.
func (e *Engine) Update(id string, patch todo.Patch) (*mutation.Handle, error) {
	return e.pipeline.Issue(mutation.KindUpdate, mutation.UpdatePayload{ID: id, Patch: patch})
}

// SetCompleted marks a todo completed or not.
func (e *Engine) SetCompleted(id string, completed bool) (*mutation.Handle, error) {
	return e.Update(id, todo.Patch{IsCompleted: &completed})
}

// Delete removes a todo.
func (e *Engine) Delete(id string) (*mutation.Handle, error) {
	return e.pipeline.Issue(mutation.KindDelete, mutation.DeletePayload{ID: id})
}
