// Package remote talks to the authoritative todo server.
//
// The gateway performs exactly one request per call and never retries.
// Every failure is classified as either a NetworkError (no response was
// received) or an ApplicationError (the server answered, but not with
// success); the mutation pipeline decides what to do with each.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amonks/tasksync/todo"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 15 * time.Second

// Gateway is the set of server operations the engine needs.
type Gateway interface {
	List(ctx context.Context, view todo.View) ([]todo.Todo, error)
	Create(ctx context.Context, input todo.NewTodo) (todo.Todo, error)
	Update(ctx context.Context, id string, patch todo.Patch) (todo.Todo, error)
	Delete(ctx context.Context, id string) (todo.Todo, error)
	Counts(ctx context.Context) (todo.Counts, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server address, with or without a scheme.
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client implements Gateway over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Gateway = (*Client)(nil)

// NewClient creates a client for the given server.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, token: opts.Token, client: client}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List returns the todos in a view. ViewAll lists every todo.
func (c *Client) List(ctx context.Context, view todo.View) ([]todo.Todo, error) {
	path := "/todos"
	if view != todo.ViewAll {
		path += "?" + url.Values{"view": {string(view)}}.Encode()
	}
	var todos []todo.Todo
	if err := c.do(ctx, "list", http.MethodGet, path, nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []todo.Todo{}
	}
	return todos, nil
}

// Create creates a todo and returns the server's copy.
func (c *Client) Create(ctx context.Context, input todo.NewTodo) (todo.Todo, error) {
	var created todo.Todo
	if err := c.do(ctx, "create", http.MethodPost, "/todos", input, &created); err != nil {
		return todo.Todo{}, err
	}
	return created, nil
}

// Update applies a partial update and returns the server's copy.
func (c *Client) Update(ctx context.Context, id string, patch todo.Patch) (todo.Todo, error) {
	var updated todo.Todo
	if err := c.do(ctx, "update", http.MethodPatch, "/todos/"+url.PathEscape(id), patch, &updated); err != nil {
		return todo.Todo{}, err
	}
	return updated, nil
}

// Delete removes a todo and returns the deleted copy.
func (c *Client) Delete(ctx context.Context, id string) (todo.Todo, error) {
	var deleted todo.Todo
	if err := c.do(ctx, "delete", http.MethodDelete, "/todos/"+url.PathEscape(id), nil, &deleted); err != nil {
		return todo.Todo{}, err
	}
	return deleted, nil
}

// Counts returns the per-view counts.
func (c *Client) Counts(ctx context.Context) (todo.Counts, error) {
	var counts todo.Counts
	if err := c.do(ctx, "counts", http.MethodGet, "/todos/counts", nil, &counts); err != nil {
		return todo.Counts{}, err
	}
	return counts, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readErrorResponse(op, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &ApplicationError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode response: %v", err),
		}
	}
	return nil
}

func readErrorResponse(op string, resp *http.Response) error {
	appErr := &ApplicationError{Op: op, StatusCode: resp.StatusCode, Message: resp.Status}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return appErr
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		if message, ok := payload["error"].(string); ok && message != "" {
			appErr.Message = message
			return appErr
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && !strings.HasPrefix(text, "{") {
		appErr.Message = text
	}
	return appErr
}
