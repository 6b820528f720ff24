// Package reconnect tracks whether the server is reachable and runs the
// work that should happen once it is again.
package reconnect

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultProbeInterval is the probe interval used by Watch when none is
// given.
const DefaultProbeInterval = 5 * time.Second

// Handler runs after connectivity is restored.
type Handler func(ctx context.Context)

// Options configures a Controller.
type Options struct {
	// Offline starts the controller offline.
	Offline bool

	Logger *log.Logger
}

// Controller holds the online flag and the reconnect handlers.
type Controller struct {
	logger *log.Logger

	mu       sync.Mutex
	online   bool
	nextID   int
	handlers []registration
	offline  chan struct{}
}

type registration struct {
	id      int
	handler Handler
}

// New creates a controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "reconnect: ", log.LstdFlags)
	}
	c := &Controller{
		logger:  logger,
		online:  !opts.Offline,
		offline: make(chan struct{}),
	}
	if opts.Offline {
		close(c.offline)
	}
	return c
}

// Online reports whether requests should be attempted.
func (c *Controller) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// MarkOffline records that the server could not be reached. It reports
// whether the controller was online before.
func (c *Controller) MarkOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.online {
		return false
	}
	c.online = false
	close(c.offline)
	c.logf("offline")
	return true
}

// OnReconnect registers a handler. Handlers run in registration order. The
// returned func removes it.
func (c *Controller) OnReconnect(handler Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, registration{id: id, handler: handler})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, r := range c.handlers {
			if r.id == id {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// Signal marks the controller online and runs every handler. Handlers are
// called without the controller lock, so they may call back into it.
// Signalling while already online still runs the handlers.
func (c *Controller) Signal(ctx context.Context) {
	c.mu.Lock()
	if !c.online {
		c.online = true
		c.offline = make(chan struct{})
		c.logf("online")
	}
	handlers := make([]Handler, 0, len(c.handlers))
	for _, r := range c.handlers {
		handlers = append(handlers, r.handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		if ctx.Err() != nil {
			return
		}
		handler(ctx)
	}
}

// Watch probes the server while the controller is offline and signals on
// the first successful probe. It returns when ctx is done.
func (c *Controller) Watch(ctx context.Context, probe func(context.Context) error, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	for {
		c.mu.Lock()
		offline := c.offline
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-offline:
		}

		if c.probeUntilOnline(ctx, probe, interval) {
			c.Signal(ctx)
		}
	}
}

func (c *Controller) probeUntilOnline(ctx context.Context, probe func(context.Context) error, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if c.Online() {
			return false
		}
		if err := probe(ctx); err != nil {
			continue
		}
		return true
	}
}

func (c *Controller) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
