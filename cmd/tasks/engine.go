package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/amonks/tasksync/engine"
	"github.com/amonks/tasksync/internal/config"
	"github.com/amonks/tasksync/mutation"
	"github.com/amonks/tasksync/persist"
	"github.com/amonks/tasksync/remote"
	"github.com/amonks/tasksync/todo"
	"github.com/spf13/cobra"
)

const closeTimeout = 5 * time.Second

// session is an open engine plus whatever must be released with it.
type session struct {
	engine *engine.Engine
	closer io.Closer
}

func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return config.Load(cwd)
}

func policyFor(cfg *config.Config) todo.Policy {
	if cfg.Views.RetainCompleted {
		return todo.RetainCompletedPolicy()
	}
	return todo.DefaultPolicy()
}

func retryPolicyFor(cfg *config.Config) mutation.RetryPolicy {
	policy := mutation.DefaultRetryPolicy()
	if cfg.Sync.MaxNetworkRetries > 0 {
		policy.MaxNetworkRetries = cfg.Sync.MaxNetworkRetries
	}
	if cfg.Sync.MaxApplicationRetries > 0 {
		policy.MaxApplicationRetries = cfg.Sync.MaxApplicationRetries
	}
	if cfg.Sync.RetryBase > 0 {
		policy.BaseDelay = time.Duration(cfg.Sync.RetryBase)
	}
	if cfg.Sync.RetryCap > 0 {
		policy.MaxDelay = time.Duration(cfg.Sync.RetryCap)
	}
	return policy
}

func openStorage(cfg *config.Config) (persist.Storage, io.Closer, error) {
	stateDir, err := cfg.StateDir()
	if err != nil {
		return nil, nil, err
	}
	switch cfg.StorageKind() {
	case config.StorageSQLite:
		storage, err := persist.OpenSQLite(filepath.Join(stateDir, "tasksync.db"), "cache")
		if err != nil {
			return nil, nil, err
		}
		return storage, storage, nil
	default:
		return persist.NewFileStorage(stateDir, "cache"), nil, nil
	}
}

func cliLogger() *log.Logger {
	if rootVerbose {
		return log.New(os.Stderr, "tasks: ", 0)
	}
	return log.New(io.Discard, "", 0)
}

// openSession builds an engine from the effective configuration. With
// offline set, or --offline given, no requests are made.
func openSession(cmd *cobra.Command, offline bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	storage, closer, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(remote.Options{
		BaseURL: cfg.ServerURL(),
		Token:   cfg.Server.Token,
		Timeout: time.Duration(cfg.Server.Timeout),
	})
	stderr := cmd.ErrOrStderr()
	e, err := engine.Open(cmd.Context(), engine.Options{
		Gateway:      client,
		Storage:      storage,
		Policy:       policyFor(cfg),
		Retry:        retryPolicyFor(cfg),
		StaleTime:    time.Duration(cfg.Sync.StaleTime),
		SaveThrottle: time.Duration(cfg.Sync.SaveThrottle),
		Notifier: mutation.NotifierFunc(func(n mutation.Notification) {
			printNotification(stderr, n)
		}),
		Offline: rootOffline || offline,
		Logger:  cliLogger(),
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &session{engine: e, closer: closer}, nil
}

// Close flushes the snapshot. Persistence problems are not reported as
// command failures.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.engine.Close(ctx); err != nil && rootVerbose {
		fmt.Fprintf(os.Stderr, "tasks: %v\n", err)
	}
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

// awaitWrite waits up to --wait for a mutation to finish. It reports
// false when the mutation is still pending, queued for a later sync.
func awaitWrite(ctx context.Context, s *session, handle *mutation.Handle) (todo.Todo, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, rootWait)
	defer cancel()
	if err := s.engine.Wait(waitCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return todo.Todo{}, false, err
	}
	select {
	case <-handle.Done():
		return handle.Result(), true, handle.Err()
	default:
		return todo.Todo{}, false, nil
	}
}

// resolveTodo expands an ID prefix and returns the todo as currently seen.
func resolveTodo(ctx context.Context, s *session, prefix string) (todo.Todo, error) {
	id, err := s.engine.ResolveID(ctx, prefix)
	if err != nil {
		return todo.Todo{}, err
	}
	item, ok := s.engine.Find(id)
	if !ok {
		return todo.Todo{}, fmt.Errorf("%w: %s", todo.ErrTodoNotFound, prefix)
	}
	return item, nil
}
