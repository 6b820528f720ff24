package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrNoSnapshot is returned by Storage.Load when the slot is empty.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Storage is a single durable key-value slot shared by every process using
// the same state directory.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error

	// Update replaces the slot with fn's result while holding the slot
	// lock, so no other writer can land between the read and the write.
	// fn receives nil when the slot is empty.
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error

	Clear(ctx context.Context) error
}

// FileStorage keeps the slot in a JSON file.
type FileStorage struct {
	dir  string
	name string
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage stores the slot as <dir>/<name>.json.
func NewFileStorage(dir, name string) *FileStorage {
	if name == "" {
		name = "cache"
	}
	return &FileStorage{dir: dir, name: name}
}

// Path returns the path of the snapshot file.
func (s *FileStorage) Path() string {
	return filepath.Join(s.dir, s.name+".json")
}

func (s *FileStorage) lockPath() string {
	return filepath.Join(s.dir, s.name+".lock")
}

// Load reads the snapshot file.
func (s *FileStorage) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoSnapshot
	}
	return data, nil
}

// Store replaces the snapshot file atomically. Identical contents are not
// rewritten.
func (s *FileStorage) Store(ctx context.Context, data []byte) error {
	return s.Update(ctx, func([]byte) ([]byte, error) {
		return data, nil
	})
}

// Update atomically reads, modifies, and writes the snapshot file with file
// locking.
func (s *FileStorage) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	return s.withLock(func() error {
		existing, err := os.ReadFile(s.Path())
		if os.IsNotExist(err) {
			existing = nil
		} else if err != nil {
			return fmt.Errorf("read snapshot file: %w", err)
		}

		var current []byte
		if len(bytes.TrimSpace(existing)) > 0 {
			current = existing
		}
		data, err := fn(current)
		if err != nil {
			return err
		}
		if existing != nil && bytes.Equal(existing, data) {
			return nil
		}
		return s.writeLocked(data)
	})
}

func (s *FileStorage) writeLocked(data []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, filepath.Base(s.Path())+".tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	name := tmpFile.Name()
	_, err = tmpFile.Write(data)
	if err1 := tmpFile.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := os.Rename(name, s.Path()); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename snapshot file: %w", err)
	}
	return nil
}

// Clear removes the snapshot file.
func (s *FileStorage) Clear(ctx context.Context) error {
	return s.withLock(func() error {
		if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove snapshot file: %w", err)
		}
		return nil
	})
}

// withLock serializes writers across processes.
func (s *FileStorage) withLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lockFile, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	return fn()
}
