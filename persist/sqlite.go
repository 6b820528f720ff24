package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps the slot as a row in a SQLite key-value table.
type SQLiteStorage struct {
	db  *sql.DB
	key string
}

var _ Storage = (*SQLiteStorage)(nil)

// OpenSQLite opens (creating if needed) the database at dbPath and uses the
// row named key as the slot.
func OpenSQLite(dbPath, key string) (*SQLiteStorage, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if key == "" {
		key = "cache"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &SQLiteStorage{db: db, key: key}, nil
}

// Load reads the slot row.
func (s *SQLiteStorage) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// Store upserts the slot row.
func (s *SQLiteStorage) Store(ctx context.Context, data []byte) error {
	return s.Update(ctx, func([]byte) ([]byte, error) {
		return data, nil
	})
}

// Update reads and rewrites the slot row inside an immediate transaction,
// which takes the database write lock before the read.
func (s *SQLiteStorage) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("update snapshot: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("begin snapshot update: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	var current []byte
	err = conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, s.key).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	data, err := fn(current)
	if err != nil {
		return err
	}
	if _, err = conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, data, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if _, err = conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Clear deletes the slot row.
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
