// Package paths resolves the per-user directories tasksync reads and writes.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return home, nil
}

// DefaultStateDir returns the directory the cache snapshot is kept in.
func DefaultStateDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "tasksync"), nil
}

// GlobalConfigPath returns the path of the per-user config file.
func GlobalConfigPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tasksync", "config.toml"), nil
}

// ResolveWithDefault returns value when set, otherwise the result of
// defaultFn.
func ResolveWithDefault(value string, defaultFn func() (string, error)) (string, error) {
	if value != "" {
		return value, nil
	}
	return defaultFn()
}
