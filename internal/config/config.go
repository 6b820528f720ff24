// Package config handles loading tasksync.toml configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/amonks/tasksync/internal/paths"
	internalstrings "github.com/amonks/tasksync/internal/strings"
	"github.com/amonks/tasksync/internal/validation"
)

var errInvalidStorage = errors.New("invalid sync.storage")

// ProjectFileName is the name of the per-directory config file.
const ProjectFileName = "tasksync.toml"

// DefaultServerURL is used when no server is configured.
const DefaultServerURL = "http://127.0.0.1:8787"

// Storage backends for the snapshot.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Environment overrides, applied after both files.
const (
	EnvServer   = "TASKSYNC_SERVER"
	EnvToken    = "TASKSYNC_TOKEN"
	EnvStateDir = "TASKSYNC_STATE_DIR"
)

// Config represents the tasksync.toml configuration file.
type Config struct {
	Server Server `toml:"server"`
	Sync   Sync   `toml:"sync"`
	Views  Views  `toml:"views"`
}

// Server contains connection settings.
type Server struct {
	URL     string   `toml:"url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

// Sync contains cache, persistence and retry settings.
type Sync struct {
	// Storage is "file" (default) or "sqlite".
	Storage  string `toml:"storage"`
	StateDir string `toml:"state-dir"`

	SaveThrottle Duration `toml:"save-throttle"`
	StaleTime    Duration `toml:"stale-time"`

	MaxNetworkRetries     int      `toml:"max-network-retries"`
	MaxApplicationRetries int      `toml:"max-application-retries"`
	RetryBase             Duration `toml:"retry-base"`
	RetryCap              Duration `toml:"retry-cap"`
}

// Views contains view membership settings.
type Views struct {
	// RetainCompleted keeps completed todos in inbox, today and upcoming.
	RetainCompleted bool `toml:"retain-completed"`
}

// Duration is a time.Duration written as a string like "30s".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load loads configuration from dir and the global config file, then
// applies environment overrides. Returns an empty config if no config
// files exist.
func Load(dir string) (*Config, error) {
	globalPath, err := paths.GlobalConfigPath()
	if err != nil {
		return nil, err
	}

	globalCfg, _, err := loadConfigFile(globalPath)
	if err != nil {
		return nil, err
	}

	projectCfg, projectMeta, err := loadConfigFile(filepath.Join(dir, ProjectFileName))
	if err != nil {
		return nil, err
	}

	merged := mergeConfigs(globalCfg, projectCfg, projectMeta)
	merged.applyEnv(os.Getenv)
	if err := merged.validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: unknown key %s", path, undecoded[0])
	}

	return &cfg, meta, nil
}

func mergeConfigs(globalCfg, projectCfg *Config, projectMeta toml.MetaData) *Config {
	if globalCfg == nil {
		globalCfg = &Config{}
	}
	if projectCfg == nil {
		projectCfg = &Config{}
	}

	defined := func(key ...string) bool {
		return projectMeta.IsDefined(key...)
	}

	merged := Config{}
	merged.Server.URL = mergeString(defined("server", "url"), projectCfg.Server.URL, globalCfg.Server.URL)
	merged.Server.Token = mergeString(defined("server", "token"), projectCfg.Server.Token, globalCfg.Server.Token)
	merged.Server.Timeout = mergeValue(defined("server", "timeout"), projectCfg.Server.Timeout, globalCfg.Server.Timeout)

	merged.Sync.Storage = internalstrings.NormalizeLowerTrimSpace(mergeString(defined("sync", "storage"), projectCfg.Sync.Storage, globalCfg.Sync.Storage))
	merged.Sync.StateDir = mergeString(defined("sync", "state-dir"), projectCfg.Sync.StateDir, globalCfg.Sync.StateDir)
	merged.Sync.SaveThrottle = mergeValue(defined("sync", "save-throttle"), projectCfg.Sync.SaveThrottle, globalCfg.Sync.SaveThrottle)
	merged.Sync.StaleTime = mergeValue(defined("sync", "stale-time"), projectCfg.Sync.StaleTime, globalCfg.Sync.StaleTime)
	merged.Sync.MaxNetworkRetries = mergeValue(defined("sync", "max-network-retries"), projectCfg.Sync.MaxNetworkRetries, globalCfg.Sync.MaxNetworkRetries)
	merged.Sync.MaxApplicationRetries = mergeValue(defined("sync", "max-application-retries"), projectCfg.Sync.MaxApplicationRetries, globalCfg.Sync.MaxApplicationRetries)
	merged.Sync.RetryBase = mergeValue(defined("sync", "retry-base"), projectCfg.Sync.RetryBase, globalCfg.Sync.RetryBase)
	merged.Sync.RetryCap = mergeValue(defined("sync", "retry-cap"), projectCfg.Sync.RetryCap, globalCfg.Sync.RetryCap)

	merged.Views.RetainCompleted = mergeValue(defined("views", "retain-completed"), projectCfg.Views.RetainCompleted, globalCfg.Views.RetainCompleted)

	return &merged
}

func mergeString(projectDefined bool, projectValue, globalValue string) string {
	return strings.TrimSpace(mergeValue(projectDefined, projectValue, globalValue))
}

func mergeValue[T any](projectDefined bool, projectValue, globalValue T) T {
	if projectDefined {
		return projectValue
	}
	return globalValue
}

func (c *Config) applyEnv(getenv func(string) string) {
	if value := strings.TrimSpace(getenv(EnvServer)); value != "" {
		c.Server.URL = value
	}
	if value := strings.TrimSpace(getenv(EnvToken)); value != "" {
		c.Server.Token = value
	}
	if value := strings.TrimSpace(getenv(EnvStateDir)); value != "" {
		c.Sync.StateDir = value
	}
}

func (c *Config) validate() error {
	switch c.Sync.Storage {
	case "", StorageFile, StorageSQLite:
	default:
		return validation.FormatInvalidValueError(errInvalidStorage, c.Sync.Storage, []string{StorageFile, StorageSQLite})
	}
	if c.Sync.MaxNetworkRetries < 0 || c.Sync.MaxApplicationRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	return nil
}

// ServerURL returns the configured server or DefaultServerURL.
func (c *Config) ServerURL() string {
	if c.Server.URL == "" {
		return DefaultServerURL
	}
	return c.Server.URL
}

// StorageKind returns the configured storage backend or StorageFile.
func (c *Config) StorageKind() string {
	if c.Sync.Storage == "" {
		return StorageFile
	}
	return c.Sync.Storage
}

// StateDir returns the configured state directory or the default one.
func (c *Config) StateDir() (string, error) {
	return paths.ResolveWithDefault(c.Sync.StateDir, paths.DefaultStateDir)
}
