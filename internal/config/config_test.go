package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amonks/tasksync/internal/config"
	"github.com/amonks/tasksync/internal/testsupport"
)

func writeGlobalConfig(t *testing.T, home, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".config", "tasksync")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write global config: %v", err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvServer, config.EnvToken, config.EnvStateDir} {
		t.Setenv(key, "")
	}
}

func TestLoad_NotFound(t *testing.T) {
	home := testsupport.SetupTestHome(t)
	clearEnv(t)
	tmpDir := t.TempDir()

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.ServerURL() != config.DefaultServerURL {
		t.Errorf("ServerURL = %q, expected default", cfg.ServerURL())
	}
	if cfg.StorageKind() != config.StorageFile {
		t.Errorf("StorageKind = %q, expected %q", cfg.StorageKind(), config.StorageFile)
	}
	stateDir, err := cfg.StateDir()
	if err != nil {
		t.Fatalf("state dir: %v", err)
	}
	if stateDir != filepath.Join(home, ".local", "state", "tasksync") {
		t.Errorf("StateDir = %q", stateDir)
	}
}

func TestLoad_Full(t *testing.T) {
	testsupport.SetupTestHome(t)
	clearEnv(t)
	tmpDir := t.TempDir()

	configContent := `
[server]
url = "https://todos.example.com"
token = "secret"
timeout = "5s"

[sync]
storage = "SQLite"
state-dir = "/var/lib/tasksync"
save-throttle = "250ms"
stale-time = "1m"
max-network-retries = 10
max-application-retries = 2
retry-base = "500ms"
retry-cap = "10s"

[views]
retain-completed = true
`

	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFileName), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.URL != "https://todos.example.com" || cfg.Server.Token != "secret" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if time.Duration(cfg.Server.Timeout) != 5*time.Second {
		t.Errorf("Timeout = %v", time.Duration(cfg.Server.Timeout))
	}
	if cfg.StorageKind() != config.StorageSQLite {
		t.Errorf("StorageKind = %q, expected sqlite", cfg.StorageKind())
	}
	if time.Duration(cfg.Sync.SaveThrottle) != 250*time.Millisecond || time.Duration(cfg.Sync.StaleTime) != time.Minute {
		t.Errorf("unexpected durations: %+v", cfg.Sync)
	}
	if cfg.Sync.MaxNetworkRetries != 10 || cfg.Sync.MaxApplicationRetries != 2 {
		t.Errorf("unexpected retries: %+v", cfg.Sync)
	}
	if time.Duration(cfg.Sync.RetryBase) != 500*time.Millisecond || time.Duration(cfg.Sync.RetryCap) != 10*time.Second {
		t.Errorf("unexpected retry delays: %+v", cfg.Sync)
	}
	if !cfg.Views.RetainCompleted {
		t.Error("expected RetainCompleted")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	testsupport.SetupTestHome(t)
	clearEnv(t)
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFileName), []byte("[server\nurl ="), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := config.Load(tmpDir); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_RejectsUnknownKeysAndBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "[server]\nadress = \"x\"\n",
		"bad duration":   "[sync]\nstale-time = \"soon\"\n",
		"bad storage":    "[sync]\nstorage = \"redis\"\n",
		"negative retry": "[sync]\nmax-network-retries = -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			testsupport.SetupTestHome(t)
			clearEnv(t)
			tmpDir := t.TempDir()
			if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFileName), []byte(content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := config.Load(tmpDir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_UsesGlobalWhenProjectMissing(t *testing.T) {
	home := testsupport.SetupTestHome(t)
	clearEnv(t)
	writeGlobalConfig(t, home, `
[server]
url = "global.example.com"

[views]
retain-completed = true
`)

	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ServerURL() != "global.example.com" {
		t.Errorf("ServerURL = %q, expected global value", cfg.ServerURL())
	}
	if !cfg.Views.RetainCompleted {
		t.Error("expected global RetainCompleted")
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	home := testsupport.SetupTestHome(t)
	clearEnv(t)
	writeGlobalConfig(t, home, `
[server]
url = "global.example.com"
token = "global-token"

[views]
retain-completed = true
`)

	tmpDir := t.TempDir()
	projectContent := `
[server]
url = "project.example.com"

[views]
retain-completed = false
`
	if err := os.WriteFile(filepath.Join(tmpDir, config.ProjectFileName), []byte(projectContent), 0o644); err != nil {
		t.Fatalf("failed to write project config: %v", err)
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ServerURL() != "project.example.com" {
		t.Errorf("ServerURL = %q, expected project value", cfg.ServerURL())
	}
	if cfg.Server.Token != "global-token" {
		t.Errorf("Token = %q, expected global value to survive", cfg.Server.Token)
	}
	if cfg.Views.RetainCompleted {
		t.Error("expected project to turn RetainCompleted off explicitly")
	}
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	home := testsupport.SetupTestHome(t)
	writeGlobalConfig(t, home, `
[server]
url = "global.example.com"
token = "global-token"

[sync]
state-dir = "/global/state"
`)
	t.Setenv(config.EnvServer, " env.example.com ")
	t.Setenv(config.EnvToken, "env-token")
	t.Setenv(config.EnvStateDir, "/env/state")

	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ServerURL() != "env.example.com" || cfg.Server.Token != "env-token" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	stateDir, err := cfg.StateDir()
	if err != nil || stateDir != "/env/state" {
		t.Errorf("StateDir = %q, %v", stateDir, err)
	}
}

func TestDurationMarshalText(t *testing.T) {
	text, err := config.Duration(90 * time.Second).MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.EqualFold(string(text), "1m30s") {
		t.Fatalf("expected 1m30s, got %s", text)
	}
}
