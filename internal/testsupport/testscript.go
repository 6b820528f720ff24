package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amonks/tasksync/todo"
	"github.com/amonks/tasksync/todoserver"
	"github.com/rogpeppe/go-internal/testscript"
)

var (
	buildOnce sync.Once
	tasksPath string
	buildErr  error
)

// BuildTasks builds the tasks binary once and returns its path.
func BuildTasks(t testing.TB) string {
	t.Helper()

	buildOnce.Do(func() {
		moduleRoot, err := findModuleRoot()
		if err != nil {
			buildErr = err
			return
		}

		binDir, err := os.MkdirTemp("", "tasks-bin-")
		if err != nil {
			buildErr = err
			return
		}

		tasksPath = filepath.Join(binDir, "tasks")
		cmd := exec.Command("go", "build", "-o", tasksPath, "./cmd/tasks")
		cmd.Dir = moduleRoot
		output, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build tasks: %w: %s", err, strings.TrimSpace(string(output)))
		}
	})

	if buildErr != nil {
		t.Fatalf("%v", buildErr)
	}

	return tasksPath
}

// SetupScriptEnv configures common environment variables for testscript
// and starts a fresh todo server for the script. $TASKS is the binary,
// $SERVER the server address, and $DEAD an address nothing listens on.
func SetupScriptEnv(t testing.TB, env *testscript.Env) error {
	t.Helper()

	env.Setenv("TASKS", BuildTasks(t))

	homeDir := filepath.Join(env.WorkDir, "home")
	if err := EnsureHomeDirs(homeDir); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)
	env.Setenv("TASKSYNC_STATE_DIR", filepath.Join(homeDir, ".local", "state", "tasksync"))
	env.Setenv("NO_COLOR", "1")

	server := todoserver.New(todoserver.Options{Logger: log.New(io.Discard, "", 0)})
	ts := httptest.NewServer(server.Handler())
	env.Defer(ts.Close)
	env.Setenv("SERVER", ts.URL)
	env.Setenv("TASKSYNC_SERVER", ts.URL)

	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()
	env.Setenv("DEAD", deadURL)
	return nil
}

// CmdEnvSet stores the trimmed contents of a file in an env var.
func CmdEnvSet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("envset does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: envset VAR FILE")
	}

	value := strings.TrimSpace(ts.ReadFile(args[1]))
	ts.Setenv(args[0], value)
}

// CmdTodoID finds a todo by content and stores its ID in an env var.
func CmdTodoID(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("todoid does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: todoid FILE CONTENT VAR")
	}

	var items []todo.Todo
	data := ts.ReadFile(args[0])
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		ts.Fatalf("parse todo list: %v", err)
	}

	content := args[1]
	for _, item := range items {
		if item.Content == content {
			ts.Setenv(args[2], item.ID)
			return
		}
	}

	ts.Fatalf("todo with content %q not found", content)
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find module root (go.mod)")
		}
		dir = parent
	}
}
