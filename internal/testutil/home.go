// Package testutil provides common test utilities.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
)

// SetupTestHome creates an isolated $HOME directory for tests.
// This is critical because:
// - the default server record lives in $XDG_CONFIG_HOME/mcpcli
// - the PID tracker writes $XDG_STATE_HOME/mcpcli/pids.json
// - orphan cleanup signals every PID it finds there
//
// xdg caches its paths, so they are reloaded now and again at cleanup.
// The temp directory is automatically cleaned up when the test ends.
func SetupTestHome(t *testing.T) string {
	t.Helper()

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpHome, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmpHome, ".local", "state"))
	// TMPDIR for macOS
	t.Setenv("TMPDIR", tmpHome)
	// Settings overrides from the developer's shell must not leak in.
	for _, env := range os.Environ() {
		name, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(name, "MCPCLI_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	xdg.Reload()
	t.Cleanup(xdg.Reload)

	configDir := filepath.Join(tmpHome, ".config", "mcpcli")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("create test config dir: %v", err)
	}

	return tmpHome
}

// WriteTestConfig writes a settings file to the isolated config directory.
func WriteTestConfig(t *testing.T, name, content string) string {
	t.Helper()

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		t.Fatal("XDG_CONFIG_HOME not set - call SetupTestHome first")
	}

	configPath := filepath.Join(dir, "mcpcli", name)
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	return configPath
}
