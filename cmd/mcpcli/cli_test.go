package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"al.essio.dev/pkg/shellescape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bigsy/mcpcli/internal/mcptest"
	"github.com/Bigsy/mcpcli/internal/testutil"
)

// The fake server is this test binary re-executed; mcpcli passes the helper
// environment on to the server it launches.
func TestHelperProcess(t *testing.T) {
	mcptest.RunHelperProcess(t)
}

// buildBinary builds the mcpcli binary for testing.
// Returns the path to the binary.
func buildBinary(t *testing.T) string {
	t.Helper()

	binary := filepath.Join(t.TempDir(), "mcpcli")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = filepath.Join(getModuleRoot(t), "cmd", "mcpcli")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, out)
	}
	return binary
}

// getModuleRoot returns the root of the Go module.
func getModuleRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find module root")
		}
		dir = parent
	}
}

// runCLI runs the mcpcli binary with the given stdin and args.
// Returns stdout, stderr, and any error.
func runCLI(binary, stdin string, args ...string) (string, string, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// fakeServerArgs returns connect arguments for a fake server and exports the
// helper environment so the launched server sees it.
func fakeServerArgs(t *testing.T, name string, cfg mcptest.FakeServerConfig) []string {
	t.Helper()
	launch := mcptest.HelperLaunch(t, cfg)
	for k, v := range launch.Env {
		t.Setenv(k, v)
	}
	return append([]string{name, launch.Command}, launch.Args...)
}

func TestCLI(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binary := buildBinary(t)

	t.Run("version", func(t *testing.T) {
		testutil.SetupTestHome(t)
		stdout, _, err := runCLI(binary, "", "--version")
		require.NoError(t, err)
		assert.Contains(t, stdout, "mcpcli version dev")
	})

	t.Run("no default server", func(t *testing.T) {
		testutil.SetupTestHome(t)

		stdout, _, err := runCLI(binary, "", "show-default")
		require.NoError(t, err)
		assert.Contains(t, stdout, "No default server saved.")

		_, stderr, err := runCLI(binary, "", "list-tools")
		require.Error(t, err)
		assert.Contains(t, stderr, "no default server saved")
		assert.Contains(t, stderr, "hint: save one with: connect --default")
	})

	t.Run("bad settings", func(t *testing.T) {
		testutil.SetupTestHome(t)
		_, stderr, err := runCLI(binary, "", "--request-timeout", "-1s", "show-default")
		require.Error(t, err)
		assert.Contains(t, stderr, "request_timeout must be positive")
	})

	t.Run("default server workflow", func(t *testing.T) {
		testutil.SetupTestHome(t)
		args := fakeServerArgs(t, "fake", mcptest.DefaultConfig())

		stdout, stderr, err := runCLI(binary, "", append([]string{"connect", "--default"}, args...)...)
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "Connected to fake")
		assert.Contains(t, stdout, "Saved as the default server.")
		assert.Contains(t, stdout, "fake-server")

		stdout, stderr, err = runCLI(binary, "", "list-tools")
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "read_file")
		assert.Contains(t, stdout, "fs_tools_write_file")

		stdout, stderr, err = runCLI(binary, "", "describe-tool", "file")
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "Write content to a file")

		stdout, stderr, err = runCLI(binary, "", "invoke-tool", "file", "path=/tmp/out", `content="7"`, "append=true")
		require.NoError(t, err, stderr)
		assert.Equal(t, `fs_tools_write_file {"path":"/tmp/out","content":"7","append":true}`+"\n", stdout)

		stdout, stderr, err = runCLI(binary, "", "call", "echo", `{"b": 2, "a": 1}`)
		require.NoError(t, err, stderr)
		assert.Equal(t, `echo {"b":2,"a":1}`+"\n", stdout)

		_, stderr, err = runCLI(binary, "", "invoke-tool", "nope")
		require.Error(t, err)
		assert.Contains(t, stderr, "nope")

		stdout, stderr, err = runCLI(binary, "", "generate-config", "--format", "yaml")
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "mcpServers:")
		assert.Contains(t, stdout, "fake:")

		stdout, stderr, err = runCLI(binary, "", "remove-default")
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "Default server removed.")
	})

	t.Run("piped shell", func(t *testing.T) {
		testutil.SetupTestHome(t)
		args := fakeServerArgs(t, "fake", mcptest.DefaultConfig())

		script := "connect " + shellescape.QuoteCommand(args) + "\nlist-tools\ninvoke-tool echo msg=hi\nexit\n"
		stdout, stderr, err := runCLI(binary, script)
		require.NoError(t, err, stderr)
		assert.Contains(t, stdout, "Connected to fake")
		assert.Contains(t, stdout, "3 tool(s):")
		assert.Contains(t, stdout, `echo {"msg":"hi"}`)
	})

	t.Run("piped shell reports failures", func(t *testing.T) {
		testutil.SetupTestHome(t)
		stdout, _, err := runCLI(binary, "help\nlist-tools\n", "shell")
		require.Error(t, err)
		assert.Contains(t, stdout, "Commands:")
	})
}
