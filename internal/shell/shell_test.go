package shell

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/mcp"
	"github.com/Bigsy/mcpcli/internal/mcptest"
	"github.com/Bigsy/mcpcli/internal/session"
	"github.com/Bigsy/mcpcli/internal/shell/theme"
	"github.com/Bigsy/mcpcli/internal/testutil"
)

func TestHelperProcess(t *testing.T) {
	mcptest.RunHelperProcess(t)
}

func newShell(t *testing.T, interactive bool) (*Shell, *config.DefaultServerStore) {
	t.Helper()
	home := testutil.SetupTestHome(t)
	store := config.NewDefaultServerStore(filepath.Join(home, ".config", "mcpcli", "default-server.json"))
	sess := session.New(session.Options{
		Logger:           logging.ForTest(t),
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   5 * time.Second,
		ShutdownGrace:    time.Second,
	})
	sh := New(Options{
		Session:     sess,
		Store:       store,
		Render:      Renderer{Theme: theme.Plain()},
		Logger:      logging.ForTest(t),
		Interactive: interactive,
	})
	t.Cleanup(func() { _ = sh.Close() })
	return sh, store
}

// fakeCommand returns the command line that starts a fake server. The
// helper environment is set on the test process so the child inherits it.
func fakeCommand(t *testing.T, cfg mcptest.FakeServerConfig) string {
	t.Helper()
	launch := mcptest.HelperLaunch(t, cfg)
	for k, v := range launch.Env {
		t.Setenv(k, v)
	}
	return shellescape.QuoteCommand(append([]string{launch.Command}, launch.Args...))
}

func run(t *testing.T, sh *Shell, line string) Result {
	t.Helper()
	res := sh.Execute(context.Background(), line)
	res.Output = testutil.StripANSI(res.Output)
	return res
}

func mustRun(t *testing.T, sh *Shell, line string) string {
	t.Helper()
	res := run(t, sh, line)
	require.NoError(t, res.Err, "%s: %s", line, res.Output)
	return res.Output
}

func TestExecute_BlankLine(t *testing.T) {
	sh, _ := newShell(t, false)
	res := run(t, sh, "   ")
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Output)
}

func TestExecute_ToolWorkflow(t *testing.T) {
	sh, _ := newShell(t, false)

	out := mustRun(t, sh, "connect fake "+fakeCommand(t, mcptest.DefaultConfig()))
	assert.Contains(t, out, "Connected to fake")
	assert.Contains(t, out, "fake-server")
	assert.Contains(t, out, "3 tool(s)")

	out = mustRun(t, sh, "list-tools")
	assert.Contains(t, out, "3 tool(s):")
	assert.Contains(t, out, "read_file")
	assert.Contains(t, out, "(fs_tools_write_file)")

	out = mustRun(t, sh, "describe file")
	assert.Contains(t, out, "Advertised as: fs_tools_write_file")
	assert.Contains(t, out, "path string (required)")
	assert.Contains(t, out, "append boolean")
	assert.Contains(t, out, "Definition size:")

	out = mustRun(t, sh, `invoke-tool file path=/tmp/x content="42" retries=2`)
	assert.Equal(t, `fs_tools_write_file {"path":"/tmp/x","content":"42","retries":2}`, out)

	out = mustRun(t, sh, `invoke-tool echo msg=a\ b`)
	assert.Equal(t, `echo {"msg":"a b"}`, out, "escapes outside quotes are resolved before inference")

	out = mustRun(t, sh, `call echo {"a": 1, "b": "x y"}`)
	assert.Equal(t, `echo {"a":1,"b":"x y"}`, out)

	out = mustRun(t, sh, "status")
	assert.Contains(t, out, "CONNECTED")
	assert.Contains(t, out, "fake-server")
	assert.Contains(t, out, "Tools")

	assert.Regexp(t, `^pong \(`, mustRun(t, sh, "ping"))
	assert.Equal(t, "Refreshed: 3 tool(s).", mustRun(t, sh, "refresh"))

	assert.Equal(t, "Disconnected from fake.", mustRun(t, sh, "disconnect"))
	assert.Equal(t, "Not connected.", mustRun(t, sh, "disconnect"))
}

func TestExecute_NotConnected(t *testing.T) {
	sh, _ := newShell(t, false)

	for _, line := range []string{"list-tools", "describe-tool echo", "invoke-tool echo", "refresh", "ping", "logs"} {
		res := run(t, sh, line)
		assert.True(t, errors.Is(res.Err, session.ErrNotConnected), line)
		assert.Contains(t, res.Output, "hint: connect to a server first", line)
	}

	out := mustRun(t, sh, "status")
	assert.Contains(t, out, "No server connected.")
}

func TestExecute_ToolNotFound(t *testing.T) {
	sh, _ := newShell(t, false)
	mustRun(t, sh, "connect fake "+fakeCommand(t, mcptest.DefaultConfig()))

	res := run(t, sh, "invoke-tool read_fil path=/x")
	require.True(t, errors.Is(res.Err, session.ErrToolNotFound))
	assert.Contains(t, res.Output, "read_file")
}

func TestExecute_InvalidParams(t *testing.T) {
	sh, _ := newShell(t, false)
	mustRun(t, sh, "connect fake "+fakeCommand(t, mcptest.DefaultConfig()))

	res := run(t, sh, "invoke-tool echo novalue")
	assert.Error(t, res.Err)
	assert.Contains(t, res.Output, "error:")
	assert.Equal(t, session.StateConnected, sh.Session().State())
}

func TestExecute_ServerRejectsCall(t *testing.T) {
	cfg := mcptest.DefaultConfig()
	cfg.Errors = map[string]mcptest.JSONRPCError{"tools/call": {Code: -32602, Message: "bad arguments"}}

	sh, _ := newShell(t, false)
	mustRun(t, sh, "connect fake "+fakeCommand(t, cfg))

	res := run(t, sh, "invoke-tool echo")
	require.Error(t, res.Err)
	assert.Contains(t, res.Output, "bad arguments")
	assert.Equal(t, session.StateConnected, sh.Session().State())
}

func TestExecute_SpawnFailure(t *testing.T) {
	sh, _ := newShell(t, false)

	res := run(t, sh, "connect ghost /nonexistent/mcp-server --stdio")
	require.True(t, errors.Is(res.Err, mcp.ErrProcessSpawn))
	assert.Equal(t, session.StateDisconnected, sh.Session().State())
}

func TestExecute_ConnectUsage(t *testing.T) {
	sh, _ := newShell(t, false)

	tests := []struct {
		line string
		hint string
	}{
		{"connect onlyname", "usage: connect"},
		{"connect --default", "usage: connect"},
		{"connect --bogus x y", "usage: connect"},
		{"describe-tool", "usage: describe-tool <name>"},
		{"describe-tool a b", "usage: describe-tool <name>"},
		{"invoke-tool", "usage: invoke-tool <name>"},
		{"logs zero", "usage: logs [lines]"},
		{"logs 1 2", "usage: logs [lines]"},
		{"disconnect now", "usage: disconnect"},
		{"generate-config extra", "usage: generate-config"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			res := run(t, sh, tt.line)
			require.True(t, errors.Is(res.Err, ErrUsage), res.Output)
			assert.Contains(t, res.Output, tt.hint)
		})
	}
}

func TestExecute_SplitError(t *testing.T) {
	sh, _ := newShell(t, false)
	res := run(t, sh, `invoke-tool echo msg="open`)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Output, "unterminated")
}

func TestExecute_UnknownCommand(t *testing.T) {
	sh, _ := newShell(t, false)

	res := run(t, sh, "lst-tools")
	require.Error(t, res.Err)
	assert.Contains(t, res.Output, `unknown command "lst-tools"`)
	assert.Contains(t, res.Output, "did you mean list-tools?")

	res = run(t, sh, "zzzzzz")
	require.Error(t, res.Err)
	assert.Contains(t, res.Output, "type help for all commands")
}

func TestExecute_DefaultServer(t *testing.T) {
	sh, store := newShell(t, false)

	assert.Equal(t, "No default server saved.", mustRun(t, sh, "show-default"))

	res := run(t, sh, "connect")
	require.True(t, errors.Is(res.Err, config.ErrNoDefaultServer))
	assert.Contains(t, res.Output, "connect --default")

	cmdline := fakeCommand(t, mcptest.DefaultConfig())
	out := mustRun(t, sh, "connect --default fake "+cmdline)
	assert.Contains(t, out, "Saved as the default server.")

	ds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fake", ds.Name)
	assert.Equal(t, []string{"-test.run=^TestHelperProcess$", "--"}, ds.Args)

	out = mustRun(t, sh, "show-default")
	assert.Contains(t, out, "fake")
	assert.Contains(t, out, "TestHelperProcess")

	out = mustRun(t, sh, "generate-config")
	assert.Contains(t, out, `"mcpServers"`)
	assert.Contains(t, out, `"fake"`)
	out = mustRun(t, sh, "generate-config --format yaml")
	assert.Contains(t, out, "mcpServers:")
	out = mustRun(t, sh, "generate-config -f toml")
	assert.Contains(t, out, "mcpServers")
	assert.Contains(t, out, "command = ")

	res = run(t, sh, "generate-config --format ini")
	assert.Error(t, res.Err)

	mustRun(t, sh, "disconnect")
	out = mustRun(t, sh, "connect")
	assert.Contains(t, out, "Connected to fake")

	assert.Equal(t, "Default server removed.", mustRun(t, sh, "remove-default"))
	assert.Equal(t, "No default server saved.", mustRun(t, sh, "remove-default"))

	res = run(t, sh, "generate-config")
	assert.True(t, errors.Is(res.Err, config.ErrNoDefaultServer))
}

func TestExecute_Logs(t *testing.T) {
	cfg := mcptest.DefaultConfig()
	cfg.StderrLines = []string{"booting", "listening on stdio", "ready"}

	sh, _ := newShell(t, false)
	mustRun(t, sh, "connect fake "+fakeCommand(t, cfg))

	require.Eventually(t, func() bool {
		return strings.Contains(run(t, sh, "logs").Output, "ready")
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "ready", mustRun(t, sh, "logs 1"))
	assert.Equal(t, "listening on stdio\nready", mustRun(t, sh, "logs 2"))
}

func TestExecute_InteractivePrompt(t *testing.T) {
	sh, _ := newShell(t, true)
	mustRun(t, sh, "connect fake "+fakeCommand(t, mcptest.DefaultConfig()))

	res := run(t, sh, "invoke-tool file")
	require.NoError(t, res.Err)
	require.NotNil(t, res.Prompt)
	assert.Equal(t, "fs_tools_write_file", res.Prompt.RawName)

	// Tools without parameters are called straight away.
	res = run(t, sh, "invoke-tool echo")
	require.NoError(t, res.Err)
	assert.Nil(t, res.Prompt)
	assert.Equal(t, "echo {}", res.Output)

	// Explicit parameters skip the prompt.
	res = run(t, sh, "invoke-tool read_file path=/etc/hosts")
	require.NoError(t, res.Err)
	assert.Nil(t, res.Prompt)

	tool, err := sh.Session().DescribeTool("file")
	require.NoError(t, err)
	m, err := FromAnswers(tool, map[string]string{"path": "/a", "content": "hi", "append": "true"})
	require.NoError(t, err)
	out := sh.InvokeTool(context.Background(), tool, m)
	require.NoError(t, out.Err)
	assert.Equal(t, `fs_tools_write_file {"path":"/a","content":"hi","append":true}`, out.Output)
}

func TestExecute_Help(t *testing.T) {
	sh, _ := newShell(t, false)

	out := mustRun(t, sh, "help")
	for _, name := range []string{"connect", "list-tools", "describe-tool", "invoke-tool", "generate-config", "exit"} {
		assert.Contains(t, out, name)
	}

	out = mustRun(t, sh, "? ls")
	assert.Contains(t, out, "list-tools")
	assert.Contains(t, out, "aliases: ls, tools")
}

func TestExecute_Exit(t *testing.T) {
	sh, _ := newShell(t, false)
	for _, line := range []string{"exit", "quit", "Q"} {
		res := run(t, sh, line)
		assert.True(t, res.Quit, line)
	}
}

func TestRunPlain(t *testing.T) {
	sh, _ := newShell(t, false)
	in := strings.NewReader("help\nbogus\n\nexit\nlist-tools\n")
	var out strings.Builder

	failed, err := RunPlain(context.Background(), sh, in, &out, false)
	assert.Equal(t, 1, failed)
	assert.Error(t, err)

	text := testutil.StripANSI(out.String())
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.NotContains(t, text, "not connected", "lines after exit must not run")
}

func TestRunPlain_SessionClosedAtEOF(t *testing.T) {
	sh, _ := newShell(t, false)
	in := strings.NewReader("connect fake " + fakeCommand(t, mcptest.DefaultConfig()) + "\nlist-tools\n")
	var out strings.Builder

	failed, err := RunPlain(context.Background(), sh, in, &out, true)
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Contains(t, out.String(), promptText)
	assert.Contains(t, out.String(), "read_file")
	assert.Equal(t, session.StateDisconnected, sh.Session().State())
}
