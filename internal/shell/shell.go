// Package shell implements the interactive mcpcli shell: a command
// dispatcher over a session.Session, a bubbletea front end for terminals and
// a plain line loop for pipes.
package shell

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/pflag"

	"github.com/Bigsy/mcpcli/internal/config"
	"github.com/Bigsy/mcpcli/internal/params"
	"github.com/Bigsy/mcpcli/internal/schema"
	"github.com/Bigsy/mcpcli/internal/session"
)

const defaultLogLines = 50

// ErrUsage marks a command invoked with the wrong arguments.
var ErrUsage = errors.New("usage")

// Result is the outcome of one command line.
type Result struct {
	Output string
	Err    error
	// Quit asks the front end to leave the loop.
	Quit bool
	// Prompt asks the front end to collect this tool's parameters
	// interactively and then call InvokeTool.
	Prompt *schema.Tool
}

// Options configure a Shell.
type Options struct {
	Session *session.Session
	Store   *config.DefaultServerStore
	Render  Renderer
	Logger  *slog.Logger

	// Interactive allows invoke-tool to ask for parameters with a form.
	Interactive bool
}

type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	run     func(ctx context.Context, args []Token) (Result, error)
}

// Shell dispatches command lines to the session.
type Shell struct {
	opts     Options
	logger   *slog.Logger
	commands []*command
	byName   map[string]*command
	now      func() time.Time
}

// New creates a shell.
func New(opts Options) *Shell {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Shell{
		opts:   opts,
		logger: opts.Logger,
		byName: make(map[string]*command),
		now:    time.Now,
	}
	s.register()
	return s
}

func (s *Shell) register() {
	s.commands = []*command{
		{name: "connect", usage: "connect [--default] [<name> <command> [args...]]",
			summary: "Launch a server and connect to it; with no arguments, connect to the default server", run: s.connect},
		{name: "disconnect", usage: "disconnect", summary: "Stop the connected server", run: s.disconnect},
		{name: "list-tools", aliases: []string{"ls", "tools"}, usage: "list-tools", summary: "List the tools of the connected server", run: s.listTools},
		{name: "describe-tool", aliases: []string{"describe"}, usage: "describe-tool <name>", summary: "Show a tool's description and parameters", run: s.describeTool},
		{name: "invoke-tool", aliases: []string{"invoke", "call"}, usage: "invoke-tool <name> [key=value ... | '{json}']",
			summary: "Call a tool; without parameters you are asked for them", run: s.invokeTool},
		{name: "refresh", usage: "refresh", summary: "Fetch the tool list again", run: s.refresh},
		{name: "status", usage: "status", summary: "Show connection details", run: s.status},
		{name: "ping", usage: "ping", summary: "Check that the server responds", run: s.ping},
		{name: "logs", usage: "logs [lines]", summary: "Show the server's recent stderr output", run: s.logs},
		{name: "show-default", usage: "show-default", summary: "Show the saved default server", run: s.showDefault},
		{name: "remove-default", usage: "remove-default", summary: "Forget the saved default server", run: s.removeDefault},
		{name: "generate-config", usage: "generate-config [--format json|yaml|toml]",
			summary: "Print an mcpServers entry for the default server", run: s.generateConfig},
		{name: "help", aliases: []string{"?"}, usage: "help [command]", summary: "Show help", run: s.help},
		{name: "exit", aliases: []string{"quit", "q"}, usage: "exit", summary: "Leave the shell", run: s.exit},
	}
	for _, c := range s.commands {
		s.byName[c.name] = c
		for _, a := range c.aliases {
			s.byName[a] = c
		}
	}
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) Result {
	tokens, err := splitLine(line)
	if err != nil {
		return s.fail(err)
	}
	if len(tokens) == 0 {
		return Result{}
	}

	name := strings.ToLower(tokens[0].Value)
	cmd, ok := s.byName[name]
	if !ok {
		return s.fail(s.unknownCommand(name))
	}

	s.logger.Debug("running command", "command", cmd.name, "args", len(tokens)-1)
	res, err := cmd.run(ctx, tokens[1:])
	if err != nil {
		if errors.Is(err, ErrUsage) {
			err = errors.WithHint(err, "usage: "+cmd.usage)
		}
		return s.fail(err)
	}
	return res
}

// InvokeTool calls tool with parameters collected by a prompt.
func (s *Shell) InvokeTool(ctx context.Context, tool schema.Tool, m *params.Map) Result {
	raw, err := s.opts.Session.InvokeParams(ctx, tool.RawName, m)
	if err != nil {
		return s.fail(err)
	}
	return Result{Output: s.opts.Render.Result(raw)}
}

// Close disconnects the session.
func (s *Shell) Close() error {
	return s.opts.Session.Disconnect()
}

// Renderer returns the renderer used for command output.
func (s *Shell) Renderer() Renderer {
	return s.opts.Render
}

// Session returns the session the shell drives.
func (s *Shell) Session() *session.Session {
	return s.opts.Session
}

func (s *Shell) fail(err error) Result {
	return Result{Output: s.opts.Render.Error(err), Err: err}
}

func (s *Shell) unknownCommand(name string) error {
	err := errors.Newf("unknown command %q", name)
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		return errors.WithHintf(err, "did you mean %s? type help for all commands", matches[0].Str)
	}
	return errors.WithHint(err, "type help for all commands")
}

func usagef(format string, args ...any) error {
	return errors.Wrapf(ErrUsage, format, args...)
}

func newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	// Flags after the first positional belong to the server command.
	fs.SetInterspersed(false)
	return fs
}

func (s *Shell) connect(ctx context.Context, args []Token) (Result, error) {
	fs := newFlags("connect")
	saveDefault := fs.Bool("default", false, "save this server as the default")
	if err := fs.Parse(values(args)); err != nil {
		return Result{}, usagef("%v", err)
	}
	rest := fs.Args()

	var name, command string
	var cmdArgs []string
	switch {
	case len(rest) == 0:
		if *saveDefault {
			return Result{}, usagef("--default needs a server to save")
		}
		ds, err := s.opts.Store.Load()
		if err != nil {
			if errors.Is(err, config.ErrNoDefaultServer) {
				return Result{}, errors.WithHint(err, "save one with: connect --default <name> <command> [args...]")
			}
			return Result{}, err
		}
		name, command, cmdArgs = ds.Name, ds.Command, ds.Args
	case len(rest) == 1:
		return Result{}, usagef("missing command for server %q", rest[0])
	default:
		name, command, cmdArgs = rest[0], rest[1], rest[2:]
	}

	launchCmd, launchArgs := config.ExpandLaunch(command, cmdArgs)
	sess := s.opts.Session
	if err := sess.Connect(ctx, session.ServerSpec{Name: name, Command: launchCmd, Args: launchArgs}); err != nil {
		return Result{}, err
	}

	st := sess.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", s.opts.Render.Theme.Success.Render("Connected to"), name)
	if st.Server != nil {
		if st.Server.ServerName != "" {
			fmt.Fprintf(&b, " (%s)", strings.TrimSpace(st.Server.ServerName+" "+st.Server.ServerVersion))
		}
		fmt.Fprintf(&b, ", protocol %s, %d tool(s)", st.Server.ProtocolVersion, st.ToolCount)
	}

	if *saveDefault {
		if err := s.opts.Store.Save(config.DefaultServer{Name: name, Command: command, Args: cmdArgs}); err != nil {
			return Result{}, errors.Wrap(err, "connected, but saving the default server failed")
		}
		b.WriteString("\nSaved as the default server.")
	}
	return Result{Output: b.String()}, nil
}

func (s *Shell) disconnect(_ context.Context, args []Token) (Result, error) {
	if len(args) > 0 {
		return Result{}, usagef("disconnect takes no arguments")
	}
	st := s.opts.Session.Status()
	if st.State == session.StateDisconnected {
		return Result{Output: "Not connected."}, nil
	}
	if err := s.opts.Session.Disconnect(); err != nil {
		return Result{}, err
	}
	name := "server"
	if st.Server != nil {
		name = st.Server.Name
	}
	return Result{Output: "Disconnected from " + name + "."}, nil
}

func (s *Shell) listTools(_ context.Context, _ []Token) (Result, error) {
	tools, err := s.opts.Session.ListTools()
	if err != nil {
		return Result{}, err
	}
	return Result{Output: s.opts.Render.ToolList(tools)}, nil
}

func (s *Shell) describeTool(_ context.Context, args []Token) (Result, error) {
	if len(args) != 1 {
		return Result{}, usagef("describe-tool needs exactly one tool name")
	}
	tool, err := s.opts.Session.DescribeTool(args[0].Value)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: s.opts.Render.Tool(tool)}, nil
}

func (s *Shell) invokeTool(ctx context.Context, args []Token) (Result, error) {
	if len(args) == 0 {
		return Result{}, usagef("invoke-tool needs a tool name")
	}
	name := args[0].Value
	tokens := raws(args[1:])

	if len(tokens) == 0 && s.opts.Interactive {
		tool, err := s.opts.Session.DescribeTool(name)
		if err != nil {
			return Result{}, err
		}
		if len(tool.Params) > 0 {
			return Result{Prompt: &tool}, nil
		}
	}

	raw, err := s.opts.Session.Invoke(ctx, name, tokens)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: s.opts.Render.Result(raw)}, nil
}

func (s *Shell) refresh(ctx context.Context, _ []Token) (Result, error) {
	if err := s.opts.Session.Refresh(ctx); err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Refreshed: %d tool(s).", s.opts.Session.Status().ToolCount)}, nil
}

func (s *Shell) status(_ context.Context, _ []Token) (Result, error) {
	return Result{Output: s.opts.Render.Status(s.opts.Session.Status(), s.now())}, nil
}

func (s *Shell) ping(ctx context.Context, _ []Token) (Result, error) {
	rtt, err := s.opts.Session.Ping(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("pong (%s)", rtt.Round(time.Microsecond))}, nil
}

func (s *Shell) logs(_ context.Context, args []Token) (Result, error) {
	n := defaultLogLines
	if len(args) > 1 {
		return Result{}, usagef("logs takes at most one argument")
	}
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0].Value)
		if err != nil || v <= 0 {
			return Result{}, usagef("line count must be a positive integer, got %q", args[0].Value)
		}
		n = v
	}

	lines, err := s.opts.Session.Logs()
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 0 {
		return Result{Output: "The server has not written anything to stderr."}, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return Result{Output: strings.Join(lines, "\n")}, nil
}

func (s *Shell) showDefault(_ context.Context, _ []Token) (Result, error) {
	ds, err := s.opts.Store.Load()
	if errors.Is(err, config.ErrNoDefaultServer) {
		return Result{Output: "No default server saved."}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Output: s.opts.Render.DefaultServer(ds)}, nil
}

func (s *Shell) removeDefault(_ context.Context, _ []Token) (Result, error) {
	existed, err := s.opts.Store.Remove()
	if err != nil {
		return Result{}, err
	}
	if !existed {
		return Result{Output: "No default server saved."}, nil
	}
	return Result{Output: "Default server removed."}, nil
}

func (s *Shell) generateConfig(_ context.Context, args []Token) (Result, error) {
	fs := newFlags("generate-config")
	format := fs.StringP("format", "f", config.FormatJSON, "output format")
	if err := fs.Parse(values(args)); err != nil {
		return Result{}, usagef("%v", err)
	}
	if fs.NArg() > 0 {
		return Result{}, usagef("unexpected argument %q", fs.Arg(0))
	}

	ds, err := s.opts.Store.Load()
	if err != nil {
		if errors.Is(err, config.ErrNoDefaultServer) {
			return Result{}, errors.WithHint(err, "save one with: connect --default <name> <command> [args...]")
		}
		return Result{}, err
	}
	data, err := config.GenerateConfig(*ds, *format)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: strings.TrimRight(string(data), "\n")}, nil
}

func (s *Shell) help(_ context.Context, args []Token) (Result, error) {
	th := s.opts.Render.Theme
	if len(args) > 0 {
		cmd, ok := s.byName[strings.ToLower(args[0].Value)]
		if !ok {
			return Result{}, s.unknownCommand(args[0].Value)
		}
		out := th.Title.Render(cmd.usage) + "\n  " + cmd.summary
		if len(cmd.aliases) > 0 {
			out += "\n  " + th.Muted.Render("aliases: "+strings.Join(cmd.aliases, ", "))
		}
		return Result{Output: out}, nil
	}

	width := 0
	for _, c := range s.commands {
		width = max(width, len(c.name))
	}
	var b strings.Builder
	b.WriteString(th.Title.Render("Commands:") + "\n")
	for _, c := range s.commands {
		fmt.Fprintf(&b, "  %s  %s\n", th.Primary.Render(fmt.Sprintf("%-*s", width, c.name)), c.summary)
	}
	b.WriteString(th.Muted.Render(`Parameters are key=value pairs (quote a value to keep it a string: n="42") or one JSON object.`))
	return Result{Output: b.String()}, nil
}

func (s *Shell) exit(_ context.Context, _ []Token) (Result, error) {
	return Result{Quit: true}, nil
}
