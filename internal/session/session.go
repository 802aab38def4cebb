// Package session is the connection state machine of mcpcli. A Session owns
// at most one server connection at a time: it launches the server, performs
// the handshake, discovers and indexes tools, and routes tool calls.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Bigsy/mcpcli/internal/events"
	"github.com/Bigsy/mcpcli/internal/mcp"
	"github.com/Bigsy/mcpcli/internal/params"
	"github.com/Bigsy/mcpcli/internal/schema"
)

const (
	// DefaultHandshakeTimeout bounds the initialize exchange.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultRequestTimeout bounds tools/list and tools/call.
	DefaultRequestTimeout = 30 * time.Second

	// recentLogLines is how many server stderr lines Status reports.
	recentLogLines = 20

	toolsListChanged = "notifications/tools/list_changed"
)

// Transport is the connection to a running server.
type Transport interface {
	mcp.Requester
	Close() error
	Done() <-chan struct{}
	Err() error
	PID() int
	Logs() []string
}

// DialFunc starts a transport. The default launches a stdio subprocess.
type DialFunc func(ctx context.Context, cfg mcp.StdioConfig) (Transport, error)

// PIDRecorder remembers live server processes so a later run can clean up
// orphans. *process.PIDTracker implements it.
type PIDRecorder interface {
	Add(name string, pid int, command string) error
	Remove(pid int) error
}

// Options configure a Session. Zero values select defaults.
type Options struct {
	Logger *slog.Logger
	Bus    *events.Bus

	ClientName    string
	ClientVersion string

	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	ShutdownGrace    time.Duration

	PIDs PIDRecorder
	Dial DialFunc
}

// connection is everything tied to one server process.
type connection struct {
	handle    ServerHandle
	transport Transport
	client    *mcp.Client
	index     *schema.Index
}

// Session manages the lifecycle of a single MCP server connection.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	conn  *connection
	// gen increments on every connect and disconnect so that goroutines
	// belonging to an older connection can tell they are stale.
	gen uint64
}

// New creates a disconnected session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Dial == nil {
		opts.Dial = dialStdio
	}
	return &Session{
		opts:   opts,
		logger: opts.Logger,
		state:  StateDisconnected,
	}
}

func dialStdio(ctx context.Context, cfg mcp.StdioConfig) (Transport, error) {
	t, err := mcp.StartStdio(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect launches the server described by spec and makes it the current
// connection, replacing any existing one. On failure the session is left
// disconnected and the cause is returned; spawn failures keep the
// mcp.ErrProcessSpawn mark.
func (s *Session) Connect(ctx context.Context, spec ServerSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	busy := s.state == StateConnecting
	s.mu.Unlock()
	if busy {
		return errors.Wrapf(ErrConnectInProgress, "connect to %s", spec.Name)
	}

	if err := s.Disconnect(); err != nil {
		s.logger.Warn("closing previous connection failed", "error", err)
	}

	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return errors.Wrapf(ErrConnectInProgress, "connect to %s", spec.Name)
	}
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()
	s.publish(events.NewStateChangedEvent(spec.Name, StateDisconnected, StateConnecting, nil))

	logger := s.logger.With("server", spec.Name)
	logger.Info("connecting", "command", spec.Command, "args", spec.Args)

	conn, err := s.open(ctx, spec, logger)
	if err != nil {
		s.abandon(gen, spec.Name, err)
		return errors.Wrapf(err, "connect to %s", spec.Name)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.closeConn(conn)
		return errors.Newf("connect to %s was cancelled by a disconnect", spec.Name)
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	logger.Info("connected",
		"pid", conn.handle.PID,
		"server_name", conn.handle.ServerName,
		"protocol", conn.handle.ProtocolVersion,
		"tools", conn.index.Len())
	s.warnCollisions(logger, conn.index)
	s.publish(events.NewStateChangedEvent(spec.Name, StateConnecting, StateConnected, nil))
	s.publish(events.NewToolsUpdatedEvent(spec.Name, conn.index.Names()))

	go s.watch(gen, conn)
	return nil
}

// open spawns, handshakes and discovers. Any failure after the spawn tears
// the process down before returning.
func (s *Session) open(ctx context.Context, spec ServerSpec, logger *slog.Logger) (*connection, error) {
	name := spec.Name
	t, err := s.opts.Dial(ctx, mcp.StdioConfig{
		Command:        spec.Command,
		Args:           spec.Args,
		Env:            spec.Env,
		Dir:            spec.Dir,
		Logger:         logger,
		DefaultTimeout: s.opts.RequestTimeout,
		ShutdownGrace:  s.opts.ShutdownGrace,
		OnStderr: func(line string) {
			s.publish(events.NewLogReceivedEvent(name, line))
		},
		OnNotification: func(method string, _ json.RawMessage) {
			if method == toolsListChanged {
				go s.refreshOnNotice(name)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	conn := &connection{
		handle: ServerHandle{
			Name:    spec.Name,
			Command: spec.Command,
			Args:    append([]string(nil), spec.Args...),
			PID:     t.PID(),
		},
		transport: t,
		client:    mcp.NewClient(t, mcp.ClientInfo{Name: s.opts.ClientName, Version: s.opts.ClientVersion}),
	}

	if s.opts.PIDs != nil {
		if err := s.opts.PIDs.Add(name, conn.handle.PID, spec.Command); err != nil {
			logger.Warn("failed to track PID", "error", err)
		}
	}

	if err := conn.client.Initialize(ctx, s.opts.HandshakeTimeout); err != nil {
		s.closeConn(conn)
		return nil, withExitCause(err, t)
	}
	conn.handle.ServerName, conn.handle.ServerVersion = conn.client.ServerInfo()
	conn.handle.ProtocolVersion = conn.client.ProtocolVersion()
	conn.handle.Instructions = conn.client.Instructions()

	tools, err := conn.client.ListTools(ctx, s.opts.RequestTimeout)
	if err != nil {
		s.closeConn(conn)
		return nil, withExitCause(err, t)
	}
	conn.index = schema.Build(tools)
	conn.handle.ConnectedAt = time.Now()
	return conn, nil
}

// withExitCause attaches the server's last stderr line when the process
// died mid-handshake, which is usually the most useful clue.
func withExitCause(err error, t Transport) error {
	if !errors.Is(err, mcp.ErrTransportClosed) {
		return err
	}
	logs := t.Logs()
	if len(logs) == 0 {
		return err
	}
	return errors.WithHintf(err, "server stderr: %s", logs[len(logs)-1])
}

// abandon returns a failed connect attempt to DISCONNECTED.
func (s *Session) abandon(gen uint64, name string, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.mu.Unlock()
	s.logger.Warn("connect failed", "server", name, "error", cause)
	s.publish(events.NewStateChangedEvent(name, StateConnecting, StateDisconnected, cause))
}

// Disconnect closes the current connection. It is a no-op when already
// disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	old := s.state
	conn := s.conn
	s.conn = nil
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()

	name := ""
	var err error
	if conn != nil {
		name = conn.handle.Name
		s.logger.Info("disconnecting", "server", name)
		err = s.closeConn(conn)
	}
	s.publish(events.NewStateChangedEvent(name, old, StateDisconnected, nil))
	return err
}

func (s *Session) closeConn(conn *connection) error {
	err := conn.transport.Close()
	if s.opts.PIDs != nil {
		if rmErr := s.opts.PIDs.Remove(conn.handle.PID); rmErr != nil {
			s.logger.Warn("failed to untrack PID", "server", conn.handle.Name, "pid", conn.handle.PID, "error", rmErr)
		}
	}
	if err != nil {
		return errors.Wrapf(err, "stop %s", conn.handle.Name)
	}
	return nil
}

// watch moves the session to DISCONNECTED when the transport of the current
// connection closes underneath it.
func (s *Session) watch(gen uint64, conn *connection) {
	<-conn.transport.Done()

	s.mu.Lock()
	if s.gen != gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()

	cause := conn.transport.Err()
	s.logger.Warn("server connection lost", "server", conn.handle.Name, "error", cause)
	_ = s.closeConn(conn)
	s.publish(events.NewStateChangedEvent(conn.handle.Name, StateConnected, StateDisconnected, cause))
}

// current returns the live connection and its index.
func (s *Session) current() (*connection, *schema.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, nil, notConnected()
	}
	return s.conn, s.conn.index, nil
}

// ListTools returns the cached tools in advertised order. It never talks to
// the server; use Refresh for that.
func (s *Session) ListTools() ([]schema.Tool, error) {
	_, idx, err := s.current()
	if err != nil {
		return nil, err
	}
	return idx.Tools(), nil
}

// DescribeTool resolves name by canonical name, then by raw advertised name.
func (s *Session) DescribeTool(name string) (schema.Tool, error) {
	_, tool, err := s.resolve(name)
	return tool, err
}

func (s *Session) resolve(name string) (*connection, schema.Tool, error) {
	conn, idx, err := s.current()
	if err != nil {
		return nil, schema.Tool{}, err
	}
	tool, ok := idx.Lookup(name)
	if !ok {
		return nil, schema.Tool{}, toolNotFound(name, idx.Suggest(name))
	}
	return conn, tool, nil
}

// Invoke resolves the tool, coerces tokens into arguments and calls it. The
// server's result is returned verbatim. An unknown tool fails before any
// I/O.
func (s *Session) Invoke(ctx context.Context, name string, tokens []string) (json.RawMessage, error) {
	conn, tool, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	args, err := params.Parse(tokens)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, conn, tool, args)
}

// InvokeParams is Invoke with arguments that are already built.
func (s *Session) InvokeParams(ctx context.Context, name string, args *params.Map) (json.RawMessage, error) {
	conn, tool, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, conn, tool, args)
}

func (s *Session) call(ctx context.Context, conn *connection, tool schema.Tool, args *params.Map) (json.RawMessage, error) {
	if args == nil {
		args = params.NewMap()
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, errors.Wrap(err, "encode tool arguments")
	}

	s.logger.Debug("invoking tool", "server", conn.handle.Name, "tool", tool.RawName, "args", args.String())
	start := time.Now()
	raw, err := conn.client.CallTool(ctx, tool.RawName, payload, s.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tool returned", "tool", tool.RawName, "duration", time.Since(start), "bytes", len(raw))
	return raw, nil
}

// Refresh re-fetches the tool list and replaces the index wholesale.
func (s *Session) Refresh(ctx context.Context) error {
	conn, _, err := s.current()
	if err != nil {
		return err
	}

	tools, err := conn.client.ListTools(ctx, s.opts.RequestTimeout)
	if err != nil {
		return errors.Wrap(err, "refresh tools")
	}
	idx := schema.Build(tools)

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return notConnected()
	}
	conn.index = idx
	s.mu.Unlock()

	logger := s.logger.With("server", conn.handle.Name)
	logger.Info("tools refreshed", "tools", idx.Len())
	s.warnCollisions(logger, idx)
	s.publish(events.NewToolsUpdatedEvent(conn.handle.Name, idx.Names()))
	return nil
}

func (s *Session) refreshOnNotice(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		s.logger.Warn("refresh after tools/list_changed failed", "server", name, "error", err)
		s.publish(events.NewErrorEvent(name, err, "failed to refresh tools"))
	}
}

// Ping round-trips a ping to the server and reports the latency.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	conn, _, err := s.current()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := conn.client.Ping(ctx, s.opts.RequestTimeout); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state}
	conn := s.conn
	if conn != nil {
		handle := conn.handle
		handle.Args = append([]string(nil), handle.Args...)
		st.Server = &handle
		st.ToolCount = conn.index.Len()
		st.Uptime = time.Since(handle.ConnectedAt)
	}
	s.mu.Unlock()

	if conn != nil {
		logs := conn.transport.Logs()
		if len(logs) > recentLogLines {
			logs = logs[len(logs)-recentLogLines:]
		}
		st.RecentLogs = logs
	}
	return st
}

// Logs returns all captured stderr lines of the connected server.
func (s *Session) Logs() ([]string, error) {
	conn, _, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.transport.Logs(), nil
}

func (s *Session) warnCollisions(logger *slog.Logger, idx *schema.Index) {
	for name, raws := range idx.Collisions() {
		logger.Warn("tools share a canonical name; the first advertised wins, use the raw name for the others",
			"name", name, "raw_names", raws)
	}
}

func (s *Session) publish(e events.Event) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(e)
	}
}
