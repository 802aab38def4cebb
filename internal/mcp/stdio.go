package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Bigsy/mcpcli/internal/process"
)

const (
	// DefaultTimeout is the default timeout for RPC calls.
	DefaultTimeout = 30 * time.Second

	// exitDrainTimeout bounds how long a process exit waits for the stdout
	// reader to consume output the child wrote before exiting.
	exitDrainTimeout = 500 * time.Millisecond

	maxLoggedLine = 200
)

// DebugLogging enables verbose payload logging (MCP Send/Recv messages).
var DebugLogging bool

// StdioConfig configures a stdio transport to a server subprocess.
type StdioConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	Logger *slog.Logger

	// DefaultTimeout applies to requests sent with a zero timeout.
	DefaultTimeout time.Duration

	// ShutdownGrace is how long Close waits after SIGTERM before SIGKILL.
	ShutdownGrace time.Duration

	// OnStderr receives each stderr line of the child.
	OnStderr func(line string)

	// OnNotification receives server notifications. Called from the reader
	// goroutine, so it must not block.
	OnNotification func(method string, params json.RawMessage)
}

// callResult is delivered to a waiting caller.
type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is an in-flight request awaiting its response.
type pendingCall struct {
	id       int64
	method   string
	deadline time.Time
	result   chan callResult // buffered 1; the reader never blocks on it
}

// StdioTransport owns a server subprocess and speaks NDJSON JSON-RPC over
// its standard streams. One reader goroutine drains stdout and resolves
// pending calls by correlation id; any number of goroutines may send.
type StdioTransport struct {
	cfg    StdioConfig
	logger *slog.Logger
	proc   *process.Process
	frames *frameReader

	nextID  atomic.Int64
	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[int64]*pendingCall
	closed   bool
	closeErr error

	done       chan struct{}
	readerDone chan struct{}
}

// StartStdio spawns the server process and starts the reader. Failures to
// launch are marked ErrProcessSpawn.
func StartStdio(ctx context.Context, cfg StdioConfig) (*StdioTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = process.GracefulShutdownTimeout
	}

	proc, err := process.Spawn(process.Config{
		Command:  cfg.Command,
		Args:     cfg.Args,
		Env:      cfg.Env,
		Dir:      cfg.Dir,
		Logger:   logger,
		OnStderr: cfg.OnStderr,
	})
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "spawn %q", cfg.Command), ErrProcessSpawn)
	}

	t := &StdioTransport{
		cfg:        cfg,
		logger:     logger.With("pid", proc.PID()),
		proc:       proc,
		frames:     newFrameReader(proc.Stdout()),
		pending:    make(map[int64]*pendingCall),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	go t.readLoop()
	go t.watchExit()

	return t, nil
}

// PID returns the child's process ID.
func (t *StdioTransport) PID() int {
	return t.proc.PID()
}

// Logs returns the child's recent stderr lines.
func (t *StdioTransport) Logs() []string {
	return t.proc.Logs()
}

// Done is closed once the transport can no longer carry requests.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

// Err reports why the transport closed, or nil while it is open.
func (t *StdioTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Pending returns the number of requests awaiting a response.
func (t *StdioTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// SendRequest frames a request with a fresh correlation id, writes it to the
// child, and blocks until the matching response, the timeout, ctx
// cancellation, or transport closure. A timed-out call is forgotten; its
// response, if it ever arrives, is discarded as unmatched.
func (t *StdioTransport) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = t.cfg.DefaultTimeout
	}

	id := t.nextID.Add(1)
	data, err := json.Marshal(NewRequest(id, method, params))
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s request", method)
	}

	pc := &pendingCall{
		id:       id,
		method:   method,
		deadline: time.Now().Add(timeout),
		result:   make(chan callResult, 1),
	}

	t.mu.Lock()
	if t.closed {
		err := t.closeErr
		t.mu.Unlock()
		return nil, err
	}
	t.pending[id] = pc
	t.mu.Unlock()

	if err := t.write(data); err != nil {
		t.forget(id)
		return nil, errors.Mark(errors.Wrapf(err, "send %s", method), ErrTransportClosed)
	}

	timer := time.NewTimer(time.Until(pc.deadline))
	defer timer.Stop()

	select {
	case res := <-pc.result:
		return res.result, res.err
	case <-timer.C:
		t.forget(id)
		return nil, errors.Wrapf(ErrRequestTimeout, "%s (id %d) got no response within %s", method, id, timeout)
	case <-ctx.Done():
		t.forget(id)
		return nil, errors.Wrapf(ctx.Err(), "%s (id %d)", method, id)
	}
}

// Notify sends a JSON-RPC notification.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed, closeErr := t.closed, t.closeErr
	t.mu.Unlock()
	if closed {
		return closeErr
	}

	data, err := json.Marshal(NewNotification(method, params))
	if err != nil {
		return errors.Wrapf(err, "marshal %s notification", method)
	}
	if err := t.write(data); err != nil {
		return errors.Mark(errors.Wrapf(err, "send %s", method), ErrTransportClosed)
	}
	return nil
}

// Close terminates the child and fails all outstanding calls with
// ErrTransportClosed. Safe to call more than once.
func (t *StdioTransport) Close() error {
	t.shutdown(errors.Wrap(ErrTransportClosed, "closed by client"))
	err := t.proc.Stop(t.cfg.ShutdownGrace)
	<-t.readerDone
	return err
}

func (t *StdioTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if DebugLogging {
		t.logger.Debug("MCP send", "message", string(data))
	}
	return writeFrame(t.proc.Stdin(), data)
}

// forget removes a pending call without resolving it.
func (t *StdioTransport) forget(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// shutdown marks the transport closed and fails every pending call. Only the
// first cause is kept.
func (t *StdioTransport) shutdown(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = cause
	pending := t.pending
	t.pending = make(map[int64]*pendingCall)
	t.mu.Unlock()

	for _, pc := range pending {
		pc.result <- callResult{err: errors.Wrapf(cause, "%s (id %d)", pc.method, pc.id)}
	}
	close(t.done)
}

// readLoop drains stdout until EOF. A bad line never stops the loop.
func (t *StdioTransport) readLoop() {
	defer close(t.readerDone)
	for {
		line, err := t.frames.next()
		if err != nil {
			t.shutdown(t.eofCause(err))
			return
		}
		if DebugLogging {
			t.logger.Debug("MCP recv", "message", string(line))
		}
		t.dispatch(line)
	}
}

// watchExit closes the transport once the child exits, after giving the
// reader a moment to consume what the child wrote last.
func (t *StdioTransport) watchExit() {
	<-t.proc.Done()
	select {
	case <-t.readerDone:
	case <-time.After(exitDrainTimeout):
	}
	t.shutdown(errors.Wrapf(ErrTransportClosed, "server process exited (%s)", t.proc.ExitStatus()))
}

// eofCause describes why stdout ended, preferring the exit status when the
// child is on its way out.
func (t *StdioTransport) eofCause(readErr error) error {
	select {
	case <-t.proc.Done():
		return errors.Wrapf(ErrTransportClosed, "server process exited (%s)", t.proc.ExitStatus())
	case <-time.After(exitDrainTimeout):
		return errors.Wrapf(ErrTransportClosed, "server stdout closed: %v", readErr)
	}
}

func (t *StdioTransport) dispatch(line []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		t.logger.Warn("discarding non-JSON line from MCP server", "line", truncate(line), "error", err)
		return
	}

	switch {
	case msg.isResponse():
		t.resolve(&msg)
	case msg.Method != "" && msg.hasID():
		t.answerServerRequest(&msg)
	case msg.Method != "":
		t.logger.Debug("MCP notification", "method", msg.Method)
		if t.cfg.OnNotification != nil {
			t.cfg.OnNotification(msg.Method, msg.Params)
		}
	default:
		t.logger.Debug("ignoring message without id or method", "line", truncate(line))
	}
}

func (t *StdioTransport) resolve(msg *inboundMessage) {
	id, ok := msg.numericID()
	if !ok {
		t.logger.Warn("discarding response with non-numeric id", "id", string(msg.ID))
		return
	}

	t.mu.Lock()
	pc, found := t.pending[id]
	if found {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !found {
		t.logger.Debug("discarding unmatched response", "id", id)
		return
	}

	if msg.Error != nil {
		pc.result <- callResult{err: msg.Error}
		return
	}
	result := msg.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	pc.result <- callResult{result: result}
}

// answerServerRequest replies to requests the server sends us. Only ping is
// supported; anything else gets method-not-found so the server never waits.
func (t *StdioTransport) answerServerRequest(msg *inboundMessage) {
	resp := outboundResponse{JSONRPC: jsonrpcVersion, ID: msg.ID}
	if msg.Method == "ping" {
		resp.Result = struct{}{}
	} else {
		t.logger.Debug("rejecting server request", "method", msg.Method)
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "Method not found"}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.logger.Warn("marshal reply to server request", "error", err)
		return
	}
	if err := t.write(data); err != nil {
		t.logger.Debug("reply to server request failed", "method", msg.Method, "error", err)
	}
}

func truncate(line []byte) string {
	if len(line) <= maxLoggedLine {
		return string(line)
	}
	return string(line[:maxLoggedLine]) + "..."
}
