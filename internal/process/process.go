// Package process provides process lifecycle management for MCP servers.
package process

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// GracefulShutdownTimeout is how long to wait for SIGTERM before SIGKILL.
	GracefulShutdownTimeout = 5 * time.Second

	// DefaultLogCapacity is how many stderr lines a Process keeps in memory.
	DefaultLogCapacity = 1000

	maxStderrLine = 1 << 20
)

// Config describes the child process to launch.
type Config struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// Logger receives stderr lines at debug level. Defaults to slog.Default().
	Logger *slog.Logger

	// OnStderr, if set, is called for every stderr line from the drain goroutine.
	OnStderr func(line string)

	// LogCapacity bounds the in-memory stderr ring. Zero means DefaultLogCapacity.
	LogCapacity int
}

// Process is a running child with piped standard streams.
//
// Stdout and stderr are backed by os.Pipe rather than exec's pipe helpers so
// that cmd.Wait never closes the read ends while a reader is still draining
// buffered output.
type Process struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	logs   []string
	logCap int
	logsMu sync.RWMutex

	startedAt time.Time
	done      chan struct{} // closed when the process exits
	waitErr   error

	stopMu   sync.Mutex
	stopped  bool
	stopErr  error
	onStderr func(string)
}

// Spawn starts the configured command. The returned error wraps the
// underlying exec error when the executable cannot be found or launched.
func Spawn(cfg Config) (*Process, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("command is empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logCap := cfg.LogCapacity
	if logCap <= 0 {
		logCap = DefaultLogCapacity
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}
	cmd.Env = buildEnv(cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, errors.Wrap(err, "stdout pipe")
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, errors.Wrap(err, "stderr pipe")
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	logger.Info("starting MCP server process", "command", cfg.Command, "args", cfg.Args)

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, errors.Wrapf(err, "start %s", cfg.Command)
	}

	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		cmd:       cmd,
		logger:    logger,
		stdin:     stdin,
		stdout:    stdoutR,
		stderr:    stderrR,
		logs:      make([]string, 0, 64),
		logCap:    logCap,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		onStderr:  cfg.OnStderr,
	}

	go p.readStderr()
	go p.watchProcess()

	logger.Info("MCP server process started", "pid", cmd.Process.Pid)
	return p, nil
}

// Stdin returns the write end of the child's standard input.
func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// PID returns the process ID.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when the process started.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitStatus describes how the process ended. Only meaningful after Done.
func (p *Process) ExitStatus() string {
	if !p.Exited() {
		return "running"
	}
	state := p.cmd.ProcessState
	if state == nil {
		if p.waitErr != nil {
			return p.waitErr.Error()
		}
		return "unknown"
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return fmt.Sprintf("signal %s", ws.Signal())
	}
	return fmt.Sprintf("exit code %d", state.ExitCode())
}

// Logs returns a copy of the captured stderr lines, oldest first.
func (p *Process) Logs() []string {
	p.logsMu.RLock()
	defer p.logsMu.RUnlock()
	logs := make([]string, len(p.logs))
	copy(logs, p.logs)
	return logs
}

// Stop terminates the process: stdin is closed, SIGTERM is sent, and if the
// process is still alive after grace it is killed. The kill path runs even
// when delivering SIGTERM failed. Safe to call more than once.
func (p *Process) Stop(grace time.Duration) error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()
	if p.stopped {
		return p.stopErr
	}
	p.stopped = true

	if grace <= 0 {
		grace = GracefulShutdownTimeout
	}

	_ = p.stdin.Close()

	if !p.Exited() {
		p.logger.Info("stopping MCP server process", "pid", p.PID())
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.logger.Debug("SIGTERM failed", "pid", p.PID(), "error", err)
		}

		select {
		case <-p.done:
		case <-time.After(grace):
			p.logger.Warn("MCP server did not exit gracefully, killing", "pid", p.PID(), "grace", grace)
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.stopErr = errors.Wrap(err, "kill process")
			}
			<-p.done
		}
	}

	_ = p.stdout.Close()
	_ = p.stderr.Close()
	return p.stopErr
}

// readStderr drains stderr so the child never blocks on a full pipe.
func (p *Process) readStderr() {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Text()

		p.logsMu.Lock()
		p.logs = append(p.logs, line)
		if len(p.logs) > p.logCap {
			p.logs = p.logs[len(p.logs)-p.logCap:]
		}
		p.logsMu.Unlock()

		p.logger.Debug("MCP server stderr", "pid", p.PID(), "line", line)
		if p.onStderr != nil {
			p.onStderr(line)
		}
	}
}

// watchProcess waits for exit and closes done.
func (p *Process) watchProcess() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
	p.logger.Info("MCP server process exited", "pid", p.PID(), "status", p.ExitStatus())
}

// buildEnv creates the environment for a subprocess with PATH augmentation.
func buildEnv(customEnv map[string]string) []string {
	env := os.Environ()

	pathDirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
	}

	for i, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			currentPath := strings.TrimPrefix(e, "PATH=")
			env[i] = "PATH=" + currentPath + ":" + strings.Join(pathDirs, ":")
			break
		}
	}

	for k, v := range customEnv {
		found := false
		prefix := k + "="
		for i, e := range env {
			if strings.HasPrefix(e, prefix) {
				env[i] = k + "=" + v
				found = true
				break
			}
		}
		if !found {
			env = append(env, k+"="+v)
		}
	}

	return env
}
