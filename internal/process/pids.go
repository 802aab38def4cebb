package process

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
)

const pidsFile = "pids.json"

// TrackedPID is one entry of the PID tracking file.
type TrackedPID struct {
	PID     int    `json:"pid"`
	Owner   int    `json:"owner"`
	Name    string `json:"name"`
	Command string `json:"command"`
}

// PIDTracker records the PIDs of servers this client started so that a later
// run can terminate children orphaned by a crash. The file is shared by every
// mcpcli process of the user; each entry names the process that owns it, and
// only entries whose owner has exited are ever cleaned up.
type PIDTracker struct {
	path   string
	logger *slog.Logger
	owner  int

	// mu serialises this process; the lock file serialises processes.
	mu sync.Mutex
}

// DefaultPIDPath returns the tracking file location under the XDG state dir.
func DefaultPIDPath() (string, error) {
	path, err := xdg.StateFile(filepath.Join("mcpcli", pidsFile))
	if err != nil {
		return "", errors.Wrap(err, "resolve pid file path")
	}
	return path, nil
}

// NewPIDTracker creates a tracker persisted at path. Entries it adds are owned
// by the calling process.
func NewPIDTracker(path string, logger *slog.Logger) *PIDTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PIDTracker{
		path:   path,
		logger: logger,
		owner:  os.Getpid(),
	}
}

// Path returns the tracking file path.
func (pt *PIDTracker) Path() string {
	return pt.path
}

// Add tracks a server process started by this mcpcli process.
func (pt *PIDTracker) Add(name string, pid int, command string) error {
	return pt.update(func(pids map[int]TrackedPID) bool {
		pids[pid] = TrackedPID{PID: pid, Owner: pt.owner, Name: name, Command: command}
		return true
	})
}

// Remove stops tracking pid. Entries owned by other processes are left alone.
func (pt *PIDTracker) Remove(pid int) error {
	return pt.update(func(pids map[int]TrackedPID) bool {
		entry, ok := pids[pid]
		if !ok || entry.Owner != pt.owner {
			return false
		}
		delete(pids, pid)
		return true
	})
}

// Tracked returns the entries currently on disk, keyed by server PID.
func (pt *PIDTracker) Tracked() map[int]TrackedPID {
	var out map[int]TrackedPID
	err := pt.update(func(pids map[int]TrackedPID) bool {
		out = pids
		return false
	})
	if err != nil {
		pt.logger.Warn("failed to read PID file", "path", pt.path, "error", err)
	}
	if out == nil {
		out = make(map[int]TrackedPID)
	}
	return out
}

// CleanupOrphans terminates servers whose owning mcpcli process has exited.
// A PID that now belongs to a different program is dropped without a signal.
// Returns the number of processes signalled.
func (pt *PIDTracker) CleanupOrphans() int {
	killed := 0
	err := pt.update(func(pids map[int]TrackedPID) bool {
		changed := false
		for pid, entry := range pids {
			if entry.Owner == pt.owner || isProcessRunning(entry.Owner) {
				continue
			}
			delete(pids, pid)
			changed = true

			if !isProcessRunning(pid) {
				continue
			}
			if !matchesCommand(pid, entry.Command) {
				pt.logger.Info("skipping reused PID", "server", entry.Name, "pid", pid, "command", entry.Command)
				continue
			}
			pt.logger.Info("terminating orphaned MCP server", "server", entry.Name, "pid", pid, "owner", entry.Owner, "command", entry.Command)
			if err := terminate(pid); err != nil {
				pt.logger.Warn("failed to terminate orphan", "pid", pid, "error", err)
				continue
			}
			killed++
		}
		return changed
	})
	if err != nil {
		pt.logger.Warn("failed to clean up PID file", "path", pt.path, "error", err)
	}
	return killed
}

// update runs fn on the current file contents while holding the file lock and
// writes the result back when fn reports a change.
func (pt *PIDTracker) update(fn func(map[int]TrackedPID) bool) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(pt.path), 0o700); err != nil {
		return errors.Wrap(err, "create pid dir")
	}
	lock, err := os.OpenFile(pt.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errors.Wrap(err, "open pid lock")
	}
	defer lock.Close()
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		return errors.Wrap(err, "lock pid file")
	}
	defer func() { _ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN) }()

	pids := pt.load()
	if !fn(pids) {
		return nil
	}
	return pt.save(pids)
}

// load reads the tracking file. A missing or corrupt file reads as empty.
func (pt *PIDTracker) load() map[int]TrackedPID {
	pids := make(map[int]TrackedPID)
	data, err := os.ReadFile(pt.path)
	if err != nil {
		return pids
	}
	if err := json.Unmarshal(data, &pids); err != nil {
		pt.logger.Warn("failed to parse PID file", "path", pt.path, "error", err)
		return make(map[int]TrackedPID)
	}
	return pids
}

func (pt *PIDTracker) save(pids map[int]TrackedPID) error {
	data, err := json.MarshalIndent(pids, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal pids")
	}
	return errors.Wrap(os.WriteFile(pt.path, data, 0o600), "write pid file")
}

// isProcessRunning checks if a process with the given PID exists.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// matchesCommand reports whether pid still runs command. Interpreted servers
// show the script as a later argument, so any argument may match. Without
// procfs the check cannot be made and the PID is trusted.
func matchesCommand(pid int, command string) bool {
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	want := filepath.Base(command)
	for _, arg := range bytes.Split(bytes.TrimRight(data, "\x00"), []byte{0}) {
		if string(arg) == command || filepath.Base(string(arg)) == want {
			return true
		}
	}
	return false
}

// terminate sends SIGTERM without waiting; the orphan is not our child.
func terminate(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
