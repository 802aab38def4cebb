package process

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Bigsy/mcpcli/internal/logging"
	"github.com/Bigsy/mcpcli/internal/testutil"
)

// exitedPID returns the PID of a process that has already exited.
func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run helper: %v", err)
	}
	return cmd.Process.Pid
}

// startSleep starts a long-running child and returns it with a channel that
// receives its exit status.
func startSleep(t *testing.T) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd, done
}

// writeEntries seeds the tracking file as another mcpcli process would.
func writeEntries(t *testing.T, path string, entries ...TrackedPID) {
	t.Helper()
	pids := make(map[int]TrackedPID, len(entries))
	for _, e := range entries {
		pids[e.PID] = e
	}
	data, err := json.Marshal(pids)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultPIDPath(t *testing.T) {
	home := testutil.SetupTestHome(t)

	path, err := DefaultPIDPath()
	if err != nil {
		t.Fatalf("DefaultPIDPath failed: %v", err)
	}
	want := filepath.Join(home, ".local", "state", "mcpcli", "pids.json")
	if path != want {
		t.Errorf("expected %q, got %q", want, path)
	}
}

func TestPIDTracker_AddAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "pids.json")
	pt := NewPIDTracker(path, logging.ForTest(t))

	if err := pt.Add("files", 12345, "npx"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected PID file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	entry, ok := NewPIDTracker(path, logging.ForTest(t)).Tracked()[12345]
	if !ok {
		t.Fatal("expected pid 12345 to be tracked after reload")
	}
	if entry.Name != "files" || entry.Command != "npx" || entry.Owner != os.Getpid() {
		t.Errorf("unexpected entry %+v", entry)
	}

	if err := pt.Remove(12345); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := pt.Remove(12345); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if n := len(pt.Tracked()); n != 0 {
		t.Errorf("expected no tracked PIDs, got %d", n)
	}
}

func TestPIDTracker_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	pt := NewPIDTracker(path, logging.ForTest(t))
	if n := len(pt.Tracked()); n != 0 {
		t.Errorf("expected corrupt file to be ignored, got %d entries", n)
	}
	if err := pt.Add("x", 1, "x"); err != nil {
		t.Fatalf("Add after corrupt file failed: %v", err)
	}
}

func TestPIDTracker_TwoInstancesMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids.json")
	a := NewPIDTracker(path, logging.ForTest(t))
	b := NewPIDTracker(path, logging.ForTest(t))
	b.owner = exitedPID(t)

	if err := a.Add("files", 1001, "files-server"); err != nil {
		t.Fatal(err)
	}
	if err := b.Add("git", 1002, "git-server"); err != nil {
		t.Fatal(err)
	}

	tracked := a.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("expected both instances' entries, got %+v", tracked)
	}

	// Remove only touches the caller's own entries.
	if err := a.Remove(1002); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Tracked()[1002]; !ok {
		t.Error("instance A removed an entry owned by instance B")
	}
}

func TestPIDTracker_CleanupOrphans_LeavesLiveOwnersAlone(t *testing.T) {
	cmd, done := startSleep(t)
	path := filepath.Join(t.TempDir(), "pids.json")

	a := NewPIDTracker(path, logging.ForTest(t))
	if err := a.Add("files", cmd.Process.Pid, "sleep"); err != nil {
		t.Fatal(err)
	}

	// A second mcpcli process starting up must not touch A's server.
	b := NewPIDTracker(path, logging.ForTest(t))
	b.owner = exitedPID(t)
	if killed := b.CleanupOrphans(); killed != 0 {
		t.Fatalf("expected no processes signalled, got %d", killed)
	}

	select {
	case err := <-done:
		t.Fatalf("instance A's server exited: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	if _, ok := b.Tracked()[cmd.Process.Pid]; !ok {
		t.Error("expected A's entry to stay tracked")
	}
}

func TestPIDTracker_CleanupOrphans_ProcessGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pids.json")
	writeEntries(t, path, TrackedPID{PID: exitedPID(t), Owner: exitedPID(t), Name: "gone", Command: "sh"})

	pt := NewPIDTracker(path, logging.ForTest(t))
	if killed := pt.CleanupOrphans(); killed != 0 {
		t.Errorf("expected no processes signalled, got %d", killed)
	}
	if n := len(pt.Tracked()); n != 0 {
		t.Errorf("expected tracking file to be cleared, got %d entries", n)
	}
}

func TestPIDTracker_CleanupOrphans_TerminatesOrphan(t *testing.T) {
	cmd, done := startSleep(t)
	path := filepath.Join(t.TempDir(), "pids.json")
	writeEntries(t, path, TrackedPID{PID: cmd.Process.Pid, Owner: exitedPID(t), Name: "orphan", Command: "sleep"})

	pt := NewPIDTracker(path, logging.ForTest(t))
	if killed := pt.CleanupOrphans(); killed != 1 {
		t.Fatalf("expected 1 process signalled, got %d", killed)
	}

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "terminated") {
			t.Errorf("expected the orphan to die from SIGTERM, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("orphan was not terminated")
	}
	if n := len(pt.Tracked()); n != 0 {
		t.Errorf("expected no tracked PIDs, got %d", n)
	}
}

func TestPIDTracker_CleanupOrphans_SkipsReusedPID(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("command check needs /proc")
	}
	cmd, done := startSleep(t)
	path := filepath.Join(t.TempDir(), "pids.json")
	writeEntries(t, path, TrackedPID{PID: cmd.Process.Pid, Owner: exitedPID(t), Name: "files", Command: "npx"})

	pt := NewPIDTracker(path, logging.ForTest(t))
	if killed := pt.CleanupOrphans(); killed != 0 {
		t.Fatalf("expected the unrelated process to be spared, got %d signalled", killed)
	}
	select {
	case err := <-done:
		t.Fatalf("unrelated process exited: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	if n := len(pt.Tracked()); n != 0 {
		t.Errorf("expected stale entry to be dropped, got %d", n)
	}
}

func TestMatchesCommand(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("command check needs /proc")
	}
	cmd, _ := startSleep(t)

	tests := []struct {
		command string
		want    bool
	}{
		{"sleep", true},
		{"/bin/sleep", true},
		{"npx", false},
	}
	for _, tt := range tests {
		if got := matchesCommand(cmd.Process.Pid, tt.command); got != tt.want {
			t.Errorf("matchesCommand(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}
