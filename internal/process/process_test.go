package process

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bigsy/mcpcli/internal/logging"
)

func spawnSh(t *testing.T, script string, mutate func(*Config)) *Process {
	t.Helper()
	cfg := Config{
		Command: "/bin/sh",
		Args:    []string{"-c", script},
		Logger:  logging.ForTest(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := Spawn(cfg)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop(time.Second) })
	return p
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func waitLogs(t *testing.T, p *Process, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if logs := p.Logs(); len(logs) >= n {
			return logs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d stderr lines, got %v", n, p.Logs())
	return nil
}

func TestSpawn_EmptyCommand(t *testing.T) {
	if _, err := Spawn(Config{Command: "  "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestSpawn_MissingExecutable(t *testing.T) {
	_, err := Spawn(Config{Command: "/nonexistent/mcp-server", Logger: logging.ForTest(t)})
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !strings.Contains(err.Error(), "/nonexistent/mcp-server") {
		t.Errorf("expected error to name the command, got %v", err)
	}
}

func TestProcess_StdinStdout(t *testing.T) {
	p := spawnSh(t, "cat", nil)

	if p.PID() <= 0 {
		t.Errorf("expected a PID, got %d", p.PID())
	}
	if time.Since(p.StartedAt()) > time.Minute {
		t.Errorf("unexpected start time %v", p.StartedAt())
	}

	if _, err := io.WriteString(p.Stdin(), "hello\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	line, err := bufio.NewReader(p.Stdout()).ReadString('\n')
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if line != "hello\n" {
		t.Errorf("expected echoed line, got %q", line)
	}

	if p.Exited() {
		t.Error("cat should still be running")
	}
	if got := p.ExitStatus(); got != "running" {
		t.Errorf("expected running, got %q", got)
	}

	// cat exits once stdin is closed.
	if err := p.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !p.Exited() {
		t.Error("expected process to have exited")
	}
}

func TestProcess_StderrCapture(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	p := spawnSh(t, "echo one >&2; echo two >&2; echo three >&2; cat", func(c *Config) {
		c.LogCapacity = 2
		c.OnStderr = func(line string) {
			mu.Lock()
			seen = append(seen, line)
			mu.Unlock()
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	if strings.Join(seen, ",") != "one,two,three" {
		t.Errorf("expected every line passed to OnStderr, got %v", seen)
	}
	mu.Unlock()

	logs := waitLogs(t, p, 2)
	if strings.Join(logs, ",") != "two,three" {
		t.Errorf("expected the ring to keep the newest lines, got %v", logs)
	}
}

func TestProcess_ExitStatus(t *testing.T) {
	p := spawnSh(t, "exit 3", nil)
	waitDone(t, p)
	if got := p.ExitStatus(); got != "exit code 3" {
		t.Errorf("expected exit code 3, got %q", got)
	}
}

func TestProcess_StopKillsStubbornProcess(t *testing.T) {
	p := spawnSh(t, `trap "" TERM; echo ready >&2; while :; do sleep 0.05; done`, nil)
	waitLogs(t, p, 1)

	start := time.Now()
	if err := p.Stop(200 * time.Millisecond); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("expected Stop to wait for the grace period, took %v", elapsed)
	}
	if got := p.ExitStatus(); got != "signal killed" {
		t.Errorf("expected the process to be killed, got %q", got)
	}

	// A second Stop is a no-op.
	if err := p.Stop(time.Second); err != nil {
		t.Errorf("second Stop returned %v", err)
	}
}

func TestProcess_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	p := spawnSh(t, `echo "$MCPCLI_PROCESS_TEST"; pwd`, func(c *Config) {
		c.Env = map[string]string{"MCPCLI_PROCESS_TEST": "from-config"}
		c.Dir = dir
	})

	r := bufio.NewReader(p.Stdout())
	env, _ := r.ReadString('\n')
	wd, _ := r.ReadString('\n')

	if strings.TrimSpace(env) != "from-config" {
		t.Errorf("expected env from config, got %q", env)
	}
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(wd))
	if got != want {
		t.Errorf("expected working dir %q, got %q", want, got)
	}
}

func TestBuildEnv(t *testing.T) {
	t.Setenv("MCPCLI_OVERRIDE_ME", "old")

	env := buildEnv(map[string]string{
		"MCPCLI_OVERRIDE_ME": "new",
		"MCPCLI_ADDED":       "yes",
	})

	lookup := func(key string) (string, int) {
		var val string
		count := 0
		for _, e := range env {
			if k, v, ok := strings.Cut(e, "="); ok && k == key {
				val = v
				count++
			}
		}
		return val, count
	}

	if v, n := lookup("MCPCLI_OVERRIDE_ME"); v != "new" || n != 1 {
		t.Errorf("expected a single overridden value, got %q (%d entries)", v, n)
	}
	if v, _ := lookup("MCPCLI_ADDED"); v != "yes" {
		t.Errorf("expected added variable, got %q", v)
	}
	if path, _ := lookup("PATH"); os.Getenv("PATH") != "" && !strings.Contains(path, "/usr/local/bin") {
		t.Errorf("expected PATH to include common bin dirs, got %q", path)
	}
}
