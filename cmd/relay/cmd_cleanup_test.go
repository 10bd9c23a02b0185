package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

func cleanupTestConfig(t *testing.T) (*cleanupConfig, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	var buf bytes.Buffer
	return &cleanupConfig{
		w:     &buf,
		stdin: strings.NewReader(""),
		paths: &Paths{
			Home:     home,
			PIDPath:  filepath.Join(home, "relay.pid"),
			StateDir: home,
		},
		signalFn: func(int) error { return nil },
		aliveFn:  func(int) bool { return false },
		isTTY:    func() bool { return true },
		yes:      true,
	}, &buf
}

func TestCleanup_NothingToClean(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing to clean") {
		t.Errorf("expected 'nothing to clean' in output, got: %s", buf.String())
	}
}

func TestCleanup_KillsRecordedChildren(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)

	store := state.NewStore(cfg.paths.StateDir)
	children := []state.ChildRecord{
		{PID: 11111, StartedAt: time.Now(), Description: "chat"},
		{PID: 22222, StartedAt: time.Now(), Description: "summary"},
	}
	if err := store.SaveChildren(children); err != nil {
		t.Fatal(err)
	}

	var signaled []int
	cfg.signalFn = func(pid int) error { signaled = append(signaled, pid); return nil }
	cfg.aliveFn = func(pid int) bool { return pid == 11111 } // 22222 already dead

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(signaled) != 1 || signaled[0] != 11111 {
		t.Errorf("expected only live child 11111 signaled, got %v", signaled)
	}

	// Registry is cleared regardless of liveness.
	left, err := store.LoadChildren()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("expected empty registry, got %v", left)
	}
	if !strings.Contains(buf.String(), "cleared child registry") {
		t.Errorf("expected registry message, got: %s", buf.String())
	}
}

func TestCleanup_RemovesStalePIDFile(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)
	writePID(t, cfg.paths.PIDPath, 4000000) // dead PID

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(cfg.paths.PIDPath); !os.IsNotExist(err) {
		t.Error("expected stale PID file to be removed")
	}
	if !strings.Contains(buf.String(), "pid file") {
		t.Errorf("expected pid file message, got: %s", buf.String())
	}
}

func TestCleanup_RemovesOrphanedTmpFiles(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)

	store := state.NewStore(cfg.paths.StateDir)
	tmp := store.SessionPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("expected orphaned tmp file to be removed")
	}
	if !strings.Contains(buf.String(), "tmp file") {
		t.Errorf("expected tmp file message, got: %s", buf.String())
	}
}

func TestCleanup_DryRunActsOnNothing(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)
	cfg.dryRun = true

	store := state.NewStore(cfg.paths.StateDir)
	if err := store.SaveChildren([]state.ChildRecord{{PID: 11111}}); err != nil {
		t.Fatal(err)
	}
	writePID(t, cfg.paths.PIDPath, 4000000)

	cfg.signalFn = func(int) error {
		t.Error("dry run must not signal")
		return nil
	}
	cfg.aliveFn = func(int) bool { return true }

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "would kill child 11111") {
		t.Errorf("expected dry-run kill notice, got: %s", out)
	}
	if !strings.Contains(out, "would remove stale pid file") {
		t.Errorf("expected dry-run pid notice, got: %s", out)
	}

	// Nothing actually removed.
	if _, err := os.Stat(cfg.paths.PIDPath); err != nil {
		t.Error("dry run must not remove the PID file")
	}
	left, err := store.LoadChildren()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Error("dry run must not clear the registry")
	}
}

func TestCleanup_RefusesWhileRelayRuns(t *testing.T) {
	cfg, _ := cleanupTestConfig(t)
	writePID(t, cfg.paths.PIDPath, os.Getpid()) // this test process holds the lock

	err := runCleanup(cfg)
	if err == nil {
		t.Fatal("expected error while relay is running")
	}
	if !strings.Contains(err.Error(), "relay stop") {
		t.Errorf("expected 'relay stop' hint, got: %v", err)
	}
}

func TestCleanup_RefusedWhenNotTTY(t *testing.T) {
	cfg, _ := cleanupTestConfig(t)
	cfg.yes = false
	cfg.isTTY = func() bool { return false }

	err := runCleanup(cfg)
	if err == nil {
		t.Fatal("expected error when stdin is not a TTY, got nil")
	}
	if !strings.Contains(err.Error(), "TTY") {
		t.Errorf("expected TTY error, got: %v", err)
	}
}

func TestCleanup_PromptDeclined(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)
	cfg.yes = false
	cfg.stdin = strings.NewReader("n\n")
	writePID(t, cfg.paths.PIDPath, 4000000)

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "aborted") {
		t.Errorf("expected 'aborted', got: %s", buf.String())
	}
	if _, err := os.Stat(cfg.paths.PIDPath); err != nil {
		t.Error("declined cleanup must not touch the PID file")
	}
}

func TestCleanup_PromptAccepted(t *testing.T) {
	cfg, _ := cleanupTestConfig(t)
	cfg.yes = false
	cfg.stdin = strings.NewReader("y\n")
	writePID(t, cfg.paths.PIDPath, 4000000)

	if err := runCleanup(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(cfg.paths.PIDPath); !os.IsNotExist(err) {
		t.Error("accepted cleanup should remove the stale PID file")
	}
}

func TestCleanup_ContinuesOnErrors(t *testing.T) {
	cfg, buf := cleanupTestConfig(t)

	store := state.NewStore(cfg.paths.StateDir)
	if err := store.SaveChildren([]state.ChildRecord{{PID: 11111}}); err != nil {
		t.Fatal(err)
	}
	writePID(t, cfg.paths.PIDPath, 4000000)

	cfg.aliveFn = func(pid int) bool { return pid == 11111 }
	cfg.signalFn = func(int) error { return os.ErrPermission }

	// Should NOT return an error despite the signal failure.
	if err := runCleanup(cfg); err != nil {
		t.Fatalf("expected nil error (best-effort), got: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "warning") {
		t.Errorf("expected warnings in output, got: %s", out)
	}
	// Later steps still ran.
	if _, err := os.Stat(cfg.paths.PIDPath); !os.IsNotExist(err) {
		t.Error("expected PID file removal to still happen")
	}
}
