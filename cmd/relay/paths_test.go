package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePaths_Defaults(t *testing.T) {
	// Clear all env overrides.
	t.Setenv("RELAY_HOME", "")
	t.Setenv("RELAY_CONFIG_PATH", "")
	t.Setenv("RELAY_PID_PATH", "")
	t.Setenv("RELAY_ARCHIVE_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("get home dir: %v", err)
	}

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	// All default paths should be under ~/.claude-relay.
	expectedBase := filepath.Join(home, relayDir)

	if paths.Home != expectedBase {
		t.Errorf("Home = %q, want %q", paths.Home, expectedBase)
	}
	if paths.ConfigPath != filepath.Join(expectedBase, "config.yaml") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(expectedBase, "config.yaml"))
	}
	if paths.PIDPath != filepath.Join(expectedBase, "relay.pid") {
		t.Errorf("PIDPath = %q, want %q", paths.PIDPath, filepath.Join(expectedBase, "relay.pid"))
	}
	if paths.StateDir != expectedBase {
		t.Errorf("StateDir = %q, want %q", paths.StateDir, expectedBase)
	}
	if paths.ArchivePath != filepath.Join(expectedBase, "archive.db") {
		t.Errorf("ArchivePath = %q, want %q", paths.ArchivePath, filepath.Join(expectedBase, "archive.db"))
	}
	if paths.LogsDir != filepath.Join(expectedBase, "logs") {
		t.Errorf("LogsDir = %q, want %q", paths.LogsDir, filepath.Join(expectedBase, "logs"))
	}
}

func TestResolvePaths_HomeOverride(t *testing.T) {
	tmpDir := t.TempDir()

	// RELAY_HOME should become the base for every default path.
	t.Setenv("RELAY_HOME", tmpDir)
	t.Setenv("RELAY_CONFIG_PATH", "")
	t.Setenv("RELAY_PID_PATH", "")
	t.Setenv("RELAY_ARCHIVE_PATH", "")

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	if paths.Home != tmpDir {
		t.Errorf("Home = %q, want %q", paths.Home, tmpDir)
	}
	if paths.ConfigPath != filepath.Join(tmpDir, "config.yaml") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(tmpDir, "config.yaml"))
	}
	if paths.PIDPath != filepath.Join(tmpDir, "relay.pid") {
		t.Errorf("PIDPath = %q, want %q", paths.PIDPath, filepath.Join(tmpDir, "relay.pid"))
	}
	if paths.ArchivePath != filepath.Join(tmpDir, "archive.db") {
		t.Errorf("ArchivePath = %q, want %q", paths.ArchivePath, filepath.Join(tmpDir, "archive.db"))
	}
	if paths.LogsDir != filepath.Join(tmpDir, "logs") {
		t.Errorf("LogsDir = %q, want %q", paths.LogsDir, filepath.Join(tmpDir, "logs"))
	}
}

func TestResolvePaths_SpecificOverridesWinOverHome(t *testing.T) {
	tmpDir := t.TempDir()

	t.Setenv("RELAY_HOME", filepath.Join(tmpDir, "custom-home"))
	t.Setenv("RELAY_CONFIG_PATH", filepath.Join(tmpDir, "elsewhere.yaml"))
	t.Setenv("RELAY_PID_PATH", filepath.Join(tmpDir, "elsewhere.pid"))
	t.Setenv("RELAY_ARCHIVE_PATH", filepath.Join(tmpDir, "elsewhere.db"))

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	if paths.ConfigPath != filepath.Join(tmpDir, "elsewhere.yaml") {
		t.Errorf("ConfigPath = %q, want %q", paths.ConfigPath, filepath.Join(tmpDir, "elsewhere.yaml"))
	}
	if paths.PIDPath != filepath.Join(tmpDir, "elsewhere.pid") {
		t.Errorf("PIDPath = %q, want %q", paths.PIDPath, filepath.Join(tmpDir, "elsewhere.pid"))
	}
	if paths.ArchivePath != filepath.Join(tmpDir, "elsewhere.db") {
		t.Errorf("ArchivePath = %q, want %q", paths.ArchivePath, filepath.Join(tmpDir, "elsewhere.db"))
	}

	// State and logs still follow RELAY_HOME.
	if paths.StateDir != filepath.Join(tmpDir, "custom-home") {
		t.Errorf("StateDir = %q, want %q", paths.StateDir, filepath.Join(tmpDir, "custom-home"))
	}
	if paths.LogsDir != filepath.Join(tmpDir, "custom-home", "logs") {
		t.Errorf("LogsDir = %q, want %q", paths.LogsDir, filepath.Join(tmpDir, "custom-home", "logs"))
	}
}

func TestBootstrapHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RELAY_HOME", filepath.Join(tmpDir, "fresh"))
	t.Setenv("RELAY_CONFIG_PATH", "")
	t.Setenv("RELAY_PID_PATH", "")
	t.Setenv("RELAY_ARCHIVE_PATH", "")

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	if err := bootstrapHome(paths); err != nil {
		t.Fatalf("bootstrapHome: %v", err)
	}

	for _, dir := range []string{paths.Home, paths.LogsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Idempotent.
	if err := bootstrapHome(paths); err != nil {
		t.Errorf("second bootstrapHome: %v", err)
	}
}
