package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// relayDir is the default relay home directory name under $HOME.
const relayDir = ".claude-relay"

// Paths holds all resolved relay state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	Home        string // ~/.claude-relay or RELAY_HOME
	ConfigPath  string // config.yaml or RELAY_CONFIG_PATH
	PIDPath     string // relay.pid or RELAY_PID_PATH
	StateDir    string // session.json + children.json live here (= Home)
	ArchivePath string // archive.db or RELAY_ARCHIVE_PATH
	LogsDir     string // logs/ (respects RELAY_HOME)
}

// ResolvePaths returns all relay paths, respecting env var overrides.
// Environment variables:
//   - RELAY_HOME: base directory for all relay state (default: ~/.claude-relay)
//   - RELAY_CONFIG_PATH: config file (default: $RELAY_HOME/config.yaml)
//   - RELAY_PID_PATH: lock/PID file (default: $RELAY_HOME/relay.pid)
//   - RELAY_ARCHIVE_PATH: archive database (default: $RELAY_HOME/archive.db)
//
// If RELAY_HOME is set, it becomes the base for all default paths.
// Specific env vars override both the default and the RELAY_HOME base.
func ResolvePaths() (*Paths, error) {
	home, err := resolveRelayHome()
	if err != nil {
		return nil, err
	}

	paths := &Paths{
		Home:        home,
		ConfigPath:  resolvePathWithEnv("RELAY_CONFIG_PATH", home, "config.yaml"),
		PIDPath:     resolvePathWithEnv("RELAY_PID_PATH", home, "relay.pid"),
		StateDir:    home,
		ArchivePath: resolvePathWithEnv("RELAY_ARCHIVE_PATH", home, "archive.db"),
		LogsDir:     filepath.Join(home, "logs"),
	}

	return paths, nil
}

// resolveRelayHome returns the relay home directory from RELAY_HOME or ~/.claude-relay.
func resolveRelayHome() (string, error) {
	if v := os.Getenv("RELAY_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, relayDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}

// bootstrapHome creates the relay home and logs directories with 0700
// permissions. Idempotent.
func bootstrapHome(paths *Paths) error {
	for _, dir := range []string{paths.Home, paths.LogsDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create relay dir %s: %w", dir, err)
		}
	}
	return nil
}
