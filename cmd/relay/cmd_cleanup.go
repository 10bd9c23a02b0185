package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"

	"github.com/spf13/cobra"
)

// cleanupConfig holds injectable dependencies for the cleanup command.
type cleanupConfig struct {
	w        io.Writer
	stdin    io.Reader
	paths    *Paths
	signalFn func(int) error // sends SIGTERM; injectable for testing
	aliveFn  func(int) bool  // checks process liveness; injectable for testing
	isTTY    func() bool     // reports whether stdin is a TTY; injectable for testing
	dryRun   bool
	yes      bool
}

// newCleanupCmd creates the "relay cleanup" subcommand.
func newCleanupCmd() *cobra.Command {
	var (
		dryRun bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clean stale state after a crash",
		Long: `Idempotently cleans relay state left by a crashed process: kills
children still recorded in the registry, removes a stale PID file, and
deletes orphaned temp files from interrupted state writes.

Safe to run anytime. If nothing is stale, reports "nothing to clean".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}

			cfg := &cleanupConfig{
				w:        cmd.OutOrStdout(),
				stdin:    os.Stdin,
				paths:    paths,
				signalFn: defaultSignalTERM,
				aliveFn:  lockfile.IsProcessAlive,
				isTTY:    isStdinTTY,
				dryRun:   dryRun,
				yes:      yes,
			}

			return runCleanup(cfg)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be cleaned without acting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// runCleanup performs best-effort cleanup of stale relay state. Each
// step continues on error, reporting warnings. Returns nil on success
// even if individual steps had warnings.
func runCleanup(cfg *cleanupConfig) error {
	if status, pid, err := lockfile.Status(cfg.paths.PIDPath); err == nil && status == lockfile.StatusRunning {
		return fmt.Errorf("relay is running (PID %d) — run 'relay stop' first", pid)
	}

	proceed, err := confirmCleanup(cfg)
	if err != nil {
		return err
	}
	if !proceed {
		fmt.Fprintln(cfg.w, "aborted")
		return nil
	}

	cleaned := false

	// 1. Kill children recorded by the dead relay and clear the registry.
	if cleanupChildren(cfg) {
		cleaned = true
	}

	// 2. Remove the stale PID file.
	if cleanupPIDFile(cfg) {
		cleaned = true
	}

	// 3. Remove leftovers of interrupted atomic state writes.
	if cleanupTmpFiles(cfg) {
		cleaned = true
	}

	if !cleaned {
		fmt.Fprintln(cfg.w, "nothing to clean")
	}

	return nil
}

// confirmCleanup asks before acting. --yes and --dry-run skip the
// prompt; a non-interactive stdin without --yes refuses rather than
// guessing.
func confirmCleanup(cfg *cleanupConfig) (bool, error) {
	if cfg.yes || cfg.dryRun {
		return true, nil
	}
	if cfg.isTTY != nil && !cfg.isTTY() {
		return false, errors.New("cleanup needs an interactive terminal (stdin is not a TTY); pass --yes to skip the prompt")
	}

	fmt.Fprint(cfg.w, "kill recorded children and remove stale relay state? [y/N] ")
	line, err := bufio.NewReader(cfg.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// cleanupChildren terminates children recorded by a previous relay and
// clears the registry. Returns true if something was cleaned.
func cleanupChildren(cfg *cleanupConfig) bool {
	store := state.NewStore(cfg.paths.StateDir)
	children, err := store.LoadChildren()
	if err != nil {
		fmt.Fprintf(cfg.w, "warning: load children: %v\n", err)
		return false
	}
	if len(children) == 0 {
		return false
	}

	for _, c := range children {
		if !cfg.aliveFn(c.PID) {
			continue
		}
		if cfg.dryRun {
			fmt.Fprintf(cfg.w, "would kill child %d (%s)\n", c.PID, c.Description)
			continue
		}
		fmt.Fprintf(cfg.w, "killing child %d (%s)\n", c.PID, c.Description)
		if err := cfg.signalFn(c.PID); err != nil {
			fmt.Fprintf(cfg.w, "warning: signal child %d: %v\n", c.PID, err)
		}
	}

	if cfg.dryRun {
		fmt.Fprintf(cfg.w, "would clear child registry (%d recorded)\n", len(children))
		return true
	}
	if err := store.SaveChildren(nil); err != nil {
		fmt.Fprintf(cfg.w, "warning: clear child registry: %v\n", err)
	} else {
		fmt.Fprintf(cfg.w, "cleared child registry (%d recorded)\n", len(children))
	}
	return true
}

// cleanupPIDFile removes a stale PID file. Returns true if the file
// existed.
func cleanupPIDFile(cfg *cleanupConfig) bool {
	if _, err := os.Stat(cfg.paths.PIDPath); errors.Is(err, os.ErrNotExist) {
		return false
	}

	if cfg.dryRun {
		fmt.Fprintf(cfg.w, "would remove stale pid file %s\n", cfg.paths.PIDPath)
		return true
	}
	fmt.Fprintf(cfg.w, "removing stale pid file %s\n", cfg.paths.PIDPath)
	if err := os.Remove(cfg.paths.PIDPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cfg.w, "warning: remove pid file: %v\n", err)
	}
	return true
}

// cleanupTmpFiles removes temp files left behind when an atomic state
// write was interrupted between WriteFile and Rename. Returns true if
// any existed.
func cleanupTmpFiles(cfg *cleanupConfig) bool {
	store := state.NewStore(cfg.paths.StateDir)
	cleaned := false

	for _, path := range []string{store.SessionPath() + ".tmp", store.ChildrenPath() + ".tmp"} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		cleaned = true
		if cfg.dryRun {
			fmt.Fprintf(cfg.w, "would remove orphaned tmp file %s\n", path)
			continue
		}
		fmt.Fprintf(cfg.w, "removing orphaned tmp file %s\n", path)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(cfg.w, "warning: remove %s: %v\n", path, err)
		}
	}

	return cleaned
}
