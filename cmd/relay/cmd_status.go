package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/archive"
	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the "relay status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay, session, and archive state",
		Long:  "Reports whether a relay is serving, the active session snapshot,\nrecorded children, and the archive row count.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), paths, cfg)
		},
	}
}

// runStatus prints one line per concern. Missing state files read as
// empty, not as failures.
func runStatus(ctx context.Context, w io.Writer, paths *Paths, cfg relayConfig) error {
	status, pid, err := lockfile.Status(paths.PIDPath)
	if err != nil {
		return fmt.Errorf("relay status: %w", err)
	}
	switch status {
	case lockfile.StatusRunning:
		fmt.Fprintf(w, "relay: running (PID %d)\n", pid)
	case lockfile.StatusStale:
		fmt.Fprintf(w, "relay: not running (stale PID file, PID %d)\n", pid)
	case lockfile.StatusStopped:
		fmt.Fprintln(w, "relay: not running")
	}

	store := state.NewStore(paths.StateDir)
	rec, err := store.LoadSession()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if rec.MessageCount == 0 {
		fmt.Fprintln(w, "session: none")
	} else {
		binding := "not yet bound"
		if rec.SessionID != "" {
			binding = rec.SessionID
		}
		age := time.Since(rec.StartedAt).Round(time.Second)
		fmt.Fprintf(w, "session: %d messages over %s, %d transcript bytes, CLI session %s\n",
			rec.MessageCount, age, len(rec.Transcript), binding)
	}

	children, err := store.LoadChildren()
	if err != nil {
		return fmt.Errorf("load children: %w", err)
	}
	alive := 0
	for _, c := range children {
		if lockfile.IsProcessAlive(c.PID) {
			alive++
		}
	}
	fmt.Fprintf(w, "children: %d recorded, %d alive\n", len(children), alive)

	if !cfg.Archive.Enabled {
		fmt.Fprintln(w, "archive: disabled")
		return nil
	}
	archivePath := cfg.Archive.Path
	if archivePath == "" {
		archivePath = paths.ArchivePath
	}
	count, err := archivedCount(ctx, archivePath)
	if err != nil {
		fmt.Fprintf(w, "archive: unreadable (%v)\n", err)
		return nil
	}
	fmt.Fprintf(w, "archive: %d sessions\n", count)
	return nil
}

// archivedCount reports the archive row count; a missing database is
// simply zero.
func archivedCount(ctx context.Context, path string) (int, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	store, err := archive.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = store.Close() }()
	return store.Count(ctx)
}
