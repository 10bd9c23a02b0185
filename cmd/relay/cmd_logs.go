package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/claude"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// logsPollInterval drives the follow loop when the filesystem watcher
// is unavailable, and doubles as a safety net when it is.
const logsPollInterval = 500 * time.Millisecond

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail   int
	follow bool
}

// newLogsCmd creates the "relay logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show today's invocation audit log",
		Long: "Prints the tail of today's invocation log (one JSON line per\n" +
			"assistant call). With --follow, streams new entries as they land,\n" +
			"rolling over to the next day's file at midnight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}

			audit := claude.NewAuditLog(paths.LogsDir, nil)
			w := cmd.OutOrStdout()

			if cfg.follow {
				return followAuditLog(cmd.Context(), w, audit, paths.LogsDir, cfg.tail)
			}
			return printAuditTail(w, audit.TodayPath(), cfg.tail)
		},
	}

	cmd.Flags().IntVarP(&cfg.tail, "tail", "n", 20, "number of recent entries to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "stream new entries until interrupted")

	return cmd
}

// printAuditTail displays the last N entries of the given audit file.
func printAuditTail(w io.Writer, path string, tail int) error {
	data, err := os.ReadFile(path) //nolint:gosec // audit path is derived by the application
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(w, "no invocations logged today")
			return nil
		}
		return fmt.Errorf("read audit log: %w", err)
	}

	lines := tailLines(string(data), tail)
	if len(lines) == 0 {
		fmt.Fprintln(w, "no invocations logged today")
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

// followAuditLog streams today's audit log until ctx is cancelled. A
// day rollover switches to the new file from the top. The logs dir is
// watched with fsnotify; if the watcher cannot start, the poll ticker
// alone drives the loop.
func followAuditLog(ctx context.Context, w io.Writer, audit *claude.AuditLog, dir string, tail int) error {
	path := audit.TodayPath()
	offset := printInitialTail(w, path, tail)

	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer func() { _ = watcher.Close() }()
		if addErr := watcher.Add(dir); addErr == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(logsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				// Watcher died; the ticker keeps the loop going.
				events = nil
				continue
			}
		}

		if today := audit.TodayPath(); today != path {
			path = today
			offset = 0
		}
		offset = drainNewBytes(w, path, offset)
	}
}

// printInitialTail prints the last N entries of path and returns the
// file size as the follow offset. A missing file reads as empty.
func printInitialTail(w io.Writer, path string, tail int) int64 {
	data, err := os.ReadFile(path) //nolint:gosec // audit path is derived by the application
	if err != nil {
		return 0
	}
	for _, line := range tailLines(string(data), tail) {
		fmt.Fprintln(w, line)
	}
	return int64(len(data))
}

// drainNewBytes prints bytes appended past offset and returns the new
// offset. Truncation rewinds to the start; a missing file is left for
// the next pass.
func drainNewBytes(w io.Writer, path string, offset int64) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return offset
	}
	size := info.Size()
	if size < offset {
		offset = 0
	}
	if size == offset {
		return offset
	}

	f, err := os.Open(path) //nolint:gosec // audit path is derived by the application
	if err != nil {
		return offset
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}
	n, _ := io.Copy(w, f)
	return offset + n
}

// tailLines returns the last n lines of s, dropping the trailing
// newline's empty split.
func tailLines(s string, n int) []string {
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
