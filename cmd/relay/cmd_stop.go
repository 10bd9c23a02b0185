package main

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"

	"github.com/spf13/cobra"
)

// stopWait is how long "relay stop" waits for a graceful exit before
// escalating to SIGKILL.
const stopWait = 5 * time.Second

// stopPoll is the liveness polling interval while waiting.
const stopPoll = 50 * time.Millisecond

// stopConfig holds injectable dependencies for the stop command.
type stopConfig struct {
	w        io.Writer
	pidPath  string
	signalFn func(int) error // sends SIGTERM; injectable for testing
	killFn   func(int) error // sends SIGKILL; injectable for testing
	aliveFn  func(int) bool  // checks process liveness; injectable for testing
	wait     time.Duration
	poll     time.Duration
}

// newStopCmd creates the "relay stop" subcommand.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running relay",
		Long:  "Sends SIGTERM to the relay recorded in the PID file, waits for it to\nshut down, and escalates to SIGKILL if it will not exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}

			cfg := &stopConfig{
				w:        cmd.OutOrStdout(),
				pidPath:  paths.PIDPath,
				signalFn: defaultSignalTERM,
				killFn:   defaultKill,
				aliveFn:  lockfile.IsProcessAlive,
				wait:     stopWait,
				poll:     stopPoll,
			}

			return runStop(cfg)
		},
	}
}

// runStop performs the stop sequence:
//  1. Read the PID file and classify the holder.
//  2. Send SIGTERM (triggers the relay's graceful shutdown).
//  3. Wait for the process to exit.
//  4. If it will not exit: SIGKILL as emergency fallback.
//  5. Remove the PID file if the dead holder left it behind.
func runStop(cfg *stopConfig) error {
	status, pid, err := lockfile.Status(cfg.pidPath)
	if err != nil {
		return fmt.Errorf("relay status: %w", err)
	}

	switch status {
	case lockfile.StatusStopped:
		fmt.Fprintln(cfg.w, "relay is not running")
		return nil
	case lockfile.StatusStale:
		fmt.Fprintln(cfg.w, "removing stale PID file (process already dead)")
		return os.Remove(cfg.pidPath)
	case lockfile.StatusRunning:
	}

	fmt.Fprintf(cfg.w, "sending SIGTERM to relay (PID %d)\n", pid)
	if err := cfg.signalFn(pid); err != nil {
		fmt.Fprintf(cfg.w, "warning: SIGTERM failed: %v\n", err)
	}

	fmt.Fprintln(cfg.w, "waiting for relay to exit...")
	if !waitForExit(pid, cfg.aliveFn, cfg.wait, cfg.poll) {
		fmt.Fprintf(cfg.w, "relay did not exit within %s, sending SIGKILL (PID %d)\n", cfg.wait, pid)
		if killErr := cfg.killFn(pid); killErr != nil {
			fmt.Fprintf(cfg.w, "warning: SIGKILL failed: %v\n", killErr)
		}
	}

	// A graceful exit releases the lock itself; a killed relay leaves
	// the file behind. Remove it only if it still names this PID.
	if got, readErr := lockfile.ReadPID(cfg.pidPath); readErr == nil && got == pid {
		_ = os.Remove(cfg.pidPath)
	}

	fmt.Fprintln(cfg.w, "relay stopped")
	return nil
}

// waitForExit polls liveness until the process exits or the window
// closes. Returns true if the process exited.
func waitForExit(pid int, alive func(int) bool, wait, poll time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		time.Sleep(poll)
	}
	return !alive(pid)
}

// defaultSignalTERM sends SIGTERM to the given PID.
func defaultSignalTERM(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// defaultKill sends SIGKILL to the given PID.
func defaultKill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGKILL)
}
