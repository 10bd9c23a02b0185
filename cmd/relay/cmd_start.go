package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/archive"
	"github.com/josiahbot07/claude-telegram-relay/pkg/claude"
	"github.com/josiahbot07/claude-telegram-relay/pkg/gate"
	"github.com/josiahbot07/claude-telegram-relay/pkg/lockfile"
	"github.com/josiahbot07/claude-telegram-relay/pkg/relay"
	"github.com/josiahbot07/claude-telegram-relay/pkg/session"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
	"github.com/josiahbot07/claude-telegram-relay/pkg/telegram"

	"github.com/spf13/cobra"
)

// orphanGrace is the SIGTERM-to-SIGKILL window for children recorded
// by a previous relay process.
const orphanGrace = 3 * time.Second

// shutdownArchiveWait bounds how long shutdown waits for background
// archive writes before giving up on them.
const shutdownArchiveWait = 10 * time.Second

// serveConfig carries the injectable pieces of the serve flow so tests
// can substitute a fake chat platform and keep output deterministic.
type serveConfig struct {
	connect func(token string) (relay.Platform, string, error)
	isTTY   bool
}

// connectTelegram dials the Telegram Bot API and returns the platform
// adapter plus the bot's username for the startup banner.
func connectTelegram(token string) (relay.Platform, string, error) {
	bot, err := telegram.New(token)
	if err != nil {
		return nil, "", err
	}
	return bot, bot.Username(), nil
}

// newStartCmd creates the "relay start" subcommand.
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the relay in the foreground",
		Long: "Connects to Telegram and relays messages to the claude CLI until\n" +
			"SIGTERM/SIGINT. Runs in the foreground (systemd- and tmux-friendly);\n" +
			"there is no daemon mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, serveConfig{connect: connectTelegram, isTTY: isStdoutTTY()})
		},
	}
}

// runServe is the full serve flow: preflight, lock, reap, build the
// stack, serve until the context ends, then tear down in order.
func runServe(cmd *cobra.Command, sc serveConfig) error {
	paths, err := ResolvePaths()
	if err != nil {
		return err
	}
	if err := bootstrapHome(paths); err != nil {
		return err
	}

	cfg, err := loadConfig(paths.ConfigPath)
	if err != nil {
		return err
	}
	if err := runPreflightChecks(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	steps := newBootLog(out, sc.isTTY)

	lock, err := lockfile.Acquire(paths.PIDPath)
	if err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			if _, pid, statusErr := lockfile.Status(paths.PIDPath); statusErr == nil {
				return fmt.Errorf("relay already running (PID %d)", pid)
			}
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = lock.Release() }()
	steps.Step(fmt.Sprintf("lock acquired (%s)", paths.PIDPath))

	store := state.NewStore(paths.StateDir)
	invoker, registry, err := buildInvoker(paths, cfg, store)
	if err != nil {
		return err
	}
	if reaped, reapErr := registry.ReapOrphans(orphanGrace); reapErr != nil {
		steps.Warn(fmt.Sprintf("reap orphans: %v", reapErr))
	} else if reaped > 0 {
		steps.Step(fmt.Sprintf("reaped %d orphaned children", reaped))
	}

	var (
		hook      *archive.Hook
		archiver  session.Archiver
		summaries relay.SummarySource
	)
	if cfg.Archive.Enabled {
		archivePath := cfg.Archive.Path
		if archivePath == "" {
			archivePath = paths.ArchivePath
		}
		archiveStore, openErr := archive.Open(archivePath)
		if openErr != nil {
			return fmt.Errorf("open archive: %w", openErr)
		}
		defer func() { _ = archiveStore.Close() }()
		hook = archive.NewHook(archiveStore, invoker, archive.HookConfig{})
		archiver = hook
		summaries = archiveStore
		steps.Step(fmt.Sprintf("archive open (%s)", archivePath))
	}

	idle, err := cfg.idleTimeout()
	if err != nil {
		return err
	}
	engine, err := session.NewEngine(session.Config{
		MaxTranscriptBytes: cfg.Session.MaxTranscriptBytes,
		MaxMessages:        cfg.Session.MaxMessages,
		IdleTimeout:        idle,
	}, store, archiver)
	if err != nil {
		return err
	}
	if snap := engine.Snapshot(); !snap.IsZero() {
		steps.Step(fmt.Sprintf("restored session (%d messages)", snap.MessageCount))
	}

	stopSpinner := steps.StartSpinner("connecting to Telegram")
	platform, username, err := sc.connect(cfg.TelegramToken)
	if err != nil {
		stopSpinner()
		return fmt.Errorf("connect telegram: %w", err)
	}
	stopSpinner()
	if username != "" {
		steps.Step(fmt.Sprintf("connected as @%s", username))
	}

	svc := relay.NewService(relay.Config{AllowedUserIDs: cfg.AllowedUserIDs}, platform, engine, gate.New(), invoker, summaries)

	ctx, stop := setupSignalHandler(cmd.Context())
	defer stop()

	steps.Step(fmt.Sprintf("relay ready (PID %d)", os.Getpid()))
	runErr := svc.Run(ctx)

	// Teardown order matters: notify users and close the session first,
	// give archival a bounded window, then make sure no children outlive
	// the relay. The deferred lock release runs last.
	svc.Shutdown()
	if hook != nil && !hook.Wait(shutdownArchiveWait) {
		fmt.Fprintf(os.Stderr, "relay: archive writes still pending after %s\n", shutdownArchiveWait)
	}
	if _, reapErr := registry.ReapOrphans(orphanGrace); reapErr != nil {
		fmt.Fprintf(os.Stderr, "relay: reap children: %v\n", reapErr)
	}
	fmt.Fprintln(out, "relay stopped")
	return runErr
}

// buildInvoker assembles the production CLI orchestrator plus the
// child registry it records into. Shared by "start" and "ask" so both
// paths supervise children and audit invocations the same way.
func buildInvoker(paths *Paths, cfg relayConfig, store *state.Store) (*claude.Invoker, *claude.Registry, error) {
	timeout, err := cfg.invokeTimeout()
	if err != nil {
		return nil, nil, err
	}
	workDir := cfg.WorkingDir
	if workDir == "" {
		workDir = paths.Home
	}

	registry := claude.NewRegistry(store)
	audit := claude.NewAuditLog(paths.LogsDir, nil)
	invoker := claude.NewInvoker(claude.Config{
		Binary:         cfg.ClaudeBinary,
		WorkDir:        workDir,
		PermissionMode: cfg.PermissionMode,
		AddDirs:        cfg.AddDirs,
		AllowedTools:   cfg.AllowedTools,
		Timeout:        timeout,
	}, claude.ExecSpawner{}, registry, audit)
	return invoker, registry, nil
}

// setupSignalHandler installs a SIGTERM/SIGINT handler that cancels
// the returned context. The returned stop function releases the signal
// registration; callers should defer it.
func setupSignalHandler(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
