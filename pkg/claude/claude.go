// Package claude spawns and supervises the assistant CLI. An
// invocation runs `claude -p <prompt>` with a bounded lifetime: on
// deadline the child's process group gets SIGTERM, a grace window,
// then SIGKILL. Every live child is recorded in the on-disk registry
// so orphans left by a crashed relay are reaped at the next startup.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// stderrCap bounds how much child stderr an Outcome carries.
const stderrCap = 2048

// promptPreviewCap bounds the prompt excerpt written to the audit log.
const promptPreviewCap = 120

// OutcomeKind classifies how an invocation ended.
type OutcomeKind string

const (
	// OutcomeOK means the CLI exited zero and produced a result.
	OutcomeOK OutcomeKind = "ok"
	// OutcomeTimeout means the deadline elapsed and the child was
	// terminated. Not an error: callers give it its own user-facing
	// wording.
	OutcomeTimeout OutcomeKind = "timeout"
	// OutcomeError means the CLI exited nonzero.
	OutcomeError OutcomeKind = "error"
)

// Outcome is what one invocation produced.
type Outcome struct {
	Kind      OutcomeKind
	Result    string // assistant text, set for OutcomeOK
	SessionID string // CLI session id, set for OutcomeOK when the CLI reported one
	Stderr    string // trimmed and capped child stderr, set for OutcomeError
	ExitCode  int
	Duration  time.Duration
	Stages    []TermStage // termination trail, set when the child was terminated
}

// Request describes one CLI invocation.
type Request struct {
	Prompt   string
	ResumeID string        // resume an existing CLI session when non-empty
	Timeout  time.Duration // overrides Config.Timeout when positive
	Tag      string        // short label for the audit log ("chat", "summary", "ask")
}

// Config tunes the invoker. Zero values take defaults.
type Config struct {
	// Binary is the CLI executable. Default "claude".
	Binary string
	// WorkDir is the child's working directory. Empty means inherit.
	WorkDir string
	// PermissionMode is passed through as --permission-mode when set.
	PermissionMode string
	// AddDirs are passed through as repeated --add-dir flags.
	AddDirs []string
	// AllowedTools are passed through as repeated --allowed-tools flags.
	AllowedTools []string
	// Timeout bounds an invocation. Default 5m.
	Timeout time.Duration
	// Grace is the SIGTERM-to-SIGKILL window. Default 5s.
	Grace time.Duration
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "claude"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// args assembles the CLI argv for a request.
func (c Config) args(req Request) []string {
	argv := []string{c.Binary, "-p", req.Prompt}
	if req.ResumeID != "" {
		argv = append(argv, "--resume", req.ResumeID)
	}
	argv = append(argv, "--output-format", "json")
	if c.PermissionMode != "" {
		argv = append(argv, "--permission-mode", c.PermissionMode)
	}
	for _, dir := range c.AddDirs {
		argv = append(argv, "--add-dir", dir)
	}
	for _, tool := range c.AllowedTools {
		argv = append(argv, "--allowed-tools", tool)
	}
	return argv
}

// Process is a running CLI invocation. Signal addresses the child's
// whole process group.
type Process interface {
	PID() int
	Wait() error
	Signal(sig syscall.Signal) error
	Output() (stdout, stderr string)
}

// Spawner starts CLI processes. The production implementation wraps
// exec.Cmd; tests substitute scripted processes.
type Spawner interface {
	Spawn(ctx context.Context, argv []string, workdir string) (Process, error)
}

// Invoker runs CLI invocations with supervision: registry tracking,
// deadline enforcement with signal escalation, and audit logging.
type Invoker struct {
	cfg      Config
	spawner  Spawner
	registry *Registry
	audit    *AuditLog
}

// NewInvoker wires an Invoker. registry and audit may be nil, which
// disables child tracking and audit logging respectively.
func NewInvoker(cfg Config, spawner Spawner, registry *Registry, audit *AuditLog) *Invoker {
	return &Invoker{
		cfg:      cfg.withDefaults(),
		spawner:  spawner,
		registry: registry,
		audit:    audit,
	}
}

// Invoke runs one invocation to completion and classifies the result.
// A spawn failure or context cancellation is returned as an error; a
// nonzero exit or an elapsed deadline is an Outcome, not an error.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	id := uuid.New().String()

	out, err := inv.invoke(ctx, req)
	out.Duration = time.Since(start)

	if inv.audit != nil {
		// On timeout or error the CLI reports no session id; the resume
		// id is the session in effect, so the entry keeps that instead.
		sessionID := out.SessionID
		if sessionID == "" {
			sessionID = req.ResumeID
		}
		entry := AuditEntry{
			Time:        inv.cfg.Now(),
			ID:          id,
			Tag:         req.Tag,
			Resume:      req.ResumeID != "",
			Prompt:      previewString(req.Prompt, promptPreviewCap),
			PromptBytes: len(req.Prompt),
			WorkDir:     inv.cfg.WorkDir,
			Unattended:  inv.cfg.PermissionMode == "bypassPermissions",
			Outcome:     string(out.Kind),
			ExitCode:    out.ExitCode,
			DurationMS:  out.Duration.Milliseconds(),
			SessionID:   sessionID,
			Stages:      joinStages(out.Stages),
		}
		if err != nil {
			entry.Outcome = "aborted"
			entry.Error = err.Error()
		}
		inv.audit.Record(entry)
	}
	return out, err
}

func (inv *Invoker) invoke(ctx context.Context, req Request) (Outcome, error) {
	argv := inv.cfg.args(req)
	proc, err := inv.spawner.Spawn(ctx, argv, inv.cfg.WorkDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("spawn %s: %w", inv.cfg.Binary, err)
	}

	pid := proc.PID()
	if inv.registry != nil {
		if err := inv.registry.Add(pid, req.Tag); err != nil {
			fmt.Fprintf(os.Stderr, "relay: record child %d: %v\n", pid, err)
		}
		defer func() {
			if err := inv.registry.Remove(pid); err != nil {
				fmt.Fprintf(os.Stderr, "relay: drop child %d: %v\n", pid, err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = inv.cfg.Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return classify(proc, waitErr), nil
	case <-timer.C:
		stages := Terminate(proc, done, inv.cfg.Grace)
		return Outcome{Kind: OutcomeTimeout, ExitCode: -1, Stages: stages}, nil
	case <-ctx.Done():
		_ = Terminate(proc, done, inv.cfg.Grace)
		return Outcome{}, ctx.Err()
	}
}

// classify turns a finished child into an Outcome.
func classify(proc Process, waitErr error) Outcome {
	stdout, stderr := proc.Output()
	if waitErr != nil {
		return Outcome{
			Kind:     OutcomeError,
			Stderr:   capString(strings.TrimSpace(stderr), stderrCap),
			ExitCode: exitCode(waitErr),
		}
	}
	result, sessionID := parseOutput(stdout)
	return Outcome{Kind: OutcomeOK, Result: result, SessionID: sessionID}
}

// cliResult is the CLI's --output-format json envelope. Fields the
// relay does not use are ignored.
type cliResult struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// parseOutput extracts the result text and session id from CLI stdout.
// Output that is not the expected JSON envelope is passed through raw:
// the CLI occasionally emits plain text despite the format flag.
func parseOutput(stdout string) (result, sessionID string) {
	var r cliResult
	if err := json.Unmarshal([]byte(stdout), &r); err != nil {
		return strings.TrimSpace(stdout), ""
	}
	return strings.TrimSpace(r.Result), r.SessionID
}

// exitCode extracts the exit status from a Wait error, -1 when the
// error carries none.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func capString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// previewString truncates s to at most n bytes on a rune boundary,
// marking the cut with an ellipsis.
func previewString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func joinStages(stages []TermStage) string {
	if len(stages) == 0 {
		return ""
	}
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
