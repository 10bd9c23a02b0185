package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AuditLog appends one JSON line per invocation to a day-keyed file,
// logs/invocations-2026-03-14.jsonl. The log is for operators; writes
// are best effort and never influence the invocation outcome.
type AuditLog struct {
	dir string
	now func() time.Time
}

// NewAuditLog returns an audit log writing under dir. The clock is
// injectable so tests can pin the day key.
func NewAuditLog(dir string, now func() time.Time) *AuditLog {
	if now == nil {
		now = time.Now
	}
	return &AuditLog{dir: dir, now: now}
}

// AuditEntry is one invocation record.
type AuditEntry struct {
	Time        time.Time `json:"time"`
	ID          string    `json:"id"`
	Tag         string    `json:"tag"`
	Resume      bool      `json:"resume"`
	Prompt      string    `json:"prompt_preview"`
	PromptBytes int       `json:"prompt_bytes"`
	WorkDir     string    `json:"workdir,omitempty"`
	Unattended  bool      `json:"unattended,omitempty"`
	Outcome     string    `json:"outcome"`
	ExitCode    int       `json:"exit_code"`
	DurationMS  int64     `json:"duration_ms"`
	SessionID   string    `json:"session_id,omitempty"`
	Stages      string    `json:"term_stages,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Path returns the log file for the given day.
func (a *AuditLog) Path(t time.Time) string {
	return filepath.Join(a.dir, fmt.Sprintf("invocations-%s.jsonl", t.Format("2006-01-02")))
}

// TodayPath returns the log file the next Record call would append to.
func (a *AuditLog) TodayPath() string {
	return a.Path(a.now())
}

// Record appends the entry to today's file. Failures go to stderr and
// are otherwise swallowed.
func (a *AuditLog) Record(e AuditEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: marshal audit entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "relay: create log dir: %v\n", err)
		return
	}
	path := a.Path(a.now())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // log path is deterministic
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: open audit log: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "relay: write audit log: %v\n", err)
	}
}
