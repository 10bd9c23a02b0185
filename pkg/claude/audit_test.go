package claude //nolint:testpackage // internal test pins the audit clock

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditRecordAppendsDayKeyedLines(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	log := NewAuditLog(dir, func() time.Time { return day })

	log.Record(AuditEntry{ID: "a", Tag: "chat", Outcome: "ok", DurationMS: 1200})
	log.Record(AuditEntry{ID: "b", Tag: "summary", Outcome: "timeout", Stages: "requested,sigterm,sigkill,reaped"})

	path := filepath.Join(dir, "invocations-2026-03-14.jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open day file: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].ID != "a" || entries[0].Outcome != "ok" {
		t.Errorf("first entry: %+v", entries[0])
	}
	if entries[1].Stages != "requested,sigterm,sigkill,reaped" {
		t.Errorf("second entry stages: %q", entries[1].Stages)
	}
}

func TestAuditPathFollowsClock(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	log := NewAuditLog("/var/log/relay", func() time.Time { return now })

	if got := log.TodayPath(); got != "/var/log/relay/invocations-2026-03-14.jsonl" {
		t.Errorf("today path: %q", got)
	}
	next := now.Add(2 * time.Minute)
	if got := log.Path(next); got != "/var/log/relay/invocations-2026-03-15.jsonl" {
		t.Errorf("rolled path: %q", got)
	}
}

// TestAuditRecordNeverFails points the log at an unwritable location
// and checks Record stays silent toward the caller.
func TestAuditRecordNeverFails(t *testing.T) {
	log := NewAuditLog("/dev/null/not-a-dir", nil)
	log.Record(AuditEntry{ID: "x"}) // must not panic
}

func TestInvokeWritesAuditEntry(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	audit := NewAuditLog(dir, func() time.Time { return day })

	inv := NewInvoker(Config{
		Now:            func() time.Time { return day },
		WorkDir:        "/srv/relay",
		PermissionMode: "bypassPermissions",
	}, &fakeSpawner{proc: newExitedProc(`{"result":"r","session_id":"s7"}`, nil)}, nil, audit)

	if _, err := inv.Invoke(t.Context(), Request{Prompt: "hi", Tag: "chat", ResumeID: "s7"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	data, err := os.ReadFile(audit.Path(day))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	var e AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Tag != "chat" || e.Outcome != "ok" || !e.Resume || e.SessionID != "s7" {
		t.Errorf("entry: %+v", e)
	}
	if e.PromptBytes != len("hi") {
		t.Errorf("prompt bytes: got %d", e.PromptBytes)
	}
	if e.Prompt != "hi" {
		t.Errorf("prompt preview: got %q", e.Prompt)
	}
	if e.WorkDir != "/srv/relay" || !e.Unattended {
		t.Errorf("operating scope: workdir %q unattended %v", e.WorkDir, e.Unattended)
	}
}

// TestAuditFailedInvocationKeepsSessionID verifies a nonzero exit
// still leaves the entry attributable to the session that was resumed:
// the CLI reports no session id on failure, so the resume id stands in.
func TestAuditFailedInvocationKeepsSessionID(t *testing.T) {
	dir := t.TempDir()
	audit := NewAuditLog(dir, nil)

	inv := NewInvoker(Config{},
		&fakeSpawner{proc: newExitedProc("", errors.New("exit status 1"))}, nil, audit)

	out, err := inv.Invoke(t.Context(), Request{Prompt: "hi", Tag: "chat", ResumeID: "s7"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Kind != OutcomeError {
		t.Fatalf("outcome: got %q, want %q", out.Kind, OutcomeError)
	}

	data, err := os.ReadFile(audit.TodayPath())
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	var e AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.SessionID != "s7" {
		t.Errorf("session id: got %q, want %q", e.SessionID, "s7")
	}
	if e.Outcome != "error" {
		t.Errorf("outcome: got %q", e.Outcome)
	}
}

func TestAuditPromptPreviewTruncated(t *testing.T) {
	dir := t.TempDir()
	audit := NewAuditLog(dir, nil)

	long := strings.Repeat("prompt words ", 40)
	inv := NewInvoker(Config{},
		&fakeSpawner{proc: newExitedProc(`{"result":"r"}`, nil)}, nil, audit)

	if _, err := inv.Invoke(t.Context(), Request{Prompt: long, Tag: "chat"}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	data, err := os.ReadFile(audit.TodayPath())
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	var e AuditEntry
	if err := json.Unmarshal(data[:len(data)-1], &e); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasSuffix(e.Prompt, "...") || len(e.Prompt) > promptPreviewCap+3 {
		t.Errorf("preview not truncated: %d bytes, %q", len(e.Prompt), e.Prompt)
	}
	if e.PromptBytes != len(long) {
		t.Errorf("prompt bytes should count the full prompt: got %d, want %d", e.PromptBytes, len(long))
	}
}
