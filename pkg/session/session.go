// Package session implements the conversation lifecycle: one active
// session accumulates user and assistant entries until a closure
// policy retires it, at which point a fresh session takes its place
// and the closed one is handed to the archive hook.
//
// Closure policy runs only when a new inbound message arrives. There
// is no background timer; an idle session is discovered idle by the
// message that follows the quiet period.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

// CloseReason says why a session was retired.
type CloseReason string

const (
	// CloseLimit means the message-count limit was reached.
	CloseLimit CloseReason = "limit"
	// CloseIdle means the idle timeout elapsed between messages.
	CloseIdle CloseReason = "idle"
	// CloseManual means the user asked for a fresh session.
	CloseManual CloseReason = "manual"
	// CloseShutdown means the relay was shutting down.
	CloseShutdown CloseReason = "shutdown"
)

// Config tunes the session lifecycle. Zero values take defaults.
type Config struct {
	// MaxTranscriptBytes caps the transcript; oldest whole entries are
	// dropped to stay under it. Default 16384.
	MaxTranscriptBytes int
	// MaxMessages retires the session at the start of the message that
	// would exceed it. Default 40.
	MaxMessages int
	// IdleTimeout retires the session when this much time passed since
	// the last activity. Default 2h.
	IdleTimeout time.Duration
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxTranscriptBytes <= 0 {
		c.MaxTranscriptBytes = 16384
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 40
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Archiver receives closed sessions. Implementations must not block:
// the engine calls Archive synchronously while swapping sessions.
type Archiver interface {
	Archive(rec state.SessionRecord, reason CloseReason)
}

// Engine owns the active session. All methods are safe for concurrent
// use; a single mutex serializes every state transition.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	store    *state.Store
	archiver Archiver
	cur      state.SessionRecord
}

// NewEngine loads the persisted session (if any) so conversations
// survive relay restarts. archiver may be nil to disable archival.
func NewEngine(cfg Config, store *state.Store, archiver Archiver) (*Engine, error) {
	rec, err := store.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		store:    store,
		archiver: archiver,
		cur:      rec,
	}, nil
}

// Touch runs the closure policy, then appends the user's entry as
// "{displayName}: {text}" and persists. The sender joins the session's
// participant set and the chat id records where the session lives.
// The returned reason is non-empty when the policy retired the
// previous session first.
func (e *Engine) Touch(userID, chatID int64, displayName, text string) (CloseReason, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Now()
	var closed CloseReason
	if reason := e.dueForClose(now); reason != "" {
		if err := e.closeLocked(reason, now); err != nil {
			return "", err
		}
		closed = reason
	}

	if e.cur.MessageCount == 0 {
		e.cur.StartedAt = now
	}
	e.cur.Transcript += displayName + ": " + entryText(text) + "\n\n"
	e.cur.MessageCount++
	e.cur.LastActivity = now
	if !hasParticipant(e.cur.Participants, userID) {
		e.cur.Participants = append(e.cur.Participants, userID)
	}
	e.cur.ChatID = chatID
	e.trimLocked()

	if err := e.store.SaveSession(e.cur); err != nil {
		return closed, fmt.Errorf("persist session: %w", err)
	}
	return closed, nil
}

// RecordReply appends the assistant's entry and persists. Replies do
// not count toward the message limit and do not run closure policy.
func (e *Engine) RecordReply(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cur.Transcript += "Assistant: " + entryText(text) + "\n\n"
	e.cur.LastActivity = e.cfg.Now()
	e.trimLocked()

	if err := e.store.SaveSession(e.cur); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// BindID records the CLI session identifier returned by the first
// invocation of this session. A session already bound to a different
// identifier keeps the one it has.
func (e *Engine) BindID(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == "" || e.cur.SessionID == id {
		return nil
	}
	if e.cur.SessionID != "" {
		return nil
	}
	e.cur.SessionID = id
	if err := e.store.SaveSession(e.cur); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// SessionID returns the bound CLI session identifier, or "" when the
// next invocation must start without resume.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.SessionID
}

// Snapshot returns a copy of the active session.
func (e *Engine) Snapshot() state.SessionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

// Close retires the active session now and returns the closed
// snapshot. The swap to a fresh session is synchronous; archival is
// handed off and never waited on. Closing an unused session is a
// no-op returning the zero record.
func (e *Engine) Close(reason CloseReason) (state.SessionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.cur
	if snapshot.IsZero() {
		return state.SessionRecord{}, nil
	}
	if err := e.closeLocked(reason, e.cfg.Now()); err != nil {
		return state.SessionRecord{}, err
	}
	return snapshot, nil
}

// dueForClose reports which policy retires the current session before
// the next message, or "" to keep accumulating.
func (e *Engine) dueForClose(now time.Time) CloseReason {
	if e.cur.MessageCount == 0 {
		return ""
	}
	if e.cur.MessageCount >= e.cfg.MaxMessages {
		return CloseLimit
	}
	if now.Sub(e.cur.LastActivity) > e.cfg.IdleTimeout {
		return CloseIdle
	}
	return ""
}

func (e *Engine) closeLocked(reason CloseReason, now time.Time) error {
	snapshot := e.cur
	e.cur = state.SessionRecord{}
	if err := e.store.SaveSession(e.cur); err != nil {
		e.cur = snapshot
		return fmt.Errorf("persist fresh session: %w", err)
	}
	if e.archiver != nil && !snapshot.IsZero() {
		e.archiver.Archive(snapshot, reason)
	}
	return nil
}

func hasParticipant(ids []int64, id int64) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

// entryText flattens blank lines inside an entry so the blank line
// between entries stays the transcript's only entry boundary. Without
// this a multi-paragraph message would be trimmed mid-entry.
func entryText(s string) string {
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return strings.TrimRight(s, "\n")
}

// trimLocked drops whole oldest entries until the transcript fits the
// cap. Entries are delimited by blank lines; a single entry larger
// than the cap is kept as-is.
func (e *Engine) trimLocked() {
	limit := e.cfg.MaxTranscriptBytes
	for len(e.cur.Transcript) > limit {
		idx := strings.Index(e.cur.Transcript, "\n\n")
		if idx < 0 || idx+2 >= len(e.cur.Transcript) {
			break
		}
		e.cur.Transcript = e.cur.Transcript[idx+2:]
	}
}
