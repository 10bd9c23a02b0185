// Package state persists relay runtime state as JSON files under a
// single directory. Every write is atomic: the record is marshaled to
// a temp file beside the target and renamed over it, so a crash never
// leaves a half-written file behind.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionFileName  = "session.json"
	childrenFileName = "children.json"
)

// SessionRecord is the persisted form of the active conversation.
// SessionID is the CLI's session identifier; empty means no CLI
// session has been bound yet.
type SessionRecord struct {
	SessionID    string    `json:"session_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity_at"`
	Transcript   string    `json:"transcript"`
	MessageCount int       `json:"message_count"`
	Participants []int64   `json:"participants,omitempty"`
	ChatID       int64     `json:"chat_id,omitempty"`
}

// IsZero reports whether the record has never held a message.
func (r SessionRecord) IsZero() bool {
	return r.MessageCount == 0 && r.Transcript == "" && r.SessionID == ""
}

// ChildRecord describes one live child process spawned by the relay.
type ChildRecord struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"started_at"`
	Description string    `json:"description"`
}

// childrenDoc wraps the child list so the on-disk file stays a JSON
// object and can grow fields without a format break.
type childrenDoc struct {
	Children []ChildRecord `json:"children"`
}

// Store reads and writes relay state files under Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir. The directory is created
// lazily on first save.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// SessionPath returns the path of the session state file.
func (s *Store) SessionPath() string {
	return filepath.Join(s.Dir, sessionFileName)
}

// ChildrenPath returns the path of the child registry file.
func (s *Store) ChildrenPath() string {
	return filepath.Join(s.Dir, childrenFileName)
}

// LoadSession reads the persisted session. A missing file yields the
// zero record, not an error; a file that exists but cannot be parsed
// is an error so the caller can decide whether to reset it.
func (s *Store) LoadSession() (SessionRecord, error) {
	var rec SessionRecord
	data, err := os.ReadFile(s.SessionPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, nil
		}
		return rec, fmt.Errorf("read session state: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse session state: %w", err)
	}
	return rec, nil
}

// SaveSession atomically rewrites the session file.
func (s *Store) SaveSession(rec SessionRecord) error {
	return s.writeAtomic(s.SessionPath(), rec)
}

// LoadChildren reads the child registry. A missing file yields an
// empty registry.
func (s *Store) LoadChildren() ([]ChildRecord, error) {
	data, err := os.ReadFile(s.ChildrenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read child registry: %w", err)
	}
	var doc childrenDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse child registry: %w", err)
	}
	return doc.Children, nil
}

// SaveChildren atomically rewrites the child registry. A nil slice is
// written as an empty list.
func (s *Store) SaveChildren(children []ChildRecord) error {
	if children == nil {
		children = []ChildRecord{}
	}
	return s.writeAtomic(s.ChildrenPath(), childrenDoc{Children: children})
}

func (s *Store) writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
