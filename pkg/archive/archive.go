// Package archive stores closed conversation sessions in SQLite and
// decorates them with short assistant-written summaries. The archive
// is an operator convenience: the relay keeps working without it.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaDDL defines the SQLite schema for the session archive.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Closed conversation sessions, newest last
CREATE TABLE IF NOT EXISTS archived_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    closed_at TEXT NOT NULL,
    close_reason TEXT NOT NULL,
    message_count INTEGER NOT NULL,
    participants TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_archived_sessions_closed_at
    ON archived_sessions(closed_at DESC);
`

// Row is one archived session.
type Row struct {
	ID           int64
	SessionID    string
	StartedAt    time.Time
	ClosedAt     time.Time
	CloseReason  string
	MessageCount int
	Participants []int64
	Transcript   string
	Summary      string
}

// Store manages the archived_sessions table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive database at path with
// WAL journal mode and a 5-second busy timeout, and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds an archived session. Returns the inserted ID.
func (s *Store) Insert(ctx context.Context, r Row) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO archived_sessions
		 (session_id, started_at, closed_at, close_reason, message_count, participants, transcript, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.ClosedAt.UTC().Format(time.RFC3339),
		r.CloseReason,
		r.MessageCount,
		joinIDs(r.Participants),
		r.Transcript,
		r.Summary,
	)
	if err != nil {
		return 0, fmt.Errorf("archive insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("archive last insert id: %w", err)
	}
	return id, nil
}

// UpdateSummary sets the summary of an archived session.
func (s *Store) UpdateSummary(ctx context.Context, id int64, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE archived_sessions SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("archive update summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("archive update summary: no row with id %d", id)
	}
	return nil
}

// Recent returns the newest archived sessions, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, started_at, closed_at, close_reason, message_count, participants, transcript, summary
		 FROM archived_sessions
		 ORDER BY closed_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive recent: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var started, closed, participants string
		if err := rows.Scan(&r.ID, &r.SessionID, &started, &closed,
			&r.CloseReason, &r.MessageCount, &participants, &r.Transcript, &r.Summary); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.ClosedAt, _ = time.Parse(time.RFC3339, closed)
		r.Participants = splitIDs(participants)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive rows: %w", err)
	}
	return out, nil
}

// joinIDs renders a participant list as the comma-separated TEXT the
// participants column holds.
func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// splitIDs parses the participants column. Unparseable fragments are
// dropped rather than failing the whole row.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Count returns how many sessions are archived.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archived_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive count: %w", err)
	}
	return n, nil
}
