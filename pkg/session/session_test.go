package session_test

import (
	"strings"
	"testing"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/session"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

// testClock is a hand-advanced clock injected as Config.Now.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type archivedCall struct {
	rec    state.SessionRecord
	reason session.CloseReason
}

// recordingArchiver captures Archive calls for assertions.
type recordingArchiver struct {
	calls []archivedCall
}

func (a *recordingArchiver) Archive(rec state.SessionRecord, reason session.CloseReason) {
	a.calls = append(a.calls, archivedCall{rec: rec, reason: reason})
}

func newEngine(t *testing.T, cfg session.Config) (*session.Engine, *state.Store, *recordingArchiver) {
	t.Helper()
	store := state.NewStore(t.TempDir())
	arch := &recordingArchiver{}
	eng, err := session.NewEngine(cfg, store, arch)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store, arch
}

func TestTouchAppendsUserEntry(t *testing.T) {
	clk := newTestClock()
	eng, _, _ := newEngine(t, session.Config{Now: clk.Now})

	closed, err := eng.Touch(101, 555, "Josiah", "hello there")
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if closed != "" {
		t.Errorf("unexpected close on first message: %q", closed)
	}

	snap := eng.Snapshot()
	if snap.Transcript != "Josiah: hello there\n\n" {
		t.Errorf("transcript: got %q", snap.Transcript)
	}
	if snap.MessageCount != 1 {
		t.Errorf("message count: got %d, want 1", snap.MessageCount)
	}
	if !snap.StartedAt.Equal(clk.Now()) {
		t.Errorf("started at: got %v, want %v", snap.StartedAt, clk.Now())
	}
	if len(snap.Participants) != 1 || snap.Participants[0] != 101 {
		t.Errorf("participants: got %v, want [101]", snap.Participants)
	}
	if snap.ChatID != 555 {
		t.Errorf("chat id: got %d, want 555", snap.ChatID)
	}
}

// TestParticipantsDeduplicated verifies each sender appears once in
// the participant set no matter how many messages they contribute.
func TestParticipantsDeduplicated(t *testing.T) {
	eng, _, _ := newEngine(t, session.Config{})

	if _, err := eng.Touch(101, 555, "Josiah", "one"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := eng.Touch(202, 555, "Ana", "two"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := eng.Touch(101, 555, "Josiah", "three"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	snap := eng.Snapshot()
	if len(snap.Participants) != 2 {
		t.Fatalf("participants: got %v, want two entries", snap.Participants)
	}
	if snap.Participants[0] != 101 || snap.Participants[1] != 202 {
		t.Errorf("participants: got %v, want [101 202]", snap.Participants)
	}
}

func TestRecordReplyAppendsAssistantEntry(t *testing.T) {
	eng, _, _ := newEngine(t, session.Config{})

	if _, err := eng.Touch(101, 555, "Josiah", "hi"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := eng.RecordReply("hello!"); err != nil {
		t.Fatalf("record reply: %v", err)
	}

	snap := eng.Snapshot()
	want := "Josiah: hi\n\nAssistant: hello!\n\n"
	if snap.Transcript != want {
		t.Errorf("transcript: got %q, want %q", snap.Transcript, want)
	}
	if snap.MessageCount != 1 {
		t.Errorf("replies must not count as messages: got %d", snap.MessageCount)
	}
}

// TestMessageLimitClosesBeforeAppend verifies the limit policy runs at
// the start of the message that would exceed it: the old session is
// archived whole and the new message lands in a fresh session.
func TestMessageLimitClosesBeforeAppend(t *testing.T) {
	clk := newTestClock()
	eng, _, arch := newEngine(t, session.Config{MaxMessages: 2, Now: clk.Now})

	for _, msg := range []string{"one", "two"} {
		if _, err := eng.Touch(101, 555, "Josiah", msg); err != nil {
			t.Fatalf("touch %q: %v", msg, err)
		}
	}

	closed, err := eng.Touch(101, 555, "Josiah", "three")
	if err != nil {
		t.Fatalf("touch three: %v", err)
	}
	if closed != session.CloseLimit {
		t.Fatalf("close reason: got %q, want %q", closed, session.CloseLimit)
	}

	if len(arch.calls) != 1 {
		t.Fatalf("archive calls: got %d, want 1", len(arch.calls))
	}
	if arch.calls[0].rec.MessageCount != 2 {
		t.Errorf("archived count: got %d, want 2", arch.calls[0].rec.MessageCount)
	}
	if arch.calls[0].reason != session.CloseLimit {
		t.Errorf("archived reason: got %q", arch.calls[0].reason)
	}

	snap := eng.Snapshot()
	if snap.MessageCount != 1 {
		t.Errorf("fresh session count: got %d, want 1", snap.MessageCount)
	}
	if snap.Transcript != "Josiah: three\n\n" {
		t.Errorf("fresh transcript: got %q", snap.Transcript)
	}
}

func TestIdleTimeoutClosesOnNextMessage(t *testing.T) {
	clk := newTestClock()
	eng, _, arch := newEngine(t, session.Config{IdleTimeout: time.Hour, Now: clk.Now})

	if _, err := eng.Touch(101, 555, "Josiah", "before the quiet"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	clk.Advance(time.Hour + time.Minute)
	closed, err := eng.Touch(101, 555, "Josiah", "after the quiet")
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if closed != session.CloseIdle {
		t.Fatalf("close reason: got %q, want %q", closed, session.CloseIdle)
	}
	if len(arch.calls) != 1 || arch.calls[0].reason != session.CloseIdle {
		t.Errorf("archive calls: %+v", arch.calls)
	}
}

func TestIdleSessionSurvivesUntilNextMessage(t *testing.T) {
	clk := newTestClock()
	eng, _, arch := newEngine(t, session.Config{IdleTimeout: time.Hour, Now: clk.Now})

	if _, err := eng.Touch(101, 555, "Josiah", "hi"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	// Time passes with no inbound message. Nothing may close.
	clk.Advance(3 * time.Hour)
	if len(arch.calls) != 0 {
		t.Fatalf("no archive should happen without a message, got %d", len(arch.calls))
	}
	if eng.Snapshot().MessageCount != 1 {
		t.Errorf("session should still be intact")
	}
}

func TestTrimDropsOldestWholeEntries(t *testing.T) {
	eng, _, _ := newEngine(t, session.Config{MaxTranscriptBytes: 60})

	for _, msg := range []string{"first message body", "second message body", "third message body"} {
		if _, err := eng.Touch(101, 555, "J", msg); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	snap := eng.Snapshot()
	if len(snap.Transcript) > 60 {
		t.Errorf("transcript over cap: %d bytes", len(snap.Transcript))
	}
	if strings.Contains(snap.Transcript, "first message body") {
		t.Errorf("oldest entry should be gone: %q", snap.Transcript)
	}
	if !strings.Contains(snap.Transcript, "third message body") {
		t.Errorf("newest entry must survive: %q", snap.Transcript)
	}
	if !strings.HasPrefix(snap.Transcript, "J: ") {
		t.Errorf("trim must cut at entry boundary: %q", snap.Transcript)
	}
	if snap.MessageCount != 3 {
		t.Errorf("trimming must not touch the message count: got %d", snap.MessageCount)
	}
}

// TestTrimNeverSplitsMultiParagraphEntry verifies a message containing
// blank lines is dropped whole: the blank line between entries is the
// only trim boundary, so interior paragraphs cannot survive alone.
func TestTrimNeverSplitsMultiParagraphEntry(t *testing.T) {
	eng, _, _ := newEngine(t, session.Config{MaxTranscriptBytes: 45})

	if _, err := eng.Touch(101, 555, "Sam", "first paragraph\n\nsecond paragraph"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	snap := eng.Snapshot()
	want := "Sam: first paragraph\nsecond paragraph\n\n"
	if snap.Transcript != want {
		t.Fatalf("interior blank lines must be flattened: got %q, want %q", snap.Transcript, want)
	}

	if _, err := eng.Touch(101, 555, "Sam", "next message"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	snap = eng.Snapshot()
	if snap.Transcript != "Sam: next message\n\n" {
		t.Errorf("first entry must be dropped whole: %q", snap.Transcript)
	}
	if strings.Contains(snap.Transcript, "second paragraph") {
		t.Errorf("orphaned paragraph survived the trim: %q", snap.Transcript)
	}
}

func TestSingleOversizedEntryKept(t *testing.T) {
	eng, _, _ := newEngine(t, session.Config{MaxTranscriptBytes: 10})

	long := strings.Repeat("x", 50)
	if _, err := eng.Touch(101, 555, "J", long); err != nil {
		t.Fatalf("touch: %v", err)
	}
	snap := eng.Snapshot()
	if !strings.Contains(snap.Transcript, long) {
		t.Errorf("sole oversized entry must not be cut: %q", snap.Transcript)
	}
}

func TestBindID(t *testing.T) {
	eng, store, _ := newEngine(t, session.Config{})

	if _, err := eng.Touch(101, 555, "J", "hi"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := eng.BindID("sess-abc"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if got := eng.SessionID(); got != "sess-abc" {
		t.Fatalf("session id: got %q", got)
	}

	// A different id must not replace an existing binding.
	if err := eng.BindID("sess-other"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if got := eng.SessionID(); got != "sess-abc" {
		t.Errorf("binding overwritten: got %q", got)
	}

	// The binding survives a restart.
	eng2, err := session.NewEngine(session.Config{}, store, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := eng2.SessionID(); got != "sess-abc" {
		t.Errorf("binding lost across restart: got %q", got)
	}
}

func TestCloseSwapsAndArchives(t *testing.T) {
	eng, store, arch := newEngine(t, session.Config{})

	if _, err := eng.Touch(101, 555, "J", "hi"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := eng.BindID("sess-abc"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	snapshot, err := eng.Close(session.CloseManual)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if snapshot.MessageCount != 1 || snapshot.SessionID != "sess-abc" {
		t.Errorf("returned snapshot: %+v", snapshot)
	}
	if len(arch.calls) != 1 || arch.calls[0].reason != session.CloseManual {
		t.Errorf("archive calls: %+v", arch.calls)
	}

	// Fresh session, both in memory and on disk.
	if eng.SessionID() != "" {
		t.Errorf("session id should be unbound after close")
	}
	rec, err := store.LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !rec.IsZero() {
		t.Errorf("persisted session should be zero after close: %+v", rec)
	}
}

func TestCloseUnusedSessionIsNoOp(t *testing.T) {
	eng, _, arch := newEngine(t, session.Config{})

	snapshot, err := eng.Close(session.CloseShutdown)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !snapshot.IsZero() {
		t.Errorf("snapshot should be zero: %+v", snapshot)
	}
	if len(arch.calls) != 0 {
		t.Errorf("nothing should be archived: %+v", arch.calls)
	}
}

func TestSessionPersistsAcrossRestart(t *testing.T) {
	store := state.NewStore(t.TempDir())
	eng, err := session.NewEngine(session.Config{}, store, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.Touch(101, 555, "Josiah", "remember me"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	eng2, err := session.NewEngine(session.Config{}, store, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := eng2.Snapshot()
	if snap.MessageCount != 1 || !strings.Contains(snap.Transcript, "remember me") {
		t.Errorf("restored session: %+v", snap)
	}
}
