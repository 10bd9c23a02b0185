package archive

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/claude"
	"github.com/josiahbot07/claude-telegram-relay/pkg/session"
	"github.com/josiahbot07/claude-telegram-relay/pkg/state"
)

// Summarizer is the slice of the invoker the hook needs.
type Summarizer interface {
	Invoke(ctx context.Context, req claude.Request) (claude.Outcome, error)
}

// HookConfig tunes the archival hook. Zero values take defaults.
type HookConfig struct {
	// SummaryTimeout bounds the summary invocation. Default 60s.
	SummaryTimeout time.Duration
	// OnError receives archival failures. Default: a stderr line.
	// Failures never propagate to the conversation path.
	OnError func(error)
}

func (c HookConfig) withDefaults() HookConfig {
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = 60 * time.Second
	}
	if c.OnError == nil {
		c.OnError = func(err error) {
			fmt.Fprintf(os.Stderr, "relay: archive: %v\n", err)
		}
	}
	return c
}

// Hook archives closed sessions in the background: insert the row,
// ask the CLI for a short summary, attach it. It satisfies
// session.Archiver. The session engine never waits on any of this.
type Hook struct {
	store      *Store
	summarizer Summarizer
	cfg        HookConfig
	wg         sync.WaitGroup
}

// NewHook wires the archival hook. summarizer may be nil to archive
// without summaries.
func NewHook(store *Store, summarizer Summarizer, cfg HookConfig) *Hook {
	return &Hook{store: store, summarizer: summarizer, cfg: cfg.withDefaults()}
}

// Archive spawns the background archival task for a closed session.
// Returns immediately.
func (h *Hook) Archive(rec state.SessionRecord, reason session.CloseReason) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.archive(rec, reason); err != nil {
			h.cfg.OnError(err)
		}
	}()
}

func (h *Hook) archive(rec state.SessionRecord, reason session.CloseReason) error {
	ctx := context.Background()

	id, err := h.store.Insert(ctx, Row{
		SessionID:    rec.SessionID,
		StartedAt:    rec.StartedAt,
		ClosedAt:     rec.LastActivity,
		CloseReason:  string(reason),
		MessageCount: rec.MessageCount,
		Participants: rec.Participants,
		Transcript:   rec.Transcript,
	})
	if err != nil {
		return fmt.Errorf("insert archived session: %w", err)
	}

	if h.summarizer == nil {
		return nil
	}
	out, err := h.summarizer.Invoke(ctx, claude.Request{
		Prompt:  summaryPrompt(rec.Transcript),
		Timeout: h.cfg.SummaryTimeout,
		Tag:     "summary",
	})
	if err != nil {
		return fmt.Errorf("summary invocation: %w", err)
	}
	if out.Kind != claude.OutcomeOK || out.Result == "" {
		return fmt.Errorf("summary invocation ended %s", out.Kind)
	}
	if err := h.store.UpdateSummary(ctx, id, out.Result); err != nil {
		return fmt.Errorf("attach summary: %w", err)
	}
	return nil
}

// Wait blocks until in-flight archival tasks finish or the bound
// elapses. Reports whether everything finished.
func (h *Hook) Wait(bound time.Duration) bool {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(bound):
		return false
	}
}

func summaryPrompt(transcript string) string {
	return "Summarize this conversation in 2-3 sentences. Focus on what was discussed and decided. Reply with only the summary.\n\n" + transcript
}
