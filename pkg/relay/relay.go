// Package relay wires the chat platform to the assistant CLI: inbound
// messages become supervised CLI invocations, CLI output becomes chat
// replies. The relay serves a single shared conversation; per-user
// gating keeps each sender to one in-flight request.
package relay

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/josiahbot07/claude-telegram-relay/pkg/archive"
	"github.com/josiahbot07/claude-telegram-relay/pkg/claude"
	"github.com/josiahbot07/claude-telegram-relay/pkg/gate"
	"github.com/josiahbot07/claude-telegram-relay/pkg/markup"
	"github.com/josiahbot07/claude-telegram-relay/pkg/session"
)

// Canned user-facing notices.
const (
	msgUnauthorized = "Sorry, this relay is private."
	msgBusy         = "One moment - still working on your previous message."
	msgTimeout      = "That request timed out. The assistant took too long, so I stopped it."
	msgFailed       = "Something went wrong running the assistant. Check the relay logs."
	msgEmptyReply   = "The assistant returned no output."
	msgShutdown     = "Relay shutting down. Messages sent now will be handled after restart."
	msgUsage        = "Commands: /new starts a fresh session, /status shows the current one."
)

// Inbound is one user message from the platform.
type Inbound struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	Text        string
	Command     string // "new", "status", ... for /commands, "" otherwise
	CommandArgs string
}

// Platform is the chat surface the relay serves. Reply takes Telegram
// HTML; implementations fall back to plain text when the markup is
// rejected.
type Platform interface {
	Listen(ctx context.Context) (<-chan Inbound, error)
	Reply(chatID int64, html string) error
	Typing(chatID int64)
}

// Invoker is the slice of the CLI orchestrator the relay needs.
type Invoker interface {
	Invoke(ctx context.Context, req claude.Request) (claude.Outcome, error)
}

// SummarySource supplies summaries of recently archived sessions for
// prompt context. *archive.Store satisfies it.
type SummarySource interface {
	Recent(ctx context.Context, limit int) ([]archive.Row, error)
}

// Config tunes the relay service.
type Config struct {
	// AllowedUserIDs is the authorization allowlist. An empty list
	// denies everyone: the relay fails closed.
	AllowedUserIDs []int64
	// RecentSummaries caps how many archived-session summaries are
	// prepended to the first prompt of a fresh session. Default 3.
	RecentSummaries int
}

func (c Config) withDefaults() Config {
	if c.RecentSummaries <= 0 {
		c.RecentSummaries = 3
	}
	return c
}

// Service is the relay's message-handling core.
type Service struct {
	cfg       Config
	platform  Platform
	engine    *session.Engine
	gate      *gate.Gate
	invoker   Invoker
	summaries SummarySource
}

// NewService wires the relay. summaries may be nil, which disables
// cross-session context.
func NewService(cfg Config, platform Platform, engine *session.Engine, g *gate.Gate, invoker Invoker, summaries SummarySource) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		platform:  platform,
		engine:    engine,
		gate:      g,
		invoker:   invoker,
		summaries: summaries,
	}
}

// Run consumes platform updates until the context is cancelled or the
// update stream closes. Each message is handled on its own goroutine;
// the per-user gate provides the serialization that matters.
func (s *Service) Run(ctx context.Context) error {
	updates, err := s.platform.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case msg, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Handle(ctx, msg)
			}()
		}
	}
}

// Handle processes one inbound message end to end.
func (s *Service) Handle(ctx context.Context, msg Inbound) {
	if !s.authorized(msg.UserID) {
		fmt.Fprintf(os.Stderr, "relay: rejected user %d (%s)\n", msg.UserID, msg.DisplayName)
		s.reply(msg.ChatID, msgUnauthorized)
		return
	}

	if msg.Command != "" {
		s.handleCommand(msg)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	if !s.gate.TryAcquire(msg.UserID) {
		s.reply(msg.ChatID, msgBusy)
		return
	}
	defer s.gate.Release(msg.UserID)

	s.platform.Typing(msg.ChatID)

	if _, err := s.engine.Touch(msg.UserID, msg.ChatID, msg.DisplayName, msg.Text); err != nil {
		fmt.Fprintf(os.Stderr, "relay: session touch: %v\n", err)
		s.reply(msg.ChatID, msgFailed)
		return
	}

	snap := s.engine.Snapshot()
	prompt := s.composePrompt(ctx, snap.MessageCount == 1 && snap.SessionID == "", msg.Text)

	out, err := s.invoker.Invoke(ctx, claude.Request{
		Prompt:   prompt,
		ResumeID: snap.SessionID,
		Tag:      "chat",
	})
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down, no reply
		}
		fmt.Fprintf(os.Stderr, "relay: invoke: %v\n", err)
		s.reply(msg.ChatID, msgFailed)
		return
	}

	switch out.Kind {
	case claude.OutcomeOK:
		if err := s.engine.BindID(out.SessionID); err != nil {
			fmt.Fprintf(os.Stderr, "relay: bind session id: %v\n", err)
		}
		if err := s.engine.RecordReply(out.Result); err != nil {
			fmt.Fprintf(os.Stderr, "relay: record reply: %v\n", err)
		}
		html := markup.ToTelegramHTML(out.Result)
		if html == "" {
			html = msgEmptyReply
		}
		s.reply(msg.ChatID, html)
	case claude.OutcomeTimeout:
		s.reply(msg.ChatID, msgTimeout)
	case claude.OutcomeError:
		fmt.Fprintf(os.Stderr, "relay: assistant exited %d: %s\n", out.ExitCode, out.Stderr)
		s.reply(msg.ChatID, msgFailed)
	}
}

// handleCommand serves the small slash-command surface.
func (s *Service) handleCommand(msg Inbound) {
	switch msg.Command {
	case "start":
		s.reply(msg.ChatID, "Connected. Send a message to talk to the assistant.\n"+msgUsage)
	case "new":
		if !s.gate.TryAcquire(msg.UserID) {
			s.reply(msg.ChatID, msgBusy)
			return
		}
		defer s.gate.Release(msg.UserID)

		snapshot, err := s.engine.Close(session.CloseManual)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relay: manual close: %v\n", err)
			s.reply(msg.ChatID, msgFailed)
			return
		}
		if snapshot.IsZero() {
			s.reply(msg.ChatID, "No active session. You already have a clean slate.")
			return
		}
		s.reply(msg.ChatID, fmt.Sprintf("Archived the session (%d messages). Starting fresh.", snapshot.MessageCount))
	case "status":
		s.reply(msg.ChatID, s.statusText())
	default:
		s.reply(msg.ChatID, msgUsage)
	}
}

// statusText renders the /status reply.
func (s *Service) statusText() string {
	snap := s.engine.Snapshot()
	if snap.MessageCount == 0 {
		return "No active session."
	}
	binding := "not yet bound"
	if snap.SessionID != "" {
		binding = snap.SessionID
	}
	age := time.Since(snap.StartedAt).Round(time.Second)
	return fmt.Sprintf("Session: %d messages from %d participants over %s, %d transcript bytes, CLI session %s.",
		snap.MessageCount, len(snap.Participants), age, len(snap.Transcript), binding)
}

// composePrompt prepends recent archived-session summaries to the
// first prompt of a fresh session. Later prompts pass through as-is:
// the CLI carries conversation context via --resume.
func (s *Service) composePrompt(ctx context.Context, fresh bool, text string) string {
	if !fresh || s.summaries == nil {
		return text
	}
	rows, err := s.summaries.Recent(ctx, s.cfg.RecentSummaries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: load summaries: %v\n", err)
		return text
	}
	var lines []string
	for _, row := range rows {
		if row.Summary != "" {
			lines = append(lines, "- "+row.Summary)
		}
	}
	if len(lines) == 0 {
		return text
	}
	return "Context from recent conversations:\n" + strings.Join(lines, "\n") + "\n\n" + text
}

// Shutdown notifies users and closes the active session. Called after
// Run returns.
func (s *Service) Shutdown() {
	for _, id := range s.cfg.AllowedUserIDs {
		// For direct chats the chat id equals the user id.
		_ = s.platform.Reply(id, msgShutdown)
	}
	if _, err := s.engine.Close(session.CloseShutdown); err != nil {
		fmt.Fprintf(os.Stderr, "relay: close session on shutdown: %v\n", err)
	}
}

func (s *Service) authorized(userID int64) bool {
	for _, id := range s.cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *Service) reply(chatID int64, html string) {
	if err := s.platform.Reply(chatID, html); err != nil {
		fmt.Fprintf(os.Stderr, "relay: reply to %d: %v\n", chatID, err)
	}
}
