// Package telegram adapts the Telegram Bot API to the platform
// interface the relay consumes. It is the only package that imports
// the Telegram SDK; everything else sees relay.Inbound and plain
// method calls.
package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/josiahbot07/claude-telegram-relay/pkg/relay"
)

// messageLimit is Telegram's hard cap on message length. Longer
// replies are split at paragraph boundaries.
const messageLimit = 4096

// pollTimeout is the long-poll timeout in seconds for GetUpdates.
const pollTimeout = 60

// botAPI is the slice of *tgbotapi.BotAPI the adapter uses, split out
// so tests can script updates and capture sends.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the Telegram platform adapter. It satisfies relay.Platform.
type Bot struct {
	api      botAPI
	username string
}

// New connects to the Telegram Bot API with the given token. The
// constructor validates the token by fetching the bot's identity.
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return &Bot{api: api, username: api.Self.UserName}, nil
}

// Username returns the bot account's @name, for operator output.
func (b *Bot) Username() string { return b.username }

// Listen long-polls for updates and translates them into inbound
// messages until ctx is cancelled. The returned channel closes when
// polling stops. Non-message updates and messages without a sender
// are dropped.
func (b *Bot) Listen(ctx context.Context) (<-chan relay.Inbound, error) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	out := make(chan relay.Inbound)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := translate(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					b.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out, nil
}

// translate converts a Telegram update into an inbound message.
// Returns false for updates the relay has no use for.
func translate(update tgbotapi.Update) (relay.Inbound, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return relay.Inbound{}, false
	}
	in := relay.Inbound{
		UserID:      m.From.ID,
		ChatID:      m.Chat.ID,
		DisplayName: displayName(m.From),
		Text:        m.Text,
	}
	if m.IsCommand() {
		in.Command = m.Command()
		in.CommandArgs = m.CommandArguments()
	}
	return in, true
}

// displayName picks what the transcript calls the sender: first name,
// then username, then a generic fallback.
func displayName(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return "user"
}

// Reply sends HTML-formatted text, splitting at the message cap. A
// chunk Telegram rejects (usually markup it will not parse) is resent
// once as plain text so the user never gets silence.
func (b *Bot) Reply(chatID int64, html string) error {
	for _, chunk := range splitMessage(html, messageLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			plain := tgbotapi.NewMessage(chatID, chunk)
			if _, retryErr := b.api.Send(plain); retryErr != nil {
				return fmt.Errorf("send to chat %d: %w", chatID, retryErr)
			}
			fmt.Fprintf(os.Stderr, "relay: telegram rejected markup, sent plain: %v\n", err)
		}
	}
	return nil
}

// Typing shows the "typing…" indicator. Best effort: a failure is
// not worth surfacing anywhere.
func (b *Bot) Typing(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = b.api.Request(action)
}

// splitMessage cuts text into chunks of at most limit bytes,
// preferring paragraph breaks, then line breaks. A hard cut lands on
// a rune boundary so no chunk ends mid-character.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], "\n")
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
