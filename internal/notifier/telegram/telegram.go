// Package telegram is a send-only notifier sink backed by telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"assistant/internal/notifier"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides the Bot API endpoint. Empty means api.telegram.org.
	APIURL string
}

type Sink struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

// New builds the sink without contacting Telegram; a bad token surfaces on
// the first send.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Send posts the notification as a plain message. telebot has no context
// support, so ctx only gates the start of the call.
func (s *Sink) Send(ctx context.Context, n notifier.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := "🔔 " + n.Title
	if body := strings.TrimSpace(n.Body); body != "" {
		text += "\n" + body
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{
		ThreadID:              s.thread,
		DisableWebPagePreview: true,
	})
	return err
}

var _ notifier.Sink = (*Sink)(nil)
