// Package telegram mirrors relay notifications into a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "statusrelay/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// APIURL overrides https://api.telegram.org (self-hosted Bot API server).
	APIURL  string
	Timeout time.Duration
}

// Sink sends plain-text messages through the Bot API. It never polls for updates.
type Sink struct {
	bot      *tele.Bot
	chat     tele.ChatID
	threadID int
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{
		bot:      b,
		chat:     tele.ChatID(cfg.ChatID),
		threadID: cfg.ThreadID,
		log:      log.With(logx.String("comp", "telegram")),
	}, nil
}

func (s *Sink) Name() string { return "telegram" }

// Deliver sends text, split into several messages when it exceeds Telegram's limit.
func (s *Sink) Deliver(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{
			DisableWebPagePreview: true,
			ThreadID:              s.threadID,
		}
		if _, err := s.bot.Send(s.chat, chunk, opt); err != nil {
			return err
		}
	}
	s.log.Debug("message mirrored", logx.Int64("chat_id", int64(s.chat)))
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newline boundaries.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
