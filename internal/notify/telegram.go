// Package notify delivers trade and lifecycle messages to the operator.
// Delivery is best effort: a dead notifier never blocks or fails trading.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Notifier is the message sink the engine talks to.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Telegram sends HTML-formatted messages through the Bot API.
type Telegram struct {
	apiBase string
	token   string
	chatID  string
	http    *http.Client
	log     *slog.Logger
}

// NewTelegram builds a notifier. Token or chat id left empty disables
// delivery; Send becomes a no-op so callers never need to branch.
func NewTelegram(token, chatID string, log *slog.Logger) *Telegram {
	return &Telegram{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// Enabled reports whether delivery is configured.
func (t *Telegram) Enabled() bool { return t.token != "" && t.chatID != "" }

// Send posts one message. Failures are logged and swallowed.
func (t *Telegram) Send(ctx context.Context, text string) {
	if !t.Enabled() {
		return
	}

	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.log.Warn("telegram request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Warn("telegram delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.log.Warn("telegram rejected message", "status", resp.StatusCode)
	}
}

// Discard is a Notifier that drops everything. Useful in tests.
type Discard struct{}

func (Discard) Send(context.Context, string) {}
