// Package notify pushes trade events to Telegram. Delivery is best
// effort; a dead bot must never stall the trading cycle.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marlin/internal/logger"
)

const (
	telegramAPI   = "https://api.telegram.org"
	sendRetries   = 3
	retryInterval = 2 * time.Second
)

// Notifier is the outbound message port. A nil *Telegram satisfies it as
// a no-op, so callers never branch on configuration.
type Notifier interface {
	Send(ctx context.Context, text string)
}

type Telegram struct {
	token  string
	chatID string
	http   *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	return &Telegram{token: token, chatID: chatID, http: &http.Client{Timeout: 10 * time.Second}}
}

// Send delivers one message with bounded retries, logging failures.
func (t *Telegram) Send(ctx context.Context, text string) {
	if t == nil {
		return
	}
	var lastErr error
	for attempt := 1; attempt <= sendRetries; attempt++ {
		if lastErr = t.send(ctx, text); lastErr == nil {
			return
		}
		logger.Warnf("[notify] telegram attempt %d/%d: %v", attempt, sendRetries, lastErr)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryInterval):
		}
	}
	logger.Errorf("[notify] telegram delivery failed: %v", lastErr)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, body)
	}
	return nil
}
