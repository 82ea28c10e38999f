package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Sender delivers one message to the chat channel.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Telegram posts messages via the bot API. Missing credentials produce a
// dry-run sender that only logs, so the pipeline runs unchanged without
// a bot.
type Telegram struct {
	client *http.Client
	url    string
	chatID string
}

func NewTelegram(botToken, chatID string) Sender {
	if botToken == "" || chatID == "" {
		log.Warn().Msg("telegram credentials missing, alerts run dry")
		return dryRun{}
	}
	return &Telegram{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    "https://api.telegram.org/bot" + botToken + "/sendMessage",
		chatID: chatID,
	}
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

type dryRun struct{}

func (dryRun) Send(_ context.Context, text string) error {
	log.Info().Str("text", text).Msg("dry-run alert")
	return nil
}
