package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/health"
)

// StatusSource produces the current pipeline snapshot for /status.
type StatusSource interface {
	Snapshot() health.Snapshot
}

// Bot long-polls the Telegram getUpdates API and answers a small command
// set from the configured chat. It reads state through the reader
// connection and never touches the writer, so a slow chat cannot stall
// the hot path.
type Bot struct {
	client *http.Client
	api    string
	chatID string
	sender Sender
	status StatusSource
	reader *sqlx.DB
	offset int64
}

func NewBot(botToken, chatID string, sender Sender, status StatusSource, reader *sqlx.DB) *Bot {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &Bot{
		client: &http.Client{Timeout: 40 * time.Second},
		api:    "https://api.telegram.org/bot" + botToken,
		chatID: chatID,
		sender: sender,
		status: status,
		reader: reader,
	}
}

// Run polls until ctx is cancelled. Polling errors back off instead of
// terminating the task.
func (b *Bot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := b.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug().Err(err).Msg("bot poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message.Chat.ID != b.chatID || u.Message.Text == "" {
				continue
			}
			reply := b.handle(ctx, u.Message.Text)
			if reply == "" {
				continue
			}
			if err := b.sender.Send(ctx, reply); err != nil {
				log.Warn().Err(err).Msg("bot reply failed")
			}
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID string `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (b *Bot) fetchUpdates(ctx context.Context) ([]update, error) {
	url := fmt.Sprintf("%s/getUpdates?timeout=30&offset=%d", b.api, b.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("getUpdates returned %d: %s", resp.StatusCode, body)
	}
	var payload struct {
		OK     bool              `json:"ok"`
		Result []json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if !payload.OK {
		return nil, fmt.Errorf("getUpdates: ok=false")
	}
	out := make([]update, 0, len(payload.Result))
	for _, raw := range payload.Result {
		var u struct {
			UpdateID int64 `json:"update_id"`
			Message  struct {
				Text string `json:"text"`
				Chat struct {
					ID json.Number `json:"id"`
				} `json:"chat"`
			} `json:"message"`
		}
		if err := json.Unmarshal(raw, &u); err != nil {
			continue
		}
		var cooked update
		cooked.UpdateID = u.UpdateID
		cooked.Message.Text = u.Message.Text
		cooked.Message.Chat.ID = u.Message.Chat.ID.String()
		out = append(out, cooked)
	}
	return out, nil
}

func (b *Bot) handle(ctx context.Context, text string) string {
	cmd, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	switch cmd {
	case "/status":
		return b.statusReply()
	case "/recent":
		return b.recentReply(ctx)
	case "/help", "/start":
		return "commands:\n/status - pipeline health\n/recent - latest detected listings"
	default:
		return ""
	}
}

func (b *Bot) statusReply() string {
	snap := b.status.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "status: %s\n", health.Derive(snap, time.Now().UTC()))
	for name, up := range snap.WSConnected {
		state := "down"
		if up {
			state = "up"
		}
		fmt.Fprintf(&sb, "%s ws: %s\n", name, state)
	}
	fmt.Fprintf(&sb, "queue: %d waiting, %d dropped", snap.QueueSize, snap.QueueDrops)
	return sb.String()
}

func (b *Bot) recentReply(ctx context.Context) string {
	var rows []struct {
		Symbol   string `db:"symbol"`
		Exchange string `db:"exchange"`
		ListedAt string `db:"listing_time"`
	}
	err := b.reader.SelectContext(ctx, &rows,
		`SELECT symbol, exchange, listing_time FROM listing_history ORDER BY listing_time DESC LIMIT 5`)
	if err != nil {
		log.Warn().Err(err).Msg("recent listings query failed")
		return "query failed"
	}
	if len(rows) == 0 {
		return "no listings recorded yet"
	}
	var sb strings.Builder
	sb.WriteString("recent listings:\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%s on %s at %s\n", r.Symbol, r.Exchange, r.ListedAt)
	}
	return strings.TrimRight(sb.String(), "\n")
}
