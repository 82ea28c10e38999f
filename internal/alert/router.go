package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/cache"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/metrics"
	"github.com/krwatch/listingpulse/internal/store"
)

const (
	defaultBatchInterval = time.Hour
	defaultDebounceTTL   = 300 * time.Second
)

type writerSink interface {
	Enqueue(sql string, args []any, prio store.Priority) error
}

// Message is one routed alert. DebounceKey only matters at MEDIUM; empty
// means send unconditionally.
type Message struct {
	Level       domain.AlertLevel
	Text        string
	DebounceKey string
}

// Router dispatches alerts by level: INFO logs, LOW batches hourly,
// MEDIUM debounces per key, HIGH and CRITICAL go out immediately.
type Router struct {
	sender Sender
	reader *sqlx.DB
	writer writerSink
	hot    cache.Cache

	batchInterval time.Duration
	debounceTTL   time.Duration

	mu    sync.Mutex
	batch []string

	now func() time.Time
}

type RouterOption func(*Router)

func WithBatchInterval(d time.Duration) RouterOption {
	return func(r *Router) { r.batchInterval = d }
}
func WithDebounceTTL(d time.Duration) RouterOption {
	return func(r *Router) { r.debounceTTL = d }
}

func NewRouter(sender Sender, reader *sqlx.DB, writer writerSink, hot cache.Cache, opts ...RouterOption) *Router {
	r := &Router{
		sender:        sender,
		reader:        reader,
		writer:        writer,
		hot:           hot,
		batchInterval: defaultBatchInterval,
		debounceTTL:   defaultDebounceTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Notify routes one message. Delivery failures are logged, never
// propagated: a broken chat API must not stall the pipeline.
func (r *Router) Notify(ctx context.Context, msg Message) {
	metrics.AlertsSent.WithLabelValues(msg.Level.String()).Inc()

	switch msg.Level {
	case domain.LevelInfo:
		log.Info().Str("alert", msg.Text).Msg("info alert")
	case domain.LevelLow:
		r.mu.Lock()
		r.batch = append(r.batch, msg.Text)
		r.mu.Unlock()
	case domain.LevelMedium:
		r.sendDebounced(ctx, msg)
	default:
		r.send(ctx, msg.Text)
	}
}

// Run flushes the LOW batch on the configured interval until ctx ends,
// then flushes one final time.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.FlushBatch(context.Background())
			return
		case <-ticker.C:
			r.FlushBatch(ctx)
		}
	}
}

// FlushBatch sends all buffered LOW alerts as one combined message.
func (r *Router) FlushBatch(ctx context.Context) {
	r.mu.Lock()
	pending := r.batch
	r.batch = nil
	r.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	text := fmt.Sprintf("%d low-priority events:\n%s", len(pending), strings.Join(pending, "\n"))
	r.send(ctx, text)
}

// BatchLen reports the number of buffered LOW alerts.
func (r *Router) BatchLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batch)
}

// sendDebounced suppresses repeats of the same key within the TTL. The
// hot cache answers first; the database is the authority and the
// writer-serialised upsert keeps the record monotonic under races.
func (r *Router) sendDebounced(ctx context.Context, msg Message) {
	if msg.DebounceKey == "" {
		r.send(ctx, msg.Text)
		return
	}
	now := r.now()
	if r.suppressed(ctx, msg.DebounceKey, now) {
		log.Debug().Str("key", msg.DebounceKey).Msg("alert debounced")
		return
	}

	r.send(ctx, msg.Text)

	if r.hot != nil {
		r.hot.Set("debounce:"+msg.DebounceKey, []byte{1}, r.debounceTTL)
	}
	if r.writer != nil {
		req := store.UpsertDebounce(msg.DebounceKey, now, r.debounceTTL)
		if err := r.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
			log.Warn().Err(err).Str("key", msg.DebounceKey).Msg("debounce upsert enqueue failed")
		}
	}
}

func (r *Router) suppressed(ctx context.Context, key string, now time.Time) bool {
	if r.hot != nil {
		if _, ok := r.hot.Get("debounce:" + key); ok {
			return true
		}
	}
	if r.reader == nil {
		return false
	}
	var expiresAt int64
	err := r.reader.GetContext(ctx, &expiresAt,
		`SELECT expires_at FROM alert_debounce WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("debounce lookup failed, sending")
		return false
	}
	return now.Unix() < expiresAt
}

func (r *Router) send(ctx context.Context, text string) {
	if err := r.sender.Send(ctx, text); err != nil {
		log.Error().Err(err).Msg("alert delivery failed")
	}
}
