package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/metrics"
)

// Exchange is the per-venue behaviour plugged into a Conn: how to
// subscribe and how to decode incoming frames. HandleMessage runs on the
// read goroutine; adapters own any per-connection state (depth caches)
// and reset it in OnReconnected.
type Exchange interface {
	Name() string
	URL() string
	SubscribePayloads(markets []string) ([][]byte, error)
	HandleMessage(data []byte) error
	OnReconnected()
}

const (
	defaultPingInterval = 30 * time.Second
	defaultGapThreshold = 5 * time.Second
	backoffMin          = time.Second
	backoffMax          = 60 * time.Second
)

// Conn is a reconnecting WebSocket session for one exchange. It survives
// drops with exponential backoff, pings on an interval, resubscribes the
// full market list on reconnect and invokes a gap hook when downtime
// exceeded the threshold.
type Conn struct {
	ex Exchange

	mu      sync.Mutex
	ws      *websocket.Conn
	markets []string

	connected atomic.Bool
	lastMsgNS atomic.Int64

	pingInterval time.Duration
	gapThreshold time.Duration
	gapHook      func(downtime time.Duration, markets []string)
}

// Option tweaks a Conn. The defaults match production settings.
type Option func(*Conn)

func WithPingInterval(d time.Duration) Option { return func(c *Conn) { c.pingInterval = d } }
func WithGapHook(h func(downtime time.Duration, markets []string)) Option {
	return func(c *Conn) { c.gapHook = h }
}

func NewConn(ex Exchange, markets []string, opts ...Option) *Conn {
	c := &Conn{
		ex:           ex,
		markets:      append([]string(nil), markets...),
		pingInterval: defaultPingInterval,
		gapThreshold: defaultGapThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run dials and reads until ctx is cancelled, reconnecting on any error.
func (c *Conn) Run(ctx context.Context) {
	backoff := backoffMin

	for ctx.Err() == nil {
		wasUp, err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		if wasUp {
			backoff = backoffMin
		}

		log.Warn().Err(err).Str("exchange", c.ex.Name()).
			Dur("backoff", backoff).Msg("websocket disconnected")
		metrics.WSReconnects.WithLabelValues(c.ex.Name()).Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// session runs one connect-subscribe-read cycle. The bool reports whether
// the subscribe handshake completed, so the caller can reset its backoff.
func (c *Conn) session(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.ex.URL(), nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	c.mu.Lock()
	c.ws = ws
	err = c.subscribeLocked()
	c.mu.Unlock()
	if err != nil {
		return false, err
	}

	// A long outage means missed trades; hand the hole to the gap hook
	// before fresh data starts flowing again.
	if last := c.LastMsgTime(); !last.IsZero() {
		if down := time.Since(last); down > c.gapThreshold && c.gapHook != nil {
			c.gapHook(down, c.Markets())
		}
	}

	c.ex.OnReconnected()
	c.connected.Store(true)
	c.lastMsgNS.Store(time.Now().UnixNano())
	log.Info().Str("exchange", c.ex.Name()).Int("markets", len(c.Markets())).
		Msg("websocket connected")

	// Ping loop owns the write side for keepalives; a dead peer trips the
	// read deadline below.
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx, ws)
	go func() {
		<-pingCtx.Done()
		ws.Close() // unblocks ReadMessage on shutdown
	}()

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
	})

	for {
		if err := ws.SetReadDeadline(time.Now().Add(2 * c.pingInterval)); err != nil {
			return true, err
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		c.lastMsgNS.Store(time.Now().UnixNano())
		metrics.WSMessages.WithLabelValues(c.ex.Name()).Inc()
		if err := c.ex.HandleMessage(data); err != nil {
			// Malformed upstream frames are dropped, never fatal.
			log.Debug().Err(err).Str("exchange", c.ex.Name()).Msg("bad frame")
		}
	}
}

func (c *Conn) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Conn) subscribeLocked() error {
	payloads, err := c.ex.SubscribePayloads(c.markets)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
			return err
		}
	}
	return nil
}

// AddMarket appends a market and resubscribes on the live connection.
// Idempotent; a dead connection picks the market up on reconnect.
func (c *Conn) AddMarket(mkt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.markets {
		if m == mkt {
			return
		}
	}
	c.markets = append(c.markets, mkt)
	if c.ws == nil || !c.connected.Load() {
		return
	}
	if err := c.subscribeLocked(); err != nil {
		log.Warn().Err(err).Str("exchange", c.ex.Name()).Str("market", mkt).
			Msg("resubscribe failed, reconnect will retry")
	}
}

// Markets returns a copy of the current subscription list.
func (c *Conn) Markets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.markets...)
}

func (c *Conn) IsConnected() bool { return c.connected.Load() }

// LastMsgTime is the arrival time of the most recent frame, zero before
// the first.
func (c *Conn) LastMsgTime() time.Time {
	ns := c.lastMsgNS.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
