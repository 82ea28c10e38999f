package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/market"
)

// wsServer upgrades each connection, records subscription frames, replays
// canned messages and closes.
func wsServer(t *testing.T, replay []string, subs chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, sub, err := ws.ReadMessage()
		if err != nil {
			return
		}
		select {
		case subs <- string(sub):
		default:
		}
		for _, m := range replay {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type testExchange struct {
	*Upbit
	url string
}

func (e *testExchange) URL() string { return e.url }

func TestConn_ReceivesTradesAndReconnects(t *testing.T) {
	subs := make(chan string, 4)
	trade := `{"type":"trade","code":"KRW-SOL","trade_price":100,"trade_volume":1,"timestamp":1756200000000}`
	srv := wsServer(t, []string{trade}, subs)
	defer srv.Close()

	var got []market.Candle
	buckets := NewBuckets(func(c market.Candle) { got = append(got, c) })
	ex := &testExchange{Upbit: NewUpbit(buckets), url: wsURL(srv)}
	conn := NewConn(ex, []string{"KRW-SOL"}, WithPingInterval(100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { conn.Run(ctx); close(done) }()

	// The server closes after replay, so a second subscription frame means
	// the conn reconnected on its own.
	require.Eventually(t, func() bool { return len(subs) >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, <-subs, "KRW-SOL")

	cancel()
	<-done

	assert.False(t, conn.IsConnected())
	assert.False(t, conn.LastMsgTime().IsZero())
	buckets.FlushAll()
	require.NotEmpty(t, got)
	assert.Equal(t, "UPBIT:KRW-SOL", got[0].Market)
}

func TestConn_AddMarketIdempotent(t *testing.T) {
	buckets := NewBuckets(func(market.Candle) {})
	conn := NewConn(NewUpbit(buckets), []string{"KRW-BTC"})

	conn.AddMarket("KRW-SOL")
	conn.AddMarket("KRW-SOL")
	conn.AddMarket("KRW-BTC")

	assert.Equal(t, []string{"KRW-BTC", "KRW-SOL"}, conn.Markets())
}

func TestConn_GapHookFiresAfterOutage(t *testing.T) {
	subs := make(chan string, 8)
	srv := wsServer(t, nil, subs)
	defer srv.Close()

	buckets := NewBuckets(func(market.Candle) {})
	ex := &testExchange{Upbit: NewUpbit(buckets), url: wsURL(srv)}

	gaps := make(chan time.Duration, 1)
	conn := NewConn(ex, []string{"KRW-BTC"},
		WithGapHook(func(d time.Duration, _ []string) {
			select {
			case gaps <- d:
			default:
			}
		}))
	conn.gapThreshold = time.Millisecond
	conn.lastMsgNS.Store(time.Now().Add(-time.Second).UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { conn.Run(ctx); close(done) }()

	select {
	case d := <-gaps:
		assert.Greater(t, d, time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("gap hook never fired")
	}
	cancel()
	<-done
}
