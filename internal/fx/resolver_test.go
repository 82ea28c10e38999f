package fx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/store"
)

type captureSink struct{ reqs []store.Request }

func (c *captureSink) Enqueue(sql string, args []any, _ store.Priority) error {
	c.reqs = append(c.reqs, store.Request{SQL: sql, Args: args})
	return nil
}

func newTestResolver(t *testing.T, naver, public http.HandlerFunc) (*Resolver, *captureSink) {
	t.Helper()
	cfg := config.DefaultExchanges().FX
	if naver != nil {
		srv := httptest.NewServer(naver)
		t.Cleanup(srv.Close)
		cfg.NaverURL = srv.URL
	} else {
		cfg.NaverURL = "http://127.0.0.1:0/unreachable"
	}
	if public != nil {
		srv := httptest.NewServer(public)
		t.Cleanup(srv.Close)
		cfg.PublicAPIURL = srv.URL
	} else {
		cfg.PublicAPIURL = "http://127.0.0.1:0/unreachable"
	}
	sink := &captureSink{}
	r := NewResolver(cfg, 2*time.Second, sink)
	// Venue tickers unreachable unless a test stubs them.
	r.upbit = func(context.Context, string) (float64, error) { return 0, errors.New("stubbed out") }
	r.binance = func(context.Context, string) (float64, error) { return 0, errors.New("stubbed out") }
	return r, sink
}

func TestRate_NaverWins(t *testing.T) {
	r, sink := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<table><td class="num"> 1,352.50 </td></table>`))
	}, nil)

	res := r.Rate(context.Background())
	assert.Equal(t, domain.FXNaver, res.Source)
	assert.InDelta(t, 1352.50, res.Rate, 1e-9)
	assert.True(t, res.Source.Trusted())
	require.Len(t, sink.reqs, 1, "snapshot persisted through the writer")
}

func TestRate_FallsThroughToPublicAPI(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"rates":{"KRW":1349.2}}`))
	})

	res := r.Rate(context.Background())
	assert.Equal(t, domain.FXPublicAPI, res.Source)
	assert.InDelta(t, 1349.2, res.Rate, 1e-9)
	assert.False(t, res.Source.Trusted())
}

func TestRate_BTCImplied(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)
	r.upbit = func(_ context.Context, symbol string) (float64, error) {
		switch symbol {
		case "KRW-BTC":
			return 135_000_000, nil
		default:
			return 0, errors.New("no such market")
		}
	}
	r.binance = func(context.Context, string) (float64, error) { return 100_000, nil }

	res := r.Rate(context.Background())
	assert.Equal(t, domain.FXBTCImplied, res.Source)
	assert.InDelta(t, 1350.0, res.Rate, 1e-9)
	assert.True(t, res.Source.Trusted())
	require.NotNil(t, res.Extras["btc_krw"])
	assert.InDelta(t, 135_000_000, *res.Extras["btc_krw"], 1e-6)
}

func TestRate_CachedBeatsHardcoded(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)
	r.remember(Result{Rate: 1347.7, Source: domain.FXNaver, At: time.Now().Add(-10 * time.Minute)})

	res := r.Rate(context.Background())
	assert.Equal(t, domain.FXCached, res.Source)
	assert.InDelta(t, 1347.7, res.Rate, 1e-9)

	// The stale value is past TTL, so the fresh-cache accessor refuses it.
	_, ok := r.CachedFresh()
	assert.False(t, ok)
}

func TestRate_HardcodedLast(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)

	res := r.Rate(context.Background())
	assert.Equal(t, domain.FXHardcodedFallback, res.Source)
	assert.Equal(t, 1350.0, res.Rate)
	assert.False(t, res.Source.Trusted())
}
