package fx

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/metrics"
	"github.com/krwatch/listingpulse/internal/store"
)

// Result is one resolved KRW-per-USD rate with provenance. Extras carries
// the raw observations that fed the resolution (persisted in the
// snapshot row).
type Result struct {
	Rate   float64
	Source domain.FXSource
	At     time.Time
	Extras map[string]*float64
}

type writerSink interface {
	Enqueue(sql string, args []any, prio store.Priority) error
}

// Resolver walks the fallback chain: naver scrape, public JSON API, direct
// USDT/KRW, BTC-implied cross rate, TTL cache, hardcoded constant. Every
// live stage sits behind its own circuit breaker so a dead endpoint is
// skipped without waiting out its timeout each round.
type Resolver struct {
	cfg    config.FX
	client *http.Client
	writer writerSink

	upbit   tickerFunc
	binance tickerFunc

	mu     sync.Mutex
	cached *Result

	breakers map[string]*gobreaker.CircuitBreaker
}

// tickerFunc fetches a last-trade price for a market symbol. Split out so
// tests can stub venue endpoints.
type tickerFunc func(ctx context.Context, symbol string) (float64, error)

// NewResolver builds a resolver over live HTTP endpoints.
func NewResolver(cfg config.FX, timeout time.Duration, writer writerSink) *Resolver {
	client := &http.Client{Timeout: timeout}
	r := &Resolver{
		cfg:      cfg,
		client:   client,
		writer:   writer,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
	r.upbit = r.upbitTicker
	r.binance = r.binanceTicker
	for _, name := range []string{"naver", "public_api", "usdt_krw", "implied"} {
		r.breakers[name] = newBreaker(name)
	}
	return r
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: "fx_" + name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Rate resolves the current KRW/USD rate. It never fails: the last two
// stages (cache, hardcoded) always produce a value.
func (r *Resolver) Rate(ctx context.Context) Result {
	type stage struct {
		name   string
		source domain.FXSource
		fn     func(context.Context) (Result, error)
	}
	stages := []stage{
		{"naver", domain.FXNaver, r.fromNaver},
		{"public_api", domain.FXPublicAPI, r.fromPublicAPI},
		{"usdt_krw", domain.FXUSDTKRW, r.fromUSDTKRW},
		{"implied", domain.FXBTCImplied, r.fromBTCImplied},
	}

	for _, s := range stages {
		v, err := r.breakers[s.name].Execute(func() (any, error) {
			return r.runStage(ctx, s.fn)
		})
		if err != nil {
			log.Debug().Err(err).Str("stage", s.name).Msg("fx stage failed")
			continue
		}
		res := v.(Result)
		r.remember(res)
		r.persist(res)
		metrics.FXResolutions.WithLabelValues(res.Source.String()).Inc()
		return res
	}

	if cached, ok := r.fromCache(); ok {
		metrics.FXResolutions.WithLabelValues(cached.Source.String()).Inc()
		return cached
	}

	res := Result{Rate: r.cfg.FallbackRate, Source: domain.FXHardcodedFallback, At: time.Now().UTC()}
	metrics.FXResolutions.WithLabelValues(res.Source.String()).Inc()
	log.Warn().Float64("rate", res.Rate).Msg("fx fallback chain exhausted, using hardcoded rate")
	return res
}

func (r *Resolver) runStage(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	res, err := fn(ctx)
	if err != nil {
		return Result{}, err
	}
	if res.Rate <= 0 {
		return Result{}, errBadRate
	}
	res.At = time.Now().UTC()
	return res, nil
}

func (r *Resolver) remember(res Result) {
	r.mu.Lock()
	r.cached = &res
	r.mu.Unlock()
}

// fromCache serves the last successful resolution. Past its TTL the value
// is still usable here: every live stage already failed, so a stale rate
// beats a hardcoded one.
func (r *Resolver) fromCache() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return Result{}, false
	}
	res := *r.cached
	res.Source = domain.FXCached
	return res, true
}

// CachedFresh reports the cached rate only while inside the TTL window.
func (r *Resolver) CachedFresh() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return Result{}, false
	}
	ttl := time.Duration(r.cfg.CacheTTLSec) * time.Second
	if time.Since(r.cached.At) > ttl {
		return Result{}, false
	}
	return *r.cached, true
}

func (r *Resolver) persist(res Result) {
	if r.writer == nil {
		return
	}
	req := store.InsertFXSnapshot(res.At, res.Rate, res.Source.String(), res.Extras)
	if err := r.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
		log.Debug().Err(err).Msg("fx snapshot enqueue failed")
	}
}
