package refprice

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/krwatch/listingpulse/internal/domain"
)

// Quote is a global USD reference price with provenance and a fixed
// per-source confidence. Volume24hUSD is zero when the source does not
// report it.
type Quote struct {
	PriceUSD     float64
	Source       domain.RefSource
	Confidence   float64
	Volume24hUSD float64
}

// Ticker is one venue observation used for VWAP.
type Ticker struct {
	Venue        string
	PriceUSD     float64
	Volume24hUSD float64
}

// tickerFunc fetches price and 24h quote volume for a symbol on one venue.
type tickerFunc func(ctx context.Context, symbol string) (price, volume float64, err error)

type stage struct {
	source domain.RefSource
	fetch  tickerFunc
}

// Fetcher resolves a reference price through six stages ordered by trust:
// futures books first, spot venues next, an aggregated data provider last.
type Fetcher struct {
	stages   []stage
	breakers map[domain.RefSource]*gobreaker.CircuitBreaker
}

// NewFetcher wires the live venue endpoints.
func NewFetcher(timeout time.Duration) *Fetcher {
	c := newVenueClient(timeout)
	f := &Fetcher{breakers: map[domain.RefSource]*gobreaker.CircuitBreaker{}}
	f.stages = []stage{
		{domain.RefBinanceFutures, c.binanceFutures},
		{domain.RefBybitFutures, c.bybitFutures},
		{domain.RefBinanceSpot, c.binanceSpot},
		{domain.RefBybitSpot, c.bybitSpot},
		{domain.RefOKXSpot, c.okxSpot},
		{domain.RefCoinGecko, c.coingecko},
	}
	for _, s := range f.stages {
		f.breakers[s.source] = newBreaker(s.source.String())
	}
	return f
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: "ref_" + name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}
	return gobreaker.NewCircuitBreaker(st)
}

// Fetch returns the first stage that produces a positive price. ok is
// false only when every stage fails; the caller treats that as zero
// confidence.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (Quote, bool) {
	for _, s := range f.stages {
		v, err := f.breakers[s.source].Execute(func() (any, error) {
			price, volume, err := s.fetch(ctx, symbol)
			if err != nil {
				return nil, err
			}
			return [2]float64{price, volume}, nil
		})
		if err != nil {
			log.Debug().Err(err).Str("source", s.source.String()).Str("symbol", symbol).
				Msg("reference price stage failed")
			continue
		}
		pv := v.([2]float64)
		if pv[0] <= 0 {
			continue
		}
		return Quote{
			PriceUSD:     pv[0],
			Source:       s.source,
			Confidence:   s.source.Confidence(),
			Volume24hUSD: pv[1],
		}, true
	}
	return Quote{Source: domain.RefNone}, false
}

// GlobalVWAP fetches the three spot venues concurrently and folds them
// into a volume-weighted mean. Venues that fail are skipped; the venue
// contributing the most volume is reported as top.
func (f *Fetcher) GlobalVWAP(ctx context.Context, symbol string) (price, totalVolume float64, top string) {
	spot := map[string]tickerFunc{}
	for _, s := range f.stages {
		switch s.source {
		case domain.RefBinanceSpot:
			spot["binance"] = s.fetch
		case domain.RefBybitSpot:
			spot["bybit"] = s.fetch
		case domain.RefOKXSpot:
			spot["okx"] = s.fetch
		}
	}

	type obs struct {
		venue         string
		price, volume float64
		err           error
	}
	ch := make(chan obs, len(spot))
	for venue, fetch := range spot {
		go func(venue string, fetch tickerFunc) {
			p, v, err := fetch(ctx, symbol)
			ch <- obs{venue: venue, price: p, volume: v, err: err}
		}(venue, fetch)
	}

	var weighted, volSum, topVol float64
	for range spot {
		o := <-ch
		if o.err != nil || o.price <= 0 {
			continue
		}
		weighted += o.price * o.volume
		volSum += o.volume
		if o.volume > topVol {
			topVol = o.volume
			top = o.venue
		}
	}
	if volSum <= 0 {
		return 0, 0, ""
	}
	return weighted / volSum, volSum, top
}
