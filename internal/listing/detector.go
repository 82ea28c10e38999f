package listing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/krwatch/listingpulse/internal/metrics"
)

// maxBurst is the false-positive guard: a single poll introducing more
// than this many symbols is treated as a catalog reshuffle, the baseline
// is reset and nothing fires.
const maxBurst = 10

// severityUpgradeStreak is the consecutive-failure count at which poll
// errors escalate from debug to warning, and at twice that to error.
const severityUpgradeStreak = 5

// Event is one detected new listing.
type Event struct {
	Symbol     string
	Exchange   string
	DetectedAt time.Time
}

// Handler consumes a detected listing: registration, subscription, gate
// analysis and alerting all hang off this one callback.
type Handler func(ctx context.Context, ev Event)

// Detector polls one exchange catalog and diffs against a baseline.
type Detector struct {
	client   CatalogClient
	interval time.Duration
	limiter  *rate.Limiter
	handler  Handler

	baseline    map[string]struct{}
	failStreak  atomic.Int64
	initialized bool
}

func NewDetector(client CatalogClient, interval time.Duration, handler Handler) *Detector {
	return &Detector{
		client:   client,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		handler:  handler,
	}
}

// Run polls until ctx is cancelled. The first successful fetch only
// establishes the baseline; diffs fire from the second fetch on.
func (d *Detector) Run(ctx context.Context) {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		d.poll(ctx)
	}
}

func (d *Detector) poll(ctx context.Context) {
	current, err := d.client.FetchCatalog(ctx)
	if err != nil {
		streak := d.failStreak.Add(1)
		metrics.CatalogPollFailures.WithLabelValues(d.client.Exchange()).Inc()
		d.failLog(streak).Err(err).Str("exchange", d.client.Exchange()).
			Int64("streak", streak).Msg("catalog poll failed")
		return
	}
	d.failStreak.Store(0)

	if !d.initialized {
		d.baseline = current
		d.initialized = true
		log.Info().Str("exchange", d.client.Exchange()).
			Int("markets", len(current)).Msg("catalog baseline established")
		return
	}

	var fresh []string
	for sym := range current {
		if _, ok := d.baseline[sym]; !ok {
			fresh = append(fresh, sym)
		}
	}
	d.baseline = current

	if len(fresh) == 0 {
		return
	}
	if len(fresh) > maxBurst {
		log.Warn().Str("exchange", d.client.Exchange()).Int("count", len(fresh)).
			Msg("catalog burst, assuming reshuffle and resetting baseline")
		return
	}

	now := time.Now().UTC()
	for _, sym := range fresh {
		metrics.NewListings.WithLabelValues(d.client.Exchange()).Inc()
		log.Info().Str("exchange", d.client.Exchange()).Str("symbol", sym).
			Msg("new listing detected")
		if d.handler != nil {
			d.handler(ctx, Event{Symbol: sym, Exchange: d.client.Exchange(), DetectedAt: now})
		}
	}
}

// failLog escalates severity with the failure streak: debug for blips,
// warn at the streak threshold, error at twice it.
func (d *Detector) failLog(streak int64) *zerolog.Event {
	switch {
	case streak >= 2*severityUpgradeStreak:
		return log.Error()
	case streak >= severityUpgradeStreak:
		return log.Warn()
	default:
		return log.Debug()
	}
}

// FailStreak exposes the consecutive failure count for health snapshots.
func (d *Detector) FailStreak() int64 { return d.failStreak.Load() }
