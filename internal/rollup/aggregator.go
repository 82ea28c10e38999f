package rollup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/market"
	"github.com/krwatch/listingpulse/internal/store"
)

const (
	// selfHealWindow is how far back a restart re-rolls to repair partial
	// minutes from a prior crash.
	selfHealWindow = 15 * time.Minute
	// retention1s is how long raw 1-second bars are kept.
	retention1s = 10 * time.Minute
)

type writerSink interface {
	Enqueue(sql string, args []any, prio store.Priority) error
}

// Aggregator rolls 1-second bars into 1-minute bars once per minute,
// purges old 1s rows, and re-rolls recent minutes on startup.
type Aggregator struct {
	reader *sqlx.DB
	writer writerSink
}

func New(reader *sqlx.DB, writer writerSink) *Aggregator {
	return &Aggregator{reader: reader, writer: writer}
}

// Run executes one cycle per minute until ctx is cancelled. The first
// cycle self-heals the recent window.
func (a *Aggregator) Run(ctx context.Context) {
	a.SelfHeal(ctx, time.Now().UTC())

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			prev := now.UTC().Truncate(time.Minute).Add(-time.Minute)
			if err := a.RollupMinute(ctx, prev); err != nil {
				log.Warn().Err(err).Time("minute", prev).Msg("rollup failed")
			}
			a.purge(now.UTC())
		}
	}
}

// SelfHeal re-rolls every minute in the recent window. Replace-on-conflict
// makes this idempotent: minutes already rolled are simply rewritten with
// at-least-as-complete data.
func (a *Aggregator) SelfHeal(ctx context.Context, now time.Time) {
	end := now.Truncate(time.Minute)
	for m := end.Add(-selfHealWindow); m.Before(end); m = m.Add(time.Minute) {
		if err := a.RollupMinute(ctx, m); err != nil {
			log.Warn().Err(err).Time("minute", m).Msg("self-heal rollup failed")
		}
	}
}

// ForceRollup rolls the current, still-open minute. Called on shutdown so
// the tail of the stream is not lost; the next startup's self-heal will
// re-roll it with any rows that were still in flight.
func (a *Aggregator) ForceRollup(ctx context.Context, now time.Time) {
	if err := a.RollupMinute(ctx, now.UTC().Truncate(time.Minute)); err != nil {
		log.Warn().Err(err).Msg("force rollup failed")
	}
}

// RollupMinute reads the minute's 1s rows and enqueues one 1m bar per
// market.
func (a *Aggregator) RollupMinute(ctx context.Context, minute time.Time) error {
	minute = minute.UTC().Truncate(time.Minute)

	var rows []struct {
		Market      string  `db:"market"`
		TSSecond    int64   `db:"ts_second"`
		Open        float64 `db:"open"`
		High        float64 `db:"high"`
		Low         float64 `db:"low"`
		Close       float64 `db:"close"`
		VolumeBase  float64 `db:"volume_base"`
		VolumeQuote float64 `db:"volume_quote"`
	}
	err := a.reader.SelectContext(ctx, &rows,
		`SELECT market, ts_second, open, high, low, close, volume_base, volume_quote
		 FROM ohlcv_1s WHERE ts_second >= ? AND ts_second < ?
		 ORDER BY market, ts_second`,
		minute.Unix(), minute.Add(time.Minute).Unix())
	if err != nil {
		return fmt.Errorf("read 1s bars for %s: %w", minute, err)
	}

	perMarket := map[string][]market.Candle{}
	for _, r := range rows {
		perMarket[r.Market] = append(perMarket[r.Market], market.Candle{
			Market:      r.Market,
			Bucket:      time.Unix(r.TSSecond, 0).UTC(),
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			VolumeBase:  r.VolumeBase,
			VolumeQuote: r.VolumeQuote,
		})
	}

	for mkt, bars := range perMarket {
		bar := Fold(bars, minute)
		bar.Market = mkt
		req := store.UpsertCandle1m(bar)
		if err := a.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
			return err
		}
	}
	return nil
}

// Fold merges ascending 1s bars into one 1m bar: first open, last close,
// extrema, summed volumes.
func Fold(bars []market.Candle, minute time.Time) market.Candle {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Bucket.Before(bars[j].Bucket) })

	out := market.Candle{Bucket: minute.UTC().Truncate(time.Minute)}
	for i, b := range bars {
		if i == 0 {
			out.Open = b.Open
			out.High = b.High
			out.Low = b.Low
		}
		if b.High > out.High {
			out.High = b.High
		}
		if b.Low < out.Low {
			out.Low = b.Low
		}
		out.Close = b.Close
		out.VolumeBase += b.VolumeBase
		out.VolumeQuote += b.VolumeQuote
	}
	return out
}

func (a *Aggregator) purge(now time.Time) {
	req := store.PurgeCandles1s(now.Add(-retention1s))
	if err := a.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
		log.Debug().Err(err).Msg("purge enqueue failed")
	}
}
