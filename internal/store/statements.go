package store

import (
	"encoding/json"
	"time"

	"github.com/krwatch/listingpulse/internal/market"
)

// Statement builders used by the pipeline. Keeping the SQL next to the
// writer makes the replace-on-conflict contracts visible in one place.

// UpsertCandle1s builds the replace-on-conflict insert for a 1-second bar.
func UpsertCandle1s(c market.Candle) Request {
	return Request{
		SQL: `INSERT OR REPLACE INTO ohlcv_1s
			(market, ts_second, open, high, low, close, volume_base, volume_quote)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{c.Market, c.Bucket.Unix(), c.Open, c.High, c.Low, c.Close, c.VolumeBase, c.VolumeQuote},
	}
}

// UpsertCandle1m builds the replace-on-conflict insert for a 1-minute bar.
// Re-rollups with more complete 1s data supersede prior rows.
func UpsertCandle1m(c market.Candle) Request {
	return Request{
		SQL: `INSERT OR REPLACE INTO ohlcv_1m
			(market, ts_minute, open, high, low, close, volume_base, volume_quote)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{c.Market, c.Bucket.Unix(), c.Open, c.High, c.Low, c.Close, c.VolumeBase, c.VolumeQuote},
	}
}

// PurgeCandles1s deletes 1s bars older than cutoff.
func PurgeCandles1s(cutoff time.Time) Request {
	return Request{
		SQL:  `DELETE FROM ohlcv_1s WHERE ts_second < ?`,
		Args: []any{cutoff.Unix()},
	}
}

// InsertFXSnapshot appends one FX resolution.
func InsertFXSnapshot(ts time.Time, rate float64, source string, extras map[string]*float64) Request {
	get := func(k string) *float64 { return extras[k] }
	return Request{
		SQL: `INSERT INTO fx_snapshots
			(ts, rate_krw_per_usd, source, btc_krw, btc_usd, usdt_krw_upbit, usdt_krw_bithumb, real_fx_rate)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{
			ts.UTC().Format(time.RFC3339), rate, source,
			get("btc_krw"), get("btc_usd"), get("usdt_krw_upbit"), get("usdt_krw_bithumb"), get("real_fx_rate"),
		},
	}
}

// UpsertDebounce records a MEDIUM alert send for key. The writer serialises
// concurrent upserts so the record can never move backwards in time.
func UpsertDebounce(key string, sentAt time.Time, ttl time.Duration) Request {
	return Request{
		SQL: `INSERT INTO alert_debounce (key, last_sent_at, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				last_sent_at = MAX(last_sent_at, excluded.last_sent_at),
				expires_at   = MAX(expires_at, excluded.expires_at)`,
		Args: []any{key, sentAt.Unix(), sentAt.Add(ttl).Unix()},
	}
}

// UpsertToken writes or refreshes a token identity row.
func UpsertToken(symbol, canonicalID, name string) Request {
	return Request{
		SQL: `INSERT INTO tokens (symbol, canonical_id, name, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				canonical_id = excluded.canonical_id,
				name         = excluded.name,
				updated_at   = excluded.updated_at`,
		Args: []any{symbol, canonicalID, name, time.Now().UTC().Format(time.RFC3339)},
	}
}

// UpsertTokenChain binds a symbol to one chain contract.
func UpsertTokenChain(symbol, chain, contract string, decimals int) Request {
	return Request{
		SQL: `INSERT OR REPLACE INTO token_chains (symbol, chain, contract_address, decimals)
			VALUES (?, ?, ?, ?)`,
		Args: []any{symbol, chain, contract, decimals},
	}
}

// GateLogRow mirrors one decision row appended after each gate analysis.
type GateLogRow struct {
	Timestamp       time.Time
	DecisionID      string
	Symbol          string
	Exchange        string
	CanProceed      bool
	AlertLevel      string
	PremiumPct      float64
	NetProfitPct    float64
	TotalCostPct    float64
	FXSource        string
	Blockers        []string
	Warnings        []string
	HedgeType       string
	Network         string
	GlobalVolumeUSD float64
	TopExchange     string
	VCBackers       string
	MarketMaker     string
	DurationMS      int64
}

// InsertGateLog appends one gate decision.
func InsertGateLog(r GateLogRow) Request {
	blockers, _ := json.Marshal(r.Blockers)
	warnings, _ := json.Marshal(r.Warnings)
	return Request{
		SQL: `INSERT INTO gate_analysis_log
			(ts, decision_id, symbol, exchange, can_proceed, alert_level, premium_pct,
			 net_profit_pct, total_cost_pct, fx_source, blockers_json, warnings_json,
			 hedge_type, network, global_volume_usd, top_exchange, vc_backers, market_maker, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{
			r.Timestamp.UTC().Format(time.RFC3339), r.DecisionID, r.Symbol, r.Exchange,
			boolInt(r.CanProceed), r.AlertLevel, r.PremiumPct, r.NetProfitPct, r.TotalCostPct,
			r.FXSource, string(blockers), string(warnings), r.HedgeType, r.Network,
			r.GlobalVolumeUSD, r.TopExchange, r.VCBackers, r.MarketMaker, r.DurationMS,
		},
	}
}

// InsertListingHistory records a detected listing.
func InsertListingHistory(symbol, exchange string, listedAt time.Time, listingType, topExchange string, marketCap, fdv float64) Request {
	return Request{
		SQL: `INSERT OR REPLACE INTO listing_history
			(symbol, exchange, listing_time, listing_type, market_cap_usd, fdv_usd, top_exchange)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{symbol, exchange, listedAt.UTC().Format(time.RFC3339), listingType, marketCap, fdv, topExchange},
	}
}

// UpdateListingPremium backfills the post-listing premium peak and its
// timeline onto an existing listing row once the tracking window closes.
func UpdateListingPremium(symbol, exchange string, listedAt time.Time, maxPremiumPct float64, timelineJSON string) Request {
	return Request{
		SQL: `UPDATE listing_history SET max_premium_pct = ?, premium_timeline = ?
			WHERE symbol = ? AND exchange = ? AND listing_time = ?`,
		Args: []any{maxPremiumPct, timelineJSON, symbol, exchange, listedAt.UTC().Format(time.RFC3339)},
	}
}

// LatencyRow captures the detect→alert timing chain of one event.
type LatencyRow struct {
	Timestamp    time.Time
	Symbol       string
	Exchange     string
	EventType    string
	DetectAt     time.Time
	AnalyzeStart time.Time
	AnalyzeEnd   time.Time
	AlertSentAt  time.Time
	AlertLevel   string
	CanProceed   bool
}

// InsertAlertLatency appends one latency row with derived durations.
func InsertAlertLatency(r LatencyRow) Request {
	return Request{
		SQL: `INSERT INTO alert_latency_log
			(ts, symbol, exchange, event_type, detect_ts, analyze_start_ts, analyze_end_ts,
			 alert_sent_ts, detect_to_alert_ms, analyze_duration_ms, alert_level, can_proceed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{
			r.Timestamp.UTC().Format(time.RFC3339), r.Symbol, r.Exchange, r.EventType,
			r.DetectAt.UnixMilli(), r.AnalyzeStart.UnixMilli(), r.AnalyzeEnd.UnixMilli(),
			r.AlertSentAt.UnixMilli(),
			r.AlertSentAt.Sub(r.DetectAt).Milliseconds(),
			r.AnalyzeEnd.Sub(r.AnalyzeStart).Milliseconds(),
			r.AlertLevel, boolInt(r.CanProceed),
		},
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
