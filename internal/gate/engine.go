package gate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/costs"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/fx"
	"github.com/krwatch/listingpulse/internal/market"
	"github.com/krwatch/listingpulse/internal/metrics"
	"github.com/krwatch/listingpulse/internal/refprice"
	"github.com/krwatch/listingpulse/internal/scenario"
	"github.com/krwatch/listingpulse/internal/store"
	"github.com/krwatch/listingpulse/internal/supply"
)

// RateResolver yields the current KRW/USD rate.
type RateResolver interface {
	Rate(ctx context.Context) fx.Result
}

// PriceFetcher yields global reference prices and the 3-venue VWAP.
type PriceFetcher interface {
	Fetch(ctx context.Context, symbol string) (refprice.Quote, bool)
	GlobalVWAP(ctx context.Context, symbol string) (price, volume float64, top string)
}

// DomesticQuoter yields the last KRW trade price on a domestic venue.
type DomesticQuoter interface {
	LastPriceKRW(ctx context.Context, exchange, symbol string) (float64, error)
}

// WalletGate reports deposit/withdrawal openness for a symbol on a venue.
type WalletGate interface {
	Status(ctx context.Context, exchange, symbol string) (depositOpen, withdrawalOpen bool, err error)
}

// BookSource serves the freshest known orderbook for a market, usually
// backed by a collector's depth cache. May return nil.
type BookSource interface {
	Snapshot(mkt string) *market.Orderbook
}

type writerSink interface {
	Enqueue(sql string, args []any, prio store.Priority) error
}

// Engine composes FX, reference price, cost model, supply and scenario
// enrichment into one advisory decision per listing.
type Engine struct {
	fx       RateResolver
	ref      PriceFetcher
	domestic DomesticQuoter
	wallet   WalletGate
	books    BookSource
	model    *costs.Model
	writer   writerSink

	planner    *scenario.Planner
	classifier *supply.Classifier
	hotWallet  func(ctx context.Context, exchange, symbol string) *supply.Factor

	vasp       map[string]domain.VASPStatus
	thresholds Thresholds
	amountKRW  float64
	network    string

	premiumSampleEvery time.Duration
	premiumWindow      time.Duration
}

// Deps bundles the engine's collaborators; nil planner/classifier/books
// disable those enrichments.
type Deps struct {
	FX         RateResolver
	Ref        PriceFetcher
	Domestic   DomesticQuoter
	Wallet     WalletGate
	Books      BookSource
	Model      *costs.Model
	Writer     writerSink
	Planner    *scenario.Planner
	Classifier *supply.Classifier

	// HotWallet optionally contributes the hot-wallet supply factor,
	// backed by on-chain balance reads. Nil skips the factor.
	HotWallet func(ctx context.Context, exchange, symbol string) *supply.Factor
}

func NewEngine(cfg *config.Config, d Deps) *Engine {
	vasp := make(map[string]domain.VASPStatus, len(cfg.VASP.Routes))
	for route, status := range cfg.VASP.Routes {
		vasp[route] = domain.ParseVASPStatus(status)
	}
	return &Engine{
		fx:         d.FX,
		ref:        d.Ref,
		domestic:   d.Domestic,
		wallet:     d.Wallet,
		books:      d.Books,
		model:      d.Model,
		writer:     d.Writer,
		planner:    d.Planner,
		classifier: d.Classifier,
		hotWallet:  d.HotWallet,
		vasp:       vasp,
		thresholds: Thresholds{
			MinGlobalVolumeUSD: cfg.Thresholds.Gate.MinGlobalVolumeUSD,
			MaxTransferMin:     cfg.Thresholds.Gate.MaxTransferMin,
			MinRefConfidence:   cfg.Thresholds.Gate.MinRefConfidence,
			DegradedConfidence: cfg.Thresholds.Gate.DegradedConfidence,
		},
		amountKRW: cfg.Fees.DefaultAmountKRW,
		network:   cfg.Networks.Default,

		premiumSampleEvery: time.Minute,
		premiumWindow:      time.Hour,
	}
}

// Premium is the domestic-vs-global gap in percent over the FX-converted
// global reference. Zero iff krw == usd*fxRate; sign follows the gap.
func Premium(krwPrice, globalUSD, fxRate float64) float64 {
	base := globalUSD * fxRate
	if base <= 0 {
		return 0
	}
	return (krwPrice - base) / base * 100
}

// AnalyzeListing runs the full decision pipeline for one new listing. It
// never returns an error: failures surface as blockers on the Result.
func (e *Engine) AnalyzeListing(ctx context.Context, symbol, exchange string) *Result {
	res := &Result{
		DecisionID:   uuid.NewString(),
		Symbol:       symbol,
		Exchange:     exchange,
		AnalyzeStart: time.Now().UTC(),
	}

	fxRes := e.fx.Rate(ctx)
	res.FXSource = fxRes.Source

	vwap, globalVol, top := e.ref.GlobalVWAP(ctx, symbol)
	quote, quoteOK := e.ref.Fetch(ctx, symbol)

	refUSD := vwap
	if refUSD <= 0 && quoteOK {
		refUSD = quote.PriceUSD
	}
	confidence := 0.0
	if quoteOK {
		confidence = quote.Confidence
		if globalVol <= 0 {
			globalVol = quote.Volume24hUSD
		}
	}
	res.GlobalVolumeUSD = globalVol
	res.TopExchange = top
	res.Hedge = hedgeFromSource(quote.Source, quoteOK)
	res.Network = e.network

	krwPrice, err := e.domestic.LastPriceKRW(ctx, exchange, symbol)
	if err != nil || krwPrice <= 0 || refUSD <= 0 {
		res.Blockers = append(res.Blockers, "price unavailable: domestic or global quote missing")
		res.Level = domain.LevelHigh
		res.AnalyzeEnd = time.Now().UTC()
		e.finish(res)
		return res
	}

	res.PremiumPct = Premium(krwPrice, refUSD, fxRes.Rate)

	var book *market.Orderbook
	if e.books != nil {
		book = e.books.Snapshot(exchange + ":" + symbol)
	}
	cost := e.model.Estimate(costs.Input{
		PremiumPct: res.PremiumPct,
		Network:    e.network,
		AmountKRW:  e.amountKRW,
		Hedge:      res.Hedge,
		FXRate:     fxRes.Rate,
		Orderbook:  book,
		BuyVenue:   exchange,
		SellVenue:  top,
	})
	res.NetProfitPct = cost.NetProfitPct
	res.TotalCostPct = cost.TotalCostPct

	depositOpen, withdrawalOpen := true, true
	if e.wallet != nil {
		if d, w, err := e.wallet.Status(ctx, exchange, symbol); err == nil {
			depositOpen, withdrawalOpen = d, w
		} else {
			log.Debug().Err(err).Str("exchange", exchange).Msg("wallet status unavailable, assuming open")
		}
	}

	in := Input{
		Symbol:          symbol,
		Exchange:        exchange,
		PremiumPct:      res.PremiumPct,
		Cost:            cost,
		DepositOpen:     depositOpen,
		WithdrawalOpen:  withdrawalOpen,
		TransferTimeMin: e.model.TransferTime(e.network),
		GlobalVolumeUSD: globalVol,
		FXSource:        fxRes.Source,
		RefConfidence:   confidence,
		Hedge:           res.Hedge,
		Network:         e.network,
		TopExchange:     top,
		VASP:            e.vasp[exchange+"->"+top],
	}

	blockers, warnings, watchOnly := Evaluate(in, e.thresholds)
	res.Blockers = append(res.Blockers, blockers...)
	res.Warnings = warnings
	res.WatchOnly = watchOnly
	res.CanProceed = len(res.Blockers) == 0
	res.Level = Level(res.CanProceed, in, res.Blockers, res.Warnings, e.thresholds)

	e.enrich(ctx, res, in)

	res.AnalyzeEnd = time.Now().UTC()
	e.finish(res)
	return res
}

// TrackPremium samples the domestic-vs-global premium after a listing and
// backfills max_premium_pct and premium_timeline onto the listing row.
// Blocks for the whole window; run it on its own goroutine. Cancellation
// flushes whatever was sampled so far.
func (e *Engine) TrackPremium(ctx context.Context, symbol, exchange string, listedAt time.Time) {
	type point struct {
		TS         int64   `json:"ts"`
		PremiumPct float64 `json:"premium_pct"`
	}
	var (
		timeline []point
		peak     float64
	)
	flush := func() {
		if len(timeline) == 0 || e.writer == nil {
			return
		}
		buf, err := json.Marshal(timeline)
		if err != nil {
			return
		}
		req := store.UpdateListingPremium(symbol, exchange, listedAt, peak, string(buf))
		if err := e.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("premium backfill enqueue failed")
		}
	}

	ticker := time.NewTicker(e.premiumSampleEvery)
	defer ticker.Stop()
	deadline := time.After(e.premiumWindow)
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-deadline:
			flush()
			return
		case now := <-ticker.C:
			fxRes := e.fx.Rate(ctx)
			vwap, _, _ := e.ref.GlobalVWAP(ctx, symbol)
			krw, err := e.domestic.LastPriceKRW(ctx, exchange, symbol)
			if err != nil || krw <= 0 || vwap <= 0 || fxRes.Rate <= 0 {
				continue
			}
			p := Premium(krw, vwap, fxRes.Rate)
			timeline = append(timeline, point{TS: now.UTC().Unix(), PremiumPct: p})
			if len(timeline) == 1 || p > peak {
				peak = p
			}
		}
	}
}

// enrich attaches supply classification and scenario planning when those
// components are configured. Absence of data never blocks.
func (e *Engine) enrich(ctx context.Context, res *Result, in Input) {
	if e.classifier != nil {
		factors := supply.Inputs{
			Withdrawal: &supply.Factor{Score: withdrawalScore(in.WithdrawalOpen), Confidence: 0.8},
			NetworkSpeed: &supply.Factor{
				Score:      networkSpeedScore(in.TransferTimeMin),
				Confidence: 0.9,
			},
		}
		if e.hotWallet != nil {
			factors.HotWallet = e.hotWallet(ctx, res.Exchange, res.Symbol)
		}
		cls := e.classifier.Classify(factors)
		res.Supply = cls.Class
	}
	if e.planner != nil {
		plan := e.planner.PlanScenarios(scenario.Input{
			Exchange: res.Exchange,
			Supply:   res.Supply,
			Listing:  domain.ListingUnknown,
			Hedge:    res.Hedge,
			Market:   domain.MarketNeutral,
		})
		res.Scenario = &plan
	}
}

func (e *Engine) finish(res *Result) {
	metrics.GateDecisions.WithLabelValues(res.Level.String(), boolLabel(res.CanProceed)).Inc()

	if e.writer != nil {
		req := store.InsertGateLog(store.GateLogRow{
			Timestamp:       res.AnalyzeEnd,
			DecisionID:      res.DecisionID,
			Symbol:          res.Symbol,
			Exchange:        res.Exchange,
			CanProceed:      res.CanProceed,
			AlertLevel:      res.Level.String(),
			PremiumPct:      res.PremiumPct,
			NetProfitPct:    res.NetProfitPct,
			TotalCostPct:    res.TotalCostPct,
			FXSource:        res.FXSource.String(),
			Blockers:        res.Blockers,
			Warnings:        res.Warnings,
			HedgeType:       res.Hedge.String(),
			Network:         res.Network,
			GlobalVolumeUSD: res.GlobalVolumeUSD,
			TopExchange:     res.TopExchange,
			DurationMS:      res.Duration().Milliseconds(),
		})
		// Decision rows are the audit trail: block rather than drop.
		if err := e.writer.Enqueue(req.SQL, req.Args, store.Critical); err != nil {
			log.Error().Err(err).Msg("gate log enqueue failed")
		}
	}

	log.Info().
		Str("symbol", res.Symbol).
		Str("exchange", res.Exchange).
		Bool("proceed", res.CanProceed).
		Str("level", res.Level.String()).
		Float64("premium_pct", res.PremiumPct).
		Float64("net_profit_pct", res.NetProfitPct).
		Strs("blockers", res.Blockers).
		Dur("took", res.Duration()).
		Msg("gate decision")
}

// hedgeFromSource infers hedge availability from where the reference price
// came from: a live futures book means a CEX perp exists; spot-only means
// at best a DEX perp; an aggregator-only symbol is unhedgeable.
func hedgeFromSource(src domain.RefSource, ok bool) domain.HedgeType {
	if !ok {
		return domain.HedgeNone
	}
	switch src {
	case domain.RefBinanceFutures, domain.RefBybitFutures:
		return domain.HedgeCEX
	case domain.RefBinanceSpot, domain.RefBybitSpot, domain.RefOKXSpot:
		return domain.HedgeDEXOnly
	default:
		return domain.HedgeNone
	}
}

func withdrawalScore(open bool) float64 {
	if open {
		return 0.5
	}
	return -1
}

// networkSpeedScore maps transfer minutes onto [-1, 1]: instant chains
// read smooth, slow chains constrained.
func networkSpeedScore(minutes float64) float64 {
	switch {
	case minutes <= 3:
		return 0.8
	case minutes <= 10:
		return 0.2
	case minutes <= 30:
		return -0.4
	default:
		return -1
	}
}

func boolLabel(b bool) string {
	if b {
		return "go"
	}
	return "no_go"
}
