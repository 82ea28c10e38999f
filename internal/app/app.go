package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/alert"
	"github.com/krwatch/listingpulse/internal/cache"
	"github.com/krwatch/listingpulse/internal/collector"
	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/costs"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/fx"
	"github.com/krwatch/listingpulse/internal/gate"
	"github.com/krwatch/listingpulse/internal/health"
	"github.com/krwatch/listingpulse/internal/listing"
	"github.com/krwatch/listingpulse/internal/market"
	"github.com/krwatch/listingpulse/internal/metrics"
	"github.com/krwatch/listingpulse/internal/refprice"
	"github.com/krwatch/listingpulse/internal/registry"
	"github.com/krwatch/listingpulse/internal/rollup"
	"github.com/krwatch/listingpulse/internal/scenario"
	"github.com/krwatch/listingpulse/internal/store"
	"github.com/krwatch/listingpulse/internal/supply"
	"github.com/krwatch/listingpulse/internal/wallet"
)

// warmMarkets keep each stream alive between listings so connection
// health is continuously observable. New listings join via AddMarket.
var (
	warmUpbit   = []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"}
	warmBithumb = []string{"BTC_KRW", "ETH_KRW", "XRP_KRW"}
)

// Run boots the whole pipeline and blocks until ctx is cancelled, then
// drives the ordered shutdown. Only this startup path may terminate the
// process: everything after the pipeline is up degrades instead of
// failing.
func Run(ctx context.Context, env config.Env, cfg *config.Config) error {
	// 1. Storage first; a migration failure aborts startup.
	db, err := store.Open(env.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(db, store.Migrations()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	schemaVersion, err := store.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	reader, err := store.OpenReader(env.DatabasePath)
	if err != nil {
		return fmt.Errorf("open read connection: %w", err)
	}
	defer reader.Close()

	// 2. The single writer.
	writer := store.NewWriter(db, 0, 0)
	writer.Start()

	httpTimeout := time.Duration(cfg.Exchanges.HTTPTimeoutSec) * time.Second
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	hot := cache.NewAuto(env.RedisAddr)

	// 3. Gate engine dependencies.
	var provider registry.MetadataProvider
	if env.CoinGeckoAPIKey != "" {
		provider = registry.NewCoinGecko(env.CoinGeckoAPIKey)
	}
	tokens := registry.New(writer, provider)
	if err := tokens.Hydrate(ctx, reader); err != nil {
		return fmt.Errorf("hydrate token registry: %w", err)
	}

	depth := collector.NewDepthCache()
	quoter := gate.NewRESTQuoter(httpTimeout)
	var tracker *wallet.Tracker
	if cfg.Features.WalletTracking {
		tracker = wallet.NewTracker("https://mainnet.infura.io/v3", env.WalletRPCKey)
	}

	deps := gate.Deps{
		FX:        fx.NewResolver(cfg.Exchanges.FX, httpTimeout, writer),
		Ref:       refprice.NewFetcher(httpTimeout),
		Domestic:  quoter,
		Wallet:    quoter,
		Books:     depthBooks{depth},
		Model:     costs.NewModel(cfg.Fees, cfg.Networks),
		Writer:    writer,
		HotWallet: hotWalletHook(tracker, tokens),
	}
	if cfg.Features.ScenarioPlanner {
		deps.Planner = scenario.NewPlanner(cfg.Thresholds)
		deps.Classifier = supply.NewClassifier(cfg.Thresholds)
	}
	engine := gate.NewEngine(cfg, deps)

	router := alert.NewRouter(
		alert.NewTelegram(env.TelegramBotToken, env.TelegramChatID),
		reader, writer, hot,
	)

	// 4. Long-lived tasks.
	sink := func(c market.Candle) {
		req := store.UpsertCandle1s(c)
		if err := writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
			log.Debug().Err(err).Str("market", c.Market).Msg("1s bar dropped")
		}
	}
	upbitBuckets := collector.NewBuckets(sink)
	bithumbBuckets := collector.NewBuckets(sink)
	upbitConn := collector.NewConn(collector.NewUpbit(upbitBuckets), warmUpbit)
	bithumbConn := collector.NewConn(collector.NewBithumb(bithumbBuckets, depth), warmBithumb)

	agg := rollup.New(reader, writer)

	onListing := func(ctx context.Context, ev listing.Event) {
		handleListing(ctx, ev, tokens, engine, router, writer, upbitConn, bithumbConn)
	}
	pollFor := func(exchange string, fallback int) time.Duration {
		if sec := cfg.Exchanges.CatalogPollSec[exchange]; sec > 0 {
			return time.Duration(sec) * time.Second
		}
		return time.Duration(fallback) * time.Second
	}
	upbitDetector := listing.NewDetector(listing.NewUpbitCatalog(httpTimeout), pollFor("upbit", 30), onListing)
	bithumbDetector := listing.NewDetector(listing.NewBithumbCatalog(httpTimeout), pollFor("bithumb", 60), onListing)

	var noticePoller *listing.NoticePoller
	if cfg.Features.NoticePoller {
		onNotice := func(ctx context.Context, n listing.Notice) {
			router.Notify(ctx, alert.Message{
				Level:       noticeLevel(n.Severity),
				Text:        formatNoticeAlert(n),
				DebounceKey: n.DedupKey,
			})
			if n.Action != listing.ActionTrade {
				return
			}
			// Pre-detection: register and subscribe ahead of the catalog
			// confirming the listing. The gate runs when the catalog diff
			// fires, once the market actually quotes.
			for _, sym := range n.Symbols {
				tokens.Register(ctx, sym)
				switch n.Exchange {
				case "upbit":
					upbitConn.AddMarket("KRW-" + sym)
				case "bithumb":
					bithumbConn.AddMarket(sym + "_KRW")
				}
			}
		}
		noticePoller = listing.NewNoticePoller(
			[]listing.NoticeSource{
				listing.NewUpbitNotices(httpTimeout),
				listing.NewBithumbNotices(httpTimeout),
			},
			pollFor("notices", 60), onNotice)
	}

	monitor := health.NewMonitor(env.HealthFile, schemaVersion,
		map[string]health.CollectorState{"upbit": upbitConn, "bithumb": bithumbConn},
		writer,
	)

	var bot *alert.Bot
	if cfg.Features.InteractiveBot {
		bot = alert.NewBot(env.TelegramBotToken, env.TelegramChatID,
			alert.NewTelegram(env.TelegramBotToken, env.TelegramChatID), monitor, reader)
		if bot == nil {
			log.Warn().Msg("interactive bot enabled but telegram credentials missing")
		}
	}

	taskCtx, cancelTasks := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(taskCtx)
			log.Debug().Str("task", name).Msg("task stopped")
		}()
	}

	start("upbit-ws", upbitConn.Run)
	start("bithumb-ws", bithumbConn.Run)
	start("upbit-flush", upbitBuckets.FlushLoop)
	start("bithumb-flush", bithumbBuckets.FlushLoop)
	start("rollup", agg.Run)
	start("upbit-catalog", upbitDetector.Run)
	start("bithumb-catalog", bithumbDetector.Run)
	if noticePoller != nil {
		start("notice-poll", noticePoller.Run)
	}
	start("alert-batch", router.Run)
	start("health", monitor.Run)
	if bot != nil {
		start("bot", bot.Run)
	}
	if cfg.Features.HTTPAddr != "" {
		start("http", func(c context.Context) {
			if err := health.Serve(c, cfg.Features.HTTPAddr, monitor); err != nil {
				log.Error().Err(err).Msg("health endpoint failed")
			}
		})
	}

	log.Info().Int("schema_version", schemaVersion).Msg("pipeline started")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Ordered teardown: stop intake, flush in-memory state downstream,
	// then let the writer drain and close storage last.
	cancelTasks()
	wg.Wait()

	upbitBuckets.FlushAll()
	bithumbBuckets.FlushAll()
	agg.ForceRollup(context.Background(), time.Now())
	router.FlushBatch(context.Background())

	writer.Shutdown()
	log.Info().Uint64("queue_drops", writer.Drops()).Msg("pipeline stopped")
	return nil
}

// depthBooks adapts the Bithumb depth cache to the gate's book lookup
// keyed "exchange:SYMBOL". Upbit books are not cached; the cost model
// falls back to its default slippage there.
type depthBooks struct{ depth *collector.DepthCache }

func (d depthBooks) Snapshot(mkt string) *market.Orderbook {
	exchange, symbol, ok := strings.Cut(mkt, ":")
	if !ok || !strings.EqualFold(exchange, "bithumb") {
		return nil
	}
	return d.depth.Snapshot(symbol)
}

// hotWalletHook bridges the registry's chain bindings and the wallet
// tracker into a supply factor. Nil when tracking is disabled.
func hotWalletHook(tracker *wallet.Tracker, tokens *registry.Registry) func(context.Context, string, string) *supply.Factor {
	if tracker == nil {
		return nil
	}
	return func(ctx context.Context, exchange, symbol string) *supply.Factor {
		tok, ok := tokens.Lookup(symbol)
		if !ok {
			return nil
		}
		for _, chain := range tok.Chains {
			if chain.Chain != "ethereum" {
				continue
			}
			return tracker.HotWalletFactor(ctx, exchange, chain.Contract, chain.Decimals)
		}
		return nil
	}
}

// handleListing is the new-listing hot path: register, subscribe, decide,
// log latency, alert.
func handleListing(
	ctx context.Context,
	ev listing.Event,
	tokens *registry.Registry,
	engine *gate.Engine,
	router *alert.Router,
	writer interface {
		Enqueue(sql string, args []any, prio store.Priority) error
	},
	upbitConn, bithumbConn *collector.Conn,
) {
	tokens.Register(ctx, ev.Symbol)

	switch ev.Exchange {
	case "upbit":
		upbitConn.AddMarket("KRW-" + ev.Symbol)
	case "bithumb":
		bithumbConn.AddMarket(ev.Symbol + "_KRW")
	}

	res := engine.AnalyzeListing(ctx, ev.Symbol, ev.Exchange)

	histReq := store.InsertListingHistory(ev.Symbol, ev.Exchange, ev.DetectedAt,
		domain.ListingUnknown.String(), res.TopExchange, 0, 0)
	if err := writer.Enqueue(histReq.SQL, histReq.Args, store.Normal); err != nil {
		log.Warn().Err(err).Msg("listing history enqueue failed")
	}
	// Backfills max_premium_pct and premium_timeline once the window ends.
	go engine.TrackPremium(ctx, ev.Symbol, ev.Exchange, ev.DetectedAt)

	router.Notify(ctx, alert.Message{
		Level:       res.Level,
		Text:        formatGateAlert(res),
		DebounceKey: "listing:" + ev.Exchange + ":" + ev.Symbol,
	})
	sentAt := time.Now().UTC()

	latReq := store.InsertAlertLatency(store.LatencyRow{
		Timestamp:    sentAt,
		Symbol:       ev.Symbol,
		Exchange:     ev.Exchange,
		EventType:    "new_listing",
		DetectAt:     ev.DetectedAt,
		AnalyzeStart: res.AnalyzeStart,
		AnalyzeEnd:   res.AnalyzeEnd,
		AlertSentAt:  sentAt,
		AlertLevel:   res.Level.String(),
		CanProceed:   res.CanProceed,
	})
	if err := writer.Enqueue(latReq.SQL, latReq.Args, store.Normal); err != nil {
		log.Warn().Err(err).Msg("latency log enqueue failed")
	}
	metrics.AlertLatency.Observe(sentAt.Sub(ev.DetectedAt).Seconds())
}

func noticeLevel(s listing.Severity) domain.AlertLevel {
	switch s {
	case listing.SeverityCritical:
		return domain.LevelCritical
	case listing.SeverityHigh:
		return domain.LevelHigh
	case listing.SeverityMedium:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

func formatNoticeAlert(n listing.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s notice (%s): %s", n.Severity, n.Exchange, n.Type, n.Title)
	if len(n.Symbols) > 0 {
		fmt.Fprintf(&b, "\nsymbols: %s", strings.Join(n.Symbols, ", "))
	}
	if n.ListingTime != nil {
		fmt.Fprintf(&b, "\nlisting at %s", n.ListingTime.Format(time.RFC3339))
	}
	return b.String()
}

func formatGateAlert(res *gate.Result) string {
	var b strings.Builder
	verdict := "NO-GO"
	if res.CanProceed {
		verdict = "GO"
	}
	if res.WatchOnly {
		verdict = "WATCH-ONLY"
	}
	fmt.Fprintf(&b, "[%s] %s on %s: %s\n", res.Level, res.Symbol, res.Exchange, verdict)
	fmt.Fprintf(&b, "premium %.2f%%, net %.2f%% (cost %.2f%%), fx %s, hedge %s via %s\n",
		res.PremiumPct, res.NetProfitPct, res.TotalCostPct, res.FXSource, res.Hedge, res.TopExchange)
	if len(res.Blockers) > 0 {
		fmt.Fprintf(&b, "blockers: %s\n", strings.Join(res.Blockers, "; "))
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "warnings: %s\n", strings.Join(res.Warnings, "; "))
	}
	if res.Scenario != nil {
		fmt.Fprintf(&b, "likely %s (p=%.2f)", res.Scenario.Likely.Outcome, res.Scenario.Likely.Probability)
	}
	return strings.TrimRight(b.String(), "\n")
}
