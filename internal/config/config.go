package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Env is the optional environment surface. Every field degrades gracefully
// when missing: no bot token means dry-run alerts, no metadata key skips
// enrichment, no wallet key disables hot-wallet tracking.
type Env struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
	CoinGeckoAPIKey  string `env:"COINGECKO_API_KEY"`
	WalletRPCKey     string `env:"WALLET_RPC_API_KEY"`
	HealthFile       string `env:"HEALTH_FILE" envDefault:"artifacts/health.json"`
	DatabasePath     string `env:"DATABASE_URL" envDefault:"data/listingpulse.db"`
	RedisAddr        string `env:"REDIS_ADDR"`
}

// LoadEnv parses the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// ExchangeFees holds per-venue trading fees in percent.
type ExchangeFees struct {
	MakerPct float64 `yaml:"maker_pct"`
	TakerPct float64 `yaml:"taker_pct"`
}

// HedgeFees covers the short leg of the hedge.
type HedgeFees struct {
	CEXTakerPct     float64 `yaml:"cex_taker_pct"`
	DEXTakerPct     float64 `yaml:"dex_taker_pct"`
	FundingAvg8hPct float64 `yaml:"funding_avg_8h_pct"`
}

// Fees is config/fees.yaml.
type Fees struct {
	Exchanges        map[string]ExchangeFees `yaml:"exchanges"`
	Hedge            HedgeFees               `yaml:"hedge"`
	SmallOrderGasPct float64                 `yaml:"small_order_gas_pct"`
	DefaultAmountKRW float64                 `yaml:"default_amount_krw"`
}

// Network describes one withdrawal chain.
type Network struct {
	WithdrawalFeeUSDT float64 `yaml:"withdrawal_fee_usdt"`
	AvgTransferMin    float64 `yaml:"avg_transfer_min"`
}

// Networks is config/networks.yaml.
type Networks struct {
	Networks map[string]Network `yaml:"networks"`
	Default  string             `yaml:"default"`
}

// FX is the resolver section of config/exchanges.yaml.
type FX struct {
	NaverURL     string  `yaml:"naver_url"`
	PublicAPIURL string  `yaml:"public_api_url"`
	CacheTTLSec  int     `yaml:"cache_ttl_sec"`
	FallbackRate float64 `yaml:"fallback_rate"`
}

// Exchanges is config/exchanges.yaml.
type Exchanges struct {
	FX                 FX             `yaml:"fx"`
	CatalogPollSec     map[string]int `yaml:"catalog_poll_sec"`
	HTTPTimeoutSec     int            `yaml:"http_timeout_sec"`
	GlobalTickerVenues []string       `yaml:"global_ticker_venues"`
}

// VASP is config/vasp.yaml: route status per (from, to) pair keyed as
// "from->to".
type VASP struct {
	Routes map[string]string `yaml:"routes"`
}

// Features is config/features.yaml.
type Features struct {
	ScenarioPlanner bool   `yaml:"scenario_planner"`
	NoticePoller    bool   `yaml:"notice_poller"`
	InteractiveBot  bool   `yaml:"interactive_bot"`
	WalletTracking  bool   `yaml:"wallet_tracking"`
	HTTPAddr        string `yaml:"http_addr"`
}

// Coefficient is one additive scenario factor with its observed sample
// count. Effective weight shrinks toward zero below min_samples.
type Coefficient struct {
	Value   float64 `yaml:"value"`
	Samples int     `yaml:"samples"`
}

// Thresholds is config/thresholds.yaml.
type Thresholds struct {
	Scenario struct {
		BaseRates    map[string]float64     `yaml:"base_rates"`
		Coefficients map[string]Coefficient `yaml:"coefficients"`
		MinSamples   int                    `yaml:"min_samples"`
	} `yaml:"scenario"`
	Supply struct {
		Weights           map[string]float64 `yaml:"weights"`
		LowConfidence     float64            `yaml:"low_confidence"`
		TurnoverBlendPct  float64            `yaml:"turnover_blend_pct"`
		ConstrainedCutoff float64            `yaml:"constrained_cutoff"`
		SmoothCutoff      float64            `yaml:"smooth_cutoff"`
	} `yaml:"supply"`
	Gate struct {
		MinGlobalVolumeUSD float64 `yaml:"min_global_volume_usd"`
		MaxTransferMin     float64 `yaml:"max_transfer_min"`
		MinRefConfidence   float64 `yaml:"min_ref_confidence"`
		DegradedConfidence float64 `yaml:"degraded_confidence"`
	} `yaml:"gate"`
}

// Config bundles every YAML file plus the environment.
type Config struct {
	Env        Env
	Fees       Fees
	Networks   Networks
	Exchanges  Exchanges
	VASP       VASP
	Features   Features
	Thresholds Thresholds
}

// Load reads every config file under dir. A missing file falls back to
// shipped defaults with a warning; invalid YAML is a hard error.
func Load(dir string) (*Config, error) {
	envCfg, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:        envCfg,
		Fees:       DefaultFees(),
		Networks:   DefaultNetworks(),
		Exchanges:  DefaultExchanges(),
		VASP:       DefaultVASP(),
		Features:   DefaultFeatures(),
		Thresholds: DefaultThresholds(),
	}

	loaders := []struct {
		file string
		dst  any
	}{
		{"fees.yaml", &cfg.Fees},
		{"networks.yaml", &cfg.Networks},
		{"exchanges.yaml", &cfg.Exchanges},
		{"vasp.yaml", &cfg.VASP},
		{"features.yaml", &cfg.Features},
		{"thresholds.yaml", &cfg.Thresholds},
	}
	for _, l := range loaders {
		if err := loadYAML(filepath.Join(dir, l.file), l.dst); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("file", path).Msg("config file missing, using defaults")
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
