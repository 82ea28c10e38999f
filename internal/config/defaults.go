package config

// Shipped defaults, used when a YAML file is absent. Values mirror the
// shipped config/ directory so a bare checkout still runs.

func DefaultFees() Fees {
	return Fees{
		Exchanges: map[string]ExchangeFees{
			"upbit":   {MakerPct: 0.05, TakerPct: 0.05},
			"bithumb": {MakerPct: 0.04, TakerPct: 0.04},
			"binance": {MakerPct: 0.02, TakerPct: 0.04},
			"bybit":   {MakerPct: 0.02, TakerPct: 0.055},
			"okx":     {MakerPct: 0.02, TakerPct: 0.05},
		},
		Hedge: HedgeFees{
			CEXTakerPct:     0.055,
			DEXTakerPct:     0.05,
			FundingAvg8hPct: 0.01,
		},
		SmallOrderGasPct: 1.0,
		DefaultAmountKRW: 10_000_000,
	}
}

func DefaultNetworks() Networks {
	return Networks{
		Default: "solana",
		Networks: map[string]Network{
			"solana":   {WithdrawalFeeUSDT: 1.0, AvgTransferMin: 2},
			"ethereum": {WithdrawalFeeUSDT: 25.0, AvgTransferMin: 8},
			"arbitrum": {WithdrawalFeeUSDT: 2.5, AvgTransferMin: 5},
			"bsc":      {WithdrawalFeeUSDT: 1.5, AvgTransferMin: 4},
			"tron":     {WithdrawalFeeUSDT: 1.0, AvgTransferMin: 3},
		},
	}
}

func DefaultExchanges() Exchanges {
	return Exchanges{
		FX: FX{
			NaverURL:     "https://finance.naver.com/marketindex/exchangeDetail.naver?marketindexCd=FX_USDKRW",
			PublicAPIURL: "https://open.er-api.com/v6/latest/USD",
			CacheTTLSec:  300,
			FallbackRate: 1350,
		},
		CatalogPollSec:     map[string]int{"upbit": 30, "bithumb": 60},
		HTTPTimeoutSec:     10,
		GlobalTickerVenues: []string{"binance", "bybit", "okx"},
	}
}

func DefaultVASP() VASP {
	return VASP{Routes: map[string]string{
		"upbit->binance":   "ok",
		"upbit->bybit":     "partial",
		"upbit->okx":       "ok",
		"bithumb->binance": "ok",
		"bithumb->bybit":   "unknown",
		"bithumb->okx":     "partial",
	}}
}

func DefaultFeatures() Features {
	return Features{
		ScenarioPlanner: true,
		NoticePoller:    false,
		InteractiveBot:  false,
		WalletTracking:  false,
		HTTPAddr:        "",
	}
}

func DefaultThresholds() Thresholds {
	var t Thresholds
	t.Scenario.BaseRates = map[string]float64{"upbit": 0.45, "bithumb": 0.40}
	t.Scenario.MinSamples = 20
	t.Scenario.Coefficients = map[string]Coefficient{
		"supply_constrained": {Value: 0.20, Samples: 34},
		"supply_smooth":      {Value: -0.15, Samples: 28},
		"listing_tge":        {Value: 0.10, Samples: 15},
		"listing_direct":     {Value: -0.05, Samples: 41},
		"hedge_none":         {Value: 0.10, Samples: 22},
		"hedge_cex":          {Value: -0.05, Samples: 37},
		"market_bull":        {Value: 0.10, Samples: 26},
		"market_bear":        {Value: -0.15, Samples: 19},
		"tge_unlock_risk":    {Value: -0.20, Samples: 11},
	}
	t.Supply.Weights = map[string]float64{
		"hot_wallet":    0.30,
		"dex_liquidity": 0.25,
		"withdrawal":    0.20,
		"airdrop":       0.15,
		"network_speed": 0.10,
	}
	t.Supply.LowConfidence = 0.3
	t.Supply.TurnoverBlendPct = 0.2
	t.Supply.ConstrainedCutoff = -0.3
	t.Supply.SmoothCutoff = 0.3
	t.Gate.MinGlobalVolumeUSD = 100_000
	t.Gate.MaxTransferMin = 30
	t.Gate.MinRefConfidence = 0.6
	t.Gate.DegradedConfidence = 0.8
	return t
}
