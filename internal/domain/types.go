package domain

// Enumerations shared across the decision pipeline. Strings appear only at
// serialisation boundaries (DB rows, alerts, health file).

// AlertLevel grades a routed alert.
type AlertLevel int

const (
	LevelInfo AlertLevel = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelLow:
		return "LOW"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// HedgeType describes how the short leg can be placed.
type HedgeType int

const (
	HedgeCEX HedgeType = iota
	HedgeDEXOnly
	HedgeNone
)

func (h HedgeType) String() string {
	switch h {
	case HedgeDEXOnly:
		return "dex_only"
	case HedgeNone:
		return "none"
	default:
		return "cex"
	}
}

// ListingType distinguishes how a symbol arrived on a domestic venue.
type ListingType int

const (
	ListingUnknown ListingType = iota
	ListingTGE                 // first listing anywhere
	ListingDirect              // domestic after prior foreign listing
	ListingSide                // domestic after another domestic listing
)

func (t ListingType) String() string {
	switch t {
	case ListingTGE:
		return "TGE"
	case ListingDirect:
		return "DIRECT"
	case ListingSide:
		return "SIDE"
	default:
		return "UNKNOWN"
	}
}

// VASPStatus is the compliance verdict for an on-chain route between two
// venues.
type VASPStatus int

const (
	VASPUnknown VASPStatus = iota
	VASPOK
	VASPPartial
	VASPBlocked
)

func (v VASPStatus) String() string {
	switch v {
	case VASPOK:
		return "ok"
	case VASPPartial:
		return "partial"
	case VASPBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ParseVASPStatus maps a config string; anything unrecognised is unknown.
func ParseVASPStatus(s string) VASPStatus {
	switch s {
	case "ok":
		return VASPOK
	case "partial":
		return VASPPartial
	case "blocked":
		return VASPBlocked
	default:
		return VASPUnknown
	}
}

// SupplyClass is the supply-pressure category for a new listing.
type SupplyClass int

const (
	SupplyUnknown SupplyClass = iota
	SupplyConstrained
	SupplyNeutral
	SupplySmooth
)

func (s SupplyClass) String() string {
	switch s {
	case SupplyConstrained:
		return "constrained"
	case SupplyNeutral:
		return "neutral"
	case SupplySmooth:
		return "smooth"
	default:
		return "unknown"
	}
}

// ScenarioOutcome buckets the predicted result of chasing a listing.
type ScenarioOutcome int

const (
	OutcomeMang ScenarioOutcome = iota
	OutcomeNeutral
	OutcomeHeung
	OutcomeHeungBig
)

func (o ScenarioOutcome) String() string {
	switch o {
	case OutcomeHeungBig:
		return "HEUNG_BIG"
	case OutcomeHeung:
		return "HEUNG"
	case OutcomeNeutral:
		return "NEUTRAL"
	default:
		return "MANG"
	}
}

// MarketCondition is the coarse market regime fed to the scenario planner.
type MarketCondition int

const (
	MarketNeutral MarketCondition = iota
	MarketBull
	MarketBear
)

func (m MarketCondition) String() string {
	switch m {
	case MarketBull:
		return "bull"
	case MarketBear:
		return "bear"
	default:
		return "neutral"
	}
}

// FXSource identifies which fallback stage produced the KRW/USD rate.
type FXSource int

const (
	FXNaver FXSource = iota
	FXPublicAPI
	FXUSDTKRW
	FXBTCImplied
	FXETHImplied
	FXCached
	FXHardcodedFallback
)

func (s FXSource) String() string {
	switch s {
	case FXNaver:
		return "naver"
	case FXPublicAPI:
		return "public_api"
	case FXUSDTKRW:
		return "usdt_krw"
	case FXBTCImplied:
		return "btc_implied"
	case FXETHImplied:
		return "eth_implied"
	case FXCached:
		return "cached"
	default:
		return "hardcoded_fallback"
	}
}

// Trusted reports whether the gate may treat this source as reliable.
func (s FXSource) Trusted() bool {
	switch s {
	case FXNaver, FXBTCImplied, FXETHImplied:
		return true
	default:
		return false
	}
}

// RefSource identifies the winning reference-price stage.
type RefSource int

const (
	RefBinanceFutures RefSource = iota
	RefBybitFutures
	RefBinanceSpot
	RefBybitSpot
	RefOKXSpot
	RefCoinGecko
	RefNone
)

func (s RefSource) String() string {
	switch s {
	case RefBinanceFutures:
		return "binance_futures"
	case RefBybitFutures:
		return "bybit_futures"
	case RefBinanceSpot:
		return "binance_spot"
	case RefBybitSpot:
		return "bybit_spot"
	case RefOKXSpot:
		return "okx_spot"
	case RefCoinGecko:
		return "coingecko"
	default:
		return "none"
	}
}

// Confidence is the fixed trust score of this source: futures venues carry
// the tightest spreads, aggregators the loosest.
func (s RefSource) Confidence() float64 {
	switch s {
	case RefBinanceFutures:
		return 0.95
	case RefBybitFutures:
		return 0.90
	case RefBinanceSpot:
		return 0.85
	case RefBybitSpot:
		return 0.80
	case RefOKXSpot:
		return 0.75
	case RefCoinGecko:
		return 0.55
	default:
		return 0
	}
}
