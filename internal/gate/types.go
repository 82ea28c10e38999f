package gate

import (
	"time"

	"github.com/krwatch/listingpulse/internal/costs"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/scenario"
)

// Input is the fully-resolved picture the blocker/warning evaluation runs
// on. Building it is the engine's job; evaluating it is pure.
type Input struct {
	Symbol   string
	Exchange string

	PremiumPct float64
	Cost       costs.Result

	DepositOpen     bool
	WithdrawalOpen  bool
	TransferTimeMin float64
	GlobalVolumeUSD float64

	FXSource      domain.FXSource
	RefConfidence float64
	Hedge         domain.HedgeType
	Network       string
	TopExchange   string
	VASP          domain.VASPStatus
}

// Result is the advisory decision. The engine never fails: degraded inputs
// yield a Result with blockers or fewer enrichments, never an error.
type Result struct {
	DecisionID string
	Symbol     string
	Exchange   string

	CanProceed bool
	WatchOnly  bool
	Level      domain.AlertLevel

	PremiumPct   float64
	NetProfitPct float64
	TotalCostPct float64

	FXSource        domain.FXSource
	Hedge           domain.HedgeType
	Network         string
	TopExchange     string
	GlobalVolumeUSD float64

	Blockers []string
	Warnings []string

	Supply   domain.SupplyClass
	Scenario *scenario.Plan

	AnalyzeStart time.Time
	AnalyzeEnd   time.Time
}

// Duration is the wall time spent inside AnalyzeListing.
func (r *Result) Duration() time.Duration {
	return r.AnalyzeEnd.Sub(r.AnalyzeStart)
}
