package gate

import (
	"fmt"

	"github.com/krwatch/listingpulse/internal/domain"
)

// Thresholds are the decision cutoffs, loaded from config.
type Thresholds struct {
	MinGlobalVolumeUSD float64
	MaxTransferMin     float64
	MinRefConfidence   float64 // below: watch-only
	DegradedConfidence float64 // below: no CRITICAL alerts
}

// Evaluate applies the hard-blocker and warning taxonomy to a resolved
// input. Pure: same input, same verdict.
func Evaluate(in Input, th Thresholds) (blockers, warnings []string, watchOnly bool) {
	if !in.DepositOpen {
		blockers = append(blockers, fmt.Sprintf("deposit closed on %s", in.Exchange))
	}
	if !in.WithdrawalOpen {
		blockers = append(blockers, fmt.Sprintf("withdrawal closed on %s", in.Exchange))
	}
	if in.Cost.NetProfitPct <= 0 {
		blockers = append(blockers, fmt.Sprintf(
			"no profitability: net %.4f%% after %.4f%% costs", in.Cost.NetProfitPct, in.Cost.TotalCostPct))
	}
	if in.TransferTimeMin > th.MaxTransferMin {
		blockers = append(blockers, fmt.Sprintf(
			"transfer time %.1f min exceeds %.0f min limit", in.TransferTimeMin, th.MaxTransferMin))
	}
	if in.VASP == domain.VASPBlocked {
		blockers = append(blockers, fmt.Sprintf("VASP route %s -> %s blocked", in.Exchange, in.TopExchange))
	}

	if in.FXSource == domain.FXHardcodedFallback {
		watchOnly = true
		blockers = append(blockers, "watch-only: FX rate is the hardcoded fallback")
	}
	// Zero confidence is the worst case, not an exemption: a VWAP-derived
	// price with no per-venue quote behind it must not trade.
	if in.RefConfidence < th.MinRefConfidence {
		watchOnly = true
		blockers = append(blockers, fmt.Sprintf(
			"watch-only: reference price confidence %.2f below %.2f", in.RefConfidence, th.MinRefConfidence))
	}

	if in.GlobalVolumeUSD < th.MinGlobalVolumeUSD {
		warnings = append(warnings, fmt.Sprintf(
			"thin global volume $%.0f (< $%.0f)", in.GlobalVolumeUSD, th.MinGlobalVolumeUSD))
	}
	if in.Cost.GasWarn {
		warnings = append(warnings, "gas cost heavy relative to order size")
	}
	if in.Hedge == domain.HedgeDEXOnly {
		warnings = append(warnings, "hedge only available on decentralised perps")
	}
	if in.VASP == domain.VASPPartial || in.VASP == domain.VASPUnknown {
		warnings = append(warnings, fmt.Sprintf("VASP route %s -> %s is %s", in.Exchange, in.TopExchange, in.VASP))
	}

	return blockers, warnings, watchOnly
}

// Level derives the alert grade from the evaluation.
func Level(canProceed bool, in Input, blockers, warnings []string, th Thresholds) domain.AlertLevel {
	switch {
	case !canProceed && len(blockers) > 0:
		// A blocked listing is still time-sensitive news.
		return domain.LevelHigh
	case canProceed && in.FXSource.Trusted() && in.Hedge != domain.HedgeNone &&
		len(warnings) == 0 && in.RefConfidence >= th.DegradedConfidence:
		return domain.LevelCritical
	case canProceed:
		return domain.LevelHigh
	case len(warnings) > 0:
		return domain.LevelLow
	default:
		return domain.LevelInfo
	}
}
