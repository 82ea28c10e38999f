package supply

import (
	"math"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
)

// Factor is one observed supply signal. Score runs negative (constrained)
// to positive (smooth); Confidence in [0,1] reflects data quality.
type Factor struct {
	Score      float64
	Confidence float64
}

// Inputs carries whichever factors could be observed for a listing. Nil
// factors are absent, not zero.
type Inputs struct {
	HotWallet     *Factor
	DEXLiquidity  *Factor
	Withdrawal    *Factor
	Airdrop       *Factor
	NetworkSpeed  *Factor
	TurnoverRatio *float64 // 5-min volume / estimated deposit volume
}

// Classification is the blended verdict.
type Classification struct {
	Score        float64
	Class        domain.SupplyClass
	FactorsUsed  int
	EffectiveWts map[string]float64
}

type Classifier struct {
	weights           map[string]float64
	lowConfidence     float64
	turnoverBlend     float64
	constrainedCutoff float64
	smoothCutoff      float64
}

func NewClassifier(th config.Thresholds) *Classifier {
	return &Classifier{
		weights:           th.Supply.Weights,
		lowConfidence:     th.Supply.LowConfidence,
		turnoverBlend:     th.Supply.TurnoverBlendPct,
		constrainedCutoff: th.Supply.ConstrainedCutoff,
		smoothCutoff:      th.Supply.SmoothCutoff,
	}
}

// Classify folds the present factors into a weighted score. Weights of
// absent factors are redistributed onto the present ones; a factor whose
// confidence is below the low-confidence cutoff contributes at half
// weight. A turnover observation is blended in last.
func (c *Classifier) Classify(in Inputs) Classification {
	present := map[string]*Factor{}
	if in.HotWallet != nil {
		present["hot_wallet"] = in.HotWallet
	}
	if in.DEXLiquidity != nil {
		present["dex_liquidity"] = in.DEXLiquidity
	}
	if in.Withdrawal != nil {
		present["withdrawal"] = in.Withdrawal
	}
	if in.Airdrop != nil {
		present["airdrop"] = in.Airdrop
	}
	if in.NetworkSpeed != nil {
		present["network_speed"] = in.NetworkSpeed
	}

	if len(present) == 0 {
		return Classification{Class: domain.SupplyUnknown}
	}

	// Renormalise base weights over the present factors, then halve any
	// low-confidence contribution.
	var baseSum float64
	for name := range present {
		baseSum += c.weights[name]
	}
	eff := map[string]float64{}
	var effSum, score float64
	for name, f := range present {
		w := c.weights[name] / baseSum
		if f.Confidence < c.lowConfidence {
			w /= 2
		}
		eff[name] = w
		effSum += w
		score += clamp(f.Score, -1, 1) * w
	}
	if effSum > 0 {
		score /= effSum
	}

	if in.TurnoverRatio != nil {
		// Turnover above 1 means retail churn is replacing deposits
		// faster than they drain: supply reads smooth.
		t := clamp(*in.TurnoverRatio-1, -1, 1)
		score = (1-c.turnoverBlend)*score + c.turnoverBlend*t
	}

	return Classification{
		Score:        score,
		Class:        c.categorise(score),
		FactorsUsed:  len(present),
		EffectiveWts: eff,
	}
}

func (c *Classifier) categorise(score float64) domain.SupplyClass {
	switch {
	case score < c.constrainedCutoff:
		return domain.SupplyConstrained
	case score > c.smoothCutoff:
		return domain.SupplySmooth
	default:
		return domain.SupplyNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
