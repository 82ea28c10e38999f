package scenario

import (
	"math"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
)

// Input is everything the planner conditions on.
type Input struct {
	Exchange      string
	Supply        domain.SupplyClass
	Listing       domain.ListingType
	Hedge         domain.HedgeType
	Market        domain.MarketCondition
	TGEUnlockRisk bool
}

// Prediction is a positive-outcome probability with its bucket.
type Prediction struct {
	Probability float64
	Outcome     domain.ScenarioOutcome
}

// Plan carries the likely case plus best/worst perturbations of the
// assumptions the planner is least sure about (market regime, unlocks).
type Plan struct {
	Best   Prediction
	Likely Prediction
	Worst  Prediction
}

const (
	defaultBaseRate = 0.40

	heungBigCutoff = 0.70
	heungCutoff    = 0.55
	neutralCutoff  = 0.35
)

// Planner sums a per-exchange base rate with additive coefficients per
// observed factor. Coefficients whose sample count sits below the
// configured floor are shrunk toward zero in proportion, so an
// under-sampled coefficient never acts at full weight.
type Planner struct {
	baseRates    map[string]float64
	coefficients map[string]config.Coefficient
	minSamples   int
}

func NewPlanner(th config.Thresholds) *Planner {
	return &Planner{
		baseRates:    th.Scenario.BaseRates,
		coefficients: th.Scenario.Coefficients,
		minSamples:   th.Scenario.MinSamples,
	}
}

// Predict computes the probability for one input.
func (p *Planner) Predict(in Input) Prediction {
	prob := defaultBaseRate
	if base, ok := p.baseRates[in.Exchange]; ok {
		prob = base
	}

	switch in.Supply {
	case domain.SupplyConstrained:
		prob += p.coeff("supply_constrained")
	case domain.SupplySmooth:
		prob += p.coeff("supply_smooth")
	}
	switch in.Listing {
	case domain.ListingTGE:
		prob += p.coeff("listing_tge")
	case domain.ListingDirect:
		prob += p.coeff("listing_direct")
	}
	switch in.Hedge {
	case domain.HedgeNone:
		prob += p.coeff("hedge_none")
	case domain.HedgeCEX:
		prob += p.coeff("hedge_cex")
	}
	switch in.Market {
	case domain.MarketBull:
		prob += p.coeff("market_bull")
	case domain.MarketBear:
		prob += p.coeff("market_bear")
	}
	if in.TGEUnlockRisk {
		prob += p.coeff("tge_unlock_risk")
	}

	prob = math.Max(0, math.Min(1, prob))
	return Prediction{Probability: prob, Outcome: bucket(prob, in)}
}

// PlanScenarios produces BEST / LIKELY / WORST variants by perturbing the
// market condition and unlock-risk assumptions.
func (p *Planner) PlanScenarios(in Input) Plan {
	best := in
	best.Market = domain.MarketBull
	best.TGEUnlockRisk = false

	worst := in
	worst.Market = domain.MarketBear
	worst.TGEUnlockRisk = true

	return Plan{
		Best:   p.Predict(best),
		Likely: p.Predict(in),
		Worst:  p.Predict(worst),
	}
}

// coeff returns the shrunk coefficient: effective = raw * min(1, n/nMin).
func (p *Planner) coeff(name string) float64 {
	c, ok := p.coefficients[name]
	if !ok {
		return 0
	}
	if p.minSamples <= 0 {
		return c.Value
	}
	shrink := math.Min(1, float64(c.Samples)/float64(p.minSamples))
	return c.Value * shrink
}

// bucket maps probability to outcome. The top bucket is deliberately hard
// to reach: it needs an unhedgeable, supply-constrained listing on top of
// a high probability.
func bucket(prob float64, in Input) domain.ScenarioOutcome {
	switch {
	case prob >= heungBigCutoff &&
		in.Hedge == domain.HedgeNone &&
		in.Supply == domain.SupplyConstrained:
		return domain.OutcomeHeungBig
	case prob >= heungCutoff:
		return domain.OutcomeHeung
	case prob >= neutralCutoff:
		return domain.OutcomeNeutral
	default:
		return domain.OutcomeMang
	}
}
