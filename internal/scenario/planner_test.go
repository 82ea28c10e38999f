package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
)

func planner(minSamples int, coeffs map[string]config.Coefficient) *Planner {
	th := config.DefaultThresholds()
	if coeffs != nil {
		th.Scenario.Coefficients = coeffs
	}
	th.Scenario.MinSamples = minSamples
	return NewPlanner(th)
}

func TestShrinkage_UnderSampledCoefficientAttenuated(t *testing.T) {
	coeffs := map[string]config.Coefficient{
		"hedge_none": {Value: 0.4, Samples: 5}, // 5/20 = 0.25 shrink
	}
	p := planner(20, coeffs)

	in := Input{Exchange: "upbit", Hedge: domain.HedgeNone}
	got := p.Predict(in)
	// base 0.45 + 0.4*0.25 = 0.55
	assert.InDelta(t, 0.55, got.Probability, 1e-9)
}

func TestShrinkage_FullWeightAtFloor(t *testing.T) {
	coeffs := map[string]config.Coefficient{
		"hedge_none": {Value: 0.4, Samples: 20},
	}
	p := planner(20, coeffs)

	got := p.Predict(Input{Exchange: "upbit", Hedge: domain.HedgeNone})
	assert.InDelta(t, 0.85, got.Probability, 1e-9)
}

func TestPredict_ClampsToUnitInterval(t *testing.T) {
	coeffs := map[string]config.Coefficient{
		"hedge_none":         {Value: 0.9, Samples: 100},
		"supply_constrained": {Value: 0.9, Samples: 100},
	}
	p := planner(20, coeffs)
	got := p.Predict(Input{Exchange: "upbit", Hedge: domain.HedgeNone, Supply: domain.SupplyConstrained})
	assert.Equal(t, 1.0, got.Probability)

	low := map[string]config.Coefficient{
		"market_bear": {Value: -2.0, Samples: 100},
	}
	p2 := planner(20, low)
	got2 := p2.Predict(Input{Exchange: "bithumb", Market: domain.MarketBear})
	assert.Equal(t, 0.0, got2.Probability)
}

func TestBucket_TopRequiresHedgeNoneAndConstrained(t *testing.T) {
	coeffs := map[string]config.Coefficient{
		"hedge_none":         {Value: 0.2, Samples: 100},
		"supply_constrained": {Value: 0.2, Samples: 100},
		"hedge_cex":          {Value: 0.3, Samples: 100},
	}
	p := planner(20, coeffs)

	top := p.Predict(Input{Exchange: "upbit", Hedge: domain.HedgeNone, Supply: domain.SupplyConstrained})
	assert.GreaterOrEqual(t, top.Probability, 0.7)
	assert.Equal(t, domain.OutcomeHeungBig, top.Outcome)

	// Same probability region but hedgeable: capped at HEUNG.
	hedged := p.Predict(Input{Exchange: "upbit", Hedge: domain.HedgeCEX, Supply: domain.SupplyConstrained})
	assert.GreaterOrEqual(t, hedged.Probability, 0.7)
	assert.Equal(t, domain.OutcomeHeung, hedged.Outcome)
}

func TestPlanScenarios_Ordering(t *testing.T) {
	p := NewPlanner(config.DefaultThresholds())
	plan := p.PlanScenarios(Input{
		Exchange: "upbit",
		Supply:   domain.SupplyNeutral,
		Listing:  domain.ListingTGE,
		Hedge:    domain.HedgeCEX,
		Market:   domain.MarketNeutral,
	})
	assert.GreaterOrEqual(t, plan.Best.Probability, plan.Likely.Probability)
	assert.GreaterOrEqual(t, plan.Likely.Probability, plan.Worst.Probability)
}

func TestPredict_UnknownExchangeUsesDefaultBase(t *testing.T) {
	p := planner(20, map[string]config.Coefficient{})
	got := p.Predict(Input{Exchange: "coinone"})
	assert.InDelta(t, 0.40, got.Probability, 1e-9)
}
