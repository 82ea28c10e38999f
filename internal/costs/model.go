package costs

import (
	"math"

	"github.com/krwatch/listingpulse/internal/config"
	"github.com/krwatch/listingpulse/internal/domain"
	"github.com/krwatch/listingpulse/internal/market"
)

// DefaultSlippagePct is the conservative assumption used when no orderbook
// is available yet (new listings often trade before depth is streamed).
const DefaultSlippagePct = 1.0

// unfilledPenaltyPct is added per unit of unfilled ratio when the book is
// too thin to absorb the full order.
const unfilledPenaltyPct = 5.0

// Input describes one prospective buy-and-hedge round trip.
type Input struct {
	PremiumPct  float64
	Network     string
	AmountKRW   float64
	Hedge       domain.HedgeType
	FXRate      float64
	Orderbook   *market.Orderbook // nil when depth is not yet known
	BuyVenue    string            // domestic taker leg
	SellVenue   string            // global taker leg
}

// Result is the full cost breakdown in percent of AmountKRW, except
// GasCostKRW which is absolute.
type Result struct {
	SlippagePct    float64
	GasCostKRW     float64
	ExchangeFeePct float64
	HedgeCostPct   float64
	TotalCostPct   float64
	NetProfitPct   float64
	GasWarn        bool
}

// Model computes round-trip costs from static fee/network config.
type Model struct {
	fees     config.Fees
	networks config.Networks
}

func NewModel(fees config.Fees, networks config.Networks) *Model {
	return &Model{fees: fees, networks: networks}
}

// Estimate walks the cost stack for one input. It never fails: missing
// orderbook or unknown network degrade to conservative defaults.
func (m *Model) Estimate(in Input) Result {
	slippage := m.slippagePct(in)

	feePct := m.fees.Exchanges[in.BuyVenue].TakerPct + m.fees.Exchanges[in.SellVenue].TakerPct

	gasKRW, gasPct := m.gasCost(in)
	gasWarn := gasPct > m.fees.SmallOrderGasPct

	hedgePct := m.hedgeCostPct(in.Hedge)

	total := slippage + feePct + gasPct + hedgePct
	res := Result{
		SlippagePct:    round4(slippage),
		GasCostKRW:     round4(gasKRW),
		ExchangeFeePct: round4(feePct),
		HedgeCostPct:   round4(hedgePct),
		TotalCostPct:   round4(total),
		GasWarn:        gasWarn,
	}
	res.NetProfitPct = round4(in.PremiumPct - res.TotalCostPct)
	return res
}

// slippagePct walks the ask side until AmountKRW is filled. Slippage is the
// average fill price over the best ask; any unfilled remainder adds a flat
// penalty proportional to the unfilled ratio.
func (m *Model) slippagePct(in Input) float64 {
	best, ok := in.Orderbook.BestAsk()
	if !ok || in.AmountKRW <= 0 {
		return DefaultSlippagePct
	}

	remaining := in.AmountKRW
	var filledQty, filledCost float64
	for _, lvl := range in.Orderbook.Asks {
		if remaining <= 0 {
			break
		}
		levelValue := lvl.Price * lvl.Qty
		take := math.Min(levelValue, remaining)
		qty := take / lvl.Price
		filledQty += qty
		filledCost += take
		remaining -= take
	}
	if filledQty == 0 {
		return DefaultSlippagePct
	}

	avgFill := filledCost / filledQty
	slippage := (avgFill - best.Price) / best.Price * 100

	if remaining > 0 {
		slippage += remaining / in.AmountKRW * unfilledPenaltyPct
	}
	return slippage
}

// gasCost converts the network withdrawal fee (quoted in USDT) to KRW and
// to a percentage of the order.
func (m *Model) gasCost(in Input) (krw, pct float64) {
	net, ok := m.networks.Networks[in.Network]
	if !ok {
		net = m.networks.Networks[m.networks.Default]
	}
	krw = net.WithdrawalFeeUSDT * in.FXRate
	if in.AmountKRW > 0 {
		pct = krw / in.AmountKRW * 100
	}
	return krw, pct
}

func (m *Model) hedgeCostPct(h domain.HedgeType) float64 {
	switch h {
	case domain.HedgeCEX:
		return m.fees.Hedge.CEXTakerPct + m.fees.Hedge.FundingAvg8hPct
	case domain.HedgeDEXOnly:
		// Funding assumed neutral on decentralised perps.
		return m.fees.Hedge.DEXTakerPct
	default:
		return 0
	}
}

// TransferTime returns the configured average transfer minutes for a
// network, falling back to the default network.
func (m *Model) TransferTime(network string) float64 {
	if net, ok := m.networks.Networks[network]; ok {
		return net.AvgTransferMin
	}
	return m.networks.Networks[m.networks.Default].AvgTransferMin
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
