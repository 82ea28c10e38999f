package market

import "time"

// Trade is a single tick from an exchange stream. Trades are ephemeral:
// they are folded into second buckets and never persisted directly.
type Trade struct {
	Market     string // "UPBIT:KRW-BTC"
	Timestamp  time.Time
	Price      float64
	VolumeBase float64
}

// Candle is an OHLCV bar at either 1s or 1m resolution. Bucket holds the
// bar's start time truncated to its resolution.
type Candle struct {
	Market      string
	Bucket      time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	VolumeBase  float64
	VolumeQuote float64
}

// PriceLevel is one side entry of an orderbook.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// Orderbook holds both sides sorted best-first (asks ascending, bids
// descending).
type Orderbook struct {
	Asks []PriceLevel
	Bids []PriceLevel
}

// BestAsk returns the lowest ask, or false when the book is empty.
func (ob *Orderbook) BestAsk() (PriceLevel, bool) {
	if ob == nil || len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}
