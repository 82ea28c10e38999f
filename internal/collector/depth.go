package collector

import (
	"sort"
	"sync"

	"github.com/krwatch/listingpulse/internal/market"
)

// maxDepthLevels caps each side of a cached book. Overflow evicts the
// worst level (highest ask, lowest bid).
const maxDepthLevels = 50

type bookSides struct {
	asks []market.PriceLevel // ascending
	bids []market.PriceLevel // descending
}

// DepthCache maintains per-symbol orderbooks from delta updates. Bithumb
// streams deltas only, so the cache must be reset on reconnect and
// rebuilt from the fresh stream.
type DepthCache struct {
	mu    sync.RWMutex
	books map[string]*bookSides
}

func NewDepthCache() *DepthCache {
	return &DepthCache{books: make(map[string]*bookSides)}
}

// Apply folds one delta into the book. Quantity zero removes the level.
func (d *DepthCache) Apply(symbol, side string, price, qty float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.books[symbol]
	if !ok {
		b = &bookSides{}
		d.books[symbol] = b
	}
	switch side {
	case "ask":
		b.asks = applyLevel(b.asks, price, qty, func(a, b float64) bool { return a < b })
	case "bid":
		b.bids = applyLevel(b.bids, price, qty, func(a, b float64) bool { return a > b })
	}
}

// applyLevel upserts or removes (price, qty) in a side kept sorted by
// better(). The worst level is evicted past the cap.
func applyLevel(side []market.PriceLevel, price, qty float64, better func(a, b float64) bool) []market.PriceLevel {
	idx := sort.Search(len(side), func(i int) bool {
		return !better(side[i].Price, price)
	})

	if idx < len(side) && side[idx].Price == price {
		if qty == 0 {
			return append(side[:idx], side[idx+1:]...)
		}
		side[idx].Qty = qty
		return side
	}
	if qty == 0 {
		return side
	}

	side = append(side, market.PriceLevel{})
	copy(side[idx+1:], side[idx:])
	side[idx] = market.PriceLevel{Price: price, Qty: qty}
	if len(side) > maxDepthLevels {
		side = side[:maxDepthLevels]
	}
	return side
}

// Snapshot returns a copy of the symbol's book, or nil when unknown.
func (d *DepthCache) Snapshot(symbol string) *market.Orderbook {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.books[symbol]
	if !ok {
		return nil
	}
	return &market.Orderbook{
		Asks: append([]market.PriceLevel(nil), b.asks...),
		Bids: append([]market.PriceLevel(nil), b.bids...),
	}
}

// Reset drops all books. Called on reconnect before the delta stream
// restarts.
func (d *DepthCache) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.books = make(map[string]*bookSides)
}
