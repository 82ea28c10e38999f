package collector

import (
	"context"
	"sync"
	"time"

	"github.com/krwatch/listingpulse/internal/market"
)

// Buckets wraps a SecondBucket so that the read goroutine and the flush
// ticker can share it. All mutation stays inside this one collector.
type Buckets struct {
	mu sync.Mutex
	b  *market.SecondBucket
}

func NewBuckets(sink func(market.Candle)) *Buckets {
	return &Buckets{b: market.NewSecondBucket(sink)}
}

func (b *Buckets) Add(mkt string, price, volume float64, ts time.Time) {
	b.mu.Lock()
	b.b.Add(mkt, price, volume, ts)
	b.mu.Unlock()
}

// FlushLoop emits completed seconds once per second until ctx ends.
func (b *Buckets) FlushLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.mu.Lock()
			b.b.FlushCompleted(now)
			b.mu.Unlock()
		}
	}
}

// FlushAll emits everything including the open second. Shutdown only.
func (b *Buckets) FlushAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.FlushAll()
}

func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Len()
}
