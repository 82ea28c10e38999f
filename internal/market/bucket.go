package market

import (
	"sort"
	"time"
)

type bucketKey struct {
	market string
	second int64
}

// SecondBucket accumulates trades into per-(market, second) OHLCV bars.
// It is owned by exactly one collector goroutine and must not be shared;
// the flush methods hand completed bars to the sink (the DB writer).
type SecondBucket struct {
	buckets map[bucketKey]*Candle
	sink    func(Candle)
}

// NewSecondBucket creates a bucket map whose flushed bars are passed to
// sink in ascending second order per market.
func NewSecondBucket(sink func(Candle)) *SecondBucket {
	return &SecondBucket{
		buckets: make(map[bucketKey]*Candle),
		sink:    sink,
	}
}

// Add folds one trade into its second bucket. The first trade of a second
// seeds all four price fields; later trades extend high/low, overwrite
// close and accumulate volume.
func (b *SecondBucket) Add(mkt string, price, volume float64, ts time.Time) {
	sec := ts.UTC().Truncate(time.Second)
	key := bucketKey{market: mkt, second: sec.Unix()}

	c, ok := b.buckets[key]
	if !ok {
		b.buckets[key] = &Candle{
			Market:      mkt,
			Bucket:      sec,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			VolumeBase:  volume,
			VolumeQuote: price * volume,
		}
		return
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.VolumeBase += volume
	c.VolumeQuote += price * volume
}

// FlushCompleted emits every bucket strictly older than now's second and
// removes it. The current second stays open for late trades.
func (b *SecondBucket) FlushCompleted(now time.Time) int {
	cutoff := now.UTC().Truncate(time.Second).Unix()
	return b.flush(func(k bucketKey) bool { return k.second < cutoff })
}

// FlushAll emits everything, including the open second. Used at shutdown.
func (b *SecondBucket) FlushAll() int {
	return b.flush(func(bucketKey) bool { return true })
}

func (b *SecondBucket) flush(match func(bucketKey) bool) int {
	keys := make([]bucketKey, 0, len(b.buckets))
	for k := range b.buckets {
		if match(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].market != keys[j].market {
			return keys[i].market < keys[j].market
		}
		return keys[i].second < keys[j].second
	})
	for _, k := range keys {
		b.sink(*b.buckets[k])
		delete(b.buckets, k)
	}
	return len(keys)
}

// Len reports the number of open buckets, for health snapshots.
func (b *SecondBucket) Len() int { return len(b.buckets) }
