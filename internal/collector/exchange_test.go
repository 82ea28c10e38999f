package collector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/market"
)

func collect(t *testing.T) (*Buckets, *[]market.Candle) {
	t.Helper()
	var got []market.Candle
	b := NewBuckets(func(c market.Candle) { got = append(got, c) })
	return b, &got
}

func TestUpbit_SubscribePayload(t *testing.T) {
	b, _ := collect(t)
	u := NewUpbit(b)

	payloads, err := u.SubscribePayloads([]string{"KRW-BTC", "KRW-SOL"})
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var frame []json.RawMessage
	require.NoError(t, json.Unmarshal(payloads[0], &frame))
	require.Len(t, frame, 3)

	var sub struct {
		Type  string   `json:"type"`
		Codes []string `json:"codes"`
	}
	require.NoError(t, json.Unmarshal(frame[1], &sub))
	assert.Equal(t, "trade", sub.Type)
	assert.Equal(t, []string{"KRW-BTC", "KRW-SOL"}, sub.Codes)
}

func TestUpbit_TradeFeedsBucket(t *testing.T) {
	b, got := collect(t)
	u := NewUpbit(b)

	msg := `{"type":"trade","code":"KRW-SOL","trade_price":250000,"trade_volume":1.5,"timestamp":1756200000000}`
	require.NoError(t, u.HandleMessage([]byte(msg)))

	b.FlushAll()
	require.Len(t, *got, 1)
	c := (*got)[0]
	assert.Equal(t, "UPBIT:KRW-SOL", c.Market)
	assert.Equal(t, 250000.0, c.Open)
	assert.Equal(t, 1.5, c.VolumeBase)
	assert.Equal(t, time.UnixMilli(1756200000000).UTC().Truncate(time.Second), c.Bucket)
}

func TestUpbit_NonTradeFramesIgnored(t *testing.T) {
	b, got := collect(t)
	u := NewUpbit(b)

	require.NoError(t, u.HandleMessage([]byte(`{"type":"ticker","code":"KRW-SOL"}`)))
	require.Error(t, u.HandleMessage([]byte(`not json`)))

	b.FlushAll()
	assert.Empty(t, *got)
}

func TestBithumb_SubscribeTwoChannels(t *testing.T) {
	b, _ := collect(t)
	bt := NewBithumb(b, NewDepthCache())

	payloads, err := bt.SubscribePayloads([]string{"SOL_KRW"})
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Contains(t, string(payloads[0]), `"transaction"`)
	assert.Contains(t, string(payloads[1]), `"orderbookdepth"`)
}

func TestBithumb_TransactionFeedsBucket(t *testing.T) {
	b, got := collect(t)
	bt := NewBithumb(b, NewDepthCache())

	msg := `{"type":"transaction","content":{"list":[
		{"symbol":"SOL_KRW","contPrice":"250000","contQty":"0.4","contDtm":"2026-08-26 18:00:00.000000"},
		{"symbol":"SOL_KRW","contPrice":"garbage","contQty":"1","contDtm":"2026-08-26 18:00:00.000000"}
	]}}`
	require.NoError(t, bt.HandleMessage([]byte(msg)))

	b.FlushAll()
	require.Len(t, *got, 1, "unparseable trade dropped, valid one kept")
	c := (*got)[0]
	assert.Equal(t, "BITHUMB:SOL_KRW", c.Market)
	assert.Equal(t, 250000.0, c.Close)
	// contDtm is KST (UTC+9).
	assert.Equal(t, time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC), c.Bucket)
}

func TestBithumb_DepthDeltaAndReconnectReset(t *testing.T) {
	b, _ := collect(t)
	depth := NewDepthCache()
	bt := NewBithumb(b, depth)

	msg := `{"type":"orderbookdepth","content":{"list":[
		{"symbol":"SOL_KRW","orderType":"ask","price":"251000","quantity":"2"},
		{"symbol":"SOL_KRW","orderType":"ask","price":"250000","quantity":"1"},
		{"symbol":"SOL_KRW","orderType":"bid","price":"249000","quantity":"3"}
	]}}`
	require.NoError(t, bt.HandleMessage([]byte(msg)))

	book := depth.Snapshot("SOL")
	require.NotNil(t, book)
	best, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 250000.0, best.Price)

	bt.OnReconnected()
	assert.Nil(t, depth.Snapshot("SOL"), "delta book rebuilt from scratch after reconnect")
}

func TestBithumb_AckFramesIgnored(t *testing.T) {
	b, got := collect(t)
	bt := NewBithumb(b, NewDepthCache())

	require.NoError(t, bt.HandleMessage([]byte(`{"status":"0000","resmsg":"Connected Successfully"}`)))
	b.FlushAll()
	assert.Empty(t, *got)
}
