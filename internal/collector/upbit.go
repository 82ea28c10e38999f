package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Upbit streams trades for KRW markets. Depth is not cached here: Upbit's
// orderbook frames are full snapshots, so gate-time REST lookups suffice.
type Upbit struct {
	url     string
	buckets *Buckets
}

func NewUpbit(buckets *Buckets) *Upbit {
	return &Upbit{url: "wss://api.upbit.com/websocket/v1", buckets: buckets}
}

func (u *Upbit) Name() string { return "upbit" }
func (u *Upbit) URL() string  { return u.url }

// SubscribePayloads builds the single-frame Upbit subscription:
// [{"ticket":…},{"type":"trade","codes":[…]}].
func (u *Upbit) SubscribePayloads(markets []string) ([][]byte, error) {
	if len(markets) == 0 {
		return nil, nil
	}
	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "trade", "codes": markets},
		map[string]string{"format": "DEFAULT"},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("upbit subscribe payload: %w", err)
	}
	return [][]byte{data}, nil
}

type upbitTrade struct {
	Type        string  `json:"type"`
	Code        string  `json:"code"`
	TradePrice  float64 `json:"trade_price"`
	TradeVolume float64 `json:"trade_volume"`
	TimestampMS int64   `json:"timestamp"`
}

func (u *Upbit) HandleMessage(data []byte) error {
	var t upbitTrade
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("decode upbit frame: %w", err)
	}
	if t.Type != "trade" || t.Code == "" || t.TradePrice <= 0 {
		return nil
	}
	u.buckets.Add(
		"UPBIT:"+t.Code,
		t.TradePrice,
		t.TradeVolume,
		time.UnixMilli(t.TimestampMS).UTC(),
	)
	return nil
}

// OnReconnected is a no-op: snapshot-based books carry no stale state.
func (u *Upbit) OnReconnected() {}
