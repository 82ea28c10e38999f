package collector

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bithumb streams transactions and orderbook depth deltas. The depth
// cache is delta-based and must be rebuilt after every reconnect.
type Bithumb struct {
	url     string
	buckets *Buckets
	depth   *DepthCache
}

func NewBithumb(buckets *Buckets, depth *DepthCache) *Bithumb {
	return &Bithumb{url: "wss://pubwss.bithumb.com/pub/ws", buckets: buckets, depth: depth}
}

func (b *Bithumb) Name() string { return "bithumb" }
func (b *Bithumb) URL() string  { return b.url }

// SubscribePayloads sends one frame per channel; Bithumb rejects
// combined subscriptions.
func (b *Bithumb) SubscribePayloads(markets []string) ([][]byte, error) {
	if len(markets) == 0 {
		return nil, nil
	}
	var out [][]byte
	for _, typ := range []string{"transaction", "orderbookdepth"} {
		data, err := json.Marshal(map[string]any{"type": typ, "symbols": markets})
		if err != nil {
			return nil, fmt.Errorf("bithumb subscribe payload: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}

type bithumbFrame struct {
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
}

func (b *Bithumb) HandleMessage(data []byte) error {
	var f bithumbFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode bithumb frame: %w", err)
	}
	switch f.Type {
	case "transaction":
		return b.handleTransactions(f.Content)
	case "orderbookdepth":
		return b.handleDepth(f.Content)
	default:
		// Subscription acks and heartbeats.
		return nil
	}
}

func (b *Bithumb) handleTransactions(content json.RawMessage) error {
	var payload struct {
		List []struct {
			Symbol  string `json:"symbol"`
			Price   string `json:"contPrice"`
			Qty     string `json:"contQty"`
			TradeAt string `json:"contDtm"`
		} `json:"list"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return fmt.Errorf("decode bithumb transactions: %w", err)
	}
	for _, tx := range payload.List {
		price, err := strconv.ParseFloat(tx.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		qty, err := strconv.ParseFloat(tx.Qty, 64)
		if err != nil {
			continue
		}
		b.buckets.Add("BITHUMB:"+tx.Symbol, price, qty, bithumbTime(tx.TradeAt))
	}
	return nil
}

func (b *Bithumb) handleDepth(content json.RawMessage) error {
	var payload struct {
		List []struct {
			Symbol    string `json:"symbol"`
			OrderType string `json:"orderType"`
			Price     string `json:"price"`
			Quantity  string `json:"quantity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return fmt.Errorf("decode bithumb depth: %w", err)
	}
	for _, lv := range payload.List {
		price, err := strconv.ParseFloat(lv.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		qty, err := strconv.ParseFloat(lv.Quantity, 64)
		if err != nil {
			continue
		}
		symbol := strings.TrimSuffix(lv.Symbol, "_KRW")
		b.depth.Apply(symbol, lv.OrderType, price, qty)
	}
	return nil
}

func (b *Bithumb) OnReconnected() {
	b.depth.Reset()
}

// bithumbTime parses "2006-01-02 15:04:05.000000" in KST, falling back to
// the receive time.
func bithumbTime(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05.000000", s, kst)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

var kst = time.FixedZone("KST", 9*60*60)
