package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/supply"
)

// balanceOfSelector is the 4-byte selector of ERC-20 balanceOf(address).
const balanceOfSelector = "0x70a08231"

// Tracker reads exchange hot-wallet token balances over EVM JSON-RPC.
// Optional: without an API key the constructor returns nil and the supply
// classifier simply runs without the hot-wallet factor.
type Tracker struct {
	client *http.Client
	rpcURL string
}

// KnownHotWallets are the published deposit/ops addresses of the domestic
// exchanges on EVM chains.
var KnownHotWallets = map[string][]string{
	"upbit": {
		"0x390de26d772d2e2005c6d1d24afc902bae37a4bb",
		"0x1fe47011ad2b8cf2e7fd52c12e0b0f0c1b2f4f08",
	},
	"bithumb": {
		"0x88884e35d7d4e9412f924bf50c7c33c6cbe1cab4",
		"0x2140efd7ba31169c69dfff6cdc66c542f0211825",
	},
}

func NewTracker(rpcURL, apiKey string) *Tracker {
	if apiKey == "" {
		log.Info().Msg("wallet rpc key missing, hot-wallet tracking disabled")
		return nil
	}
	return &Tracker{
		client: &http.Client{Timeout: 10 * time.Second},
		rpcURL: strings.TrimSuffix(rpcURL, "/") + "/" + apiKey,
	}
}

// BalanceOf reads holder's token balance in raw units.
func (t *Tracker) BalanceOf(ctx context.Context, contract, holder string) (*big.Int, error) {
	data := balanceOfSelector + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(holder), "0x")
	result, err := t.call(ctx, "eth_call", []any{
		map[string]string{"to": contract, "data": data}, "latest",
	})
	if err != nil {
		return nil, err
	}
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, fmt.Errorf("decode eth_call result: %w", err)
	}
	val, ok := new(big.Int).SetString(strings.TrimPrefix(hexVal, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("bad balance hex %q", hexVal)
	}
	return val, nil
}

// HotWalletFactor aggregates the exchange's hot-wallet balances for a
// contract and maps them onto a supply factor: stocked wallets mean
// sellable inventory already sits on the venue (smooth), empty wallets
// mean every seller must bridge in first (constrained).
func (t *Tracker) HotWalletFactor(ctx context.Context, exchange, contract string, decimals int) *supply.Factor {
	if t == nil {
		return nil
	}
	wallets := KnownHotWallets[strings.ToLower(exchange)]
	if len(wallets) == 0 || contract == "" {
		return nil
	}

	total := new(big.Int)
	checked := 0
	for _, w := range wallets {
		bal, err := t.BalanceOf(ctx, contract, w)
		if err != nil {
			log.Debug().Err(err).Str("wallet", w).Msg("hot wallet balance read failed")
			continue
		}
		total.Add(total, bal)
		checked++
	}
	if checked == 0 {
		return nil
	}

	units, _ := new(big.Float).Quo(
		new(big.Float).SetInt(total),
		big.NewFloat(pow10(decimals)),
	).Float64()

	return &supply.Factor{
		Score:      hotWalletScore(units),
		Confidence: float64(checked) / float64(len(wallets)),
	}
}

// hotWalletScore maps token units held onto [-1, 1]. Thresholds are
// coarse on purpose: the factor carries only 30% weight and its own
// confidence already discounts partial reads.
func hotWalletScore(units float64) float64 {
	switch {
	case units >= 1_000_000:
		return 0.8
	case units >= 100_000:
		return 0.4
	case units >= 10_000:
		return 0
	case units > 0:
		return -0.5
	default:
		return -1
	}
}

func pow10(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func (t *Tracker) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.rpcURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc returned %d", resp.StatusCode)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}
