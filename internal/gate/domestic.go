package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RESTQuoter implements DomesticQuoter and WalletGate over the public
// Upbit and Bithumb REST APIs.
type RESTQuoter struct {
	client *http.Client

	upbitTickerURL   string
	bithumbTickerURL string
	bithumbAssetURL  string
}

func NewRESTQuoter(timeout time.Duration) *RESTQuoter {
	return &RESTQuoter{
		client:           &http.Client{Timeout: timeout},
		upbitTickerURL:   "https://api.upbit.com/v1/ticker",
		bithumbTickerURL: "https://api.bithumb.com/public/ticker",
		bithumbAssetURL:  "https://api.bithumb.com/public/assetsstatus",
	}
}

// LastPriceKRW fetches the latest KRW trade price for symbol on exchange.
func (q *RESTQuoter) LastPriceKRW(ctx context.Context, exchange, symbol string) (float64, error) {
	switch strings.ToLower(exchange) {
	case "upbit":
		return q.upbitLast(ctx, symbol)
	case "bithumb":
		return q.bithumbLast(ctx, symbol)
	default:
		return 0, fmt.Errorf("unknown domestic exchange %q", exchange)
	}
}

// Status reports deposit/withdrawal openness. Bithumb publishes this on a
// public endpoint; Upbit's wallet status needs an authenticated key, so it
// is assumed open there and the hard blocker relies on Bithumb plus
// manual config.
func (q *RESTQuoter) Status(ctx context.Context, exchange, symbol string) (bool, bool, error) {
	if strings.ToLower(exchange) != "bithumb" {
		return true, true, nil
	}
	body, err := q.get(ctx, q.bithumbAssetURL+"/"+strings.ToUpper(symbol))
	if err != nil {
		return true, true, err
	}
	var payload struct {
		Data struct {
			DepositStatus    int `json:"deposit_status"`
			WithdrawalStatus int `json:"withdrawal_status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return true, true, fmt.Errorf("decode bithumb asset status: %w", err)
	}
	return payload.Data.DepositStatus == 1, payload.Data.WithdrawalStatus == 1, nil
}

func (q *RESTQuoter) upbitLast(ctx context.Context, symbol string) (float64, error) {
	body, err := q.get(ctx, q.upbitTickerURL+"?markets=KRW-"+strings.ToUpper(symbol))
	if err != nil {
		return 0, err
	}
	var payload []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode upbit ticker: %w", err)
	}
	if len(payload) == 0 {
		return 0, errors.New("upbit: market not found")
	}
	return payload[0].TradePrice, nil
}

func (q *RESTQuoter) bithumbLast(ctx context.Context, symbol string) (float64, error) {
	body, err := q.get(ctx, q.bithumbTickerURL+"/"+strings.ToUpper(symbol)+"_KRW")
	if err != nil {
		return 0, err
	}
	var payload struct {
		Status string `json:"status"`
		Data   struct {
			ClosingPrice string `json:"closing_price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode bithumb ticker: %w", err)
	}
	if payload.Status != "0000" {
		return 0, fmt.Errorf("bithumb ticker status %s", payload.Status)
	}
	return strconv.ParseFloat(payload.Data.ClosingPrice, 64)
}

func (q *RESTQuoter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
