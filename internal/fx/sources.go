package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/krwatch/listingpulse/internal/domain"
)

var errBadRate = errors.New("fx: non-positive rate")

// naver renders the USD/KRW rate inside a table cell; the page is static
// HTML so a regex is enough.
var naverRatePattern = regexp.MustCompile(`<td[^>]*class="num"[^>]*>\s*([\d,]+\.?\d*)\s*</td>`)

func (r *Resolver) fromNaver(ctx context.Context) (Result, error) {
	body, err := r.getBody(ctx, r.cfg.NaverURL)
	if err != nil {
		return Result{}, err
	}
	m := naverRatePattern.FindSubmatch(body)
	if m == nil {
		return Result{}, errors.New("fx: rate cell not found in naver page")
	}
	rate, err := strconv.ParseFloat(strings.ReplaceAll(string(m[1]), ",", ""), 64)
	if err != nil {
		return Result{}, fmt.Errorf("fx: parse naver rate: %w", err)
	}
	real := rate
	return Result{Rate: rate, Source: domain.FXNaver, Extras: map[string]*float64{"real_fx_rate": &real}}, nil
}

// fromPublicAPI hits a public USD-base JSON API carrying a KRW entry.
func (r *Resolver) fromPublicAPI(ctx context.Context) (Result, error) {
	body, err := r.getBody(ctx, r.cfg.PublicAPIURL)
	if err != nil {
		return Result{}, err
	}
	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("fx: decode public api: %w", err)
	}
	rate, ok := payload.Rates["KRW"]
	if !ok {
		return Result{}, errors.New("fx: KRW missing from public api response")
	}
	return Result{Rate: rate, Source: domain.FXPublicAPI}, nil
}

// fromUSDTKRW uses the domestic USDT/KRW market directly. The stablecoin
// premium is baked in, so the source is labelled rather than trusted.
func (r *Resolver) fromUSDTKRW(ctx context.Context) (Result, error) {
	price, err := r.upbit(ctx, "KRW-USDT")
	if err != nil {
		return Result{}, err
	}
	p := price
	return Result{
		Rate:   price,
		Source: domain.FXUSDTKRW,
		Extras: map[string]*float64{"usdt_krw_upbit": &p},
	}, nil
}

// fromBTCImplied crosses the domestic BTC/KRW price with the global
// BTC/USDT price: KRW per USD = BTC_KRW / BTC_USD.
func (r *Resolver) fromBTCImplied(ctx context.Context) (Result, error) {
	btcKRW, err := r.upbit(ctx, "KRW-BTC")
	if err != nil {
		return Result{}, err
	}
	btcUSD, err := r.binance(ctx, "BTCUSDT")
	if err != nil {
		return Result{}, err
	}
	if btcUSD <= 0 {
		return Result{}, errBadRate
	}
	k, u := btcKRW, btcUSD
	return Result{
		Rate:   btcKRW / btcUSD,
		Source: domain.FXBTCImplied,
		Extras: map[string]*float64{"btc_krw": &k, "btc_usd": &u},
	}, nil
}

func (r *Resolver) upbitTicker(ctx context.Context, symbol string) (float64, error) {
	body, err := r.getBody(ctx, "https://api.upbit.com/v1/ticker?markets="+symbol)
	if err != nil {
		return 0, err
	}
	var payload []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("fx: decode upbit ticker: %w", err)
	}
	if len(payload) == 0 {
		return 0, errors.New("fx: empty upbit ticker")
	}
	return payload[0].TradePrice, nil
}

func (r *Resolver) binanceTicker(ctx context.Context, symbol string) (float64, error) {
	body, err := r.getBody(ctx, "https://api.binance.com/api/v3/ticker/price?symbol="+symbol)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("fx: decode binance ticker: %w", err)
	}
	return strconv.ParseFloat(payload.Price, 64)
}

func (r *Resolver) getBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx: %s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
