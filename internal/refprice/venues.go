package refprice

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

// venueClient holds the raw per-venue REST calls. Symbols arrive bare
// ("SOL") and are formatted per venue convention against USDT.
type venueClient struct {
	client *http.Client

	binanceFuturesURL string
	binanceSpotURL    string
	bybitURL          string
	okxURL            string
	coingeckoURL      string
}

func newVenueClient(timeout time.Duration) *venueClient {
	return &venueClient{
		client:            &http.Client{Timeout: timeout},
		binanceFuturesURL: "https://fapi.binance.com/fapi/v1/ticker/24hr",
		binanceSpotURL:    "https://api.binance.com/api/v3/ticker/24hr",
		bybitURL:          "https://api.bybit.com/v5/market/tickers",
		okxURL:            "https://www.okx.com/api/v5/market/ticker",
		coingeckoURL:      "https://api.coingecko.com/api/v3/simple/price",
	}
}

func (c *venueClient) binanceFutures(ctx context.Context, symbol string) (float64, float64, error) {
	return c.binance24h(ctx, c.binanceFuturesURL, symbol)
}

func (c *venueClient) binanceSpot(ctx context.Context, symbol string) (float64, float64, error) {
	return c.binance24h(ctx, c.binanceSpotURL, symbol)
}

func (c *venueClient) binance24h(ctx context.Context, base, symbol string) (float64, float64, error) {
	body, err := c.get(ctx, base+"?symbol="+strings.ToUpper(symbol)+"USDT")
	if err != nil {
		return 0, 0, err
	}
	var payload struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, 0, fmt.Errorf("decode binance ticker: %w", err)
	}
	price, err := strconv.ParseFloat(payload.LastPrice, 64)
	if err != nil {
		return 0, 0, err
	}
	volume, _ := strconv.ParseFloat(payload.QuoteVolume, 64)
	return price, volume, nil
}

func (c *venueClient) bybitFutures(ctx context.Context, symbol string) (float64, float64, error) {
	return c.bybit(ctx, "linear", symbol)
}

func (c *venueClient) bybitSpot(ctx context.Context, symbol string) (float64, float64, error) {
	return c.bybit(ctx, "spot", symbol)
}

func (c *venueClient) bybit(ctx context.Context, category, symbol string) (float64, float64, error) {
	url := fmt.Sprintf("%s?category=%s&symbol=%sUSDT", c.bybitURL, category, strings.ToUpper(symbol))
	body, err := c.get(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	var payload struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
				Turnover  string `json:"turnover24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, 0, fmt.Errorf("decode bybit ticker: %w", err)
	}
	if len(payload.Result.List) == 0 {
		return 0, 0, errors.New("bybit: empty ticker list")
	}
	price, err := strconv.ParseFloat(payload.Result.List[0].LastPrice, 64)
	if err != nil {
		return 0, 0, err
	}
	volume, _ := strconv.ParseFloat(payload.Result.List[0].Turnover, 64)
	return price, volume, nil
}

func (c *venueClient) okxSpot(ctx context.Context, symbol string) (float64, float64, error) {
	url := fmt.Sprintf("%s?instId=%s-USDT", c.okxURL, strings.ToUpper(symbol))
	body, err := c.get(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	var payload struct {
		Data []struct {
			Last      string `json:"last"`
			VolCcy24h string `json:"volCcy24h"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, 0, fmt.Errorf("decode okx ticker: %w", err)
	}
	if len(payload.Data) == 0 {
		return 0, 0, errors.New("okx: empty ticker data")
	}
	price, err := strconv.ParseFloat(payload.Data[0].Last, 64)
	if err != nil {
		return 0, 0, err
	}
	volume, _ := strconv.ParseFloat(payload.Data[0].VolCcy24h, 64)
	return price, volume, nil
}

// coingecko is the aggregated last resort. It needs the coingecko id, not
// the ticker symbol; lowercased symbol works for the common case and the
// registry can supply a canonical id upstream.
func (c *venueClient) coingecko(ctx context.Context, symbol string) (float64, float64, error) {
	id := strings.ToLower(symbol)
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd&include_24hr_vol=true", c.coingeckoURL, id)
	body, err := c.get(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	var payload map[string]struct {
		USD    float64 `json:"usd"`
		Vol24h float64 `json:"usd_24h_vol"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, 0, fmt.Errorf("decode coingecko: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return 0, 0, errors.New("coingecko: id not found")
	}
	return entry.USD, entry.Vol24h, nil
}

func (c *venueClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
