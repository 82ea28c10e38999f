package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CatalogClient fetches the full set of KRW market symbols on one venue.
type CatalogClient interface {
	Exchange() string
	FetchCatalog(ctx context.Context) (map[string]struct{}, error)
}

// UpbitCatalog lists KRW markets from the public market/all endpoint.
type UpbitCatalog struct {
	client *http.Client
	url    string
}

func NewUpbitCatalog(timeout time.Duration) *UpbitCatalog {
	return &UpbitCatalog{
		client: &http.Client{Timeout: timeout},
		url:    "https://api.upbit.com/v1/market/all",
	}
}

func (u *UpbitCatalog) Exchange() string { return "upbit" }

func (u *UpbitCatalog) FetchCatalog(ctx context.Context) (map[string]struct{}, error) {
	body, err := getBody(ctx, u.client, u.url)
	if err != nil {
		return nil, err
	}
	var payload []struct {
		Market string `json:"market"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode upbit catalog: %w", err)
	}
	out := make(map[string]struct{}, len(payload))
	for _, m := range payload {
		sym, ok := strings.CutPrefix(m.Market, "KRW-")
		if !ok {
			continue
		}
		out[sym] = struct{}{}
	}
	return out, nil
}

// BithumbCatalog lists KRW markets from the ALL_KRW ticker: every key of
// the data object except the date field is a symbol.
type BithumbCatalog struct {
	client *http.Client
	url    string
}

func NewBithumbCatalog(timeout time.Duration) *BithumbCatalog {
	return &BithumbCatalog{
		client: &http.Client{Timeout: timeout},
		url:    "https://api.bithumb.com/public/ticker/ALL_KRW",
	}
}

func (b *BithumbCatalog) Exchange() string { return "bithumb" }

func (b *BithumbCatalog) FetchCatalog(ctx context.Context) (map[string]struct{}, error) {
	body, err := getBody(ctx, b.client, b.url)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Status string                     `json:"status"`
		Data   map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode bithumb catalog: %w", err)
	}
	if payload.Status != "0000" {
		return nil, fmt.Errorf("bithumb catalog status %s", payload.Status)
	}
	out := make(map[string]struct{}, len(payload.Data))
	for sym := range payload.Data {
		if sym == "date" {
			continue
		}
		out[sym] = struct{}{}
	}
	return out, nil
}

func getBody(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
