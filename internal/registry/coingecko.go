package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CoinGecko resolves symbols to canonical coin ids and platform
// contracts. An API key raises the rate limit but is not required.
type CoinGecko struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewCoinGecko(apiKey string) *CoinGecko {
	return &CoinGecko{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.coingecko.com/api/v3",
		apiKey:  apiKey,
	}
}

func (c *CoinGecko) Lookup(ctx context.Context, symbol string) (Token, error) {
	id, name, err := c.search(ctx, symbol)
	if err != nil {
		return Token{}, err
	}
	tok := Token{Symbol: symbol, CanonicalID: id, Name: name}

	chains, err := c.platforms(ctx, id)
	if err != nil {
		// Identity without contracts is still useful.
		return tok, nil
	}
	tok.Chains = chains
	return tok, nil
}

func (c *CoinGecko) search(ctx context.Context, symbol string) (id, name string, err error) {
	body, err := c.get(ctx, "/search?query="+url.QueryEscape(symbol))
	if err != nil {
		return "", "", err
	}
	var payload struct {
		Coins []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"coins"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("decode coingecko search: %w", err)
	}
	for _, coin := range payload.Coins {
		if strings.EqualFold(coin.Symbol, symbol) {
			return coin.ID, coin.Name, nil
		}
	}
	return "", "", fmt.Errorf("coingecko: no coin matches symbol %q", symbol)
}

func (c *CoinGecko) platforms(ctx context.Context, id string) ([]ChainBinding, error) {
	body, err := c.get(ctx, "/coins/"+url.PathEscape(id)+
		"?localization=false&tickers=false&market_data=false&community_data=false&developer_data=false")
	if err != nil {
		return nil, err
	}
	var payload struct {
		DetailPlatforms map[string]struct {
			DecimalPlace    *int   `json:"decimal_place"`
			ContractAddress string `json:"contract_address"`
		} `json:"detail_platforms"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode coingecko coin: %w", err)
	}

	var out []ChainBinding
	for chain, p := range payload.DetailPlatforms {
		if chain == "" || p.ContractAddress == "" {
			continue
		}
		decimals := 18
		if p.DecimalPlace != nil {
			decimals = *p.DecimalPlace
		}
		out = append(out, ChainBinding{Chain: chain, Contract: p.ContractAddress, Decimals: decimals})
	}
	return out, nil
}

func (c *CoinGecko) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko %s returned %d", path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
