package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, balanceHex string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_call", req.Method)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, balanceHex)
	}))
}

func newTestTracker(srv *httptest.Server) *Tracker {
	tr := NewTracker(srv.URL, "key")
	tr.rpcURL = srv.URL
	return tr
}

func TestNewTracker_DisabledWithoutKey(t *testing.T) {
	tr := NewTracker("https://example.invalid", "")
	assert.Nil(t, tr)
	assert.Nil(t, tr.HotWalletFactor(context.Background(), "upbit", "0xabc", 18),
		"nil tracker is safe to call")
}

func TestBalanceOf(t *testing.T) {
	// 5e18 raw units.
	srv := rpcServer(t, "0x4563918244f40000")
	defer srv.Close()

	bal, err := newTestTracker(srv).BalanceOf(context.Background(), "0xtoken", "0xAbCd")
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000000", bal.String())
}

func TestHotWalletFactor_StockedWalletsSmooth(t *testing.T) {
	// 2,000,000 tokens at 18 decimals per wallet.
	srv := rpcServer(t, "0x1a784379d99db42000000")
	defer srv.Close()

	f := newTestTracker(srv).HotWalletFactor(context.Background(), "upbit", "0xtoken", 18)
	require.NotNil(t, f)
	assert.Equal(t, 0.8, f.Score)
	assert.Equal(t, 1.0, f.Confidence, "all wallets answered")
}

func TestHotWalletFactor_EmptyWalletsConstrained(t *testing.T) {
	srv := rpcServer(t, "0x0")
	defer srv.Close()

	f := newTestTracker(srv).HotWalletFactor(context.Background(), "bithumb", "0xtoken", 18)
	require.NotNil(t, f)
	assert.Equal(t, -1.0, f.Score)
}

func TestHotWalletFactor_UnknownExchangeNil(t *testing.T) {
	srv := rpcServer(t, "0x0")
	defer srv.Close()

	assert.Nil(t, newTestTracker(srv).HotWalletFactor(context.Background(), "kraken", "0xtoken", 18))
	assert.Nil(t, newTestTracker(srv).HotWalletFactor(context.Background(), "upbit", "", 18))
}

func TestBalanceOf_RPCErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`)
	}))
	defer srv.Close()

	_, err := newTestTracker(srv).BalanceOf(context.Background(), "0xtoken", "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
}
