package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/store"
)

type captureWriter struct{ reqs []store.Request }

func (c *captureWriter) Enqueue(sql string, args []any, _ store.Priority) error {
	c.reqs = append(c.reqs, store.Request{SQL: sql, Args: args})
	return nil
}

type stubProvider struct {
	tok Token
	err error
}

func (s stubProvider) Lookup(context.Context, string) (Token, error) { return s.tok, s.err }

func TestRegister_EnrichedToken(t *testing.T) {
	w := &captureWriter{}
	r := New(w, stubProvider{tok: Token{
		CanonicalID: "solana",
		Name:        "Solana",
		Chains:      []ChainBinding{{Chain: "solana", Contract: "So11111111", Decimals: 9}},
	}})

	tok := r.Register(context.Background(), "sol")
	assert.Equal(t, "SOL", tok.Symbol, "symbols normalised to upper case")
	assert.Equal(t, "solana", tok.CanonicalID)
	require.Len(t, w.reqs, 2, "token row plus one chain binding")

	got, ok := r.Lookup("SOL")
	require.True(t, ok)
	assert.Equal(t, "Solana", got.Name)
}

func TestRegister_ProviderFailureYieldsMinimalRow(t *testing.T) {
	w := &captureWriter{}
	r := New(w, stubProvider{err: errors.New("rate limited")})

	tok := r.Register(context.Background(), "ABC")
	assert.Equal(t, "ABC", tok.Symbol)
	assert.Empty(t, tok.CanonicalID)
	require.Len(t, w.reqs, 1, "minimal token row still persisted")
}

func TestRegister_IdempotentNoDoubleWrite(t *testing.T) {
	w := &captureWriter{}
	r := New(w, nil)

	r.Register(context.Background(), "XYZ")
	r.Register(context.Background(), "xyz")
	assert.Len(t, w.reqs, 1)
	assert.Equal(t, 1, r.Len())
}

func TestHydrate_JoinsChains(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT symbol, canonical_id, name FROM tokens").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "canonical_id", "name"}).
			AddRow("SOL", "solana", "Solana").
			AddRow("PEPE", "pepe", "Pepe"))
	mock.ExpectQuery("SELECT symbol, chain, contract_address, decimals FROM token_chains").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "chain", "contract_address", "decimals"}).
			AddRow("PEPE", "ethereum", "0x6982", 18).
			AddRow("PEPE", "bsc", "0x2598", 18))

	r := New(nil, nil)
	require.NoError(t, r.Hydrate(context.Background(), sqlx.NewDb(db, "sqlite3")))

	pepe, ok := r.Lookup("PEPE")
	require.True(t, ok)
	assert.Len(t, pepe.Chains, 2)

	sol, ok := r.Lookup("SOL")
	require.True(t, ok)
	assert.Empty(t, sol.Chains)
	assert.NoError(t, mock.ExpectationsWereMet())
}
