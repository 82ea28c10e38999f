package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/krwatch/listingpulse/internal/store"
)

// ChainBinding ties a symbol to one chain's contract.
type ChainBinding struct {
	Chain    string `db:"chain"`
	Contract string `db:"contract_address"`
	Decimals int    `db:"decimals"`
}

// Token is the canonical identity for a traded symbol.
type Token struct {
	Symbol      string
	CanonicalID string
	Name        string
	Chains      []ChainBinding
}

// MetadataProvider enriches a bare symbol with its canonical id, name and
// chain contracts. Enrichment is best-effort: failures fall back to a
// minimal row.
type MetadataProvider interface {
	Lookup(ctx context.Context, symbol string) (Token, error)
}

type writerSink interface {
	Enqueue(sql string, args []any, prio store.Priority) error
}

// Registry is the in-memory symbol index. It is hydrated once from the
// read connection; all mutation flows through the writer.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Token

	writer   writerSink
	provider MetadataProvider
}

func New(writer writerSink, provider MetadataProvider) *Registry {
	return &Registry{
		tokens:   make(map[string]Token),
		writer:   writer,
		provider: provider,
	}
}

// Hydrate loads all persisted tokens and chain bindings.
func (r *Registry) Hydrate(ctx context.Context, reader *sqlx.DB) error {
	var rows []struct {
		Symbol      string `db:"symbol"`
		CanonicalID string `db:"canonical_id"`
		Name        string `db:"name"`
	}
	if err := reader.SelectContext(ctx, &rows,
		`SELECT symbol, canonical_id, name FROM tokens`); err != nil {
		return err
	}

	var chains []struct {
		Symbol string `db:"symbol"`
		ChainBinding
	}
	if err := reader.SelectContext(ctx, &chains,
		`SELECT symbol, chain, contract_address, decimals FROM token_chains`); err != nil {
		return err
	}
	bySymbol := map[string][]ChainBinding{}
	for _, c := range chains {
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c.ChainBinding)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.tokens[row.Symbol] = Token{
			Symbol:      row.Symbol,
			CanonicalID: row.CanonicalID,
			Name:        row.Name,
			Chains:      bySymbol[row.Symbol],
		}
	}
	log.Info().Int("tokens", len(r.tokens)).Msg("token registry hydrated")
	return nil
}

// Lookup returns the token for symbol, if known.
func (r *Registry) Lookup(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[normalize(symbol)]
	return t, ok
}

// Len reports the number of known tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Register ensures symbol exists, enriching from the metadata provider
// when one is configured. Provider failure still yields a minimal row so
// the rest of the pipeline never waits on metadata.
func (r *Registry) Register(ctx context.Context, symbol string) Token {
	symbol = normalize(symbol)
	if t, ok := r.Lookup(symbol); ok {
		return t
	}

	tok := Token{Symbol: symbol}
	if r.provider != nil {
		enriched, err := r.provider.Lookup(ctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("metadata enrichment failed, minimal row")
		} else {
			enriched.Symbol = symbol
			tok = enriched
		}
	}

	r.mu.Lock()
	r.tokens[symbol] = tok
	r.mu.Unlock()

	r.persist(tok)
	return tok
}

func (r *Registry) persist(tok Token) {
	if r.writer == nil {
		return
	}
	req := store.UpsertToken(tok.Symbol, tok.CanonicalID, tok.Name)
	if err := r.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
		log.Warn().Err(err).Str("symbol", tok.Symbol).Msg("token row enqueue failed")
		return
	}
	for _, c := range tok.Chains {
		req := store.UpsertTokenChain(tok.Symbol, c.Chain, c.Contract, c.Decimals)
		if err := r.writer.Enqueue(req.SQL, req.Args, store.Normal); err != nil {
			log.Warn().Err(err).Str("symbol", tok.Symbol).Str("chain", c.Chain).
				Msg("chain binding enqueue failed")
		}
	}
}

func normalize(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }
