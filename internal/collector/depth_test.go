package collector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthCache_SortedSides(t *testing.T) {
	d := NewDepthCache()
	d.Apply("SOL", "ask", 102, 1)
	d.Apply("SOL", "ask", 100, 2)
	d.Apply("SOL", "ask", 101, 3)
	d.Apply("SOL", "bid", 98, 1)
	d.Apply("SOL", "bid", 99, 2)

	book := d.Snapshot("SOL")
	require.NotNil(t, book)
	require.Len(t, book.Asks, 3)
	assert.Equal(t, 100.0, book.Asks[0].Price, "asks ascending")
	assert.Equal(t, 102.0, book.Asks[2].Price)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 99.0, book.Bids[0].Price, "bids descending")
}

func TestDepthCache_ZeroQtyRemoves(t *testing.T) {
	d := NewDepthCache()
	d.Apply("SOL", "ask", 100, 2)
	d.Apply("SOL", "ask", 101, 1)
	d.Apply("SOL", "ask", 100, 0)

	book := d.Snapshot("SOL")
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 101.0, book.Asks[0].Price)
}

func TestDepthCache_UpdateInPlace(t *testing.T) {
	d := NewDepthCache()
	d.Apply("SOL", "ask", 100, 2)
	d.Apply("SOL", "ask", 100, 5)

	book := d.Snapshot("SOL")
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 5.0, book.Asks[0].Qty)
}

func TestDepthCache_CapEvictsWorst(t *testing.T) {
	d := NewDepthCache()
	for i := 0; i < maxDepthLevels+10; i++ {
		d.Apply("SOL", "ask", 100+float64(i), 1)
		d.Apply("SOL", "bid", 99-float64(i), 1)
	}

	book := d.Snapshot("SOL")
	require.Len(t, book.Asks, maxDepthLevels)
	require.Len(t, book.Bids, maxDepthLevels)
	assert.Equal(t, 100.0, book.Asks[0].Price, "best ask survives")
	assert.Equal(t, 100.0+float64(maxDepthLevels-1), book.Asks[maxDepthLevels-1].Price,
		"highest asks evicted")
	assert.Equal(t, 99.0, book.Bids[0].Price, "best bid survives")
}

func TestDepthCache_BetterLevelStillInsertsWhenFull(t *testing.T) {
	d := NewDepthCache()
	for i := 0; i < maxDepthLevels; i++ {
		d.Apply("SOL", "ask", 200+float64(i), 1)
	}
	d.Apply("SOL", "ask", 150, 1)

	book := d.Snapshot("SOL")
	require.Len(t, book.Asks, maxDepthLevels)
	assert.Equal(t, 150.0, book.Asks[0].Price)
}

func TestDepthCache_ResetDropsBooks(t *testing.T) {
	d := NewDepthCache()
	d.Apply("SOL", "ask", 100, 1)
	d.Reset()
	assert.Nil(t, d.Snapshot("SOL"))
}

func TestDepthCache_UnknownSymbolNil(t *testing.T) {
	assert.Nil(t, NewDepthCache().Snapshot("GHOST"))
}

func TestDepthCache_IndependentSymbols(t *testing.T) {
	d := NewDepthCache()
	for i := 0; i < 3; i++ {
		sym := fmt.Sprintf("S%d", i)
		d.Apply(sym, "ask", float64(100+i), 1)
	}
	for i := 0; i < 3; i++ {
		book := d.Snapshot(fmt.Sprintf("S%d", i))
		require.Len(t, book.Asks, 1)
		assert.Equal(t, float64(100+i), book.Asks[0].Price)
	}
}
