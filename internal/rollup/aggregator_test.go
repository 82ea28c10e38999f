package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/market"
	"github.com/krwatch/listingpulse/internal/store"
)

type captureWriter struct{ reqs []store.Request }

func (c *captureWriter) Enqueue(sql string, args []any, _ store.Priority) error {
	c.reqs = append(c.reqs, store.Request{SQL: sql, Args: args})
	return nil
}

func barCols() []string {
	return []string{"market", "ts_second", "open", "high", "low", "close", "volume_base", "volume_quote"}
}

func TestFold_OHLCVSemantics(t *testing.T) {
	minute := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	bars := []market.Candle{
		{Bucket: minute.Add(5 * time.Second), Open: 100, High: 110, Low: 95, Close: 105, VolumeBase: 1, VolumeQuote: 100},
		{Bucket: minute.Add(30 * time.Second), Open: 105, High: 120, Low: 104, Close: 118, VolumeBase: 2, VolumeQuote: 220},
		{Bucket: minute.Add(59 * time.Second), Open: 118, High: 119, Low: 90, Close: 92, VolumeBase: 0.5, VolumeQuote: 47},
	}

	out := Fold(bars, minute)
	assert.Equal(t, 100.0, out.Open, "open of earliest second")
	assert.Equal(t, 92.0, out.Close, "close of latest second")
	assert.Equal(t, 120.0, out.High)
	assert.Equal(t, 90.0, out.Low)
	assert.Equal(t, 3.5, out.VolumeBase)
	assert.Equal(t, 367.0, out.VolumeQuote)
	assert.Equal(t, minute, out.Bucket)
}

func TestFold_UnsortedInput(t *testing.T) {
	minute := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	bars := []market.Candle{
		{Bucket: minute.Add(40 * time.Second), Open: 200, High: 200, Low: 200, Close: 210},
		{Bucket: minute.Add(2 * time.Second), Open: 100, High: 100, Low: 100, Close: 150},
	}

	out := Fold(bars, minute)
	assert.Equal(t, 100.0, out.Open)
	assert.Equal(t, 210.0, out.Close)
}

func TestRollupMinute_OneBarPerMarket(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	minute := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT market, ts_second").
		WithArgs(minute.Unix(), minute.Add(time.Minute).Unix()).
		WillReturnRows(sqlmock.NewRows(barCols()).
			AddRow("UPBIT:SOL", minute.Unix(), 100.0, 110.0, 95.0, 105.0, 1.0, 100.0).
			AddRow("UPBIT:SOL", minute.Add(10*time.Second).Unix(), 105.0, 130.0, 100.0, 125.0, 2.0, 240.0).
			AddRow("BITHUMB:SOL", minute.Add(3*time.Second).Unix(), 99.0, 99.0, 99.0, 99.0, 0.1, 9.9))

	w := &captureWriter{}
	agg := New(sqlx.NewDb(db, "sqlite3"), w)

	require.NoError(t, agg.RollupMinute(context.Background(), minute))
	assert.Len(t, w.reqs, 2, "one upsert per market")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollupMinute_EmptyMinuteWritesNothing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	minute := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT market, ts_second").
		WillReturnRows(sqlmock.NewRows(barCols()))

	w := &captureWriter{}
	agg := New(sqlx.NewDb(db, "sqlite3"), w)

	require.NoError(t, agg.RollupMinute(context.Background(), minute))
	assert.Empty(t, w.reqs)
}
