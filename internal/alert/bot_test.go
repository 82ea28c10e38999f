package alert

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krwatch/listingpulse/internal/health"
)

type fixedStatus struct{ snap health.Snapshot }

func (f fixedStatus) Snapshot() health.Snapshot { return f.snap }

func TestBot_MissingCredentialsDisable(t *testing.T) {
	assert.Nil(t, NewBot("", "123", dryRun{}, nil, nil))
	assert.Nil(t, NewBot("token", "", dryRun{}, nil, nil))
}

func TestBot_HandleDispatch(t *testing.T) {
	snap := health.Snapshot{
		HeartbeatTS: time.Now().UTC().Unix(),
		WSConnected: map[string]bool{"upbit": true, "bithumb": false},
		QueueSize:   7,
		QueueDrops:  2,
	}
	b := NewBot("token", "123", dryRun{}, fixedStatus{snap}, nil)
	require.NotNil(t, b)

	reply := b.handle(context.Background(), "/status")
	assert.Contains(t, reply, "upbit ws: up")
	assert.Contains(t, reply, "bithumb ws: down")
	assert.Contains(t, reply, "queue: 7 waiting, 2 dropped")

	assert.Contains(t, b.handle(context.Background(), "/help"), "/recent")
	assert.Contains(t, b.handle(context.Background(), "/status@listingpulse_bot extra"), "queue:")
	assert.Empty(t, b.handle(context.Background(), "hello there"))
}

func TestBot_RecentListings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT symbol, exchange, listing_time FROM listing_history`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "exchange", "listing_time"}).
			AddRow("SOL", "upbit", "2026-03-02T09:00:00Z").
			AddRow("PEPE", "bithumb", "2026-03-01T06:30:00Z"))

	b := NewBot("token", "123", dryRun{}, nil, sqlx.NewDb(db, "sqlite3"))
	reply := b.handle(context.Background(), "/recent")
	assert.Contains(t, reply, "SOL on upbit at 2026-03-02T09:00:00Z")
	assert.Contains(t, reply, "PEPE on bithumb")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBot_RecentListingsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT symbol, exchange, listing_time FROM listing_history`).
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "exchange", "listing_time"}))

	b := NewBot("token", "123", dryRun{}, nil, sqlx.NewDb(db, "sqlite3"))
	assert.Equal(t, "no listings recorded yet", b.handle(context.Background(), "/recent"))
}
