package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestWriter_BatchCommit(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 16, 100)
	w.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES (?, ?)`,
			[]any{string(rune('a' + i)), "x"}, Normal))
	}
	w.Shutdown()

	assert.Equal(t, 5, countRows(t, db))
	assert.Equal(t, uint64(0), w.Drops())
}

func TestWriter_PoisonStatementDoesNotStarveBatch(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 16, 100)

	// Enqueue before Start so the worker sees all three in one batch.
	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('A', '1')`, nil, Normal))
	require.NoError(t, w.Enqueue(`INSERT INTO no_such_table VALUES (1)`, nil, Normal))
	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('B', '2')`, nil, Normal))

	w.Start()
	w.Shutdown()

	var got []string
	rows, err := db.Query(`SELECT k FROM kv ORDER BY k`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		got = append(got, k)
	}
	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, uint64(0), w.Drops(), "failed statements are not queue drops")
}

func TestWriter_NormalOverflowDrops(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 2, 100)
	// Worker not started: the queue fills and stays full.

	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('a', '1')`, nil, Normal))
	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('b', '1')`, nil, Normal))
	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('c', '1')`, nil, Normal))

	assert.Equal(t, uint64(1), w.Drops())

	w.Start()
	w.Shutdown()
	assert.Equal(t, 2, countRows(t, db))
}

func TestWriter_ShutdownDrainsRemaining(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 64, 3)
	w.Start()

	for i := 0; i < 20; i++ {
		require.NoError(t, w.Enqueue(`INSERT OR REPLACE INTO kv (k, v) VALUES (?, ?)`,
			[]any{time.Now().Add(time.Duration(i)).String(), "v"}, Critical))
	}
	w.Shutdown()

	assert.Equal(t, 20, countRows(t, db))
	assert.ErrorIs(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('z', '1')`, nil, Normal), ErrWriterClosed)
}

func TestWriter_CriticalUnblocksAfterShutdown(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 1, 100)
	// Worker stopped and the queue full, so the critical send blocks.
	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('a', '1')`, nil, Normal))

	done := make(chan error, 1)
	go func() {
		done <- w.Enqueue(`INSERT INTO kv (k, v) VALUES ('b', '1')`, nil, Critical)
	}()

	// Flip the flag the way a racing Shutdown does, after the sender has
	// already passed the entry check and parked on the full channel.
	time.Sleep(50 * time.Millisecond)
	w.closed.Store(true)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrWriterClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("critical enqueue still blocked after shutdown")
	}
}

func TestWriter_DropCounterMonotonic(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db, 1, 100)

	require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('a', '1')`, nil, Normal))
	prev := w.Drops()
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Enqueue(`INSERT INTO kv (k, v) VALUES ('x', '1')`, nil, Normal))
		cur := w.Drops()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	w.Start()
	w.Shutdown()
}
