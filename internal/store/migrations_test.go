package store

import (
	"database/sql"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_OrderedAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER PRIMARY KEY);`)},
		"0002_b.sql": {Data: []byte(`CREATE TABLE b (a_id INTEGER REFERENCES a(id));`)},
	}

	require.NoError(t, ApplyMigrations(db, fsys))
	v, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// Second run is a no-op.
	require.NoError(t, ApplyMigrations(db, fsys))
	v, err = SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestApplyMigrations_ChecksumMismatchFatal(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER PRIMARY KEY);`)},
	}
	require.NoError(t, ApplyMigrations(db, fsys))

	// Mutate the applied file: startup must refuse.
	mutated := fstest.MapFS{
		"0001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER PRIMARY KEY, extra TEXT);`)},
	}
	err = ApplyMigrations(db, mutated)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestApplyMigrations_EmbeddedSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	require.NoError(t, ApplyMigrations(db, Migrations()))

	// The debounce invariant is enforced at the schema level.
	_, err = db.Exec(`INSERT INTO alert_debounce (key, last_sent_at, expires_at) VALUES ('k', ?, ?)`,
		time.Now().Unix(), time.Now().Unix()-10)
	assert.Error(t, err)
}
