package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens the write connection. All mutation goes through the Writer;
// this handle must not be used concurrently from other goroutines.
//
// WAL lets readers proceed on their own connections while the writer
// holds a transaction. busy_timeout covers checkpoint stalls.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_temp_store=MEMORY"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer connection; the pool must never hand out a second.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenReader opens a read-only sqlx connection for query paths (rollup
// reads, registry hydration, health). Readers never block the writer
// under WAL.
func OpenReader(path string) (*sqlx.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=30000&mode=ro"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping read connection: %w", err)
	}
	return db, nil
}
