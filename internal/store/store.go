// Package store provides the SQLite-backed fetch-response cache.
//
// The provider call is slow and rate-limited, so successful raw responses
// are memoized per (source, range, limit) digest for a fixed TTL. The cache
// is an optimization of the host app, not part of the acquisition core: the
// default DSN is :memory:, so nothing outlives the process unless a file
// path is configured.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_fetched_at ON fetch_cache(fetched_at);
`

// DB wraps a sql.DB with cache-specific operations. A non-positive TTL
// disables lookups entirely (every Get misses, Put still records).
type DB struct {
	conn *sql.DB
	ttl  time.Duration
}

// Open opens (or creates) the cache database and applies the schema.
func Open(dsn string, ttl time.Duration) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, ttl: ttl}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the cached payload for key when it exists and has not aged
// past the TTL. Expired rows are removed on the way out.
func (db *DB) Get(key string) ([]byte, bool) {
	if db.ttl <= 0 {
		return nil, false
	}
	var payload []byte
	var fetchedAt int64
	err := db.conn.QueryRow(
		`SELECT payload, fetched_at FROM fetch_cache WHERE key = ?`, key,
	).Scan(&payload, &fetchedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(time.Unix(0, fetchedAt)) >= db.ttl {
		_, _ = db.conn.Exec(`DELETE FROM fetch_cache WHERE key = ?`, key)
		return nil, false
	}
	return payload, true
}

// Put inserts or replaces the payload for key with a fresh timestamp.
func (db *DB) Put(key string, payload []byte) error {
	_, err := db.conn.Exec(`
		INSERT INTO fetch_cache (key, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			fetched_at = excluded.fetched_at
	`, key, payload, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// Purge removes every expired row and returns how many were deleted.
func (db *DB) Purge() (int64, error) {
	if db.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-db.ttl).UnixNano()
	res, err := db.conn.Exec(`DELETE FROM fetch_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
