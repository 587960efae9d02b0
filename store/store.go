// Package store persists job sets, changeover tables, and solve runs in
// SQLite. Timestamps are stored as RFC3339 strings; reconstruction errors
// surface rather than yielding partial records.
package store

import (
	"database/sql"
	"time"
)

// Store handles persistence for the smartcoat domain
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database connection
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
