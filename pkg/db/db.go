package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS cycles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL UNIQUE,
	transcript TEXT NOT NULL,
	admitted_count INTEGER NOT NULL DEFAULT 0,
	weight INTEGER NOT NULL DEFAULT 0,
	terms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS cycle_terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_row_id INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
	term TEXT NOT NULL,
	observations INTEGER NOT NULL,
	UNIQUE(cycle_row_id, term)
);

CREATE TABLE IF NOT EXISTS evictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_row_id INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
	term TEXT NOT NULL,
	count INTEGER NOT NULL,
	staleness INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evictions_term ON evictions(term)
`

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	for _, s := range strings.Split(migrationsSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Open opens (or creates) the sqlite journal at path and migrates it.
// ":memory:" is accepted and pinned to a single connection.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
