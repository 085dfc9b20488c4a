package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// InsertCycle stores a cycle header and returns its row id.
func InsertCycle(db DBExecutor, c Cycle) (int64, error) {
	cycleID := strings.TrimSpace(c.CycleID)
	if cycleID == "" {
		return 0, fmt.Errorf("cycleID must be non-empty")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	var id int64
	err := db.QueryRow(`INSERT INTO cycles (cycle_id, transcript, admitted_count, weight, terms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		cycleID, c.Transcript, c.AdmittedCount, c.Weight, c.Terms, c.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	return id, nil
}

// AddCycleTerm records observations of term within a cycle, accumulating on
// repeated calls.
func AddCycleTerm(db DBExecutor, cycleRowID int64, term string, observations int) error {
	if cycleRowID <= 0 {
		return fmt.Errorf("cycleRowID must be positive")
	}
	if observations < 1 {
		return fmt.Errorf("observations must be positive, got %d", observations)
	}
	_, err := db.Exec(`INSERT INTO cycle_terms (cycle_row_id, term, observations) VALUES (?, ?, ?)
		ON CONFLICT(cycle_row_id, term) DO UPDATE SET
		  observations = cycle_terms.observations + excluded.observations`,
		cycleRowID, term, observations)
	return err
}

// AddEviction records a term evicted by a cycle.
func AddEviction(db DBExecutor, cycleRowID int64, e Eviction) error {
	if cycleRowID <= 0 {
		return fmt.Errorf("cycleRowID must be positive")
	}
	_, err := db.Exec(`INSERT INTO evictions (cycle_row_id, term, count, staleness) VALUES (?, ?, ?, ?)`,
		cycleRowID, e.Term, e.Count, e.Staleness)
	return err
}

// RecentCycles returns up to limit cycles, newest first.
func RecentCycles(db DBExecutor, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT id, cycle_id, transcript, admitted_count, weight, terms, created_at
		FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.CycleID, &c.Transcript, &c.AdmittedCount, &c.Weight, &c.Terms, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CycleTerms returns the admitted terms of a cycle, by cycle id.
func CycleTerms(db DBExecutor, cycleID string) ([]CycleTerm, error) {
	rows, err := db.Query(`SELECT ct.term, ct.observations FROM cycle_terms ct
		JOIN cycles c ON c.id = ct.cycle_row_id
		WHERE c.cycle_id = ? ORDER BY ct.id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleTerm
	for rows.Next() {
		var ct CycleTerm
		if err := rows.Scan(&ct.Term, &ct.Observations); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// Evictions returns the terms evicted by a cycle, by cycle id.
func Evictions(db DBExecutor, cycleID string) ([]Eviction, error) {
	rows, err := db.Query(`SELECT e.term, e.count, e.staleness FROM evictions e
		JOIN cycles c ON c.id = e.cycle_row_id
		WHERE c.cycle_id = ? ORDER BY e.id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Eviction
	for rows.Next() {
		var e Eviction
		if err := rows.Scan(&e.Term, &e.Count, &e.Staleness); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
