package db

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	conn, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInitDBIsIdempotent(t *testing.T) {
	conn := setupTestDB(t)
	if err := InitDB(conn); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	for _, table := range []string{"cycles", "cycle_terms", "evictions"} {
		var name string
		if err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestInsertCycleAndTerms(t *testing.T) {
	conn := setupTestDB(t)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id, err := InsertCycle(conn, Cycle{CycleID: "c-1", Transcript: "猫と犬", AdmittedCount: 3, Weight: 4, Terms: 3, CreatedAt: at})
	if err != nil {
		t.Fatalf("insert cycle: %v", err)
	}

	if err := AddCycleTerm(conn, id, "猫", 1); err != nil {
		t.Fatalf("add term: %v", err)
	}
	if err := AddCycleTerm(conn, id, "猫", 1); err != nil {
		t.Fatalf("add term again: %v", err)
	}
	if err := AddCycleTerm(conn, id, "犬", 1); err != nil {
		t.Fatalf("add term: %v", err)
	}

	terms, err := CycleTerms(conn, "c-1")
	if err != nil {
		t.Fatalf("cycle terms: %v", err)
	}
	if len(terms) != 2 || terms[0].Term != "猫" || terms[0].Observations != 2 || terms[1].Observations != 1 {
		t.Fatalf("unexpected terms %+v", terms)
	}

	cycles, err := RecentCycles(conn, 10)
	if err != nil {
		t.Fatalf("recent cycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	c := cycles[0]
	if c.CycleID != "c-1" || c.Transcript != "猫と犬" || c.Weight != 4 || c.AdmittedCount != 3 {
		t.Fatalf("unexpected cycle %+v", c)
	}
	if !c.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", c.CreatedAt, at)
	}
}

func TestInsertCycleValidation(t *testing.T) {
	conn := setupTestDB(t)
	if _, err := InsertCycle(conn, Cycle{CycleID: "  "}); err == nil {
		t.Fatal("expected error for empty cycle id")
	}
	if _, err := InsertCycle(conn, Cycle{CycleID: "dup"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := InsertCycle(conn, Cycle{CycleID: "dup"}); err == nil {
		t.Fatal("expected unique violation for duplicate cycle id")
	}
	if err := AddCycleTerm(conn, 0, "猫", 1); err == nil {
		t.Fatal("expected error for zero row id")
	}
	if err := AddCycleTerm(conn, 1, "猫", 0); err == nil {
		t.Fatal("expected error for zero observations")
	}
	if err := AddEviction(conn, -1, Eviction{Term: "猫"}); err == nil {
		t.Fatal("expected error for negative row id")
	}
}

func TestEvictionsAndRecentOrder(t *testing.T) {
	conn := setupTestDB(t)

	if _, err := InsertCycle(conn, Cycle{CycleID: "a"}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	second, err := InsertCycle(conn, Cycle{CycleID: "b"})
	if err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := AddEviction(conn, second, Eviction{Term: "犬", Count: 3, Staleness: 5}); err != nil {
		t.Fatalf("add eviction: %v", err)
	}
	if err := AddEviction(conn, second, Eviction{Term: "鳥", Count: 1, Staleness: 5}); err != nil {
		t.Fatalf("add eviction: %v", err)
	}

	evs, err := Evictions(conn, "b")
	if err != nil {
		t.Fatalf("evictions: %v", err)
	}
	if len(evs) != 2 || evs[0] != (Eviction{Term: "犬", Count: 3, Staleness: 5}) {
		t.Fatalf("unexpected evictions %+v", evs)
	}
	if evs, _ := Evictions(conn, "a"); len(evs) != 0 {
		t.Fatalf("expected no evictions for a, got %+v", evs)
	}

	cycles, err := RecentCycles(conn, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(cycles) != 1 || cycles[0].CycleID != "b" {
		t.Fatalf("expected newest cycle b, got %+v", cycles)
	}
}
