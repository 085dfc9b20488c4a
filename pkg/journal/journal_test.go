package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/japaniel/wordcloud/pkg/cloud"
	"github.com/japaniel/wordcloud/pkg/db"
	"github.com/japaniel/wordcloud/pkg/orchestrator"
)

func TestJournalRecordsCommittedCycles(t *testing.T) {
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	j := New(conn, zerolog.Nop())
	ctx := context.Background()

	j.OnCycle(ctx, orchestrator.CycleReport{
		ID:         "cycle-1",
		Transcript: "猫と猫と犬",
		At:         time.Now(),
		Admitted:   []string{"猫", "猫", "犬"},
		Weight:     45,
		Evicted:    []cloud.TermStat{{Term: "鳥", Count: 4, Staleness: 6}},
		Entries:    []cloud.TermStat{{Term: "猫", Count: 2, Staleness: 1}, {Term: "犬", Count: 1, Staleness: 1}},
	})
	// skipped cycles are not journaled
	j.OnCycle(ctx, orchestrator.CycleReport{ID: "cycle-2", Err: errors.New("tokenizer down")})

	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cycles, err := db.RecentCycles(conn, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(cycles) != 1 || cycles[0].CycleID != "cycle-1" {
		t.Fatalf("unexpected cycles %+v", cycles)
	}
	if cycles[0].Weight != 45 || cycles[0].AdmittedCount != 3 || cycles[0].Terms != 2 {
		t.Fatalf("unexpected cycle header %+v", cycles[0])
	}

	terms, err := db.CycleTerms(conn, "cycle-1")
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if len(terms) != 2 || terms[0] != (db.CycleTerm{Term: "猫", Observations: 2}) || terms[1] != (db.CycleTerm{Term: "犬", Observations: 1}) {
		t.Fatalf("unexpected terms %+v", terms)
	}

	evs, err := db.Evictions(conn, "cycle-1")
	if err != nil {
		t.Fatalf("evictions: %v", err)
	}
	if len(evs) != 1 || evs[0] != (db.Eviction{Term: "鳥", Count: 4, Staleness: 6}) {
		t.Fatalf("unexpected evictions %+v", evs)
	}
}

func TestJournalAfterCloseDoesNotPanic(t *testing.T) {
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	j := New(conn, zerolog.Nop())
	j.Close()
	j.OnCycle(context.Background(), orchestrator.CycleReport{ID: "late"})
}
