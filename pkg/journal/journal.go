// Package journal writes committed cycles to a sqlite database for later
// inspection. The journal is write-only: the frequency table is never
// rebuilt from it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/japaniel/wordcloud/pkg/db"
	"github.com/japaniel/wordcloud/pkg/orchestrator"
)

// Journal is an orchestrator.Observer that persists cycle reports.
type Journal struct {
	bw     *BatchWriter
	logger zerolog.Logger
}

// New creates a Journal writing through a BatchWriter on conn.
func New(conn *sql.DB, logger zerolog.Logger) *Journal {
	j := &Journal{
		bw:     NewBatchWriter(conn, 16, 500*time.Millisecond),
		logger: logger.With().Str("component", "journal").Logger(),
	}
	j.bw.OnError = func(err error) {
		j.logger.Error().Err(err).Msg("journal batch failed")
	}
	return j
}

// OnCycle implements orchestrator.Observer. Skipped cycles are not journaled.
func (j *Journal) OnCycle(ctx context.Context, report orchestrator.CycleReport) {
	if !report.Committed() {
		return
	}

	cycle := db.Cycle{
		CycleID:       report.ID,
		Transcript:    report.Transcript,
		AdmittedCount: len(report.Admitted),
		Weight:        report.Weight,
		Terms:         len(report.Entries),
		CreatedAt:     report.At,
	}
	var order []string
	observations := make(map[string]int)
	for _, term := range report.Admitted {
		if _, seen := observations[term]; !seen {
			order = append(order, term)
		}
		observations[term]++
	}
	evictions := make([]db.Eviction, len(report.Evicted))
	for i, e := range report.Evicted {
		evictions[i] = db.Eviction{Term: e.Term, Count: e.Count, Staleness: e.Staleness}
	}

	err := j.bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		rowID, err := db.InsertCycle(tx, cycle)
		if err != nil {
			return err
		}
		for _, term := range order {
			if err := db.AddCycleTerm(tx, rowID, term, observations[term]); err != nil {
				return fmt.Errorf("journal term %s: %w", term, err)
			}
		}
		for _, e := range evictions {
			if err := db.AddEviction(tx, rowID, e); err != nil {
				return fmt.Errorf("journal eviction %s: %w", e.Term, err)
			}
		}
		return nil
	})
	if err != nil {
		j.logger.Warn().Err(err).Str("cycle_id", report.ID).Msg("cycle not journaled")
	}
}

// Flush hands buffered cycles to the committer without waiting for them.
func (j *Journal) Flush() { j.bw.Flush() }

// Close commits pending cycles and stops the writer.
func (j *Journal) Close() error { return j.bw.Close() }
