package db

import "time"

// Cycle is one committed cycle as journaled.
type Cycle struct {
	ID            int64
	CycleID       string
	Transcript    string
	AdmittedCount int
	Weight        int
	Terms         int
	CreatedAt     time.Time
}

// CycleTerm counts how often a term was admitted within one cycle.
type CycleTerm struct {
	Term         string
	Observations int
}

// Eviction is a term removed by a cycle, with its stats at removal time.
type Eviction struct {
	Term      string
	Count     int
	Staleness int
}
