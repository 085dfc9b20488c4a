package cloud

// DefaultBudget is the total weight above which the stalest terms are evicted.
const DefaultBudget = 40

// TermStat is one tracked term.
type TermStat struct {
	Term      string `json:"term"`
	Count     int    `json:"count"`
	Staleness int    `json:"staleness"`
}

// Table is an insertion-ordered mapping from term to TermStat.
//
// A Table is not safe for concurrent use; the orchestrator serializes every
// mutation and only hands copies to readers.
type Table struct {
	index map[string]int
	stats []TermStat
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// NewSeededTable returns a table holding the initial sentinel entry
// {"" count=1 staleness=1}, matching the empty cloud shown before any speech.
func NewSeededTable() *Table {
	t := NewTable()
	t.insert(TermStat{Term: "", Count: 1, Staleness: 1})
	return t
}

func (t *Table) insert(s TermStat) {
	t.index[s.Term] = len(t.stats)
	t.stats = append(t.stats, s)
}

// Merge records one observation of term.
func (t *Table) Merge(term string) {
	if i, ok := t.index[term]; ok {
		t.stats[i].Count++
		t.stats[i].Staleness = 0
		return
	}
	t.insert(TermStat{Term: term, Count: 1, Staleness: 0})
}

// Age increments the staleness of every entry by one.
func (t *Table) Age() {
	for i := range t.stats {
		t.stats[i].Staleness++
	}
}

// Total returns the sum of all counts.
func (t *Table) Total() int {
	total := 0
	for _, s := range t.stats {
		total += s.Count
	}
	return total
}

// MaxStaleness returns the largest staleness in the table, or 0 when empty.
func (t *Table) MaxStaleness() int {
	highest := 0
	for _, s := range t.stats {
		if s.Staleness > highest {
			highest = s.Staleness
		}
	}
	return highest
}

// EvictIfOverBudget removes every entry tied at the maximum staleness when the
// total weight is strictly greater than budget. It runs a single pass and
// returns the evicted entries in table order.
func (t *Table) EvictIfOverBudget(budget int) []TermStat {
	if len(t.stats) == 0 || t.Total() <= budget {
		return nil
	}
	maxStaleness := t.MaxStaleness()

	var evicted []TermStat
	kept := t.stats[:0]
	for _, s := range t.stats {
		if s.Staleness >= maxStaleness {
			evicted = append(evicted, s)
			continue
		}
		kept = append(kept, s)
	}
	t.stats = kept

	t.index = make(map[string]int, len(t.stats))
	for i, s := range t.stats {
		t.index[s.Term] = i
	}
	return evicted
}

// Len returns the number of tracked terms.
func (t *Table) Len() int { return len(t.stats) }

// Get returns the entry for term.
func (t *Table) Get(term string) (TermStat, bool) {
	i, ok := t.index[term]
	if !ok {
		return TermStat{}, false
	}
	return t.stats[i], true
}

// Entries returns a copy of all entries in insertion order.
func (t *Table) Entries() []TermStat {
	out := make([]TermStat, len(t.stats))
	copy(out, t.stats)
	return out
}

// Clone returns an independent deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{
		index: make(map[string]int, len(t.index)),
		stats: t.Entries(),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}
