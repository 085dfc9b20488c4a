package sizing

import (
	"github.com/japaniel/wordcloud/pkg/cloud"
)

// Default font sizes for the least and most frequent terms.
const (
	DefaultMinFontSize = 10
	DefaultMaxFontSize = 130
)

// Record is one render-ready term. It is a value copy; nothing in it points
// back into the frequency table.
type Record struct {
	Term      string  `json:"term"`
	Size      float64 `json:"size"`
	Staleness int     `json:"staleness"`
	Color     string  `json:"color"`
}

// ComputeSizes maps table entries to records, scaling font size linearly
// from [0, max count] onto [minSize, maxSize] and coloring each term by its
// staleness relative to the stalest entry. Output order follows entries.
func ComputeSizes(entries []cloud.TermStat, minSize, maxSize float64) []Record {
	if len(entries) == 0 {
		return []Record{}
	}

	countMax, stalenessMax := 0, 0
	for _, e := range entries {
		if e.Count > countMax {
			countMax = e.Count
		}
		if e.Staleness > stalenessMax {
			stalenessMax = e.Staleness
		}
	}

	out := make([]Record, len(entries))
	for i, e := range entries {
		size := minSize
		if countMax > 0 {
			size = minSize + (maxSize-minSize)*float64(e.Count)/float64(countMax)
		}
		out[i] = Record{
			Term:      e.Term,
			Size:      size,
			Staleness: e.Staleness,
			Color:     Viridis(normalizeStaleness(e.Staleness, stalenessMax)),
		}
	}
	return out
}

// normalizeStaleness maps [0, max] onto [0, 1]; a zero-width domain maps to
// the midpoint.
func normalizeStaleness(staleness, highest int) float64 {
	if highest == 0 {
		return 0.5
	}
	return float64(staleness) / float64(highest)
}
