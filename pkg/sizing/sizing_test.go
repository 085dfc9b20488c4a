package sizing

import (
	"math"
	"testing"

	"github.com/japaniel/wordcloud/pkg/cloud"
)

func TestComputeSizesEmpty(t *testing.T) {
	got := ComputeSizes(nil, DefaultMinFontSize, DefaultMaxFontSize)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestComputeSizesSingleEntry(t *testing.T) {
	got := ComputeSizes([]cloud.TermStat{{Term: "猫", Count: 3, Staleness: 1}}, DefaultMinFontSize, DefaultMaxFontSize)
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Size != DefaultMaxFontSize {
		t.Fatalf("single entry size = %v, want %v", got[0].Size, DefaultMaxFontSize)
	}
}

func TestComputeSizesLinear(t *testing.T) {
	entries := []cloud.TermStat{
		{Term: "a", Count: 4, Staleness: 1},
		{Term: "b", Count: 2, Staleness: 2},
		{Term: "c", Count: 1, Staleness: 4},
	}
	got := ComputeSizes(entries, 10, 130)

	want := []float64{130, 70, 40}
	for i, r := range got {
		if r.Term != entries[i].Term {
			t.Errorf("[%d] order broken: got %q, want %q", i, r.Term, entries[i].Term)
		}
		if math.Abs(r.Size-want[i]) > 1e-9 {
			t.Errorf("%q size = %v, want %v", r.Term, r.Size, want[i])
		}
		if r.Staleness != entries[i].Staleness {
			t.Errorf("%q staleness = %d, want %d", r.Term, r.Staleness, entries[i].Staleness)
		}
	}
}

func TestComputeSizesZeroCountGuard(t *testing.T) {
	got := ComputeSizes([]cloud.TermStat{{Term: "x", Count: 0}}, 10, 130)
	if got[0].Size != 10 {
		t.Fatalf("zero count size = %v, want 10", got[0].Size)
	}
}

func TestComputeSizesDoesNotMutate(t *testing.T) {
	entries := []cloud.TermStat{{Term: "a", Count: 2, Staleness: 1}}
	ComputeSizes(entries, 10, 130)
	if entries[0] != (cloud.TermStat{Term: "a", Count: 2, Staleness: 1}) {
		t.Fatalf("entries mutated: %+v", entries[0])
	}
}

func TestComputeSizesColor(t *testing.T) {
	entries := []cloud.TermStat{
		{Term: "fresh", Count: 1, Staleness: 0},
		{Term: "stale", Count: 1, Staleness: 4},
	}
	got := ComputeSizes(entries, 10, 130)
	if got[0].Color != "#440154" {
		t.Errorf("fresh color = %s, want #440154", got[0].Color)
	}
	if got[1].Color != "#fde725" {
		t.Errorf("stale color = %s, want #fde725", got[1].Color)
	}
}

func TestViridisBounds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{-1, "#440154"},
		{0, "#440154"},
		{0.5, "#21918c"},
		{1, "#fde725"},
		{2, "#fde725"},
		{math.NaN(), "#440154"},
	}
	for _, tt := range tests {
		if got := Viridis(tt.in); got != tt.want {
			t.Errorf("Viridis(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
