package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/japaniel/wordcloud/pkg/analyzer"
	"github.com/japaniel/wordcloud/pkg/cloud"
	"github.com/japaniel/wordcloud/pkg/sizing"
)

// fakeTokenizer treats every space-separated word as a token. A word of the
// form "pos:base" sets the primary POS; bare words are nouns.
type fakeTokenizer struct {
	err   error
	block chan struct{}
}

func (f *fakeTokenizer) Tokenize(ctx context.Context, text string) ([]analyzer.Token, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []analyzer.Token
	for _, w := range strings.Fields(text) {
		pos, base := "名詞", w
		if i := strings.Index(w, ":"); i >= 0 {
			pos, base = w[:i], w[i+1:]
		}
		out = append(out, analyzer.Token{Surface: base, BaseForm: base, PrimaryPOS: pos, PartsOfSpeech: []string{pos}})
	}
	return out, nil
}

type recordingRenderer struct {
	mu    sync.Mutex
	calls [][]sizing.Record
	err   error
}

func (r *recordingRenderer) Render(ctx context.Context, records []sizing.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, records)
	return r.err
}

func (r *recordingRenderer) last() []sizing.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

type recordingObserver struct {
	mu      sync.Mutex
	reports []CycleReport
}

func (r *recordingObserver) OnCycle(ctx context.Context, report CycleReport) {
	r.mu.Lock()
	r.reports = append(r.reports, report)
	r.mu.Unlock()
}

func entryMap(entries []cloud.TermStat) map[string]cloud.TermStat {
	m := make(map[string]cloud.TermStat, len(entries))
	for _, e := range entries {
		m[e.Term] = e
	}
	return m
}

func TestInitialSnapshotHoldsSentinel(t *testing.T) {
	o := New(&fakeTokenizer{}, nil, Config{})
	snap := o.Snapshot()
	if len(snap) != 1 || snap[0].Term != "" || snap[0].Staleness != 1 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
	if snap[0].Size != sizing.DefaultMaxFontSize {
		t.Fatalf("sentinel size = %v, want %v", snap[0].Size, sizing.DefaultMaxFontSize)
	}
	if o.State() != Idle {
		t.Fatalf("state = %v, want idle", o.State())
	}
}

func TestCycleMergesAgesAndRenders(t *testing.T) {
	r := &recordingRenderer{}
	o := New(&fakeTokenizer{}, r, Config{})

	if err := o.OnTranscript(context.Background(), "猫 猫 犬"); err != nil {
		t.Fatalf("OnTranscript failed: %v", err)
	}

	m := entryMap(o.Entries())
	if m["猫"].Count != 2 || m["猫"].Staleness != 1 {
		t.Errorf("猫 = %+v, want count=2 staleness=1", m["猫"])
	}
	if m["犬"].Count != 1 || m["犬"].Staleness != 1 {
		t.Errorf("犬 = %+v, want count=1 staleness=1", m["犬"])
	}
	if m[""].Staleness != 2 {
		t.Errorf("sentinel staleness = %d, want 2", m[""].Staleness)
	}
	for _, e := range o.Entries() {
		if e.Staleness < 1 {
			t.Errorf("%q staleness %d < 1 after cycle", e.Term, e.Staleness)
		}
	}

	last := r.last()
	if len(last) != 3 {
		t.Fatalf("expected 3 rendered records, got %d", len(last))
	}
	if last[0].Term != "" || last[1].Term != "猫" || last[2].Term != "犬" {
		t.Fatalf("render order broken: %+v", last)
	}
	if last[1].Size != sizing.DefaultMaxFontSize {
		t.Errorf("most frequent size = %v, want max", last[1].Size)
	}
	if o.Cycles() != 1 {
		t.Errorf("cycles = %d, want 1", o.Cycles())
	}
}

func TestStopwordOnlyBatchOnlyAges(t *testing.T) {
	r := &recordingRenderer{}
	o := New(&fakeTokenizer{}, r, Config{})
	o.OnTranscript(context.Background(), "猫")
	before := o.Entries()

	if err := o.OnTranscript(context.Background(), "動詞:する 名詞:こと 助詞:は"); err != nil {
		t.Fatalf("OnTranscript failed: %v", err)
	}
	after := o.Entries()

	if len(after) != len(before) {
		t.Fatalf("term set changed: %+v -> %+v", before, after)
	}
	for i := range before {
		if after[i].Term != before[i].Term || after[i].Count != before[i].Count {
			t.Errorf("entry changed: %+v -> %+v", before[i], after[i])
		}
		if after[i].Staleness != before[i].Staleness+1 {
			t.Errorf("%q staleness %d -> %d", before[i].Term, before[i].Staleness, after[i].Staleness)
		}
	}
	if len(r.calls) != 2 {
		t.Fatalf("expected a render for the empty batch too, got %d renders", len(r.calls))
	}
}

func TestTokenizerFailureLeavesStateUnchanged(t *testing.T) {
	r := &recordingRenderer{}
	obs := &recordingObserver{}
	tok := &fakeTokenizer{}
	o := New(tok, r, Config{Observers: []Observer{obs}})
	o.OnTranscript(context.Background(), "猫")

	beforeEntries := o.Entries()
	beforeSnap := o.Snapshot()

	tok.err = errors.New("dictionary missing")
	err := o.OnTranscript(context.Background(), "犬")

	var tokErr *analyzer.TokenizationError
	if !errors.As(err, &tokErr) {
		t.Fatalf("expected TokenizationError, got %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("renderer called on failed cycle: %d calls", len(r.calls))
	}
	after := o.Entries()
	if len(after) != len(beforeEntries) {
		t.Fatalf("table changed on failure")
	}
	for i := range after {
		if after[i] != beforeEntries[i] {
			t.Errorf("entry changed on failure: %+v -> %+v", beforeEntries[i], after[i])
		}
	}
	if snap := o.Snapshot(); len(snap) != len(beforeSnap) || snap[1] != beforeSnap[1] {
		t.Fatalf("snapshot changed on failure")
	}
	if o.State() != Idle {
		t.Fatalf("state = %v after failure, want idle", o.State())
	}
	if len(obs.reports) != 2 || obs.reports[1].Committed() {
		t.Fatalf("expected a skipped report, got %+v", obs.reports)
	}
	if o.Cycles() != 1 {
		t.Fatalf("failed cycle counted: %d", o.Cycles())
	}
}

func TestEvictionThroughCycles(t *testing.T) {
	obs := &recordingObserver{}
	o := New(&fakeTokenizer{}, nil, Config{Budget: 5, Observers: []Observer{obs}})
	ctx := context.Background()

	o.OnTranscript(ctx, "a a") // weight 3
	o.OnTranscript(ctx, "b b") // weight 5, not over
	o.OnTranscript(ctx, "c")   // weight 6, the sentinel is stalest
	if _, ok := entryMap(o.Entries())[""]; ok {
		t.Fatal("expected sentinel evicted")
	}
	last := obs.reports[len(obs.reports)-1]
	if last.Weight != 6 || len(last.Evicted) != 1 || last.Evicted[0].Term != "" {
		t.Fatalf("unexpected report %+v", last)
	}

	// a is now the stalest
	o.OnTranscript(ctx, "b")
	m := entryMap(o.Entries())
	if _, ok := m["a"]; ok {
		t.Fatal("expected a evicted")
	}
	if m["b"].Count != 3 || m["c"].Count != 1 {
		t.Fatalf("unexpected remaining entries %+v", m)
	}
}

func TestRenderErrorKeepsCommit(t *testing.T) {
	r := &recordingRenderer{err: errors.New("display gone")}
	obs := &recordingObserver{}
	o := New(&fakeTokenizer{}, r, Config{Observers: []Observer{obs}})

	if err := o.OnTranscript(context.Background(), "猫"); err != nil {
		t.Fatalf("render errors must not fail the cycle, got %v", err)
	}
	if _, ok := entryMap(o.Entries())["猫"]; !ok {
		t.Fatal("cycle not committed")
	}
	if obs.reports[0].RenderErr == nil {
		t.Fatal("expected RenderErr on report")
	}
}

func TestSnapshotNotVisibleMidCycle(t *testing.T) {
	tok := &fakeTokenizer{block: make(chan struct{})}
	o := New(tok, nil, Config{})

	done := make(chan error, 1)
	go func() { done <- o.OnTranscript(context.Background(), "猫") }()

	deadline := time.Now().Add(time.Second)
	for o.State() != Tokenizing {
		if time.Now().After(deadline) {
			t.Fatal("cycle never reached tokenizing")
		}
		time.Sleep(time.Millisecond)
	}
	if len(o.Snapshot()) != 1 {
		t.Fatal("snapshot changed before the cycle committed")
	}

	close(tok.block)
	if err := <-done; err != nil {
		t.Fatalf("OnTranscript failed: %v", err)
	}
	if len(o.Snapshot()) != 2 {
		t.Fatalf("expected committed snapshot, got %+v", o.Snapshot())
	}
}

func TestSubmitSerializesCycles(t *testing.T) {
	obs := &recordingObserver{}
	o := New(&fakeTokenizer{}, nil, Config{Observers: []Observer{obs}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)

	for i := 0; i < 20; i++ {
		if err := o.Submit(ctx, "猫"); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	o.Close()

	m := entryMap(o.Entries())
	if m["猫"].Count != 20 || m["猫"].Staleness != 1 {
		t.Fatalf("猫 = %+v, want count=20 staleness=1", m["猫"])
	}
	// aged exactly once per cycle
	if m[""].Staleness != 21 {
		t.Fatalf("sentinel staleness = %d, want 21", m[""].Staleness)
	}
	if len(obs.reports) != 20 {
		t.Fatalf("expected 20 reports, got %d", len(obs.reports))
	}
	if err := o.Submit(ctx, "猫"); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed after Close, got %v", err)
	}
}

func TestMultiRendererCallsAll(t *testing.T) {
	a := &recordingRenderer{err: errors.New("a failed")}
	b := &recordingRenderer{}
	err := MultiRenderer{a, b}.Render(context.Background(), []sizing.Record{{Term: "x"}})
	if err == nil || err.Error() != "a failed" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(b.calls) != 1 {
		t.Fatal("second renderer not called")
	}
}
