package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/japaniel/wordcloud/pkg/analyzer"
	"github.com/japaniel/wordcloud/pkg/cloud"
	"github.com/japaniel/wordcloud/pkg/filter"
	"github.com/japaniel/wordcloud/pkg/sizing"
)

// Tokenizer turns a transcript into analyzed tokens.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) ([]analyzer.Token, error)
}

// Renderer consumes the full snapshot produced by every successful cycle.
// Implementations diff against their previous snapshot themselves, keyed by term.
type Renderer interface {
	Render(ctx context.Context, records []sizing.Record) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, records []sizing.Record) error

func (f RendererFunc) Render(ctx context.Context, records []sizing.Record) error {
	return f(ctx, records)
}

// MultiRenderer fans a snapshot out to several renderers. Every renderer is
// called; the first error is returned.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(ctx context.Context, records []sizing.Record) error {
	var first error
	for _, r := range m {
		if err := r.Render(ctx, cloneRecords(records)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Observer is notified after every cycle, committed or skipped.
type Observer interface {
	OnCycle(ctx context.Context, report CycleReport)
}

// CycleReport describes one finished cycle.
type CycleReport struct {
	ID         string
	Transcript string
	At         time.Time
	Duration   time.Duration
	// Admitted lists the admitted terms in batch order, duplicates included.
	Admitted []string
	// Weight is the total count after aging and before eviction.
	Weight  int
	Evicted []cloud.TermStat
	// Entries is the committed table after the cycle.
	Entries []cloud.TermStat
	Records []sizing.Record
	// Err is set when the cycle was skipped (tokenization failure).
	Err error
	// RenderErr is set when the renderer failed after the table was committed.
	RenderErr error
}

// Committed reports whether the cycle changed the table.
func (r CycleReport) Committed() bool { return r.Err == nil }

// Config holds the tunables of an Orchestrator. Zero values take defaults.
type Config struct {
	Budget      int
	MinFontSize float64
	MaxFontSize float64
	Filter      *filter.Filter
	Logger      *zerolog.Logger
	Observers   []Observer
	// QueueSize bounds transcripts waiting behind the running cycle.
	QueueSize int
}

// Orchestrator owns the frequency table and runs one
// tokenize -> merge -> age -> evict -> size -> render cycle per transcript.
type Orchestrator struct {
	tokenizer Tokenizer
	renderer  Renderer
	filter    *filter.Filter
	budget    int
	minSize   float64
	maxSize   float64
	observers []Observer
	logger    zerolog.Logger

	// cycleMu serializes cycles; table is only touched while it is held.
	cycleMu sync.Mutex
	table   *cloud.Table

	entries  atomic.Pointer[[]cloud.TermStat]
	snapshot atomic.Pointer[[]sizing.Record]
	state    atomic.Int32
	cycles   atomic.Int64

	queue *Queue
}

// New creates an Orchestrator with the sentinel-seeded table.
func New(tok Tokenizer, renderer Renderer, cfg Config) *Orchestrator {
	if cfg.Budget <= 0 {
		cfg.Budget = cloud.DefaultBudget
	}
	if cfg.MinFontSize <= 0 {
		cfg.MinFontSize = sizing.DefaultMinFontSize
	}
	if cfg.MaxFontSize <= 0 {
		cfg.MaxFontSize = sizing.DefaultMaxFontSize
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if renderer == nil {
		renderer = RendererFunc(func(context.Context, []sizing.Record) error { return nil })
	}

	o := &Orchestrator{
		tokenizer: tok,
		renderer:  renderer,
		filter:    cfg.Filter,
		budget:    cfg.Budget,
		minSize:   cfg.MinFontSize,
		maxSize:   cfg.MaxFontSize,
		observers: cfg.Observers,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		table:     cloud.NewSeededTable(),
		queue:     NewQueue(cfg.QueueSize),
	}
	o.publish(o.table)
	return o
}

// publish makes table the externally visible committed state.
func (o *Orchestrator) publish(table *cloud.Table) []sizing.Record {
	entries := table.Entries()
	records := sizing.ComputeSizes(entries, o.minSize, o.maxSize)
	o.entries.Store(&entries)
	o.snapshot.Store(&records)
	return records
}

// OnTranscript runs one full cycle for a finalized utterance. A tokenizer
// failure is logged and returned as a *analyzer.TokenizationError and the
// table is left unchanged. Render failures are logged only; the cycle is
// already committed by then.
func (o *Orchestrator) OnTranscript(ctx context.Context, text string) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	defer o.setState(Idle)

	report := CycleReport{
		ID:         uuid.NewString(),
		Transcript: text,
		At:         time.Now(),
	}
	logger := o.logger.With().Str("cycle_id", report.ID).Logger()

	o.setState(Tokenizing)
	tokens, err := o.tokenizer.Tokenize(ctx, text)
	if err != nil {
		var tokErr *analyzer.TokenizationError
		if !errors.As(err, &tokErr) {
			err = &analyzer.TokenizationError{Text: text, Err: err}
		}
		logger.Warn().Err(err).Msg("tokenization failed, cycle skipped")
		report.Err = err
		report.Duration = time.Since(report.At)
		o.notify(ctx, report)
		return err
	}

	next := o.table.Clone()

	o.setState(Merging)
	report.Admitted = o.admit(tokens)
	for _, term := range report.Admitted {
		next.Merge(term)
	}

	o.setState(Aging)
	next.Age()
	report.Weight = next.Total()

	o.setState(Evicting)
	report.Evicted = next.EvictIfOverBudget(o.budget)

	o.table = next
	records := o.publish(next)
	o.cycles.Add(1)

	o.setState(Rendering)
	if err := o.renderer.Render(ctx, cloneRecords(records)); err != nil {
		logger.Error().Err(err).Msg("render failed")
		report.RenderErr = err
	}

	report.Entries = next.Entries()
	report.Records = cloneRecords(records)
	report.Duration = time.Since(report.At)

	if len(report.Evicted) > 0 {
		logger.Info().
			Int("weight", report.Weight).
			Int("evicted", len(report.Evicted)).
			Int("staleness", report.Evicted[0].Staleness).
			Msg("evicted stalest terms")
	}
	logger.Debug().
		Int("admitted", len(report.Admitted)).
		Int("terms", next.Len()).
		Int("weight", next.Total()).
		Dur("took", report.Duration).
		Msg("cycle committed")

	o.notify(ctx, report)
	return nil
}

// admit normalizes tokens and keeps the ones the filter accepts, in order.
func (o *Orchestrator) admit(tokens []analyzer.Token) []string {
	var terms []string
	for _, tok := range tokens {
		term := filter.Normalize(tok.BaseForm)
		if term == "" {
			term = filter.Normalize(tok.Surface)
		}
		if o.filter.Admit(term, filter.CategoryOf(tok.PrimaryPOS)) {
			terms = append(terms, term)
		}
	}
	return terms
}

func (o *Orchestrator) notify(ctx context.Context, report CycleReport) {
	for _, obs := range o.observers {
		obs.OnCycle(ctx, report)
	}
}

// Start launches the transcript queue worker used by Submit.
func (o *Orchestrator) Start(ctx context.Context) {
	o.queue.Start(ctx)
}

// Submit queues a transcript for a later cycle. Cycles run in submission order.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	return o.queue.SubmitCtx(ctx, func(ctx context.Context) error {
		return o.OnTranscript(ctx, text)
	})
}

// Close stops accepting transcripts and waits for queued cycles to finish.
func (o *Orchestrator) Close() {
	o.queue.Close()
}

// Snapshot returns a copy of the last published render records.
func (o *Orchestrator) Snapshot() []sizing.Record {
	return cloneRecords(*o.snapshot.Load())
}

// Entries returns a copy of the last committed table entries.
func (o *Orchestrator) Entries() []cloud.TermStat {
	src := *o.entries.Load()
	out := make([]cloud.TermStat, len(src))
	copy(out, src)
	return out
}

// Cycles returns the number of committed cycles.
func (o *Orchestrator) Cycles() int64 { return o.cycles.Load() }

// State returns the current cycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

func cloneRecords(records []sizing.Record) []sizing.Record {
	out := make([]sizing.Record, len(records))
	copy(out, records)
	return out
}
