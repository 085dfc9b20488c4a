package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/japaniel/wordcloud/pkg/analyzer"
	"github.com/japaniel/wordcloud/pkg/config"
	"github.com/japaniel/wordcloud/pkg/db"
	"github.com/japaniel/wordcloud/pkg/feed"
	"github.com/japaniel/wordcloud/pkg/journal"
	"github.com/japaniel/wordcloud/pkg/observability"
	"github.com/japaniel/wordcloud/pkg/orchestrator"
	"github.com/japaniel/wordcloud/pkg/server"
	"github.com/japaniel/wordcloud/pkg/sizing"
	"github.com/japaniel/wordcloud/pkg/tui"
)

type options struct {
	addr    string
	stdin   bool
	url     string
	tui     bool
	serve   bool
	logFile string
}

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides PORT)")
	dbFlag := flag.String("db", "", "Path to SQLite journal (overrides JOURNAL_PATH)")
	stdinFlag := flag.Bool("stdin", false, "Read transcripts from stdin, one per line")
	urlFlag := flag.String("url", "", "Replay a web article as transcripts")
	tuiFlag := flag.Bool("tui", false, "Draw the cloud in the terminal")
	serveFlag := flag.Bool("serve", true, "Serve the HTTP and websocket endpoints")
	logFileFlag := flag.String("log-file", "", "Write logs to this file instead of stderr")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dbFlag != "" {
		cfg.JournalPath = *dbFlag
	}

	opts := options{
		addr:    ":" + cfg.Port,
		stdin:   *stdinFlag,
		url:     *urlFlag,
		tui:     *tuiFlag,
		serve:   *serveFlag,
		logFile: *logFileFlag,
	}
	if *addrFlag != "" {
		opts.addr = *addrFlag
	}

	logger, closeLog, err := newLogger(cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error().Err(err).Msg("wordcloud failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

// newLogger picks the log destination. The TUI owns the terminal, so without
// a log file its logs are dropped.
func newLogger(cfg *config.Config, opts options) (zerolog.Logger, func(), error) {
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), func() {}, err
		}
		logger := observability.NewLogger(f, cfg.LogLevel, false)
		log.Logger = logger
		return logger, func() { f.Close() }, nil
	}
	if opts.tui {
		return zerolog.Nop(), func() {}, nil
	}
	return observability.InitLogger(cfg.LogLevel, cfg.LogPretty), func() {}, nil
}

func run(ctx context.Context, cfg *config.Config, opts options, logger zerolog.Logger) error {
	logger.Info().
		Str("addr", opts.addr).
		Int("weight_budget", cfg.WeightBudget).
		Str("journal", cfg.JournalPath).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("wordcloud starting")

	termFilter, err := cfg.Filter()
	if err != nil {
		return err
	}

	start := time.Now()
	an, err := analyzer.NewAnalyzer()
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	logger.Debug().Dur("took", time.Since(start)).Msg("tokenizer dictionary loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observers := []orchestrator.Observer{observability.NewMetrics(reg)}
	checks := map[string]observability.HealthCheckFunc{
		"tokenizer": func(ctx context.Context) (bool, error) {
			_, err := an.Tokenize(ctx, "確認")
			return err == nil, err
		},
	}

	if cfg.JournalPath != "" {
		conn, err := db.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer conn.Close()
		jrnl := journal.New(conn, logger)
		defer func() {
			if err := jrnl.Close(); err != nil {
				logger.Error().Err(err).Msg("journal close failed")
			}
		}()
		observers = append(observers, jrnl)
		checks["journal"] = func(ctx context.Context) (bool, error) {
			err := conn.PingContext(ctx)
			return err == nil, err
		}
		logger.Info().Str("path", cfg.JournalPath).Msg("journal enabled")
	}

	hub := server.NewHub(logger)
	renderers := orchestrator.MultiRenderer{hub}

	var program *tea.Program
	if opts.tui {
		program = tui.NewProgram(nil)
		bridge := tui.NewBridge(program)
		renderers = append(renderers, bridge)
		observers = append(observers, bridge)
	}

	orch := orchestrator.New(an, renderers, orchestrator.Config{
		Budget:      cfg.WeightBudget,
		MinFontSize: cfg.MinFontSize,
		MaxFontSize: cfg.MaxFontSize,
		Filter:      termFilter,
		Logger:      &logger,
		Observers:   observers,
		QueueSize:   cfg.QueueSize,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	orch.Start(ctx)

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	if opts.serve {
		var gatherer prometheus.Gatherer
		if cfg.MetricsEnabled {
			gatherer = reg
		}
		srv := server.New(orch, hub, server.Options{Gatherer: gatherer, Checks: checks, Logger: &logger})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx, opts.addr); err != nil {
				errCh <- fmt.Errorf("server: %w", err)
				cancel()
			}
		}()
	}

	sourcesDone := make(chan struct{})
	go func() {
		defer close(sourcesDone)
		if err := feedSources(ctx, opts, orch, logger); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	batch := !opts.serve && !opts.tui
	switch {
	case program != nil:
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			errCh <- fmt.Errorf("tui: %w", err)
		}
	case opts.serve:
		<-ctx.Done()
	default:
		select {
		case <-sourcesDone:
		case <-ctx.Done():
		}
	}

	if batch {
		// Drain queued transcripts before stopping the worker.
		orch.Close()
	}
	cancel()
	orch.Close()
	wg.Wait()

	if batch {
		printSummary(orch)
	}
	logger.Info().Int64("cycles", orch.Cycles()).Msg("wordcloud stopped")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// feedSources replays the article first, then stdin.
func feedSources(ctx context.Context, opts options, orch *orchestrator.Orchestrator, logger zerolog.Logger) error {
	if opts.url != "" {
		client := &http.Client{Timeout: 30 * time.Second}
		title, utterances, err := feed.Article(ctx, client, opts.url)
		if err != nil {
			return err
		}
		logger.Info().Str("title", title).Int("utterances", len(utterances)).Msg("replaying article")
		if _, err := feed.Utterances(ctx, utterances, orch.Submit); err != nil {
			return err
		}
	}
	if opts.stdin {
		n, err := feed.Lines(ctx, os.Stdin, orch.Submit)
		logger.Info().Int("transcripts", n).Msg("stdin closed")
		return err
	}
	return nil
}

func printSummary(orch *orchestrator.Orchestrator) {
	var records []sizing.Record
	for _, r := range orch.Snapshot() {
		if r.Term != "" {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Size > records[j].Size })

	fmt.Printf("Processing complete. %d cycles, %d terms.\n", orch.Cycles(), len(records))
	for i, r := range records {
		if i == 20 {
			break
		}
		fmt.Printf("%6.1f  %s  %s\n", r.Size, r.Color, r.Term)
	}
}
