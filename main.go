package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventsync/classifier"
	"eventsync/config"
	"eventsync/connpass"
	"eventsync/gcal"
	"eventsync/icsout"
	"eventsync/llm"
	"eventsync/metrics"
	"eventsync/model"
	"eventsync/notify"
	"eventsync/ratelimit"
	"eventsync/reconciler"
	"eventsync/scanner"
	"eventsync/scheduler"
	"eventsync/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "scan":
		err = runScan(args)
	case "auth":
		err = runAuth(args)
	case "daemon":
		err = runDaemon(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: eventsync <command> [flags]

Commands:
  scan    run one scan pass (-dry-run, -json, -ics FILE)
  auth    run the Google Calendar OAuth bootstrap
  daemon  run scans on the configured schedule
`)
}

func loadConfig() (*config.Config, error) {
	path := config.GetConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	setupLogging(cfg.LogLevel)
	slog.Info("config loaded", "path", path)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// connpassSource adapts the API client to the scanner's Source.
type connpassSource struct {
	client *connpass.Client
	cfg    *config.Config
}

func (s *connpassSource) FetchEvents(ctx context.Context) ([]*model.Event, error) {
	return s.client.FetchEvents(ctx, s.cfg.Months(time.Now()), s.cfg.Prefecture)
}

// app bundles the wired components for one process.
type app struct {
	cfg      *config.Config
	db       *store.DB
	scanner  *scanner.Scanner
	notifier *notify.Notifier
}

func buildApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	slog.Info("database initialized", "path", cfg.DBPath)

	// One limiter per external dependency, tuned to each API's quota.
	connpassLimiter := ratelimit.New(time.Second, 1)
	llmLimiter := ratelimit.New(500*time.Millisecond, 1)
	calendarLimiter := ratelimit.New(200*time.Millisecond, 2)

	source := &connpassSource{
		client: connpass.NewClient(cfg.ConnpassAPIKey,
			connpass.WithTimeout(time.Duration(cfg.FetchTimeout)*time.Second),
			connpass.WithLimiter(connpassLimiter),
		),
		cfg: cfg,
	}

	clsOpts := []classifier.Option{
		classifier.WithKeywords(cfg.Keywords),
		classifier.WithExcludeKeywords(cfg.ExcludeKeywords),
		classifier.WithInterestPrompt(cfg.InterestPrompt),
		classifier.WithPopularThreshold(cfg.PopularThreshold),
	}
	if cfg.LLMEnabled {
		gen, err := llm.New(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMModel, "", llmLimiter)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init llm: %w", err)
		}
		clsOpts = append(clsOpts, classifier.WithGenerator(gen))
	}
	cls := classifier.New(clsOpts...)

	var calAPI reconciler.CalendarAPI
	if cfg.CalendarEnabled {
		client, err := gcal.NewClient(ctx, cfg.CredentialsPath, cfg.TokenPath, cfg.CalendarID, calendarLimiter)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init calendar: %w", err)
		}
		calAPI = client
	}
	rec := reconciler.New(calAPI, cfg.CalendarEnabled,
		reconciler.WithSpeakerColorID(cfg.SpeakerColorID),
		reconciler.WithPopularColorID(cfg.PopularColorID),
	)

	notifier, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		slog.Warn("telegram notifier disabled", "error", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		notifier: notifier,
		scanner: scanner.New(source, db, cls, rec,
			scanner.WithDryRun(dryRun),
		),
	}, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) scan(ctx context.Context) (*scanner.Summary, error) {
	summary, err := a.scanner.Run(ctx)
	if err != nil {
		metrics.RecordScanFailure()
		return nil, err
	}
	metrics.RecordScan(summary)

	if err := a.notifier.NotifyScan(summary); err != nil {
		slog.Warn("scan notification failed", "error", err)
	}
	return summary, nil
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "classify but do not write to the calendar")
	jsonOut := fs.Bool("json", false, "print the scan summary as JSON")
	icsPath := fs.String("ics", "", "write matched events to an iCalendar file")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, *dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.scan(ctx)
	if err != nil {
		return err
	}

	if *icsPath != "" {
		if err := icsout.Write(*icsPath, summary); err != nil {
			return err
		}
		slog.Info("wrote ics preview", "path", *icsPath, "events", len(summary.Matched()))
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return nil
}

func runAuth(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := gcal.Authorize(context.Background(), cfg.CredentialsPath, cfg.TokenPath); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	slog.Info("token saved", "path", cfg.TokenPath)
	return nil
}

func runDaemon(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := scheduler.NewScheduler(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	if err := sched.Schedule(cfg.Schedule, func() {
		if _, err := a.scan(context.Background()); err != nil {
			slog.Error("scheduled scan failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		slog.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	sched.Start()
	defer sched.Stop()
	slog.Info("daemon started", "schedule", cfg.Schedule, "next", sched.Next())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig.String())
	return nil
}
