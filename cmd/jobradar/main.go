// Package main wires the jobradar pipeline binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfekih/jobradar/internal/api"
	"github.com/wfekih/jobradar/internal/browser"
	"github.com/wfekih/jobradar/internal/clock"
	"github.com/wfekih/jobradar/internal/config"
	"github.com/wfekih/jobradar/internal/extract"
	"github.com/wfekih/jobradar/internal/jobs"
	"github.com/wfekih/jobradar/internal/logging"
	"github.com/wfekih/jobradar/internal/notify"
	"github.com/wfekih/jobradar/internal/pipeline"
	"github.com/wfekih/jobradar/internal/progress"
	"github.com/wfekih/jobradar/internal/score"
	"github.com/wfekih/jobradar/internal/sheets"
	"github.com/wfekih/jobradar/internal/sources"
	"github.com/wfekih/jobradar/internal/store/postgres"
)

const usage = `usage: jobradar [-config FILE] COMMAND [flags]

commands:
  scrape   scrape sources and record new postings [-source NAME]
  extract  fetch page text for unscored sheet rows [-refresh]
  score    score unscored sheet rows from cached text [-rescore]
  run      scrape, extract and score back to back
  watch    run full cycles on the configured cron schedule
`

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "run"
	}

	sub := flag.NewFlagSet(cmd, flag.ExitOnError)
	var (
		sourceName string
		refresh    bool
		rescore    bool
	)
	switch cmd {
	case "scrape":
		sub.StringVar(&sourceName, "source", "", "Run only the named source")
	case "extract":
		sub.BoolVar(&refresh, "refresh", false, "Refetch URLs with cached text")
	case "score":
		sub.BoolVar(&rescore, "rescore", false, "Rescore URLs with stored verdicts")
	case "run", "watch":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err := sub.Parse(flag.Args()[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}
	defer app.close()

	if err := app.dispatch(ctx, cmd, sourceName, refresh, rescore); err != nil && ctx.Err() == nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

// app holds the wired collaborators for one process.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	adapters []sources.Adapter
	status   *api.Status
	manager  *browser.Manager
	closers  []func()
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, status: api.NewStatus()}
	clk := clock.System{}
	titles := jobs.NewTitlePolicy(cfg.Jobs.PlaceholderTitles...)

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	jobStore, err := postgres.NewJobStoreWithPool(pool, titles, clk)
	if err != nil {
		return nil, fmt.Errorf("build job store: %w", err)
	}
	textCache, err := postgres.NewTextCacheWithPool(pool, clk)
	if err != nil {
		return nil, fmt.Errorf("build text cache: %w", err)
	}
	scoreStore, err := postgres.NewScoreStoreWithPool(pool, clk)
	if err != nil {
		return nil, fmt.Errorf("build score store: %w", err)
	}
	if err := jobStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure job schema: %w", err)
	}
	if err := textCache.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure text cache schema: %w", err)
	}
	if err := scoreStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure score schema: %w", err)
	}

	observer := progress.NewLogObserver(logger)

	var renderer extract.Renderer
	if cfg.Browser.CDPURL != "" {
		a.manager = browser.NewManager(browser.Config{
			CDPURL:         cfg.Browser.CDPURL,
			ConnectTimeout: time.Duration(cfg.Browser.ConnectTimeoutSec) * time.Second,
			Retries:        cfg.Browser.Retries,
			Backoff:        time.Duration(cfg.Browser.BackoffMs) * time.Millisecond,
			NavTimeout:     time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			PollAttempts:   cfg.Browser.PollAttempts,
			PollInterval:   time.Duration(cfg.Browser.PollIntervalMs) * time.Millisecond,
			MinTextChars:   cfg.Extract.MinTextChars,
			UserAgent:      cfg.Browser.UserAgent,
		}, logger)
		a.closers = append(a.closers, a.manager.Close)
		renderer = a.manager
	}

	fetcher := extract.NewHTTPFetcher(extract.HTTPConfig{
		UserAgent:    cfg.Extract.UserAgent,
		Timeout:      cfg.ExtractTimeout(),
		ProbeTimeout: time.Duration(cfg.Extract.ProbeTimeoutSec) * time.Second,
		MaxChars:     cfg.Extract.MaxChars,
		MinTextChars: cfg.Extract.MinTextChars,
	})
	engine := extract.NewEngine(extract.Config{
		MaxJobs:           cfg.Extract.MaxJobs,
		HTTPWorkers:       cfg.Extract.HTTPWorkers,
		MaxChars:          cfg.Extract.MaxChars,
		MinTextChars:      cfg.Extract.MinTextChars,
		DelayNormal:       time.Duration(cfg.Extract.DelayNormalSec) * time.Second,
		DelayHeavy:        time.Duration(cfg.Extract.DelayHeavySec) * time.Second,
		BrowserFirstHosts: cfg.Extract.BrowserFirst,
		ProbeHosts:        cfg.Extract.ProbeHosts,
	}, fetcher, renderer, textCache, observer, logger)

	scorer := score.NewOllamaScorer(score.OllamaConfig{
		BaseURL: cfg.Score.OllamaURL,
		Model:   cfg.Score.Model,
		Timeout: time.Duration(cfg.Score.TimeoutSeconds) * time.Second,
		Retries: cfg.Score.Retries,
	}, logger)
	runner := score.NewRunner(score.RunnerConfig{
		MaxJobs:     cfg.Score.MaxJobs,
		Concurrency: cfg.Score.Concurrency,
	}, scorer, textCache, scoreStore, observer, logger)

	var publisher notify.Publisher
	if cfg.Notify.ProjectID != "" && cfg.Notify.TopicID != "" {
		ps, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.closers = append(a.closers, func() { _ = ps.Close() })
		publisher = ps
	}

	sheet := sheets.NewFile(cfg.Sheet.Path)
	a.pipeline = pipeline.New(pipeline.Config{NotifyTopic: cfg.Notify.TopicID},
		jobStore, sheet, engine, runner, scoreStore, publisher, logger)

	a.adapters, err = buildAdapters(cfg, clk)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildAdapters(cfg config.Config, clk clock.Clock) ([]sources.Adapter, error) {
	timeout := time.Duration(cfg.Sources.TimeoutSeconds) * time.Second
	var adapters []sources.Adapter
	for _, name := range cfg.Sources.Enabled {
		switch name {
		case "keejob":
			adapters = append(adapters, sources.NewKeejob(sources.KeejobConfig{
				MaxPages:  cfg.Sources.KeejobMaxPages,
				Timeout:   timeout,
				TodayOnly: true,
				UserAgent: cfg.Extract.UserAgent,
			}, clk))
		case "remotive":
			adapters = append(adapters, sources.NewRemotive(sources.RemotiveConfig{
				APIURL:    cfg.Sources.RemotiveAPIURL,
				UserAgent: cfg.Extract.UserAgent,
				Timeout:   timeout,
			}))
		case "remoteok":
			adapters = append(adapters, sources.NewRemoteOK(sources.RemoteOKConfig{
				FeedURL:   cfg.Sources.RemoteOKFeedURL,
				UserAgent: cfg.Extract.UserAgent,
				Timeout:   timeout,
			}))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return adapters, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) dispatch(ctx context.Context, cmd, sourceName string, refresh, rescore bool) error {
	switch cmd {
	case "scrape":
		return a.scrape(ctx, sourceName)
	case "extract":
		_, err := a.extract(ctx, refresh)
		return err
	case "score":
		_, err := a.score(ctx, rescore)
		return err
	case "run":
		return a.runOnce(ctx)
	case "watch":
		return a.watch(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) scrape(ctx context.Context, sourceName string) error {
	adapters := a.adapters
	if sourceName != "" {
		adapters = nil
		for _, adapter := range a.adapters {
			if adapter.Name() == sourceName {
				adapters = append(adapters, adapter)
			}
		}
		if len(adapters) == 0 {
			return fmt.Errorf("source %q is not enabled", sourceName)
		}
	}

	started := time.Now().UTC()
	counters := map[string]int{}
	var firstErr error
	for _, adapter := range adapters {
		stats, err := a.pipeline.RunSource(ctx, adapter)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
			a.logger.Warn("source run failed", zap.String("source", adapter.Name()), zap.Error(err))
			continue
		}
		counters["scraped"] += stats.Scraped
		counters["new"] += stats.New
		counters["relevant_new"] += stats.RelevantNew
	}
	a.record("scrape", started, counters, firstErr)
	return firstErr
}

func (a *app) extract(ctx context.Context, refresh bool) (extract.Stats, error) {
	started := time.Now().UTC()
	stats, err := a.pipeline.ExtractPending(ctx, refresh)
	a.record("extract", started, map[string]int{
		"candidates": stats.Candidates,
		"ok":         stats.OK,
		"blocked":    stats.Blocked,
		"empty":      stats.Empty,
		"errors":     stats.Errors,
	}, err)
	return stats, err
}

func (a *app) score(ctx context.Context, rescore bool) (score.RunStats, error) {
	started := time.Now().UTC()
	stats, err := a.pipeline.ScorePending(ctx, rescore)
	a.record("score", started, map[string]int{
		"candidates": stats.Candidates,
		"scored":     stats.Scored,
		"skipped":    stats.Skipped,
		"missing":    stats.Missing,
		"errors":     stats.Errors,
	}, err)
	return stats, err
}

func (a *app) runOnce(ctx context.Context) error {
	if err := a.scrape(ctx, ""); err != nil {
		return err
	}
	if _, err := a.extract(ctx, false); err != nil {
		return err
	}
	_, err := a.score(ctx, false)
	return err
}

func (a *app) watch(ctx context.Context) error {
	server := api.NewServer(a.status, a.logger)
	go func() {
		addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
		if err := server.Serve(ctx, addr); err != nil && ctx.Err() == nil {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()

	watcher := pipeline.NewWatcher(a.cfg.Watch.CronSpec, a.runOnce, a.logger)
	a.logger.Info("watch mode started", zap.String("schedule", a.cfg.Watch.CronSpec))
	return watcher.Run(ctx)
}

func (a *app) record(phase string, started time.Time, counters map[string]int, err error) {
	rec := api.RunRecord{
		Phase:      phase,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Counters:   counters,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	a.status.Record(rec)
}
