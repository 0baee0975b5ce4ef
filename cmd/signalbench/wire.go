package main

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/signalbench/internal/api"
	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/collector/cache"
	"github.com/newthinker/signalbench/internal/collector/csvfile"
	"github.com/newthinker/signalbench/internal/collector/resilient"
	"github.com/newthinker/signalbench/internal/collector/yahoo"
	"github.com/newthinker/signalbench/internal/config"
	"github.com/newthinker/signalbench/internal/logger"
	"github.com/newthinker/signalbench/internal/metrics"
	"github.com/newthinker/signalbench/internal/storage/archive"
	"github.com/newthinker/signalbench/internal/storage/results"
	"github.com/newthinker/signalbench/internal/storage/sqlstore"
	"github.com/newthinker/signalbench/internal/strategy"
	"go.uber.org/zap"
)

// stack holds the wired components of one command.
type stack struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry
	app     *app.App
	checks  map[string]api.Pinger
	closers []func() error
}

func (rt *stack) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("close failed", zap.Error(err))
		}
	}
	rt.log.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg := config.Defaults()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if debug {
		return logger.New(true, "debug")
	}
	return logger.New(cfg.Log.Development, cfg.Log.Level)
}

// setup validates the config and wires the data source, strategies, sinks
// and metrics. withSinks is false for dry runs.
func setup(ctx context.Context, cfg *config.Config, withSinks bool) (*stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults")
	}

	rt := &stack{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewRegistry(),
		checks:  make(map[string]api.Pinger),
	}

	provider, err := rt.buildProvider(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	opts, err := cfg.Options()
	if err != nil {
		rt.Close()
		return nil, err
	}

	engine := strategy.NewEngine(log)
	app.RegisterDefaultStrategies(engine)
	if err := engine.Configure(cfg.StrategyConfigs()); err != nil {
		rt.Close()
		return nil, err
	}

	rt.app = app.New(provider, engine, opts, cfg.Backtest.Concurrency, log)
	rt.app.SetMetrics(rt.metrics)

	if withSinks {
		if err := rt.buildSinks(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// buildProvider chains source -> rate limit and breaker -> cache.
func (rt *stack) buildProvider(ctx context.Context) (collector.Collector, error) {
	dc := rt.cfg.Data
	cal, err := rt.cfg.Backtest.Calendar()
	if err != nil {
		return nil, err
	}

	registry := collector.NewRegistry()
	registry.Register(yahoo.New())
	registry.Register(csvfile.New(dc.CSVDir, cal.Location))

	source, err := registry.MustGet(dc.Provider)
	if err != nil {
		return nil, err
	}
	if err := source.Init(collector.Config{
		Enabled: true,
		BaseURL: dc.BaseURL,
		Timeout: dc.Timeout,
		Dir:     dc.CSVDir,
	}); err != nil {
		return nil, fmt.Errorf("init %s collector: %w", source.Name(), err)
	}

	settings := resilient.DefaultSettings()
	if dc.RateLimitRPS > 0 {
		settings.RPS = dc.RateLimitRPS
	}
	if dc.RateLimitBurst > 0 {
		settings.Burst = dc.RateLimitBurst
	}
	if dc.Timeout > 0 {
		settings.Timeout = dc.Timeout
	}
	if dc.FailureThreshold > 0 {
		settings.FailureThreshold = dc.FailureThreshold
	}
	if dc.BreakerTimeout > 0 {
		settings.OpenTimeout = dc.BreakerTimeout
	}

	var provider collector.Collector = resilient.New(source, settings,
		resilient.WithObserver(rt.metrics.RecordFetch),
		resilient.WithLogger(rt.log),
	)

	if dc.Cache.Enabled {
		client := cache.NewClient(dc.Cache.Addr, dc.Cache.Password, dc.Cache.DB)
		cached := cache.New(provider, client, dc.Cache.TTL, rt.log)
		rt.closers = append(rt.closers, client.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := cached.Ping(pingCtx); err != nil {
			rt.log.Warn("history cache unreachable, fetching through", zap.String("addr", dc.Cache.Addr), zap.Error(err))
		}
		rt.checks["redis"] = cached
		provider = cached
	}

	rt.log.Debug("data source ready",
		zap.String("provider", dc.Provider),
		zap.Bool("cache", dc.Cache.Enabled),
		zap.Float64("rps", settings.RPS),
	)
	return provider, nil
}

func (rt *stack) buildSinks(ctx context.Context) error {
	store, err := archive.New(rt.cfg.Storage.Archive())
	if err != nil {
		return fmt.Errorf("creating archive storage: %w", err)
	}
	rt.app.AddSink("archive", results.NewSink(store, rt.log))

	db := rt.cfg.Database
	if !db.Enabled {
		return nil
	}
	sql, err := sqlstore.Open(db.DSN, db.QueryTimeout)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	rt.closers = append(rt.closers, sql.Close)
	if err := sql.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	rt.app.AddSink("sql", sql)
	rt.checks["postgres"] = sql
	return nil
}
