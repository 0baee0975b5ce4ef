package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/metrics"
	"github.com/newthinker/signalbench/internal/portfolio"
	"github.com/newthinker/signalbench/internal/signal"
	"github.com/newthinker/signalbench/internal/storage/results"
	"github.com/newthinker/signalbench/internal/strategy"
	"github.com/newthinker/signalbench/internal/strategy/buyhold"
	"github.com/newthinker/signalbench/internal/strategy/macd"
	"github.com/newthinker/signalbench/internal/strategy/vpvma"
	"go.uber.org/zap"
)

// DefaultConcurrency bounds parallel symbol tasks when none is configured.
const DefaultConcurrency = 4

// Sink persists one successful run.
type Sink interface {
	SaveRun(ctx context.Context, r *backtest.Result) error
}

// SummaryWriter is implemented by sinks that also persist the batch metrics.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, rows []results.MetricsRow) error
}

type namedSink struct {
	name string
	sink Sink
}

// Request describes one batch of backtests.
type Request struct {
	Symbols    []string
	Strategies []string
	Start      time.Time
	End        time.Time
	// StopLossPct overrides the configured stop when set.
	StopLossPct *float64
}

// Failure is one (symbol, strategy) run that produced no result.
type Failure struct {
	Symbol   string
	Strategy string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s/%s: %v", f.Symbol, f.Strategy, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a batch. Results and Failures follow request
// symbol order, then strategy order.
type Report struct {
	RunID    string
	Start    time.Time
	End      time.Time
	Results  []*backtest.Result
	Failures []Failure
}

// Rows returns the metrics row of every result.
func (r *Report) Rows() []results.MetricsRow {
	rows := make([]results.MetricsRow, len(r.Results))
	for i, res := range r.Results {
		rows[i] = results.Row(res)
	}
	return rows
}

// Combined sums the portfolio value of one strategy across all symbols.
func (r *Report) Combined(strategyName string) ([]portfolio.Point, error) {
	members := make(map[string]portfolio.Timeline)
	for _, res := range r.Results {
		if res.Strategy != strategyName || res.Series == nil {
			continue
		}
		members[res.Symbol] = portfolio.Timeline{
			Times:  core.Times(res.Bars),
			Values: res.Series.Value,
		}
	}
	if len(members) == 0 {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("no results for strategy %q", strategyName))
	}
	return portfolio.Combine(members)
}

// App runs batches of backtests against one data provider.
type App struct {
	provider    backtest.OHLCVProvider
	strategies  *strategy.Engine
	opts        backtest.Options
	concurrency int
	metrics     *metrics.Registry
	logger      *zap.Logger

	mu    sync.RWMutex
	sinks []namedSink
}

// New creates an App. A nil engine gets the default strategy catalogue.
func New(provider backtest.OHLCVProvider, strategies *strategy.Engine, opts backtest.Options, concurrency int, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategies == nil {
		strategies = strategy.NewEngine(logger)
		RegisterDefaultStrategies(strategies)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &App{
		provider:    provider,
		strategies:  strategies,
		opts:        opts,
		concurrency: concurrency,
		logger:      logger,
	}
}

// RegisterDefaultStrategies registers every built-in strategy variant.
func RegisterDefaultStrategies(e *strategy.Engine) {
	e.Register(macd.New(signal.Cross))
	e.Register(macd.New(signal.ZeroCross))
	e.Register(vpvma.New(signal.Cross))
	e.Register(vpvma.New(signal.ZeroCross))
	e.Register(buyhold.New())
}

// SetMetrics enables metric recording.
func (a *App) SetMetrics(reg *metrics.Registry) {
	a.metrics = reg
}

// AddSink registers a sink invoked for every successful run.
func (a *App) AddSink(name string, s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, namedSink{name: name, sink: s})
}

// Strategies returns the strategy engine.
func (a *App) Strategies() *strategy.Engine {
	return a.strategies
}

// Options returns the default backtest options.
func (a *App) Options() backtest.Options {
	return a.opts
}

// RunBatch backtests every requested strategy on every symbol. A failing
// symbol or strategy is reported in the Failures of the returned report and
// never aborts the others. The error is non-nil only for an invalid request.
func (a *App) RunBatch(ctx context.Context, req Request) (*Report, error) {
	if len(req.Symbols) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("no symbols"))
	}
	if !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end %s before start %s", req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly)))
	}
	strats, err := a.strategies.Resolve(req.Strategies)
	if err != nil {
		return nil, err
	}
	if len(strats) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("no strategies enabled"))
	}

	opts := a.opts
	if req.StopLossPct != nil {
		if *req.StopLossPct < 0 || *req.StopLossPct >= 1 {
			return nil, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("stop_loss_pct %v outside [0, 1)", *req.StopLossPct))
		}
		opts.StopLossPct = *req.StopLossPct
	}
	bt := backtest.New(a.provider, opts, a.logger)

	report := &Report{RunID: uuid.NewString(), Start: req.Start, End: req.End}
	a.logger.Info("batch starting",
		zap.String("run_id", report.RunID),
		zap.Int("symbols", len(req.Symbols)),
		zap.Int("strategies", len(strats)),
		zap.Int("concurrency", a.concurrency),
	)

	// The volatility index is shared by every symbol, so it is fetched once.
	var vol *backtest.VolatilityIndex
	for _, s := range strats {
		if s.RequiredData().Volatility {
			vol = bt.LoadVolatility(ctx, req.Start, req.End)
			break
		}
	}

	outcomes := make([]symbolOutcome, len(req.Symbols))
	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup

	for i, symbol := range req.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = failAll(symbol, strats, ctx.Err())
				return
			}
			defer func() { <-sem }()
			outcomes[i] = a.runSymbol(ctx, bt, report.RunID, symbol, req, strats, vol)
		}(i, symbol)
	}
	wg.Wait()

	for _, o := range outcomes {
		report.Results = append(report.Results, o.results...)
		report.Failures = append(report.Failures, o.failures...)
	}
	for _, f := range report.Failures {
		a.recordOutcome(f.Strategy, "failed")
	}

	a.writeSummary(ctx, report)

	a.logger.Info("batch complete",
		zap.String("run_id", report.RunID),
		zap.Int("results", len(report.Results)),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

type symbolOutcome struct {
	results  []*backtest.Result
	failures []Failure
}

func failAll(symbol string, strats []strategy.Strategy, err error) symbolOutcome {
	var o symbolOutcome
	for _, s := range strats {
		o.failures = append(o.failures, Failure{Symbol: symbol, Strategy: s.Name(), Err: err})
	}
	return o
}

// runSymbol fetches a symbol once and runs every strategy on the same bars.
func (a *App) runSymbol(
	ctx context.Context,
	bt *backtest.Backtester,
	runID, symbol string,
	req Request,
	strats []strategy.Strategy,
	vol *backtest.VolatilityIndex,
) (out symbolOutcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := core.WrapError(core.ErrStrategyFailed, fmt.Errorf("panic: %v", r))
			a.logger.Error("symbol task panicked", zap.String("symbol", symbol), zap.Any("panic", r))
			out = failAll(symbol, strats, err)
		}
		if a.metrics != nil {
			a.metrics.ObserveBacktestDuration(time.Since(started).Seconds())
		}
	}()

	ds, err := bt.Prepare(ctx, symbol, req.Start, req.End, vol)
	if err != nil {
		a.logger.Warn("fetch failed", zap.String("symbol", symbol), zap.Error(err))
		return failAll(symbol, strats, err)
	}

	for _, s := range strats {
		res, err := simulate(bt, ds, s)
		if err != nil {
			a.logger.Warn("backtest failed",
				zap.String("symbol", symbol),
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			out.failures = append(out.failures, Failure{Symbol: symbol, Strategy: s.Name(), Err: err})
			continue
		}
		res.RunID = runID
		a.record(res)
		a.save(ctx, res)
		out.results = append(out.results, res)
	}
	return out
}

func simulate(bt *backtest.Backtester, ds *backtest.Dataset, s strategy.Strategy) (res *backtest.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.WrapError(core.ErrStrategyFailed, fmt.Errorf("%s panicked: %v", s.Name(), r))
		}
	}()
	return bt.Simulate(ds, s)
}

func (a *App) record(res *backtest.Result) {
	a.recordOutcome(res.Strategy, "success")
	if a.metrics == nil {
		return
	}
	sides := make(map[core.Position]int)
	for _, t := range res.Trades {
		sides[t.Side]++
	}
	for side, n := range sides {
		a.metrics.RecordTrades(res.Strategy, side.String(), n)
	}
	a.metrics.RecordStopOuts(res.Strategy, res.Stats.StopOuts)
}

func (a *App) recordOutcome(strategyName, status string) {
	if a.metrics != nil {
		a.metrics.RecordBacktest(strategyName, status)
	}
}

func (a *App) save(ctx context.Context, res *backtest.Result) {
	a.mu.RLock()
	sinks := a.sinks
	a.mu.RUnlock()

	for _, s := range sinks {
		if err := s.sink.SaveRun(ctx, res); err != nil {
			a.logger.Warn("sink write failed",
				zap.String("sink", s.name),
				zap.String("symbol", res.Symbol),
				zap.String("strategy", res.Strategy),
				zap.Error(err),
			)
			if a.metrics != nil {
				a.metrics.RecordSinkError(s.name)
			}
		}
	}
}

func (a *App) writeSummary(ctx context.Context, report *Report) {
	if len(report.Results) == 0 {
		return
	}
	a.mu.RLock()
	sinks := a.sinks
	a.mu.RUnlock()

	rows := report.Rows()
	for _, s := range sinks {
		w, ok := s.sink.(SummaryWriter)
		if !ok {
			continue
		}
		if err := w.WriteSummary(ctx, rows); err != nil {
			a.logger.Warn("summary write failed", zap.String("sink", s.name), zap.Error(err))
			if a.metrics != nil {
				a.metrics.RecordSinkError(s.name)
			}
		}
	}
}
