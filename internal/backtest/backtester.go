package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/portfolio"
	"github.com/newthinker/signalbench/internal/resample"
	"github.com/newthinker/signalbench/internal/signal"
	"github.com/newthinker/signalbench/internal/stoploss"
	"github.com/newthinker/signalbench/internal/strategy"
	"go.uber.org/zap"
)

// DailyInterval is the interval requested from providers.
const DailyInterval = "1d"

// OHLCVProvider defines the interface for fetching historical OHLCV data
type OHLCVProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}

// Options configures a simulation run
type Options struct {
	InitialCapital   float64
	StopLossPct      float64
	PeriodsPerYear   float64
	Calendar         resample.Calendar
	VolatilitySymbol string
}

// DefaultOptions returns weekly defaults with a 2% stop and VIX volatility.
func DefaultOptions() Options {
	return Options{
		InitialCapital:   1_000_000,
		StopLossPct:      0.02,
		PeriodsPerYear:   52,
		Calendar:         resample.DefaultCalendar(),
		VolatilitySymbol: "^VIX",
	}
}

// Dataset is the weekly input shared read-only by every strategy run on a
// symbol.
type Dataset struct {
	Symbol     string
	Start      time.Time
	End        time.Time
	Bars       []core.OHLCV
	Volatility []float64
	// VolatilityErr records why Volatility is nil.
	VolatilityErr error
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider OHLCVProvider
	opts     Options
	logger   *zap.Logger
}

// New creates a new Backtester with the given OHLCV provider
func New(provider OHLCVProvider, opts Options, logger ...*zap.Logger) *Backtester {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = 52
	}
	return &Backtester{
		provider: provider,
		opts:     opts,
		logger:   l,
	}
}

// Options returns the run options.
func (b *Backtester) Options() Options {
	return b.opts
}

// VolatilityIndex is the daily volatility history of one batch, shared
// read-only by every symbol. Err records why Daily is empty.
type VolatilityIndex struct {
	Symbol string
	Daily  []core.OHLCV
	Err    error
}

// LoadVolatility fetches the configured volatility index once. A failure is
// recorded on the returned index rather than returned, so only strategies
// that need it fail.
func (b *Backtester) LoadVolatility(ctx context.Context, start, end time.Time) *VolatilityIndex {
	vol := &VolatilityIndex{Symbol: b.opts.VolatilitySymbol}
	switch {
	case vol.Symbol == "":
		vol.Err = core.WrapError(core.ErrConfigMissing, fmt.Errorf("volatility symbol not configured"))
	default:
		vol.Daily, vol.Err = b.provider.FetchHistory(ctx, vol.Symbol, start, end, DailyInterval)
		if vol.Err == nil && len(vol.Daily) == 0 {
			vol.Err = core.WrapError(core.ErrNoData, fmt.Errorf("%s", vol.Symbol))
		}
	}
	if vol.Err != nil {
		vol.Daily = nil
		b.logger.Warn("volatility index unavailable",
			zap.String("index", vol.Symbol),
			zap.Error(vol.Err))
	}
	return vol
}

// Prepare fetches daily history for symbol and resamples it to weekly bars.
// When vol is non-nil its daily values are averaged into the same weeks; a
// failed index is carried on the dataset as VolatilityErr.
func (b *Backtester) Prepare(ctx context.Context, symbol string, start, end time.Time, vol *VolatilityIndex) (*Dataset, error) {
	daily, err := b.provider.FetchHistory(ctx, symbol, start, end, DailyInterval)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s between %s and %s",
			symbol, start.Format("2006-01-02"), end.Format("2006-01-02")))
	}

	weekly, err := resample.Weekly(daily, b.opts.Calendar)
	if err != nil {
		return nil, fmt.Errorf("resample %s: %w", symbol, err)
	}

	ds := &Dataset{Symbol: symbol, Start: start, End: end, Bars: weekly}
	if vol != nil {
		if vol.Err != nil {
			ds.VolatilityErr = vol.Err
		} else {
			ds.Volatility = resample.AlignMean(weekly, vol.Daily, b.opts.Calendar)
		}
	}
	return ds, nil
}

// Simulate runs one strategy over a prepared dataset: analyze, lag, apply
// the stop-loss, compound, then extract trades and stats.
func (b *Backtester) Simulate(ds *Dataset, strat strategy.Strategy) (*Result, error) {
	if ds == nil || len(ds.Bars) == 0 {
		return nil, core.WrapError(core.ErrEmptyInput, fmt.Errorf("no weekly bars"))
	}

	req := strat.RequiredData()
	if req.Volatility && ds.Volatility == nil {
		cause := ds.VolatilityErr
		if cause == nil {
			cause = fmt.Errorf("volatility index not loaded")
		}
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s: %w", strat.Name(), cause))
	}

	analysis, err := strat.Analyze(strategy.AnalysisContext{
		Symbol:     ds.Symbol,
		Bars:       ds.Bars,
		Volatility: ds.Volatility,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrStrategyFailed, fmt.Errorf("%s: %w", strat.Name(), err))
	}
	if len(analysis.Positions) != len(ds.Bars) {
		return nil, core.WrapError(core.ErrLengthMismatch,
			fmt.Errorf("%s returned %d positions for %d bars", strat.Name(), len(analysis.Positions), len(ds.Bars)))
	}

	var warnings []string
	if len(ds.Bars) < req.Lookback {
		warnings = append(warnings, core.WrapError(core.ErrInsufficientHistory,
			fmt.Errorf("%d weekly bars, lookback %d", len(ds.Bars), req.Lookback)).Error())
	}

	positions := signal.Lag(analysis.Positions)
	original := core.Closes(ds.Bars)
	closes := original
	stopOuts := make([]bool, len(ds.Bars))
	stopCount := 0

	if !req.Benchmark {
		adj, err := stoploss.Simulate(ds.Bars, positions, b.opts.StopLossPct)
		if err != nil {
			return nil, err
		}
		positions, closes, stopOuts, stopCount = adj.Positions, adj.Close, adj.StopOuts, adj.Count
	}

	series, err := portfolio.Simulate(closes, positions, b.opts.InitialCapital)
	if err != nil {
		return nil, err
	}

	times := core.Times(ds.Bars)
	var trades []Trade
	var open *Trade
	if req.Benchmark {
		// Buy-and-hold is a reference, not a trading strategy: no position
		// changes and no trades.
		clear(series.PositionChange)
	} else {
		trades, open = ExtractTrades(times, closes, positions)
	}
	stats := CalculateStats(times, series, b.opts.PeriodsPerYear)
	stats.StopOuts = stopCount

	bars := make([]core.OHLCV, len(ds.Bars))
	copy(bars, ds.Bars)
	for i := range bars {
		bars[i].Close = closes[i]
	}

	return &Result{
		Strategy:      strat.Name(),
		Symbol:        ds.Symbol,
		StartDate:     ds.Start,
		EndDate:       ds.End,
		Bars:          bars,
		OriginalClose: original,
		Columns:       analysis.Columns,
		Positions:     positions,
		StopOuts:      stopOuts,
		Series:        series,
		Trades:        trades,
		OpenTrade:     open,
		Stats:         stats,
		Warnings:      warnings,
	}, nil
}

// Run executes a backtest for the given strategy and symbol over the specified time range
func (b *Backtester) Run(ctx context.Context, strat strategy.Strategy, symbol string, start, end time.Time) (*Result, error) {
	var vol *VolatilityIndex
	if strat.RequiredData().Volatility {
		vol = b.LoadVolatility(ctx, start, end)
	}
	ds, err := b.Prepare(ctx, symbol, start, end, vol)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Simulate(ds, strat)
}
