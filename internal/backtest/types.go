package backtest

import (
	"time"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/portfolio"
	"github.com/newthinker/signalbench/internal/strategy"
)

// Result holds the complete output of one (symbol, strategy) run
type Result struct {
	RunID     string
	Strategy  string
	Symbol    string
	StartDate time.Time
	EndDate   time.Time

	// Bars are the weekly bars with stop prices substituted into Close.
	Bars          []core.OHLCV
	OriginalClose []float64
	Columns       []strategy.Column
	Positions     []core.Position // Lagged and stop-adjusted
	StopOuts      []bool
	Series        *portfolio.Series

	Trades    []Trade
	OpenTrade *Trade // Position still held after the last bar
	Stats     Stats
	Warnings  []string
}

// Trade represents a closed round trip from entry to exit
type Trade struct {
	Side       core.Position
	EntryTime  time.Time
	ExitTime   time.Time // zero if position still open
	EntryPrice float64
	ExitPrice  float64
	PnLPct     float64 // side * (exit-entry)/entry * 100
}

// Stats holds performance statistics. Ratios are fractions, not percentages.
type Stats struct {
	NumTrades            int // Periods with a non-zero position change
	WinningTrades        int
	WinRatio             float64
	InitialValue         float64
	FinalValue           float64
	TotalReturn          float64
	AnnualReturn         float64
	AnnualReturnDefined  bool // false when the run spans zero days
	AnnualizedVolatility float64
	SharpeRatio          float64
	MaxDrawdown          float64 // <= 0
	StopOuts             int
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.PnLPct > 0
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return !t.ExitTime.IsZero()
}

// Map flattens the stats for sinks. annual_return is omitted when undefined.
func (s Stats) Map() map[string]float64 {
	m := map[string]float64{
		"initial_value":         s.InitialValue,
		"final_value":           s.FinalValue,
		"total_return":          s.TotalReturn,
		"annualized_volatility": s.AnnualizedVolatility,
		"sharpe":                s.SharpeRatio,
		"max_drawdown":          s.MaxDrawdown,
		"win_ratio":             s.WinRatio,
		"num_trades":            float64(s.NumTrades),
		"stop_outs":             float64(s.StopOuts),
	}
	if s.AnnualReturnDefined {
		m["annual_return"] = s.AnnualReturn
	}
	return m
}
