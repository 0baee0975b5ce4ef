package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/portfolio"
)

func weeks(n int) []time.Time {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, 7*i)
	}
	return out
}

func mustSimulate(t *testing.T, closes []float64, positions []core.Position) *portfolio.Series {
	t.Helper()
	s, err := portfolio.Simulate(closes, positions, 1_000_000)
	if err != nil {
		t.Fatalf("portfolio.Simulate() error = %v", err)
	}
	return s
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := CalculateStats(nil, nil, 52)
	if stats.NumTrades != 0 || stats.FinalValue != 0 {
		t.Error("expected zero stats for empty input")
	}
}

func TestCalculateStats_FlatStrategy(t *testing.T) {
	closes := []float64{100, 105, 95, 110}
	series := mustSimulate(t, closes, make([]core.Position, 4))

	stats := CalculateStats(weeks(4), series, 52)

	if stats.NumTrades != 0 || stats.WinRatio != 0 {
		t.Errorf("flat run should have no trades, got %d (%f)", stats.NumTrades, stats.WinRatio)
	}
	if stats.TotalReturn != 0 || stats.SharpeRatio != 0 || stats.MaxDrawdown != 0 {
		t.Errorf("flat run should be neutral, got %+v", stats)
	}
	if !stats.AnnualReturnDefined || stats.AnnualReturn != 0 {
		t.Errorf("annual return = %f (defined %v), want 0", stats.AnnualReturn, stats.AnnualReturnDefined)
	}
}

func TestCalculateStats_RoundTrip(t *testing.T) {
	closes := []float64{100, 105, 95, 110}
	positions := []core.Position{core.Flat, core.Long, core.Long, core.Short}
	series := mustSimulate(t, closes, positions)

	stats := CalculateStats(weeks(4), series, 52)

	// 1.05 * (95/105) * (1 - (110/95 - 1)) = 0.8
	if math.Abs(stats.FinalValue-800_000) > 1e-6 {
		t.Errorf("FinalValue = %f, want 800000", stats.FinalValue)
	}
	if math.Abs(stats.TotalReturn+0.2) > 1e-9 {
		t.Errorf("TotalReturn = %f, want -0.2", stats.TotalReturn)
	}
	// Changes at periods 1 (+1, return +5%) and 3 (-2, return -15.8%).
	if stats.NumTrades != 2 || stats.WinningTrades != 1 || stats.WinRatio != 0.5 {
		t.Errorf("trades = %d wins = %d ratio = %f", stats.NumTrades, stats.WinningTrades, stats.WinRatio)
	}
	// Peak 1_050_000, trough 800_000.
	wantDD := 800_000.0/1_050_000 - 1
	if math.Abs(stats.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("MaxDrawdown = %f, want %f", stats.MaxDrawdown, wantDD)
	}
	if stats.SharpeRatio >= 0 {
		t.Errorf("losing run should have negative Sharpe, got %f", stats.SharpeRatio)
	}
}

func TestCalculateStats_ZeroElapsedDays(t *testing.T) {
	series := mustSimulate(t, []float64{100}, []core.Position{core.Flat})
	stats := CalculateStats(weeks(1), series, 52)

	if stats.AnnualReturnDefined {
		t.Error("annual return should be undefined for a zero-day run")
	}
	if math.IsNaN(stats.AnnualReturn) || math.IsInf(stats.AnnualReturn, 0) {
		t.Error("undefined annual return must not be NaN or Inf")
	}
}

func TestCalculateMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"non-decreasing", []float64{100, 100, 110, 120}, 0},
		{"single dip", []float64{100, 110, 88, 120}, -0.2},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateMaxDrawdown(tt.values)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("calculateMaxDrawdown() = %f, want %f", got, tt.want)
			}
			if got > 0 {
				t.Errorf("drawdown must be <= 0, got %f", got)
			}
		})
	}
}

func TestCalculateSharpeRatio(t *testing.T) {
	if got := calculateSharpeRatio(0.01, 0, 52); got != 0 {
		t.Errorf("zero variance Sharpe = %f, want 0", got)
	}

	mean, sd := meanStdDev([]float64{0.01, 0.03})
	want := math.Sqrt(52) * 0.02 / math.Sqrt(0.0002)
	if got := calculateSharpeRatio(mean, sd, 52); math.Abs(got-want) > 1e-9 {
		t.Errorf("Sharpe = %f, want %f", got, want)
	}
}
