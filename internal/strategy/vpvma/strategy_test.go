package vpvma

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/signal"
	"github.com/newthinker/signalbench/internal/strategy"
)

var _ strategy.Strategy = (*VPVMA)(nil)

func weeklyBars(n int) []core.OHLCV {
	start := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]core.OHLCV, n)
	for i := range bars {
		c := 50 + float64(i)
		bars[i] = core.OHLCV{
			Symbol: "XLK",
			Open:   c, High: c + 1, Low: c - 1, Close: c,
			Volume: int64(1000 + 10*i),
			Time:   start.AddDate(0, 0, 7*i),
		}
	}
	return bars
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestVPVMA_Name(t *testing.T) {
	if got := New(signal.Cross).Name(); got != "vpvma" {
		t.Errorf("expected vpvma, got %s", got)
	}
	if got := New(signal.ZeroCross).Name(); got != "vpvma_zero_cross" {
		t.Errorf("expected vpvma_zero_cross, got %s", got)
	}
	if !New(signal.Cross).RequiredData().Volatility {
		t.Error("vpvma should require the volatility series")
	}
}

func TestVPVMA_RequiresVolatility(t *testing.T) {
	_, err := New(signal.Cross).Analyze(strategy.AnalysisContext{Symbol: "XLK", Bars: weeklyBars(30)})
	if !errors.Is(err, core.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestVPVMA_LengthMismatch(t *testing.T) {
	_, err := New(signal.Cross).Analyze(strategy.AnalysisContext{
		Bars:       weeklyBars(30),
		Volatility: constant(29, 20),
	})
	if !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestVPVMA_WarmupIsFlat(t *testing.T) {
	bars := weeklyBars(60)
	a, err := New(signal.Cross).Analyze(strategy.AnalysisContext{
		Bars:       bars,
		Volatility: constant(len(bars), 20),
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(a.Positions) != len(bars) {
		t.Fatalf("expected %d positions, got %d", len(bars), len(a.Positions))
	}
	// The long rolling window fills at index 25.
	for i := 0; i < 25; i++ {
		if a.Positions[i] != core.Flat {
			t.Errorf("period %d: expected Flat during warmup, got %v", i, a.Positions[i])
		}
	}
	if len(a.Columns) != 6 || a.Columns[4].Name != "vpvma_signal" {
		t.Errorf("unexpected columns %v", a.Columns)
	}
}
