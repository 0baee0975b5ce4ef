package buyhold

import (
	"testing"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/strategy"
)

var _ strategy.Strategy = (*BuyHold)(nil)

func TestBuyHold_AlwaysLong(t *testing.T) {
	s := New()
	if s.Name() != "market" {
		t.Errorf("expected market, got %s", s.Name())
	}
	if !s.RequiredData().Benchmark {
		t.Error("buy and hold should be flagged as benchmark")
	}

	a, err := s.Analyze(strategy.AnalysisContext{Bars: make([]core.OHLCV, 4)})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	for i, p := range a.Positions {
		if p != core.Long {
			t.Errorf("period %d: expected Long, got %v", i, p)
		}
	}
}

func TestBuyHold_Empty(t *testing.T) {
	if _, err := New().Analyze(strategy.AnalysisContext{}); err == nil {
		t.Error("expected error for empty bars")
	}
}
