package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/core"
)

func TestSimulate_RoundTrip(t *testing.T) {
	closes := []float64{100, 105, 95, 110}
	positions := []core.Position{core.Flat, core.Long, core.Long, core.Short}

	s, err := Simulate(closes, positions, 1_000_000)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}

	wantStrategy := []float64{0, 0.05, 95.0/105 - 1, -(110.0/95 - 1)}
	for i, want := range wantStrategy {
		if math.Abs(s.StrategyReturn[i]-want) > 1e-12 {
			t.Errorf("strategy_return[%d] = %f, want %f", i, s.StrategyReturn[i], want)
		}
	}

	// 1e6 * 1.05 * (95/105) * (1 - 15/95) = 800,000
	if math.Abs(s.Final()-800_000) > 1e-6 {
		t.Errorf("final value = %f, want 800000", s.Final())
	}

	wantChange := []int{0, 1, 0, -2}
	for i, want := range wantChange {
		if s.PositionChange[i] != want {
			t.Errorf("position_change[%d] = %d, want %d", i, s.PositionChange[i], want)
		}
	}
}

func TestSimulate_FlatNeverChangesValue(t *testing.T) {
	closes := []float64{10, 50, 3, 7, 100}
	positions := make([]core.Position, len(closes))

	s, err := Simulate(closes, positions, 250)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range s.Value {
		if v != 250 {
			t.Errorf("value[%d] = %f, want 250", i, v)
		}
	}
}

func TestSimulate_FirstPeriod(t *testing.T) {
	s, err := Simulate([]float64{100, 110}, []core.Position{core.Long, core.Long}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if s.PeriodReturn[0] != 0 || s.StrategyReturn[0] != 0 || s.PositionChange[0] != 0 {
		t.Error("first period must have zero return and change")
	}
	if s.Value[0] != 1000 {
		t.Errorf("value[0] = %f, want initial capital", s.Value[0])
	}
}

func TestSimulate_Validation(t *testing.T) {
	if _, err := Simulate([]float64{1}, nil, 1); !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := Simulate(nil, nil, 0); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestSeries_FinalEmpty(t *testing.T) {
	s := &Series{InitialCapital: 42}
	if s.Final() != 42 {
		t.Errorf("Final() = %f, want 42", s.Final())
	}
}

func TestCombine(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }

	points, err := Combine(map[string]Timeline{
		"XLF": {Times: []time.Time{d(7), d(14), d(21)}, Values: []float64{100, 110, 120}},
		"XLK": {Times: []time.Time{d(14), d(21)}, Values: []float64{50, 40}},
	})
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}

	tests := []struct {
		value, invested, ret float64
	}{
		{100, 100, 0},
		// XLK joins: only XLF's 100 -> 110 counts as return.
		{160, 150, 0.1},
		// XLF +10 and XLK -10 on a base of 160.
		{160, 150, 0},
	}
	if len(points) != len(tests) {
		t.Fatalf("expected %d points, got %d", len(tests), len(points))
	}
	for i, want := range tests {
		p := points[i]
		if p.Value != want.value || p.Invested != want.invested || math.Abs(p.Return-want.ret) > 1e-12 {
			t.Errorf("points[%d] = %+v, want value %v invested %v return %v",
				i, p, want.value, want.invested, want.ret)
		}
	}
	if !points[0].Time.Equal(d(7)) {
		t.Error("points should be sorted by time")
	}
}

func TestCombine_CarriesGapsForward(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }

	points, err := Combine(map[string]Timeline{
		"XLF": {Times: []time.Time{d(7), d(14), d(21)}, Values: []float64{100, 100, 100}},
		"XLV": {Times: []time.Time{d(7), d(21)}, Values: []float64{100, 120}},
	})
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}

	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[1].Value != 200 || points[1].Return != 0 {
		t.Errorf("gap week = %+v, want value 200 and no return", points[1])
	}
	if points[2].Value != 220 || math.Abs(points[2].Return-0.1) > 1e-12 {
		t.Errorf("after gap = %+v, want value 220 and return 0.1", points[2])
	}
}

func TestCombine_LengthMismatch(t *testing.T) {
	_, err := Combine(map[string]Timeline{"X": {Times: []time.Time{time.Now()}}})
	if !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}
