package signal

import (
	"errors"
	"math"
	"testing"

	"github.com/newthinker/signalbench/internal/core"
)

func equalPositions(a, b []core.Position) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerate_Cross(t *testing.T) {
	nan := math.NaN()
	line := []float64{nan, 1, -1, 2, 0.5}
	sig := []float64{nan, 0, 0, 2, 1}

	got, err := Generate(line, sig, Cross)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := []core.Position{core.Flat, core.Long, core.Short, core.Flat, core.Short}
	if !equalPositions(got, want) {
		t.Errorf("Generate() = %v, want %v", got, want)
	}
}

func TestGenerate_ZeroCrossPersists(t *testing.T) {
	nan := math.NaN()
	// idx: 0 undefined, 1 long condition, 2 above signal but below zero (hold),
	// 3 below signal but above zero (hold), 4 short condition, 5 undefined (hold),
	// 6 above signal and above zero.
	line := []float64{nan, 2, -1, 1, -2, nan, 3}
	sig := []float64{nan, 1, -2, 2, -1, nan, 1}

	got, err := Generate(line, sig, ZeroCross)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := []core.Position{core.Flat, core.Long, core.Long, core.Long, core.Short, core.Short, core.Long}
	if !equalPositions(got, want) {
		t.Errorf("Generate() = %v, want %v", got, want)
	}
}

func TestGenerate_LengthMismatch(t *testing.T) {
	_, err := Generate([]float64{1, 2}, []float64{1}, Cross)
	if !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestGenerate_UnknownPolicy(t *testing.T) {
	_, err := Generate([]float64{1}, []float64{1}, Policy("momentum"))
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLag(t *testing.T) {
	raw := []core.Position{core.Long, core.Short, core.Flat, core.Long}
	got := Lag(raw)

	want := []core.Position{core.Flat, core.Long, core.Short, core.Flat}
	if !equalPositions(got, want) {
		t.Errorf("Lag() = %v, want %v", got, want)
	}
	if raw[0] != core.Long {
		t.Error("Lag must not mutate its input")
	}
}

func TestLag_FirstPeriodAlwaysFlat(t *testing.T) {
	for _, raw := range [][]core.Position{
		{core.Long},
		{core.Short, core.Short},
		{},
	} {
		got := Lag(raw)
		if len(got) != len(raw) {
			t.Fatalf("Lag changed length: %d != %d", len(got), len(raw))
		}
		if len(got) > 0 && got[0] != core.Flat {
			t.Errorf("Lag(%v)[0] = %v, want Flat", raw, got[0])
		}
	}
}

func TestLag_UsesOnlyPriorIndicatorValues(t *testing.T) {
	line := []float64{1, 2, 3, 4, -5}
	sig := []float64{0, 0, 0, 0, 0}
	raw, _ := Generate(line, sig, Cross)
	lagged := Lag(raw)

	// Changing the last indicator value must not affect any lagged position.
	line[4] = 5
	raw2, _ := Generate(line, sig, Cross)
	if !equalPositions(lagged, Lag(raw2)) {
		t.Error("lagged positions depend on the current period's indicator")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"cross", Cross, false},
		{"", Cross, false},
		{"ZERO_CROSS", ZeroCross, false},
		{"zero-cross", ZeroCross, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
