package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestEMA_ConstantIsFixedPoint(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 42.5
	}

	for _, span := range []int{3, 9, 12, 26} {
		ema := EMA(values, span)
		for i, v := range ema {
			if !almostEqual(v, 42.5, 1e-9) {
				t.Fatalf("span %d: ema[%d] = %f, want 42.5", span, i, v)
			}
		}
	}
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	prices := []float64{10, 11, 12, 13}
	ema := EMA(prices, 3) // alpha = 0.5

	expected := []float64{10, 10.5, 11.25, 12.125}
	if len(ema) != len(prices) {
		t.Fatalf("expected %d values, got %d", len(prices), len(ema))
	}
	for i, v := range expected {
		if !almostEqual(ema[i], v, 1e-12) {
			t.Errorf("ema[%d] = %f, want %f", i, ema[i], v)
		}
	}
}

func TestEMA_LeadingNaN(t *testing.T) {
	nan := math.NaN()
	ema := EMA([]float64{nan, nan, 4, 6}, 3)

	if !math.IsNaN(ema[0]) || !math.IsNaN(ema[1]) {
		t.Error("leading NaNs should stay NaN")
	}
	if ema[2] != 4 {
		t.Errorf("ema[2] = %f, want 4 (seed)", ema[2])
	}
	if !almostEqual(ema[3], 5, 1e-12) {
		t.Errorf("ema[3] = %f, want 5", ema[3])
	}
}

func TestEMA_InteriorNaNCarriesAndDecays(t *testing.T) {
	nan := math.NaN()
	ema := EMA([]float64{10, nan, 20}, 3) // alpha = 0.5

	if ema[1] != 10 {
		t.Errorf("ema[1] = %f, want carried 10", ema[1])
	}
	// old weight 0.25 after the gap: (0.25*10 + 0.5*20) / 0.75
	want := (0.25*10 + 0.5*20) / 0.75
	if !almostEqual(ema[2], want, 1e-12) {
		t.Errorf("ema[2] = %f, want %f", ema[2], want)
	}
}

func TestEMA_NoLookahead(t *testing.T) {
	base := []float64{10, 12, 11, 15, 14, 13, 18}
	full := EMA(base, 4)
	for cut := 1; cut <= len(base); cut++ {
		partial := EMA(base[:cut], 4)
		for i := range partial {
			if partial[i] != full[i] {
				t.Fatalf("ema[%d] changed when later data was appended", i)
			}
		}
	}
}

func TestRollingSum(t *testing.T) {
	sums := RollingSum([]float64{1, 2, 3, 4, 5}, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(sums[i]) {
			t.Errorf("sums[%d] should be NaN during warmup", i)
		}
	}
	for i, want := range map[int]float64{2: 6, 3: 9, 4: 12} {
		if sums[i] != want {
			t.Errorf("sums[%d] = %f, want %f", i, sums[i], want)
		}
	}
}

func TestRollingSum_NotEnoughData(t *testing.T) {
	sums := RollingSum([]float64{1, 2}, 5)
	for i, v := range sums {
		if !math.IsNaN(v) {
			t.Errorf("sums[%d] = %f, want NaN", i, v)
		}
	}
}

func TestRollingSum_NaNInWindow(t *testing.T) {
	sums := RollingSum([]float64{1, math.NaN(), 3, 4, 5}, 2)
	if !math.IsNaN(sums[1]) || !math.IsNaN(sums[2]) {
		t.Error("windows touching NaN should be NaN")
	}
	if sums[3] != 7 || sums[4] != 9 {
		t.Errorf("unexpected sums after NaN: %v", sums)
	}
}
