package indicator

import (
	"fmt"
	"math"

	"github.com/newthinker/signalbench/internal/core"
)

// VPVMAFrame holds the volume/price/volatility divergence values.
type VPVMAFrame struct {
	TypicalPrice     []float64
	Volatility       []float64
	VolWeightedPrice []float64
	VWPShort         []float64
	VWPLong          []float64
	VPVMA            []float64
	Signal           []float64
	Histogram        []float64
}

// VPVMA computes the volume- and volatility-weighted MACD variant.
// volatilityIndex is the index level per bar (e.g. VIX 20 = 20%) and must be
// aligned with bars; missing weeks are NaN. Periods before the rolling
// windows fill are NaN.
func VPVMA(bars []core.OHLCV, volatilityIndex []float64, spans Spans) (*VPVMAFrame, error) {
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrEmptyInput, fmt.Errorf("vpvma needs at least one bar"))
	}
	if len(volatilityIndex) != len(bars) {
		return nil, core.WrapError(core.ErrLengthMismatch,
			fmt.Errorf("%d bars but %d volatility values", len(bars), len(volatilityIndex)))
	}
	if err := spans.Validate(); err != nil {
		return nil, err
	}

	n := len(bars)
	typical := make([]float64, n)
	volatility := make([]float64, n)
	vwp := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		typical[i] = (b.High + b.Low + b.Close) / 3
		volatility[i] = volatilityIndex[i] / 100
		volume[i] = float64(b.Volume)
		vwp[i] = typical[i] * volume[i]
	}

	short := weightedAverage(vwp, volume, spans.Fast)
	long := weightedAverage(vwp, volume, spans.Slow)

	rawShort := EMA(mul(short, volatility), spans.Fast)
	rawLong := EMA(mul(long, volatility), spans.Slow)
	line := Sub(rawShort, rawLong)
	signal := EMA(line, spans.Signal)

	return &VPVMAFrame{
		TypicalPrice:     typical,
		Volatility:       volatility,
		VolWeightedPrice: vwp,
		VWPShort:         short,
		VWPLong:          long,
		VPVMA:            line,
		Signal:           signal,
		Histogram:        Sub(line, signal),
	}, nil
}

// weightedAverage is rolling_sum(weighted)/rolling_sum(weights). A window
// with zero total weight is NaN.
func weightedAverage(weighted, weights []float64, window int) []float64 {
	num := RollingSum(weighted, window)
	den := RollingSum(weights, window)
	out := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 || math.IsNaN(den[i]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = num[i] / den[i]
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}
