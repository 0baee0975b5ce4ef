// Package stoploss applies intra-period stop-outs to a lagged position series.
package stoploss

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/core"
)

// State is the exposure tracked by the simulator.
type State int

const (
	Flat State = iota
	Long
	Short
)

func (s State) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

func stateOf(p core.Position) State {
	switch p {
	case core.Long:
		return Long
	case core.Short:
		return Short
	default:
		return Flat
	}
}

// Result is the adjusted copy of the input series. Close holds the stop
// price in periods where a stop fired.
type Result struct {
	Positions []core.Position
	Close     []float64
	StopOuts  []bool
	Count     int
}

// tracker is the accumulator threaded through the fold.
type tracker struct {
	state State
	entry float64
}

// Simulate walks positions left to right and force-closes any open position
// whose adverse excursion, measured on the period's low (long) or high
// (short) against the entry close, exceeds pct. The stopped period's close
// is replaced by the stop price and its position by flat. Inputs are not
// modified.
func Simulate(bars []core.OHLCV, positions []core.Position, pct float64) (*Result, error) {
	if len(bars) != len(positions) {
		return nil, core.WrapError(core.ErrLengthMismatch,
			fmt.Errorf("%d bars but %d positions", len(bars), len(positions)))
	}
	if !(pct >= 0 && pct < 1) {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("stop loss pct must be in [0, 1), got %f", pct))
	}

	res := &Result{
		Positions: make([]core.Position, len(bars)),
		Close:     make([]float64, len(bars)),
		StopOuts:  make([]bool, len(bars)),
	}

	var t tracker
	for i, bar := range bars {
		var pos core.Position
		var closePrice float64
		var stopped bool
		t, pos, closePrice, stopped = step(t, bar, positions[i], pct)

		res.Positions[i] = pos
		res.Close[i] = closePrice
		res.StopOuts[i] = stopped
		if stopped {
			res.Count++
		}
	}

	return res, nil
}

// step advances the state machine by one period.
func step(t tracker, bar core.OHLCV, want core.Position, pct float64) (tracker, core.Position, float64, bool) {
	switch t.state {
	case Flat:
		if want != core.Flat {
			return tracker{state: stateOf(want), entry: bar.Close}, want, bar.Close, false
		}
		return t, core.Flat, bar.Close, false

	case Long:
		if (bar.Low-t.entry)/t.entry < -pct {
			return tracker{}, core.Flat, t.entry * (1 - pct), true
		}

	case Short:
		if (t.entry-bar.High)/t.entry < -pct {
			return tracker{}, core.Flat, t.entry * (1 + pct), true
		}
	}

	if stateOf(want) != t.state {
		if want == core.Flat {
			return tracker{}, core.Flat, bar.Close, false
		}
		return tracker{state: stateOf(want), entry: bar.Close}, want, bar.Close, false
	}
	return t, want, bar.Close, false
}
