// Package signal turns indicator lines into lagged position series.
package signal

import (
	"fmt"
	"strings"

	"github.com/newthinker/signalbench/internal/core"
)

// Policy selects how an indicator and its signal line map to positions.
type Policy string

const (
	// Cross classifies every period independently: long above the signal
	// line, short below it, flat on ties or undefined values.
	Cross Policy = "cross"
	// ZeroCross only flips when the crossover agrees with the indicator's
	// side of zero; otherwise the previous position persists.
	ZeroCross Policy = "zero_cross"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case Cross, "":
		return Cross, nil
	case ZeroCross, "zero-cross", "zerocross":
		return ZeroCross, nil
	default:
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown signal policy %q", s))
	}
}

// Generate computes raw (unlagged) positions from an indicator line and its
// signal line. NaN comparisons never produce a position.
func Generate(line, signal []float64, policy Policy) ([]core.Position, error) {
	if len(line) != len(signal) {
		return nil, core.WrapError(core.ErrLengthMismatch,
			fmt.Errorf("indicator has %d values, signal line %d", len(line), len(signal)))
	}

	switch policy {
	case Cross:
		return crossPositions(line, signal), nil
	case ZeroCross:
		return zeroCrossPositions(line, signal), nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown signal policy %q", policy))
	}
}

func crossPositions(line, signal []float64) []core.Position {
	out := make([]core.Position, len(line))
	for i := range line {
		switch {
		case line[i] > signal[i]:
			out[i] = core.Long
		case line[i] < signal[i]:
			out[i] = core.Short
		}
	}
	return out
}

// zeroCrossPositions is a left-to-right fold; each output depends on the
// previous one.
func zeroCrossPositions(line, signal []float64) []core.Position {
	out := make([]core.Position, len(line))
	held := core.Flat
	for i := range line {
		switch {
		case line[i] > signal[i] && line[i] > 0:
			held = core.Long
		case line[i] < signal[i] && line[i] < 0:
			held = core.Short
		}
		out[i] = held
	}
	return out
}

// Lag shifts positions forward one period so the position held in period i
// is the decision made with data through i-1. The first period is flat.
func Lag(raw []core.Position) []core.Position {
	out := make([]core.Position, len(raw))
	if len(raw) > 1 {
		copy(out[1:], raw[:len(raw)-1])
	}
	return out
}
