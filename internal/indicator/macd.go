package indicator

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/core"
)

// Spans are the EMA lookbacks shared by MACD and VPVMA.
type Spans struct {
	Fast   int
	Slow   int
	Signal int
}

// DefaultSpans returns the classic 12/26/9 configuration.
func DefaultSpans() Spans {
	return Spans{Fast: 12, Slow: 26, Signal: 9}
}

// Validate checks the spans are positive and ordered.
func (s Spans) Validate() error {
	if s.Fast <= 0 || s.Slow <= 0 || s.Signal <= 0 {
		return fmt.Errorf("spans must be positive, got %d/%d/%d", s.Fast, s.Slow, s.Signal)
	}
	if s.Fast >= s.Slow {
		return fmt.Errorf("fast span %d must be shorter than slow span %d", s.Fast, s.Slow)
	}
	return nil
}

// MACDFrame holds MACD values aligned 1:1 with the input bars.
type MACDFrame struct {
	FastEMA   []float64
	SlowEMA   []float64
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the MACD line, its signal line and histogram from closes.
func MACD(bars []core.OHLCV, spans Spans) (*MACDFrame, error) {
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrEmptyInput, fmt.Errorf("macd needs at least one bar"))
	}
	if err := spans.Validate(); err != nil {
		return nil, err
	}

	closes := core.Closes(bars)
	fast := EMA(closes, spans.Fast)
	slow := EMA(closes, spans.Slow)
	line := Sub(fast, slow)
	signal := EMA(line, spans.Signal)

	return &MACDFrame{
		FastEMA:   fast,
		SlowEMA:   slow,
		MACD:      line,
		Signal:    signal,
		Histogram: Sub(line, signal),
	}, nil
}
