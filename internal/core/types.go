package core

import "time"

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // "1d", "1wk"
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Time     time.Time `json:"time"`
}

// IsValid checks the bar has positive prices and a consistent range.
func (b OHLCV) IsValid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
		return false
	}
	return b.Low <= b.High && !b.Time.IsZero()
}

// Closes extracts closing prices.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Times extracts bar timestamps.
func Times(bars []OHLCV) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Time
	}
	return out
}

// Position is the exposure held during a period.
type Position int

const (
	Short Position = -1
	Flat  Position = 0
	Long  Position = 1
)

// String returns the side name used in trade logs.
func (p Position) String() string {
	switch p {
	case Long:
		return "Long"
	case Short:
		return "Short"
	default:
		return "Flat"
	}
}

// Sign returns the position as a return multiplier.
func (p Position) Sign() float64 {
	return float64(p)
}
