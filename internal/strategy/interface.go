package strategy

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	Lookback   int  // Bars needed before every indicator value is defined
	Volatility bool // Needs the volatility index aligned to the bars
	Benchmark  bool // Always invested; exempt from stop-loss
}

// AnalysisContext provides data to strategies
type AnalysisContext struct {
	Symbol     string
	Bars       []core.OHLCV // Weekly bars
	Volatility []float64    // Volatility index level per bar, nil if not loaded
}

// Column is a named indicator series aligned with the bars.
type Column struct {
	Name   string
	Values []float64
}

// Analysis is a strategy's output for one series: indicator columns for the
// result table and raw positions before the one-period lag.
type Analysis struct {
	Columns   []Column
	Positions []core.Position
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	Name() string
	Description() string
	RequiredData() DataRequirements
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) (*Analysis, error)
}

// IntParam reads an integer parameter, accepting the numeric types produced
// by YAML and JSON decoding.
func IntParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %s must be an integer, got %T", key, v)
	}
}

// StringParam reads a string parameter.
func StringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
