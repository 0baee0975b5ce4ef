package collector

import (
	"context"
	"time"

	"github.com/newthinker/signalbench/internal/core"
)

// Config holds collector configuration
type Config struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
	Dir     string
	Extra   map[string]any
}

// Collector defines the interface for historical data sources
type Collector interface {
	Name() string
	Init(cfg Config) error

	// FetchHistory returns bars sorted by time in [start, end].
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}
