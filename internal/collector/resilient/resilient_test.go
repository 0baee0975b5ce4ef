package resilient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ collector.Collector = (*Resilient)(nil)

type stubCollector struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubCollector) Name() string                    { return "stub" }
func (s *stubCollector) Init(cfg collector.Config) error { return nil }
func (s *stubCollector) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []core.OHLCV{{Symbol: symbol, Close: 1}}, nil
}

func fastSettings() Settings {
	return Settings{RPS: 1000, Burst: 10, FailureThreshold: 2, OpenTimeout: time.Minute}
}

func TestResilient_PassesThrough(t *testing.T) {
	var statuses []string
	r := New(&stubCollector{}, fastSettings(), WithObserver(func(source, status string) {
		assert.Equal(t, "stub", source)
		statuses = append(statuses, status)
	}))

	bars, err := r.FetchHistory(context.Background(), "XLF", time.Time{}, time.Time{}, "1d")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, []string{"ok"}, statuses)
	assert.Equal(t, "stub", r.Name())
}

func TestResilient_BreakerOpens(t *testing.T) {
	stub := &stubCollector{err: core.WrapError(core.ErrCollectorFailed, errors.New("502"))}
	r := New(stub, fastSettings())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := r.FetchHistory(ctx, "XLF", time.Time{}, time.Time{}, "1d")
		assert.True(t, errors.Is(err, core.ErrCollectorFailed))
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.FetchHistory(ctx, "XLF", time.Time{}, time.Time{}, "1d")
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, 2, stub.calls, "open breaker must not call the delegate")
}

func TestResilient_MissingSymbolDoesNotTrip(t *testing.T) {
	stub := &stubCollector{err: core.WrapError(core.ErrSymbolNotFound, errors.New("XXX"))}
	r := New(stub, fastSettings())

	for i := 0; i < 5; i++ {
		_, err := r.FetchHistory(context.Background(), "XXX", time.Time{}, time.Time{}, "1d")
		assert.True(t, errors.Is(err, core.ErrSymbolNotFound))
	}
	assert.Equal(t, gobreaker.StateClosed, r.State())
	assert.Equal(t, 5, stub.calls)
}

func TestResilient_RateLimitTimeout(t *testing.T) {
	s := fastSettings()
	s.RPS = 0.001
	s.Burst = 1
	s.Timeout = 50 * time.Millisecond
	r := New(&stubCollector{}, s)

	_, err := r.FetchHistory(context.Background(), "XLF", time.Time{}, time.Time{}, "1d")
	require.NoError(t, err)

	_, err = r.FetchHistory(context.Background(), "XLE", time.Time{}, time.Time{}, "1d")
	assert.True(t, errors.Is(err, core.ErrCollectorTimeout))
}
