// Package resilient guards a collector with a token-bucket rate limit and a
// circuit breaker.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Settings configures the guard.
type Settings struct {
	RPS              float64
	Burst            int
	Timeout          time.Duration // Per fetch, including the rate-limit wait
	FailureThreshold uint32        // Consecutive failures before the breaker opens
	OpenTimeout      time.Duration // How long the breaker stays open
}

// DefaultSettings returns conservative limits for public quote APIs.
func DefaultSettings() Settings {
	return Settings{
		RPS:              2,
		Burst:            1,
		Timeout:          30 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      60 * time.Second,
	}
}

// Observer receives the outcome of every fetch.
type Observer func(source, status string)

// Resilient decorates a collector.
type Resilient struct {
	next    collector.Collector
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	observe Observer
	logger  *zap.Logger
}

// Option configures a Resilient collector.
type Option func(*Resilient)

// WithObserver reports fetch outcomes, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(r *Resilient) { r.observe = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resilient) { r.logger = l }
}

// New wraps next.
func New(next collector.Collector, s Settings, opts ...Option) *Resilient {
	def := DefaultSettings()
	if s.RPS <= 0 {
		s.RPS = def.RPS
	}
	if s.Burst <= 0 {
		s.Burst = def.Burst
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = def.FailureThreshold
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = def.OpenTimeout
	}

	r := &Resilient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(s.RPS), s.Burst),
		timeout: s.Timeout,
		observe: func(string, string) {},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	threshold := s.FailureThreshold
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    next.Name(),
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Missing symbols and empty ranges are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, core.ErrSymbolNotFound) || errors.Is(err, core.ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("collector breaker state change",
				zap.String("collector", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return r
}

func (r *Resilient) Name() string {
	return r.next.Name()
}

func (r *Resilient) Init(cfg collector.Config) error {
	return r.next.Init(cfg)
}

// State reports the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

func (r *Resilient) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.limiter.Wait(ctx); err != nil {
		r.observe(r.Name(), "throttled")
		return nil, core.WrapError(core.ErrCollectorTimeout, fmt.Errorf("%s: rate limit wait: %w", symbol, err))
	}

	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.FetchHistory(ctx, symbol, start, end, interval)
	})
	if err != nil {
		r.observe(r.Name(), "error")
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("%s: %w", symbol, err))
		case errors.Is(err, context.DeadlineExceeded):
			return nil, core.WrapError(core.ErrCollectorTimeout, fmt.Errorf("%s: %w", symbol, err))
		}
		return nil, err
	}

	r.observe(r.Name(), "ok")
	bars, _ := res.([]core.OHLCV)
	return bars, nil
}
