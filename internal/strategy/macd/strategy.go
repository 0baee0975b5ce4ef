package macd

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/indicator"
	"github.com/newthinker/signalbench/internal/signal"
	"github.com/newthinker/signalbench/internal/strategy"
)

// MACD positions on the MACD line against its signal line.
type MACD struct {
	policy signal.Policy
	spans  indicator.Spans
}

// New creates a MACD strategy with the default 12/26/9 spans.
func New(policy signal.Policy) *MACD {
	return &MACD{
		policy: policy,
		spans:  indicator.DefaultSpans(),
	}
}

func (m *MACD) Name() string {
	if m.policy == signal.ZeroCross {
		return "macd_zero_cross"
	}
	return "macd"
}

func (m *MACD) Description() string {
	return fmt.Sprintf("MACD (%d/%d/%d) %s", m.spans.Fast, m.spans.Slow, m.spans.Signal, m.policy)
}

func (m *MACD) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Lookback: m.spans.Slow,
	}
}

func (m *MACD) Init(cfg strategy.Config) error {
	spans, err := strategy.SpansFromParams(cfg.Params, m.spans)
	if err != nil {
		return err
	}
	m.spans = spans
	return nil
}

func (m *MACD) Analyze(ctx strategy.AnalysisContext) (*strategy.Analysis, error) {
	frame, err := indicator.MACD(ctx.Bars, m.spans)
	if err != nil {
		return nil, err
	}

	positions, err := signal.Generate(frame.MACD, frame.Signal, m.policy)
	if err != nil {
		return nil, err
	}

	return &strategy.Analysis{
		Columns: []strategy.Column{
			{Name: "fast_ema", Values: frame.FastEMA},
			{Name: "slow_ema", Values: frame.SlowEMA},
			{Name: "macd", Values: frame.MACD},
			{Name: "signal_line", Values: frame.Signal},
			{Name: "histogram", Values: frame.Histogram},
		},
		Positions: positions,
	}, nil
}
