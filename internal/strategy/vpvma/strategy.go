package vpvma

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/indicator"
	"github.com/newthinker/signalbench/internal/signal"
	"github.com/newthinker/signalbench/internal/strategy"
)

// VPVMA positions on the volume/price/volatility divergence line against
// its signal line.
type VPVMA struct {
	policy signal.Policy
	spans  indicator.Spans
}

// New creates a VPVMA strategy with the default 12/26/9 spans.
func New(policy signal.Policy) *VPVMA {
	return &VPVMA{
		policy: policy,
		spans:  indicator.DefaultSpans(),
	}
}

func (v *VPVMA) Name() string {
	if v.policy == signal.ZeroCross {
		return "vpvma_zero_cross"
	}
	return "vpvma"
}

func (v *VPVMA) Description() string {
	return fmt.Sprintf("VPVMA (%d/%d/%d) %s", v.spans.Fast, v.spans.Slow, v.spans.Signal, v.policy)
}

func (v *VPVMA) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		Lookback:   v.spans.Slow,
		Volatility: true,
	}
}

func (v *VPVMA) Init(cfg strategy.Config) error {
	spans, err := strategy.SpansFromParams(cfg.Params, v.spans)
	if err != nil {
		return err
	}
	v.spans = spans
	return nil
}

func (v *VPVMA) Analyze(ctx strategy.AnalysisContext) (*strategy.Analysis, error) {
	if ctx.Volatility == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s: volatility series not loaded", ctx.Symbol))
	}

	frame, err := indicator.VPVMA(ctx.Bars, ctx.Volatility, v.spans)
	if err != nil {
		return nil, err
	}

	positions, err := signal.Generate(frame.VPVMA, frame.Signal, v.policy)
	if err != nil {
		return nil, err
	}

	return &strategy.Analysis{
		Columns: []strategy.Column{
			{Name: "typical_price", Values: frame.TypicalPrice},
			{Name: "volatility", Values: frame.Volatility},
			{Name: "vol_weighted_price", Values: frame.VolWeightedPrice},
			{Name: "vpvma", Values: frame.VPVMA},
			{Name: "vpvma_signal", Values: frame.Signal},
			{Name: "vpvma_histogram", Values: frame.Histogram},
		},
		Positions: positions,
	}, nil
}
