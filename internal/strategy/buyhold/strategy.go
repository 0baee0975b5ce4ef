// Package buyhold is the always-invested market benchmark.
package buyhold

import (
	"fmt"

	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/strategy"
)

// Name is the registered name of the benchmark.
const Name = "market"

// BuyHold holds a long position in every period.
type BuyHold struct{}

func New() *BuyHold {
	return &BuyHold{}
}

func (b *BuyHold) Name() string { return Name }

func (b *BuyHold) Description() string {
	return "Buy and hold benchmark"
}

func (b *BuyHold) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{Lookback: 1, Benchmark: true}
}

func (b *BuyHold) Init(cfg strategy.Config) error { return nil }

func (b *BuyHold) Analyze(ctx strategy.AnalysisContext) (*strategy.Analysis, error) {
	if len(ctx.Bars) == 0 {
		return nil, core.WrapError(core.ErrEmptyInput, fmt.Errorf("%s: no bars", ctx.Symbol))
	}
	positions := make([]core.Position, len(ctx.Bars))
	for i := range positions {
		positions[i] = core.Long
	}
	return &strategy.Analysis{Positions: positions}, nil
}
