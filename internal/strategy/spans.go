package strategy

import "github.com/newthinker/signalbench/internal/indicator"

// SpansFromParams overrides the given spans with `fast`, `slow` and `signal`
// params when present.
func SpansFromParams(params map[string]any, base indicator.Spans) (indicator.Spans, error) {
	var err error
	out := base
	if out.Fast, err = IntParam(params, "fast", base.Fast); err != nil {
		return base, err
	}
	if out.Slow, err = IntParam(params, "slow", base.Slow); err != nil {
		return base, err
	}
	if out.Signal, err = IntParam(params, "signal", base.Signal); err != nil {
		return base, err
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}
