// Package portfolio compounds a position series into a value trajectory.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/signalbench/internal/core"
)

// Series is the per-period portfolio state of one run.
type Series struct {
	InitialCapital float64
	PeriodReturn   []float64
	StrategyReturn []float64
	Value          []float64
	PositionChange []int
}

// Len returns the number of periods.
func (s *Series) Len() int {
	return len(s.Value)
}

// Final returns the last portfolio value.
func (s *Series) Final() float64 {
	if len(s.Value) == 0 {
		return s.InitialCapital
	}
	return s.Value[len(s.Value)-1]
}

// Simulate converts positions and closes into returns and compounded value.
// period_return[0] and position_change[0] are zero.
func Simulate(closes []float64, positions []core.Position, capital float64) (*Series, error) {
	if len(closes) != len(positions) {
		return nil, core.WrapError(core.ErrLengthMismatch,
			fmt.Errorf("%d closes but %d positions", len(closes), len(positions)))
	}
	if capital <= 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("initial capital must be positive, got %f", capital))
	}

	n := len(closes)
	s := &Series{
		InitialCapital: capital,
		PeriodReturn:   make([]float64, n),
		StrategyReturn: make([]float64, n),
		Value:          make([]float64, n),
		PositionChange: make([]int, n),
	}

	value := capital
	for i := 0; i < n; i++ {
		if i > 0 {
			s.PeriodReturn[i] = closes[i]/closes[i-1] - 1
			s.PositionChange[i] = int(positions[i] - positions[i-1])
		}
		s.StrategyReturn[i] = positions[i].Sign() * s.PeriodReturn[i]
		value *= 1 + s.StrategyReturn[i]
		s.Value[i] = value
	}

	return s, nil
}

// Point is one dated value of a combined portfolio.
type Point struct {
	Time time.Time `json:"time"`
	// Value sums the members that have started, each at its latest value.
	Value float64 `json:"value"`
	// Invested sums the starting values of those members.
	Invested float64 `json:"invested"`
	// Return is the value-weighted return of the members already held at
	// the previous date. A member joining on this date does not count.
	Return float64 `json:"return"`
}

// Timeline is a dated value series for one member of a combined portfolio.
type Timeline struct {
	Times  []time.Time
	Values []float64
}

type member struct {
	at      map[int64]float64
	started bool
	first   float64
	last    float64
}

// Combine sums member value series by date. Once a member has started, a
// date missing from it carries its last value forward, so staggered
// listings and gaps do not show up as returns.
func Combine(members map[string]Timeline) ([]Point, error) {
	names := make([]string, 0, len(members))
	dates := make(map[int64]time.Time)
	state := make(map[string]*member, len(members))
	for name, m := range members {
		if len(m.Times) != len(m.Values) {
			return nil, core.WrapError(core.ErrLengthMismatch,
				fmt.Errorf("%s: %d times but %d values", name, len(m.Times), len(m.Values)))
		}
		st := &member{at: make(map[int64]float64, len(m.Times))}
		for i, ts := range m.Times {
			key := ts.Unix()
			st.at[key] = m.Values[i]
			if _, ok := dates[key]; !ok {
				dates[key] = ts
			}
		}
		names = append(names, name)
		state[name] = st
	}
	sort.Strings(names)

	keys := make([]int64, 0, len(dates))
	for k := range dates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Point, 0, len(keys))
	for _, key := range keys {
		p := Point{Time: dates[key]}
		var base, gain float64
		for _, name := range names {
			st := state[name]
			v, ok := st.at[key]
			switch {
			case st.started && ok:
				base += st.last
				gain += v - st.last
				st.last = v
			case st.started:
				base += st.last
			case ok:
				st.started = true
				st.first, st.last = v, v
			default:
				continue
			}
			p.Value += st.last
			p.Invested += st.first
		}
		if base > 0 {
			p.Return = gain / base
		}
		out = append(out, p)
	}
	return out, nil
}
