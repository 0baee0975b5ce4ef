// Package resample aggregates daily bars into weekly bars.
package resample

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/newthinker/signalbench/internal/core"
)

// WeeklyInterval labels bars produced by Weekly.
const WeeklyInterval = "1wk"

// Calendar describes the week bucketing convention.
type Calendar struct {
	Location *time.Location
	WeekEnd  time.Weekday
}

// DefaultCalendar buckets weeks ending on Sunday in US/Eastern time.
func DefaultCalendar() Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return Calendar{Location: loc, WeekEnd: time.Sunday}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// WeekEnding returns midnight of the week-end day on or after t, in the
// calendar's location. It is the label of the weekly bucket containing t.
func (c Calendar) WeekEnding(t time.Time) time.Time {
	local := t.In(c.location())
	days := (int(c.WeekEnd) - int(local.Weekday()) + 7) % 7
	y, m, d := local.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, c.location())
}

// Weekly aggregates daily bars into one bar per calendar week: open is the
// first open, high the max, low the min, close the last close and volume the
// sum. A trailing partial week is still emitted. Input must be sorted by time.
func Weekly(daily []core.OHLCV, cal Calendar) ([]core.OHLCV, error) {
	if len(daily) == 0 {
		return nil, core.WrapError(core.ErrEmptyInput, fmt.Errorf("no daily bars to resample"))
	}

	weekly := make([]core.OHLCV, 0, len(daily)/5+1)
	var current *core.OHLCV
	var prev time.Time

	for i, bar := range daily {
		if i > 0 && !bar.Time.After(prev) {
			return nil, fmt.Errorf("bars not strictly increasing at index %d (%s)", i, bar.Time.Format(time.RFC3339))
		}
		prev = bar.Time

		label := cal.WeekEnding(bar.Time)
		if current == nil || !current.Time.Equal(label) {
			weekly = append(weekly, core.OHLCV{
				Symbol:   bar.Symbol,
				Interval: WeeklyInterval,
				Open:     bar.Open,
				High:     bar.High,
				Low:      bar.Low,
				Close:    bar.Close,
				Volume:   bar.Volume,
				Time:     label,
			})
			current = &weekly[len(weekly)-1]
			continue
		}

		current.High = math.Max(current.High, bar.High)
		current.Low = math.Min(current.Low, bar.Low)
		current.Close = bar.Close
		current.Volume += bar.Volume
	}

	return weekly, nil
}

// AlignMean buckets a companion daily series (such as a volatility index)
// into the weeks of weekly and returns the mean close per week. Weeks with no
// companion observation are NaN.
func AlignMean(weekly, companion []core.OHLCV, cal Calendar) []float64 {
	type acc struct {
		sum   float64
		count int
	}
	buckets := make(map[int64]*acc, len(weekly))
	for _, bar := range companion {
		key := cal.WeekEnding(bar.Time).Unix()
		a, ok := buckets[key]
		if !ok {
			a = &acc{}
			buckets[key] = a
		}
		a.sum += bar.Close
		a.count++
	}

	out := make([]float64, len(weekly))
	for i, w := range weekly {
		a, ok := buckets[w.Time.Unix()]
		if !ok || a.count == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = a.sum / float64(a.count)
	}
	return out
}
