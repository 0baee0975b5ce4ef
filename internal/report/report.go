// Package report renders batch metrics for the console.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/portfolio"
	"github.com/newthinker/signalbench/internal/storage/results"
	"github.com/shopspring/decimal"
)

// Money renders a currency amount with two decimals and thousands separators.
func Money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	s := decimal.NewFromFloat(v).Round(2).StringFixed(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

// Percent renders a fraction as a percentage with two decimals.
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

func ratio(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// WriteComparison writes one line per (symbol, strategy) run.
func WriteComparison(out io.Writer, rows []results.MetricsRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSTRATEGY\tTRADES\tWIN %\tTOTAL RET\tANNUAL RET\tSHARPE\tMAX DD\tSTOPS\tINITIAL\tFINAL\t")
	fmt.Fprintln(w, "------\t--------\t------\t-----\t---------\t----------\t------\t------\t-----\t-------\t-----\t")

	for _, r := range rows {
		annual := "undefined"
		if r.AnnualReturn != nil {
			annual = Percent(*r.AnnualReturn)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			r.Symbol, r.Strategy, r.NumTrades, Percent(r.WinRatio),
			Percent(r.TotalReturn), annual, ratio(r.SharpeRatio), Percent(r.MaxDrawdown),
			r.StopOuts, Money(r.InitialValue), Money(r.FinalValue))
	}
	return w.Flush()
}

// BestBySharpe picks the highest-Sharpe run of each symbol, in symbol order.
// Ties keep the first row seen.
func BestBySharpe(rows []results.MetricsRow) []results.MetricsRow {
	best := make(map[string]results.MetricsRow)
	for _, r := range rows {
		cur, ok := best[r.Symbol]
		if !ok || r.SharpeRatio > cur.SharpeRatio {
			best[r.Symbol] = r
		}
	}

	out := make([]results.MetricsRow, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// WriteBest writes the best strategy line of every symbol.
func WriteBest(out io.Writer, rows []results.MetricsRow) error {
	for _, r := range BestBySharpe(rows) {
		if _, err := fmt.Fprintf(out, "%s: best strategy %s (sharpe %s, total return %s)\n",
			r.Symbol, r.Strategy, ratio(r.SharpeRatio), Percent(r.TotalReturn)); err != nil {
			return err
		}
	}
	return nil
}

// CombinedStats evaluates a combined portfolio as a single run that is
// always invested. Returns, Sharpe and drawdown come from the chained
// per-date returns of the members already held, so a member joining later
// adds capital but no return. InitialValue is the capital of every member
// and FinalValue the last combined value.
func CombinedStats(points []portfolio.Point, periodsPerYear float64) backtest.Stats {
	if len(points) == 0 {
		return backtest.Stats{}
	}

	times := make([]time.Time, len(points))
	series := &portfolio.Series{
		InitialCapital: points[0].Value,
		PeriodReturn:   make([]float64, len(points)),
		StrategyReturn: make([]float64, len(points)),
		Value:          make([]float64, len(points)),
		PositionChange: make([]int, len(points)),
	}
	index := points[0].Value
	for i, p := range points {
		times[i] = p.Time
		if i > 0 {
			series.PeriodReturn[i] = p.Return
			series.StrategyReturn[i] = p.Return
			index *= 1 + p.Return
		}
		series.Value[i] = index
	}

	stats := backtest.CalculateStats(times, series, periodsPerYear)
	last := points[len(points)-1]
	stats.InitialValue = last.Invested
	stats.FinalValue = last.Value
	return stats
}

// WriteCombined writes the performance of a combined portfolio.
func WriteCombined(out io.Writer, strategy string, members int, stats backtest.Stats) error {
	annual := "undefined"
	if stats.AnnualReturnDefined {
		annual = Percent(stats.AnnualReturn)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Combined portfolio\t%s (%d symbols)\t\n", strategy, members)
	fmt.Fprintf(w, "Capital\t%s\t\n", Money(stats.InitialValue))
	fmt.Fprintf(w, "Final value\t%s\t\n", Money(stats.FinalValue))
	fmt.Fprintf(w, "Total return (time-weighted)\t%s\t\n", Percent(stats.TotalReturn))
	fmt.Fprintf(w, "Annual return\t%s\t\n", annual)
	fmt.Fprintf(w, "Volatility\t%s\t\n", Percent(stats.AnnualizedVolatility))
	fmt.Fprintf(w, "Sharpe\t%s\t\n", ratio(stats.SharpeRatio))
	fmt.Fprintf(w, "Max drawdown\t%s\t\n", Percent(stats.MaxDrawdown))
	return w.Flush()
}
