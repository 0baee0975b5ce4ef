package backtest

import (
	"math"
	"time"

	"github.com/newthinker/signalbench/internal/portfolio"
)

// DaysPerYear is the calendar year length used to annualize returns.
const DaysPerYear = 365.25

// CalculateStats computes performance statistics from a portfolio series.
// times must be aligned with the series; periodsPerYear annualizes Sharpe
// and volatility.
func CalculateStats(times []time.Time, series *portfolio.Series, periodsPerYear float64) Stats {
	if series == nil || series.Len() == 0 {
		return Stats{}
	}

	stats := Stats{
		InitialValue: series.InitialCapital,
		FinalValue:   series.Final(),
	}

	for i, change := range series.PositionChange {
		if change == 0 {
			continue
		}
		stats.NumTrades++
		if series.StrategyReturn[i] > 0 {
			stats.WinningTrades++
		}
	}
	if stats.NumTrades > 0 {
		stats.WinRatio = float64(stats.WinningTrades) / float64(stats.NumTrades)
	}

	stats.TotalReturn = stats.FinalValue/stats.InitialValue - 1

	if len(times) > 1 {
		days := times[len(times)-1].Sub(times[0]).Hours() / 24
		if days > 0 {
			stats.AnnualReturn = math.Pow(1+stats.TotalReturn, DaysPerYear/days) - 1
			stats.AnnualReturnDefined = true
		}
	}

	mean, stdDev := meanStdDev(series.StrategyReturn)
	stats.AnnualizedVolatility = stdDev * math.Sqrt(periodsPerYear)
	stats.SharpeRatio = calculateSharpeRatio(mean, stdDev, periodsPerYear)
	stats.MaxDrawdown = calculateMaxDrawdown(series.Value)

	return stats
}

// calculateMaxDrawdown returns the most negative decline of value from its
// running peak, as a fraction <= 0.
func calculateMaxDrawdown(values []float64) float64 {
	var maxDD float64
	var peak float64

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// meanStdDev returns the mean and sample standard deviation.
func meanStdDev(returns []float64) (float64, float64) {
	if len(returns) < 2 {
		return 0, 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return mean, math.Sqrt(variance / float64(len(returns)-1))
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0
func calculateSharpeRatio(mean, stdDev, periodsPerYear float64) float64 {
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}
	return math.Sqrt(periodsPerYear) * mean / stdDev
}
