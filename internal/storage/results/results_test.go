package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/portfolio"
	"github.com/newthinker/signalbench/internal/storage/archive"
	"github.com/newthinker/signalbench/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(t *testing.T) *backtest.Result {
	t.Helper()
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 105, 95}
	positions := []core.Position{core.Flat, core.Long, core.Long}

	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{Symbol: "XLF", Open: c, High: c, Low: c, Close: c, Volume: 10, Time: start.AddDate(0, 0, 7*i)}
	}
	series, err := portfolio.Simulate(closes, positions, 1000)
	require.NoError(t, err)

	times := core.Times(bars)
	trades, open := backtest.ExtractTrades(times, closes, positions)

	return &backtest.Result{
		RunID:         "run-1",
		Strategy:      "macd",
		Symbol:        "xlf",
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 14),
		Bars:          bars,
		OriginalClose: closes,
		Columns:       []strategy.Column{{Name: "macd", Values: []float64{math.NaN(), 0.5, -0.25}}},
		Positions:     positions,
		StopOuts:      make([]bool, 3),
		Series:        series,
		Trades:        trades,
		OpenTrade:     open,
		Stats:         backtest.CalculateStats(times, series, 52),
	}
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "processed/XLF/weekly_macd_signals.csv", SignalsPath("xlf", "macd"))
	assert.Equal(t, "processed/XLF/trades_vpvma_zero_cross.csv", TradesPath("XLF", "vpvma_zero_cross"))
}

func TestEncodeSignals(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSignals(&buf, sampleResult(t)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, []string{
		"date", "open", "high", "low", "close", "original_close", "volume", "macd",
		"position", "period_return", "strategy_return", "portfolio_value", "position_change", "stop_out",
	}, records[0])
	assert.Equal(t, "2024-01-07", records[1][0])
	assert.Equal(t, "", records[1][7], "NaN renders as empty")
	assert.Equal(t, "1", records[2][8])
	assert.Equal(t, "1050", records[2][11])
	assert.Equal(t, "false", records[3][13])
}

func TestEncodeTrades_OpenTrade(t *testing.T) {
	r := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, EncodeTrades(&buf, r.Trades, r.OpenTrade))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "Long,2024-01-14,105,,95,"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], ",open"))
}

func TestRow_UndefinedAnnualReturn(t *testing.T) {
	r := sampleResult(t)
	r.Stats.AnnualReturnDefined = false

	row := Row(r)
	assert.Nil(t, row.AnnualReturn)

	var buf bytes.Buffer
	require.NoError(t, EncodeMetricsCSV(&buf, []MetricsRow{row}))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "", records[1][10])
}

func TestSink_SaveRunAndSummary(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	sink := NewSink(store, nil)
	ctx := context.Background()

	r := sampleResult(t)
	require.NoError(t, sink.SaveRun(ctx, r))

	for _, path := range []string{SignalsPath("XLF", "macd"), TradesPath("XLF", "macd")} {
		exists, err := store.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists, path)
	}

	require.NoError(t, sink.WriteSummary(ctx, []MetricsRow{Row(r)}))
	rows, err := sink.ReadSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "macd", rows[0].Strategy)
	assert.InDelta(t, -0.05, rows[0].TotalReturn, 1e-9)
	require.NotNil(t, rows[0].AnnualReturn)
}
