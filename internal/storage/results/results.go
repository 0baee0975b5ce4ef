// Package results encodes backtest runs as CSV and JSON tables and writes
// them to archive storage.
package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/storage/archive"
	"go.uber.org/zap"
)

const (
	MetricsCSVPath  = "results/strategy_metrics.csv"
	MetricsJSONPath = "results/strategy_metrics.json"

	dateLayout = "2006-01-02"
)

// SignalsPath is where the per-period table of a run is stored.
func SignalsPath(symbol, strategy string) string {
	return fmt.Sprintf("processed/%s/weekly_%s_signals.csv", strings.ToUpper(symbol), strategy)
}

// TradesPath is where the trade log of a run is stored.
func TradesPath(symbol, strategy string) string {
	return fmt.Sprintf("processed/%s/trades_%s.csv", strings.ToUpper(symbol), strategy)
}

// MetricsRow is one (symbol, strategy) line of the batch summary.
type MetricsRow struct {
	RunID                string    `json:"run_id"`
	Symbol               string    `json:"symbol"`
	Strategy             string    `json:"strategy"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	Periods              int       `json:"periods"`
	NumTrades            int       `json:"num_trades"`
	WinRatio             float64   `json:"win_ratio"`
	InitialValue         float64   `json:"initial_value"`
	FinalValue           float64   `json:"final_value"`
	TotalReturn          float64   `json:"total_return"`
	AnnualReturn         *float64  `json:"annual_return"`
	AnnualizedVolatility float64   `json:"annualized_volatility"`
	SharpeRatio          float64   `json:"sharpe"`
	MaxDrawdown          float64   `json:"max_drawdown"`
	StopOuts             int       `json:"stop_outs"`
	Warnings             []string  `json:"warnings,omitempty"`
}

// Row summarizes a result.
func Row(r *backtest.Result) MetricsRow {
	row := MetricsRow{
		RunID:                r.RunID,
		Symbol:               r.Symbol,
		Strategy:             r.Strategy,
		StartDate:            r.StartDate,
		EndDate:              r.EndDate,
		Periods:              len(r.Bars),
		NumTrades:            r.Stats.NumTrades,
		WinRatio:             r.Stats.WinRatio,
		InitialValue:         r.Stats.InitialValue,
		FinalValue:           r.Stats.FinalValue,
		TotalReturn:          r.Stats.TotalReturn,
		AnnualizedVolatility: r.Stats.AnnualizedVolatility,
		SharpeRatio:          r.Stats.SharpeRatio,
		MaxDrawdown:          r.Stats.MaxDrawdown,
		StopOuts:             r.Stats.StopOuts,
		Warnings:             r.Warnings,
	}
	if r.Stats.AnnualReturnDefined {
		v := r.Stats.AnnualReturn
		row.AnnualReturn = &v
	}
	return row
}

// EncodeSignals writes one row per weekly period.
func EncodeSignals(w io.Writer, r *backtest.Result) error {
	cw := csv.NewWriter(w)

	header := []string{"date", "open", "high", "low", "close", "original_close", "volume"}
	for _, c := range r.Columns {
		header = append(header, c.Name)
	}
	header = append(header, "position", "period_return", "strategy_return", "portfolio_value", "position_change", "stop_out")
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, bar := range r.Bars {
		rec := []string{
			bar.Time.Format(dateLayout),
			formatF(bar.Open), formatF(bar.High), formatF(bar.Low), formatF(bar.Close),
			formatF(at(r.OriginalClose, i)),
			strconv.FormatInt(bar.Volume, 10),
		}
		for _, c := range r.Columns {
			rec = append(rec, formatF(at(c.Values, i)))
		}
		rec = append(rec,
			strconv.Itoa(int(r.Positions[i])),
			formatF(r.Series.PeriodReturn[i]),
			formatF(r.Series.StrategyReturn[i]),
			formatF(r.Series.Value[i]),
			strconv.Itoa(r.Series.PositionChange[i]),
			strconv.FormatBool(i < len(r.StopOuts) && r.StopOuts[i]),
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeTrades writes the closed trades followed by the open one, if any.
func EncodeTrades(w io.Writer, trades []backtest.Trade, open *backtest.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"side", "entry_date", "entry_price", "exit_date", "exit_price", "pnl_pct", "status"}); err != nil {
		return err
	}

	write := func(t backtest.Trade, status string) error {
		exit := ""
		if t.IsClosed() {
			exit = t.ExitTime.Format(dateLayout)
		}
		return cw.Write([]string{
			t.Side.String(),
			t.EntryTime.Format(dateLayout), formatF(t.EntryPrice),
			exit, formatF(t.ExitPrice),
			strconv.FormatFloat(t.PnLPct, 'f', 2, 64),
			status,
		})
	}
	for _, t := range trades {
		if err := write(t, "closed"); err != nil {
			return err
		}
	}
	if open != nil {
		if err := write(*open, "open"); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeMetricsCSV writes the batch summary table.
func EncodeMetricsCSV(w io.Writer, rows []MetricsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"symbol", "strategy", "start_date", "end_date", "periods", "num_trades", "win_ratio",
		"initial_value", "final_value", "total_return", "annual_return",
		"annualized_volatility", "sharpe", "max_drawdown", "stop_outs",
	}); err != nil {
		return err
	}
	for _, r := range rows {
		annual := ""
		if r.AnnualReturn != nil {
			annual = formatF(*r.AnnualReturn)
		}
		if err := cw.Write([]string{
			r.Symbol, r.Strategy,
			r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout),
			strconv.Itoa(r.Periods), strconv.Itoa(r.NumTrades), formatF(r.WinRatio),
			formatF(r.InitialValue), formatF(r.FinalValue), formatF(r.TotalReturn), annual,
			formatF(r.AnnualizedVolatility), formatF(r.SharpeRatio), formatF(r.MaxDrawdown),
			strconv.Itoa(r.StopOuts),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Sink persists runs through archive storage.
type Sink struct {
	store  archive.Storage
	logger *zap.Logger
}

// NewSink creates a results sink.
func NewSink(store archive.Storage, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, logger: logger}
}

// SaveRun writes the signals table and trade log of one run.
func (s *Sink) SaveRun(ctx context.Context, r *backtest.Result) error {
	var signals, trades bytes.Buffer
	if err := EncodeSignals(&signals, r); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := EncodeTrades(&trades, r.Trades, r.OpenTrade); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	if err := s.store.Write(ctx, SignalsPath(r.Symbol, r.Strategy), signals.Bytes()); err != nil {
		return err
	}
	if err := s.store.Write(ctx, TradesPath(r.Symbol, r.Strategy), trades.Bytes()); err != nil {
		return err
	}

	s.logger.Debug("run saved",
		zap.String("symbol", r.Symbol),
		zap.String("strategy", r.Strategy),
		zap.Int("periods", len(r.Bars)))
	return nil
}

// WriteSummary writes the batch metrics as CSV and JSON.
func (s *Sink) WriteSummary(ctx context.Context, rows []MetricsRow) error {
	var buf bytes.Buffer
	if err := EncodeMetricsCSV(&buf, rows); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := s.store.Write(ctx, MetricsCSVPath, buf.Bytes()); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return s.store.Write(ctx, MetricsJSONPath, data)
}

// ReadSummary loads a summary written by WriteSummary.
func (s *Sink) ReadSummary(ctx context.Context) ([]MetricsRow, error) {
	data, err := s.store.Read(ctx, MetricsJSONPath)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	var rows []MetricsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return rows, nil
}

func at(values []float64, i int) float64 {
	if i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

// formatF renders NaN as an empty cell.
func formatF(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
