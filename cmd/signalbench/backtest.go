package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/config"
	"github.com/newthinker/signalbench/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestSymbols    []string
	backtestUniverse   string
	backtestStrategies []string
	backtestFrom       string
	backtestTo         string
	backtestStopLoss   float64
	backtestCombine    string
	backtestMetrics    string
	backtestNoSave     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest strategies over symbols or a universe",
	Long: `Fetch daily history, resample to weekly bars and run every selected strategy
on every symbol. Prints a comparison table and the best strategy per symbol,
and stores signal tables, trade logs and batch metrics unless --no-save is set.`,
	Example: `  signalbench backtest --symbols XLF,XLK --from 2015-01-01 --to 2023-12-31
  signalbench backtest --universe sector --combine macd`,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringSliceVar(&backtestSymbols, "symbols", nil, "symbols to backtest")
	f.StringVar(&backtestUniverse, "universe", "", "named universe from the config (e.g. sector, bond)")
	f.StringSliceVar(&backtestStrategies, "strategies", nil, "strategies to run (default: config list, else all)")
	f.StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD (default from config)")
	f.StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD (default from config)")
	f.Float64Var(&backtestStopLoss, "stop-loss", -1, "stop-loss fraction, e.g. 0.02 (default from config)")
	f.StringVar(&backtestCombine, "combine", "", "report the summed portfolio of this strategy across all symbols")
	f.StringVar(&backtestMetrics, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	f.BoolVar(&backtestNoSave, "no-save", false, "skip writing result tables")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cmd, cfg)

	symbols, err := resolveSymbols(cfg)
	if err != nil {
		return err
	}
	start, end, err := cfg.Backtest.Range()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cfg, !backtestNoSave)
	if err != nil {
		return err
	}
	defer rt.Close()

	started := time.Now()
	rep, err := rt.app.RunBatch(ctx, app.Request{
		Symbols:    symbols,
		Strategies: cfg.Backtest.Strategies,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return err
	}
	rt.log.Info("backtest finished",
		zap.String("run_id", rep.RunID),
		zap.Int("results", len(rep.Results)),
		zap.Int("failures", len(rep.Failures)),
		zap.Duration("elapsed", time.Since(started)),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== signalbench %s ===\n", rep.RunID)
	fmt.Fprintf(out, "Period: %s to %s, stop-loss %s\n\n",
		start.Format(config.DateLayout), end.Format(config.DateLayout), report.Percent(cfg.Backtest.StopLossPct))

	rows := rep.Rows()
	if err := report.WriteComparison(out, rows); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := report.WriteBest(out, rows); err != nil {
		return err
	}

	if len(rep.Failures) > 0 {
		fmt.Fprintf(out, "\n%d run(s) failed:\n", len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintf(out, "  %s\n", f.Error())
		}
	}

	if backtestCombine != "" {
		points, err := rep.Combined(backtestCombine)
		if err != nil {
			return err
		}
		members := 0
		for _, r := range rep.Results {
			if r.Strategy == backtestCombine {
				members++
			}
		}
		fmt.Fprintln(out)
		if err := report.WriteCombined(out, backtestCombine, members,
			report.CombinedStats(points, cfg.Backtest.PeriodsPerYear)); err != nil {
			return err
		}
	}

	metricsFile := backtestMetrics
	if metricsFile == "" && cfg.Metrics.Enabled {
		metricsFile = cfg.Metrics.Textfile
	}
	if metricsFile != "" {
		if err := rt.metrics.WriteTextfile(metricsFile); err != nil {
			rt.log.Warn("writing metrics textfile", zap.String("path", metricsFile), zap.Error(err))
		}
	}

	if len(rep.Results) == 0 {
		return fmt.Errorf("all %d runs failed", len(rep.Failures))
	}
	return nil
}

// applyBacktestFlags overrides config fields with explicitly set flags.
func applyBacktestFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("from") {
		cfg.Backtest.Start = backtestFrom
	}
	if flags.Changed("to") {
		cfg.Backtest.End = backtestTo
	}
	if flags.Changed("stop-loss") {
		cfg.Backtest.StopLossPct = backtestStopLoss
	}
	if flags.Changed("strategies") {
		cfg.Backtest.Strategies = backtestStrategies
	}
}

func resolveSymbols(cfg *config.Config) ([]string, error) {
	var symbols []string
	if backtestUniverse != "" {
		u, err := cfg.Universe(backtestUniverse)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, u...)
	}
	symbols = append(symbols, backtestSymbols...)

	seen := make(map[string]bool, len(symbols))
	out := symbols[:0]
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols: pass --symbols or --universe")
	}
	return out, nil
}
