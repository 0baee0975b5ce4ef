// Package sqlstore records backtest metrics in PostgreSQL.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id                TEXT             NOT NULL,
	symbol                TEXT             NOT NULL,
	strategy              TEXT             NOT NULL,
	start_date            DATE             NOT NULL,
	end_date              DATE             NOT NULL,
	periods               INTEGER          NOT NULL,
	num_trades            INTEGER          NOT NULL,
	win_ratio             DOUBLE PRECISION NOT NULL,
	initial_value         DOUBLE PRECISION NOT NULL,
	final_value           DOUBLE PRECISION NOT NULL,
	total_return          DOUBLE PRECISION NOT NULL,
	annual_return         DOUBLE PRECISION,
	annualized_volatility DOUBLE PRECISION NOT NULL,
	sharpe                DOUBLE PRECISION NOT NULL,
	max_drawdown          DOUBLE PRECISION NOT NULL,
	stop_outs             INTEGER          NOT NULL,
	warnings              TEXT[]           NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, symbol, strategy)
)`

// Run is one stored (symbol, strategy) metric set.
type Run struct {
	RunID                string         `db:"run_id"`
	Symbol               string         `db:"symbol"`
	Strategy             string         `db:"strategy"`
	StartDate            time.Time      `db:"start_date"`
	EndDate              time.Time      `db:"end_date"`
	Periods              int            `db:"periods"`
	NumTrades            int            `db:"num_trades"`
	WinRatio             float64        `db:"win_ratio"`
	InitialValue         float64        `db:"initial_value"`
	FinalValue           float64        `db:"final_value"`
	TotalReturn          float64        `db:"total_return"`
	AnnualReturn         *float64       `db:"annual_return"`
	AnnualizedVolatility float64        `db:"annualized_volatility"`
	Sharpe               float64        `db:"sharpe"`
	MaxDrawdown          float64        `db:"max_drawdown"`
	StopOuts             int            `db:"stop_outs"`
	Warnings             pq.StringArray `db:"warnings"`
	CreatedAt            time.Time      `db:"created_at"`
}

// Store writes runs to PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects with a lib/pq DSN.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	if dsn == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("database dsn"))
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db, timeout), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// EnsureSchema creates the runs table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("create schema: %w", err))
	}
	return nil
}

// SaveRun upserts the metrics of one run.
func (s *Store) SaveRun(ctx context.Context, r *backtest.Result) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var annual *float64
	if r.Stats.AnnualReturnDefined {
		v := r.Stats.AnnualReturn
		annual = &v
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	query := `
		INSERT INTO backtest_runs
		(run_id, symbol, strategy, start_date, end_date, periods, num_trades, win_ratio,
		 initial_value, final_value, total_return, annual_return, annualized_volatility,
		 sharpe, max_drawdown, stop_outs, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (run_id, symbol, strategy) DO UPDATE SET
			periods = EXCLUDED.periods,
			num_trades = EXCLUDED.num_trades,
			win_ratio = EXCLUDED.win_ratio,
			initial_value = EXCLUDED.initial_value,
			final_value = EXCLUDED.final_value,
			total_return = EXCLUDED.total_return,
			annual_return = EXCLUDED.annual_return,
			annualized_volatility = EXCLUDED.annualized_volatility,
			sharpe = EXCLUDED.sharpe,
			max_drawdown = EXCLUDED.max_drawdown,
			stop_outs = EXCLUDED.stop_outs,
			warnings = EXCLUDED.warnings`

	_, err := s.db.ExecContext(ctx, query,
		r.RunID, r.Symbol, r.Strategy, r.StartDate, r.EndDate, len(r.Bars),
		r.Stats.NumTrades, r.Stats.WinRatio, r.Stats.InitialValue, r.Stats.FinalValue,
		r.Stats.TotalReturn, annual, r.Stats.AnnualizedVolatility, r.Stats.SharpeRatio,
		r.Stats.MaxDrawdown, r.Stats.StopOuts, pq.Array(warnings))
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("save run %s/%s: %w", r.Symbol, r.Strategy, err))
	}
	return nil
}

// ListRuns returns the stored rows of a batch ordered by symbol and strategy.
func (s *Store) ListRuns(ctx context.Context, runID string) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT run_id, symbol, strategy, start_date, end_date, periods, num_trades, win_ratio,
		       initial_value, final_value, total_return, annual_return, annualized_volatility,
		       sharpe, max_drawdown, stop_outs, warnings, created_at
		FROM backtest_runs
		WHERE run_id = $1
		ORDER BY symbol, strategy`

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, runID); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("list runs: %w", err))
	}
	return runs, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
