package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestOpen_MissingDSN(t *testing.T) {
	_, err := Open("", time.Second)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS backtest_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRun(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	r := &backtest.Result{
		RunID:     "run-1",
		Symbol:    "XLF",
		Strategy:  "macd",
		StartDate: start,
		EndDate:   start.AddDate(1, 0, 0),
		Stats: backtest.Stats{
			NumTrades:    4,
			InitialValue: 1_000_000,
			FinalValue:   1_100_000,
			TotalReturn:  0.1,
			SharpeRatio:  0.8,
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_runs")).
		WithArgs("run-1", "XLF", "macd", start, start.AddDate(1, 0, 0), 0, 4,
			sqlmock.AnyArg(), 1_000_000.0, 1_100_000.0, 0.1, nil,
			sqlmock.AnyArg(), 0.8, sqlmock.AnyArg(), 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveRun(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRunError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backtest_runs")).
		WillReturnError(errors.New("connection reset"))

	err := store.SaveRun(context.Background(), &backtest.Result{RunID: "r", Symbol: "XLF", Strategy: "macd"})
	assert.True(t, errors.Is(err, core.ErrStorageFailed))
}

func TestStore_ListRuns(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)

	cols := []string{
		"run_id", "symbol", "strategy", "start_date", "end_date", "periods", "num_trades", "win_ratio",
		"initial_value", "final_value", "total_return", "annual_return", "annualized_volatility",
		"sharpe", "max_drawdown", "stop_outs", "warnings", "created_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow("run-1", "XLF", "macd", day, day, 52, 6, 0.5, 1e6, 1.2e6, 0.2, 0.2, 0.15, 1.1, -0.1, 2, []byte("{}"), day).
		AddRow("run-1", "XLF", "market", day, day, 52, 1, 1.0, 1e6, 1.1e6, 0.1, nil, 0.12, 0.9, -0.2, 0, []byte(`{"INSUFFICIENT_HISTORY"}`), day)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backtest_runs")).WithArgs("run-1").WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "macd", runs[0].Strategy)
	require.NotNil(t, runs[0].AnnualReturn)
	assert.Equal(t, 0.2, *runs[0].AnnualReturn)
	assert.Nil(t, runs[1].AnnualReturn)
	assert.Equal(t, []string{"INSUFFICIENT_HISTORY"}, []string(runs[1].Warnings))
	assert.NoError(t, mock.ExpectationsWereMet())
}
