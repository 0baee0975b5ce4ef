package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ collector.Collector = (*Cache)(nil)

type countingCollector struct {
	bars  []core.OHLCV
	err   error
	calls int
}

func (c *countingCollector) Name() string                    { return "counting" }
func (c *countingCollector) Init(cfg collector.Config) error { return nil }
func (c *countingCollector) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	c.calls++
	return c.bars, c.err
}

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	bars  = []core.OHLCV{
		{Symbol: "XLF", Interval: "1d", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Time: start},
	}
)

func TestKey(t *testing.T) {
	assert.Equal(t, "signalbench:history:XLF:1d:20240101:20240630", Key("xlf", "1d", start, end))
}

func TestCache_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingCollector{bars: bars}
	c := New(next, db, time.Hour, nil)

	key := Key("XLF", "1d", start, end)
	payload, err := json.Marshal(bars)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(payload), time.Hour).SetVal("OK")

	got, err := c.FetchHistory(context.Background(), "XLF", start, end, "1d")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Hit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingCollector{}
	c := New(next, db, time.Hour, nil)

	payload, err := json.Marshal(bars)
	require.NoError(t, err)
	mock.ExpectGet(Key("XLF", "1d", start, end)).SetVal(string(payload))

	got, err := c.FetchHistory(context.Background(), "XLF", start, end, "1d")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, got[0].Close)
	assert.True(t, got[0].Time.Equal(start))
	assert.Equal(t, 0, next.calls, "hit must not reach the delegate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingCollector{bars: bars}
	c := New(next, db, time.Hour, nil)

	key := Key("XLF", "1d", start, end)
	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, mustJSON(t, bars), time.Hour).SetErr(errors.New("connection refused"))

	got, err := c.FetchHistory(context.Background(), "XLF", start, end, "1d")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCache_DelegateErrorNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingCollector{err: core.ErrCollectorFailed}
	c := New(next, db, time.Hour, nil)

	mock.ExpectGet(Key("XLF", "1d", start, end)).RedisNil()

	_, err := c.FetchHistory(context.Background(), "XLF", start, end, "1d")
	assert.True(t, errors.Is(err, core.ErrCollectorFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(&countingCollector{}, db, 0, nil)

	mock.ExpectPing().SetErr(errors.New("redis: client is closed"))
	assert.True(t, errors.Is(c.Ping(context.Background()), core.ErrStorageFailed))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
