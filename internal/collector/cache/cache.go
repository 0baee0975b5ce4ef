// Package cache memoizes collector history in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/core"
	"go.uber.org/zap"
)

const keyPrefix = "signalbench:history"

// DefaultTTL is used when none is configured.
const DefaultTTL = 12 * time.Hour

// Cache wraps a collector, storing fetched bars as JSON keyed by symbol,
// interval and date range. Redis failures degrade to direct fetches.
type Cache struct {
	next   collector.Collector
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient opens a Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// New wraps next with a Redis cache.
func New(next collector.Collector, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) Name() string {
	return c.next.Name()
}

func (c *Cache) Init(cfg collector.Config) error {
	return c.next.Init(cfg)
}

// Key returns the Redis key for a history request.
func Key(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, strings.ToUpper(symbol), interval,
		start.Format("20060102"), end.Format("20060102"))
}

func (c *Cache) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	key := Key(symbol, interval, start, end)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var bars []core.OHLCV
		if err := json.Unmarshal([]byte(raw), &bars); err == nil {
			c.logger.Debug("history cache hit", zap.String("key", key), zap.Int("bars", len(bars)))
			return bars, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("history cache unavailable", zap.String("key", key), zap.Error(err))
	}

	bars, err := c.next.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	data, err := json.Marshal(bars)
	if err != nil {
		return bars, nil
	}
	if err := c.client.Set(ctx, key, string(data), c.ttl).Err(); err != nil {
		c.logger.Warn("history cache write failed", zap.String("key", key), zap.Error(err))
	}
	return bars, nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}
