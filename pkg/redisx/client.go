// Package redisx wraps go-redis for dexsurveil's persistence layer:
// watchlist, zone-state, and alert-history storage, plus the chat-sink
// publish bridge. Adapted from pkg/redis/client.go's connection-handling
// and JSON Set/Get helpers; generalized from a pub/sub event bus to a
// general state-store backing by exposing the raw *redis.Client for
// pipeline/sorted-set/hash operations the wrapper doesn't cover.
package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis connection settings.
type Config struct {
	URL        string
	PoolSize   int
	MaxRetries int
}

// Client wraps a *redis.Client with dexsurveil's JSON helpers and logging.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient parses a redis:// or rediss:// URL and verifies connectivity.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisx: parsing url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisx: connecting to %s: %w", redactURL(cfg.URL), err)
	}

	logger.Info("redisx: connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &Client{rdb: rdb, logger: logger}, nil
}

// Raw exposes the underlying *redis.Client for operations (pipelines,
// sorted sets, hashes) this wrapper doesn't cover.
func (c *Client) Raw() *redis.Client { return c.rdb }

// Set JSON-encodes value and stores it under key with an optional TTL
// (zero means no expiration).
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisx: marshaling value for %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redisx: set %s: %w", key, err)
	}
	return nil
}

// Get decodes the JSON value stored under key into dest. Returns
// redis.Nil (unwrapped, check with errors.Is) when the key is absent.
func (c *Client) Get(ctx context.Context, key string, dest any) error {
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("redisx: unmarshaling value for %s: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisx: health check: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("redisx: close failed", zap.Error(err))
		return err
	}
	return nil
}

func redactURL(url string) string {
	if i := strings.Index(url, "@"); i != -1 {
		if j := strings.Index(url, "://"); j != -1 && j+3 < i {
			return url[:j+3] + "***" + url[i:]
		}
	}
	return url
}
