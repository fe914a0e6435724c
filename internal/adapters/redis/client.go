package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/internal/adapters/config"
	"github.com/selivandex/pricing-engine/internal/cache"
	"github.com/selivandex/pricing-engine/pkg/logger"
)

const scanBatch = 200

// Client wraps the RedLock manager for apply locks and a standard Redis
// client that backs the results cache.
type Client struct {
	lockManager *redlock.RedLock
	cache       *redis.Client
}

var _ cache.Store = (*Client)(nil)

// New creates new Redis client with RedLock support + caching
func New(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	redisAddrs := []string{"tcp://" + cfg.Addr()}
	lockManager, err := redlock.NewRedLock(connectCtx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     20,
	})

	if err := cacheClient.Ping(connectCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
	}

	logger.Info("redis client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{lockManager: lockManager, cache: cacheClient}, nil
}

// LockFactory returns a factory for apply locks backed by RedLock
func (c *Client) LockFactory() LockFactory {
	return NewRedisLockFactory(c.lockManager)
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}
	return nil
}

// Health checks redis health
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get returns the value at key or cache.ErrMiss
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	return b, err
}

// Set stores value with TTL
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.cache.Set(ctx, key, value, ttl).Err()
}

// Delete removes keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.cache.Del(ctx, keys...).Err()
}

// DeletePrefix walks the keyspace with SCAN and deletes every key under prefix
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.cache.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan %s*: %w", prefix, err)
		}

		if len(keys) > 0 {
			n, err := c.cache.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete keys: %w", err)
			}
			removed += int(n)
		}

		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
