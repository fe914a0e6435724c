// Package cache memoizes pricing results and sticky experiment assignments.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// ErrMiss is returned by a Store when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store with TTL support
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix and returns the count removed
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

const defaultOpTimeout = 500 * time.Millisecond

// Cache wraps a Store with JSON encoding and per-call timeouts.
// Read and write failures are logged and treated as misses.
type Cache struct {
	store     Store
	opTimeout time.Duration
}

// New creates a results cache over store
func New(store Store, opTimeout time.Duration) *Cache {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Cache{store: store, opTimeout: opTimeout}
}

// GetJSON decodes the value at key into dst and reports whether it was found
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		cacheRequests.WithLabelValues("miss").Inc()
		return false
	}
	if err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		cacheRequests.WithLabelValues("error").Inc()
		logger.Warn("cache entry undecodable, dropping", zap.String("key", key), zap.Error(err))
		_ = c.store.Delete(ctx, key)
		return false
	}

	cacheRequests.WithLabelValues("hit").Inc()
	return true
}

// SetJSON encodes v and stores it at key for ttl
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn("cache entry not encodable", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}

// InvalidateFlight drops every cached pricing result for flightID
func (c *Cache) InvalidateFlight(ctx context.Context, flightID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout*4)
	defer cancel()

	n, err := c.store.DeletePrefix(ctx, FlightPrefix(flightID))
	if err != nil {
		return n, fmt.Errorf("failed to invalidate flight %d: %w", flightID, err)
	}

	logger.Debug("flight pricing cache invalidated",
		zap.Int64("flight_id", flightID),
		zap.Int("keys", n),
	)
	return n, nil
}

// PricingKey is the key of one orchestrator result
func PricingKey(flightID int64, cabin models.CabinClass, identifier models.Identifier) string {
	return fmt.Sprintf("%s%s:%s", FlightPrefix(flightID), cabin, identifier)
}

// FlightPrefix is shared by every pricing key of a flight
func FlightPrefix(flightID int64) string {
	return fmt.Sprintf("pricing:%d:", flightID)
}

// AssignmentKey is the sticky experiment assignment key of an identifier
func AssignmentKey(identifier models.Identifier) string {
	return "exp:assign:" + identifier.String()
}
