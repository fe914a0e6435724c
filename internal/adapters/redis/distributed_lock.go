package redis

import (
	"context"
	"errors"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

const lockKeyPrefix = "pricing:lock:"

var lockAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_lock_attempts_total",
		Help: "Distributed lock acquisitions by outcome",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(lockAttempts)
}

// DistributedLock is a RedLock lease on pricing:lock:<name>. It is not
// renewed, so work under it must finish within ttl.
type DistributedLock struct {
	lockManager *redlock.RedLock
	name        string
	ttl         time.Duration
	acquiredAt  time.Time
	validFor    time.Duration
}

// NewDistributedLock creates a lock for name; nothing is taken until TryAcquire
func NewDistributedLock(lockManager *redlock.RedLock, name string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		lockManager: lockManager,
		name:        name,
		ttl:         ttl,
	}
}

func (dl *DistributedLock) key() string {
	return lockKeyPrefix + dl.name
}

// TryAcquire makes one RedLock attempt. Contention is (false, nil);
// a cancelled ctx is returned as an error.
func (dl *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	validity, err := dl.lockManager.Lock(ctx, dl.key(), dl.ttl)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lockAttempts.WithLabelValues("error").Inc()
			return false, ctxErr
		}
		lockAttempts.WithLabelValues("contended").Inc()
		logger.Debug("lock held elsewhere", zap.String("lock", dl.name), zap.Error(err))
		return false, nil
	}
	if validity <= 0 {
		lockAttempts.WithLabelValues("error").Inc()
		return false, errors.New("redlock returned no validity for " + dl.name)
	}

	dl.acquiredAt = time.Now()
	dl.validFor = validity
	lockAttempts.WithLabelValues("acquired").Inc()
	return true, nil
}

// Release drops the lease. An expired lease only logs.
func (dl *DistributedLock) Release(ctx context.Context) error {
	if dl.acquiredAt.IsZero() {
		return nil
	}

	held := time.Since(dl.acquiredAt)
	if held > dl.validFor {
		logger.Warn("lock held past its validity",
			zap.String("lock", dl.name),
			zap.Duration("held", held),
			zap.Duration("validity", dl.validFor),
		)
	}

	if err := dl.lockManager.UnLock(ctx, dl.key()); err != nil {
		logger.Warn("failed to release lock", zap.String("lock", dl.name), zap.Error(err))
	}

	dl.acquiredAt = time.Time{}
	return nil
}

// Name returns the lock name without the key prefix
func (dl *DistributedLock) Name() string {
	return dl.name
}
