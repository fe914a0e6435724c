package redis

import (
	"context"
	"time"
)

// Lock is an exclusive named lock.
// This allows swapping implementations (RedLock, in-process).
type Lock interface {
	// TryAcquire returns false without error when another holder has the lock
	TryAcquire(ctx context.Context) (bool, error)

	// Release releases the lock
	Release(ctx context.Context) error

	// Name returns the lock resource name
	Name() string
}

// LockFactory creates named locks
type LockFactory interface {
	NewLock(name string, ttl time.Duration) Lock
}
