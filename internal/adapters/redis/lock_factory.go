package redis

import (
	"context"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
)

// RedisLockFactory creates Redis-based distributed locks
type RedisLockFactory struct {
	lockManager *redlock.RedLock
}

// NewRedisLockFactory creates new Redis lock factory
func NewRedisLockFactory(lockManager *redlock.RedLock) *RedisLockFactory {
	return &RedisLockFactory{lockManager: lockManager}
}

// NewLock creates a distributed lock for name
func (f *RedisLockFactory) NewLock(name string, ttl time.Duration) Lock {
	return NewDistributedLock(f.lockManager, name, ttl)
}

// LocalLockFactory creates in-process locks for single-instance runs and tests
type LocalLockFactory struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLockFactory creates an in-process lock factory
func NewLocalLockFactory() *LocalLockFactory {
	return &LocalLockFactory{held: make(map[string]time.Time), now: time.Now}
}

// NewLock creates an in-process lock for name
func (f *LocalLockFactory) NewLock(name string, ttl time.Duration) Lock {
	return &localLock{factory: f, name: name, ttl: ttl}
}

type localLock struct {
	factory *LocalLockFactory
	name    string
	ttl     time.Duration
	locked  bool
}

func (l *localLock) TryAcquire(context.Context) (bool, error) {
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if until, ok := f.held[l.name]; ok && now.Before(until) {
		return false, nil
	}
	f.held[l.name] = now.Add(l.ttl)
	l.locked = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	if !l.locked {
		return nil
	}
	f := l.factory
	f.mu.Lock()
	delete(f.held, l.name)
	f.mu.Unlock()
	l.locked = false
	return nil
}

func (l *localLock) Name() string {
	return l.name
}
