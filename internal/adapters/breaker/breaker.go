// Package breaker stops calling a failing dependency for a cooldown period.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

// CircuitBreaker opens after maxFailures consecutive failures and lets one
// trial call through once cooldown has passed.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	maxFailures int
	cooldown    time.Duration
	failures    int
	isOpen      bool
	openedAt    time.Time
	probing     bool
	now         func() time.Time
	log         *zap.Logger
}

// New creates new circuit breaker. maxFailures < 1 disables it.
func New(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		log:         logger.Named("breaker").With(zap.String("dependency", name)),
	}
}

// Allow reports whether a call may go through
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil || cb.maxFailures < 1 {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.probing || cb.now().Sub(cb.openedAt) < cb.cooldown {
		return false
	}
	cb.probing = true
	return true
}

// Record updates the breaker with the outcome of an allowed call
func (cb *CircuitBreaker) Record(success bool) {
	if cb == nil || cb.maxFailures < 1 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if success {
		if cb.isOpen {
			cb.log.Info("circuit breaker closed")
		}
		cb.isOpen = false
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.isOpen {
		cb.openedAt = cb.now()
		return
	}
	if cb.failures >= cb.maxFailures {
		cb.isOpen = true
		cb.openedAt = cb.now()
		cb.log.Warn("circuit breaker opened",
			zap.Int("consecutive_failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown),
		)
	}
}

// Status is a point-in-time view of the breaker
type Status struct {
	IsOpen              bool          `json:"is_open"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining,omitempty"`
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := Status{
		IsOpen:              cb.isOpen,
		ConsecutiveFailures: cb.failures,
	}
	if cb.isOpen {
		status.OpenedAt = cb.openedAt
		if remaining := cb.cooldown - cb.now().Sub(cb.openedAt); remaining > 0 {
			status.CooldownRemaining = remaining
		}
	}
	return status
}
