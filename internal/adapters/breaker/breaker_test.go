package breaker

import (
	"testing"
	"time"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	newBreaker := func() *CircuitBreaker {
		cb := New("demand", 3, time.Minute)
		cb.now = func() time.Time { return now }
		return cb
	}

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := newBreaker()
		cb.Record(false)
		cb.Record(false)
		if !cb.Allow() {
			t.Fatal("breaker should stay closed after 2 failures")
		}
		cb.Record(false)
		if cb.Allow() {
			t.Error("breaker should be open after 3 failures")
		}
		if st := cb.GetStatus(); !st.IsOpen || st.CooldownRemaining != time.Minute {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("success resets the count", func(t *testing.T) {
		cb := newBreaker()
		cb.Record(false)
		cb.Record(false)
		cb.Record(true)
		cb.Record(false)
		if !cb.Allow() {
			t.Error("breaker should be closed")
		}
	})

	t.Run("single trial call after cooldown", func(t *testing.T) {
		cb := newBreaker()
		for i := 0; i < 3; i++ {
			cb.Record(false)
		}

		now = now.Add(time.Minute)
		if !cb.Allow() {
			t.Fatal("trial call should be allowed after cooldown")
		}
		if cb.Allow() {
			t.Error("only one trial call may be in flight")
		}

		cb.Record(false)
		if cb.Allow() {
			t.Error("failed trial call should restart the cooldown")
		}

		now = now.Add(time.Minute)
		if !cb.Allow() {
			t.Fatal("second trial call should be allowed")
		}
		cb.Record(true)
		if !cb.Allow() || cb.GetStatus().IsOpen {
			t.Error("successful trial call should close the breaker")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		cb := New("segments", 0, time.Minute)
		for i := 0; i < 10; i++ {
			cb.Record(false)
		}
		if !cb.Allow() {
			t.Error("disabled breaker never opens")
		}

		var nilBreaker *CircuitBreaker
		if !nilBreaker.Allow() {
			t.Error("nil breaker allows every call")
		}
		nilBreaker.Record(false)
	})
}
