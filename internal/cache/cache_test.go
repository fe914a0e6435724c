package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selivandex/pricing-engine/pkg/models"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenStore) Delete(context.Context, ...string) error { return errors.New("down") }
func (brokenStore) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("down")
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), 0)

	type payload struct {
		Multiplier float64 `json:"multiplier"`
	}

	var got payload
	assert.False(t, c.GetJSON(ctx, "k", &got))

	c.SetJSON(ctx, "k", payload{Multiplier: 1.25}, time.Minute)
	require.True(t, c.GetJSON(ctx, "k", &got))
	assert.Equal(t, 1.25, got.Multiplier)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "a")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	now = now.Add(24 * time.Hour)
	v, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestCache_InvalidateFlight(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := New(store, 0)

	c.SetJSON(ctx, PricingKey(7, models.CabinEconomy, models.UserIdentifier("1")), 1, time.Minute)
	c.SetJSON(ctx, PricingKey(7, models.CabinBusiness, models.SessionIdentifier("s")), 1, time.Minute)
	c.SetJSON(ctx, PricingKey(70, models.CabinEconomy, models.UserIdentifier("1")), 1, time.Minute)
	c.SetJSON(ctx, AssignmentKey(models.UserIdentifier("1")), 1, time.Minute)

	n, err := c.InvalidateFlight(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Len(), "flight 70 and the assignment must survive")
}

func TestCache_FailuresDegradeToMiss(t *testing.T) {
	ctx := context.Background()
	c := New(brokenStore{}, 0)

	var v int
	assert.False(t, c.GetJSON(ctx, "k", &v))
	c.SetJSON(ctx, "k", 1, time.Minute)

	_, err := c.InvalidateFlight(ctx, 1)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "pricing:42:business:user:9", PricingKey(42, models.CabinBusiness, models.UserIdentifier("9")))
	assert.Equal(t, "exp:assign:session:abc", AssignmentKey(models.SessionIdentifier("abc")))
}
