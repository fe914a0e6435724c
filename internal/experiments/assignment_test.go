package experiments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selivandex/pricing-engine/internal/cache"
	"github.com/selivandex/pricing-engine/pkg/models"
)

func newTestAssigner(store Store, mem *cache.MemoryStore) *Assigner {
	ledger := NewLedger(store, nil, time.Second)
	return NewAssigner(store, ledger, cache.New(mem, time.Second), time.Hour, time.Second)
}

func TestBucket_Deterministic(t *testing.T) {
	test := runningTest(100, time.Now())
	id := models.UserIdentifier("42")

	first, ok := Bucket(id, test)
	require.True(t, ok)
	for i := 0; i < 20; i++ {
		again, ok := Bucket(id, test)
		require.True(t, ok)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestBucket_TrafficGate(t *testing.T) {
	t.Run("zero traffic excludes everyone", func(t *testing.T) {
		test := runningTest(0, time.Now())
		for i := 0; i < 200; i++ {
			_, ok := Bucket(models.SessionIdentifier(fmt.Sprint(i)), test)
			assert.False(t, ok)
		}
	})

	t.Run("full traffic includes everyone", func(t *testing.T) {
		test := runningTest(100, time.Now())
		for i := 0; i < 200; i++ {
			_, ok := Bucket(models.SessionIdentifier(fmt.Sprint(i)), test)
			assert.True(t, ok)
		}
	})

	t.Run("partial traffic matches hash gate", func(t *testing.T) {
		test := runningTest(30, time.Now())
		included := 0
		for i := 0; i < 2000; i++ {
			id := models.SessionIdentifier(fmt.Sprint(i))
			_, ok := Bucket(id, test)
			assert.Equal(t, trafficSlot(BucketHash(id, test.ID)) < 30, ok)
			if ok {
				included++
			}
		}
		assert.InDelta(t, 600, included, 150)
	})

	t.Run("no weight", func(t *testing.T) {
		test := runningTest(100, time.Now())
		test.Variants = nil
		_, ok := Bucket(models.UserIdentifier("1"), test)
		assert.False(t, ok)
	})
}

func TestBucket_RespectsWeights(t *testing.T) {
	test := runningTest(100, time.Now())
	test.Variants[0].Weight = 80
	test.Variants[1].Weight = 20

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		v, ok := Bucket(models.UserIdentifier(fmt.Sprint(i)), test)
		require.True(t, ok)
		counts[v.Name]++
	}
	assert.InDelta(t, 8000, counts["control"], 400)
	assert.InDelta(t, 2000, counts["plus10"], 400)
}

func TestBucket_PartialTrafficKeepsSplit(t *testing.T) {
	test := runningTest(50, time.Now())
	test.Variants[0].Weight = 50
	test.Variants[1].Weight = 50

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		if v, ok := Bucket(models.UserIdentifier(fmt.Sprint(i)), test); ok {
			counts[v.Name]++
		}
	}
	assert.InDelta(t, 2500, counts["control"], 300)
	assert.InDelta(t, 2500, counts["plus10"], 300)
}

func TestAssigner_AssignsAndRecordsExposure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	test := runningTest(100, time.Now().Add(-time.Hour))
	require.NoError(t, store.CreateTest(ctx, test))

	a := newTestAssigner(store, cache.NewMemoryStore())
	id := models.UserIdentifier("7")

	got := a.Assign(ctx, id, 1001, models.CabinEconomy)
	require.NotNil(t, got)
	assert.Equal(t, test.ID, got.TestID)

	expected, _ := Bucket(id, test)
	assert.Equal(t, expected.ID, got.VariantID)
	assert.Equal(t, expected.Strategy, got.Strategy)

	stored, err := store.GetTest(ctx, test.ID)
	require.NoError(t, err)
	var impressions int64
	for _, v := range stored.Variants {
		impressions += v.Impressions
	}
	assert.Equal(t, int64(1), impressions)
}

func totalImpressions(t *testing.T, store Store, id uuid.UUID) int64 {
	t.Helper()
	test, err := store.GetTest(context.Background(), id)
	require.NoError(t, err)
	var n int64
	for _, v := range test.Variants {
		n += v.Impressions
	}
	return n
}

func TestAssigner_StickyWhileCached(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	test := runningTest(100, time.Now().Add(-time.Hour))
	require.NoError(t, store.CreateTest(ctx, test))

	a := newTestAssigner(store, cache.NewMemoryStore())
	id := models.SessionIdentifier("abc")

	first := a.Assign(ctx, id, 1001, models.CabinEconomy)
	require.NotNil(t, first)

	second := a.Assign(ctx, id, 1001, models.CabinEconomy)
	require.NotNil(t, second)
	assert.Equal(t, first.VariantID, second.VariantID)
	assert.Equal(t, first.Strategy, second.Strategy)
	assert.Equal(t, int64(1), totalImpressions(t, store, test.ID), "cached assignment must not record another exposure")
}

func TestAssigner_CachedAssignmentRevalidated(t *testing.T) {
	ctx := context.Background()
	id := models.UserIdentifier("7")

	t.Run("other cabin", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, time.Now().Add(-time.Hour))
		test.CabinClasses = []string{string(models.CabinEconomy)}
		require.NoError(t, store.CreateTest(ctx, test))
		a := newTestAssigner(store, cache.NewMemoryStore())

		require.NotNil(t, a.Assign(ctx, id, 1001, models.CabinEconomy))
		assert.Nil(t, a.Assign(ctx, id, 1001, models.CabinBusiness))
		assert.NotNil(t, a.Assign(ctx, id, 1001, models.CabinEconomy), "economy stays assigned")
		assert.Equal(t, int64(1), totalImpressions(t, store, test.ID))
	})

	t.Run("test completed", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, time.Now().Add(-time.Hour))
		require.NoError(t, store.CreateTest(ctx, test))
		a := newTestAssigner(store, cache.NewMemoryStore())

		require.NotNil(t, a.Assign(ctx, id, 1001, models.CabinEconomy))
		require.NoError(t, store.TransitionStatus(ctx, test.ID, []models.TestStatus{models.TestRunning}, models.TestCompleted, time.Now()))

		assert.Nil(t, a.Assign(ctx, id, 1001, models.CabinEconomy))
	})

	t.Run("cached entry past end date", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, time.Now().Add(-time.Hour))
		end := time.Now().Add(time.Hour)
		test.EndDate = &end
		require.NoError(t, store.CreateTest(ctx, test))
		a := newTestAssigner(store, cache.NewMemoryStore())

		require.NotNil(t, a.Assign(ctx, id, 1001, models.CabinEconomy))

		a.nowFn = func() time.Time { return end.Add(time.Minute) }
		store.err = errors.New("connection refused")
		assert.Nil(t, a.Assign(ctx, id, 1001, models.CabinEconomy))
	})

	t.Run("store outage serves a still-valid cached entry", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, time.Now().Add(-time.Hour))
		require.NoError(t, store.CreateTest(ctx, test))
		a := newTestAssigner(store, cache.NewMemoryStore())

		first := a.Assign(ctx, id, 1001, models.CabinEconomy)
		require.NotNil(t, first)

		store.err = errors.New("connection refused")
		again := a.Assign(ctx, id, 1001, models.CabinEconomy)
		require.NotNil(t, again)
		assert.Equal(t, first.VariantID, again.VariantID)
	})
}

func TestAssigner_NoMatchingTest(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("cabin filter", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, now.Add(-time.Hour))
		test.CabinClasses = []string{string(models.CabinBusiness)}
		require.NoError(t, store.CreateTest(ctx, test))

		a := newTestAssigner(store, cache.NewMemoryStore())
		assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
		assert.NotNil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinBusiness))
	})

	t.Run("not started", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.CreateTest(ctx, runningTest(100, now.Add(time.Hour))))

		a := newTestAssigner(store, cache.NewMemoryStore())
		assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
	})

	t.Run("ended", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, now.Add(-48*time.Hour))
		ended := now.Add(-time.Hour)
		test.EndDate = &ended
		require.NoError(t, store.CreateTest(ctx, test))

		a := newTestAssigner(store, cache.NewMemoryStore())
		assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
	})

	t.Run("paused", func(t *testing.T) {
		store := newMemStore()
		test := runningTest(100, now.Add(-time.Hour))
		test.Status = models.TestPaused
		require.NoError(t, store.CreateTest(ctx, test))

		a := newTestAssigner(store, cache.NewMemoryStore())
		assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
	})
}

func TestAssigner_FirstMatchWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	older := runningTest(100, time.Now().Add(-2*time.Hour))
	newer := runningTest(100, time.Now().Add(-time.Hour))
	require.NoError(t, store.CreateTest(ctx, older))
	require.NoError(t, store.CreateTest(ctx, newer))

	a := newTestAssigner(store, cache.NewMemoryStore())
	got := a.Assign(ctx, models.UserIdentifier("9"), 1, models.CabinFirst)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.TestID)
}

func TestAssigner_StoreFailureCachesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.CreateTest(ctx, runningTest(100, time.Now().Add(-time.Hour))))
	store.err = errors.New("connection refused")

	mem := cache.NewMemoryStore()
	a := newTestAssigner(store, mem)

	assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
	assert.Equal(t, 0, mem.Len())
}

func TestAssigner_ExposureFailureCachesNothing(t *testing.T) {
	ctx := context.Background()
	store := &failingExposureStore{memStore: newMemStore()}
	require.NoError(t, store.CreateTest(ctx, runningTest(100, time.Now().Add(-time.Hour))))

	mem := cache.NewMemoryStore()
	a := newTestAssigner(store, mem)

	assert.Nil(t, a.Assign(ctx, models.UserIdentifier("1"), 1, models.CabinEconomy))
	assert.Equal(t, 0, mem.Len())
}

type failingExposureStore struct {
	*memStore
}

func (f *failingExposureStore) RecordExposure(context.Context, *models.Exposure) (bool, error) {
	return false, errors.New("deadlock detected")
}

func TestBucketHash_DependsOnTest(t *testing.T) {
	id := models.UserIdentifier("same")
	assert.NotEqual(t, BucketHash(id, uuid.New()), BucketHash(id, uuid.New()))
	assert.NotEqual(t, BucketHash(models.UserIdentifier("1"), uuid.Nil), BucketHash(models.SessionIdentifier("1"), uuid.Nil))
}
