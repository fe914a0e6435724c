package experiments

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/internal/cache"
	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// BucketHash is the stable 64-bit hash of identifier + testID used for bucketing
func BucketHash(identifier models.Identifier, testID uuid.UUID) uint64 {
	return xxhash.Sum64String(identifier.String() + testID.String())
}

// trafficSlot and weightSlot split one hash into independent halves so the
// traffic gate does not bias the variant split.
func trafficSlot(h uint64) uint64 { return (h >> 32) % 100 }

func weightSlot(h uint64, total int) uint64 { return (h & 0xffffffff) % uint64(total) }

// Bucket places identifier in test. ok is false when the identifier falls
// outside the traffic allocation or the test has no weight to split.
//
// The gate reads (h>>32)%100 and the bucket reads (h&0xffffffff)%totalWeight.
// Any other service bucketing the same tests must split the hash the same
// way to land identifiers in the same variants.
func Bucket(identifier models.Identifier, test *models.ABTest) (variant *models.ABTestVariant, ok bool) {
	h := BucketHash(identifier, test.ID)

	if trafficSlot(h) >= uint64(test.TrafficPercentage) {
		return nil, false
	}

	total := test.TotalWeight()
	if total <= 0 {
		return nil, false
	}

	bucket := weightSlot(h, total)
	var cumulative uint64
	for i := range test.Variants {
		cumulative += uint64(test.Variants[i].Weight)
		if bucket < cumulative {
			return &test.Variants[i], true
		}
	}
	return nil, false
}

// Assigner puts identifiers into running experiments and keeps the
// assignment sticky for the cache TTL.
type Assigner struct {
	store        Store
	ledger       *Ledger
	cache        *cache.Cache
	ttl          time.Duration
	storeTimeout time.Duration
	nowFn        func() time.Time
}

// NewAssigner creates a variant assigner
func NewAssigner(store Store, ledger *Ledger, c *cache.Cache, ttl, storeTimeout time.Duration) *Assigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Assigner{
		store:        store,
		ledger:       ledger,
		cache:        c,
		ttl:          ttl,
		storeTimeout: storeTimeout,
		nowFn:        time.Now,
	}
}

// Assign returns the identifier's variant in the first matching running
// test, or nil. Store failures yield nil rather than an error.
//
// A cached assignment stays sticky only while its test is still running,
// inside its window and admits cabin. Otherwise it is ignored and selection
// runs as if nothing was cached.
func (a *Assigner) Assign(ctx context.Context, identifier models.Identifier, flightID int64, cabin models.CabinClass) *models.VariantAssignment {
	key := cache.AssignmentKey(identifier)
	now := a.nowFn()

	var cached models.VariantAssignment
	hit := a.cache.GetJSON(ctx, key, &cached) && cached.Admits(cabin, now)

	tests, err := a.runningTests(ctx)
	if err != nil {
		if hit {
			assignmentsTotal.WithLabelValues("cached").Inc()
			return &cached
		}
		assignmentsTotal.WithLabelValues("error").Inc()
		logger.Warn("experiment lookup failed, no assignment",
			zap.String("identifier", identifier.String()),
			zap.Error(err),
		)
		return nil
	}

	if hit {
		if t := findTest(tests, cached.TestID); t != nil && t.IsActiveAt(now) && t.MatchesCabin(cabin) {
			assignmentsTotal.WithLabelValues("cached").Inc()
			return &cached
		}
		assignmentsTotal.WithLabelValues("stale").Inc()
	}

	test := firstMatching(tests, cabin, now)
	if test == nil {
		assignmentsTotal.WithLabelValues("no_test").Inc()
		return nil
	}

	variant, ok := Bucket(identifier, test)
	if !ok {
		assignmentsTotal.WithLabelValues("excluded").Inc()
		return nil
	}

	created, err := a.ledger.RecordExposure(ctx, &models.Exposure{
		TestID:     test.ID,
		VariantID:  variant.ID,
		Identifier: identifier.String(),
		FlightID:   flightID,
		ExposedAt:  now,
	})
	if err != nil {
		assignmentsTotal.WithLabelValues("error").Inc()
		logger.Warn("exposure not recorded, no assignment",
			zap.String("test_id", test.ID.String()),
			zap.String("identifier", identifier.String()),
			zap.Error(err),
		)
		return nil
	}
	if created {
		exposuresTotal.WithLabelValues(test.ID.String(), variant.Name).Inc()
	}

	assignment := &models.VariantAssignment{
		TestID:       test.ID,
		VariantID:    variant.ID,
		VariantName:  variant.Name,
		Strategy:     variant.Strategy,
		AssignedAt:   now,
		CabinClasses: append([]string(nil), test.CabinClasses...),
		EndDate:      test.EndDate,
	}
	a.cache.SetJSON(ctx, key, assignment, a.ttl)
	assignmentsTotal.WithLabelValues("assigned").Inc()

	return assignment
}

func (a *Assigner) runningTests(ctx context.Context) ([]models.ABTest, error) {
	ctx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	return a.store.RunningTests(ctx)
}

func findTest(tests []models.ABTest, id uuid.UUID) *models.ABTest {
	for i := range tests {
		if tests[i].ID == id {
			return &tests[i]
		}
	}
	return nil
}

func firstMatching(tests []models.ABTest, cabin models.CabinClass, now time.Time) *models.ABTest {
	for i := range tests {
		if tests[i].IsActiveAt(now) && tests[i].MatchesCabin(cabin) {
			return &tests[i]
		}
	}
	return nil
}
