package experiments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/selivandex/pricing-engine/pkg/models"
)

type exposureKey struct {
	testID     uuid.UUID
	identifier string
}

// memStore is an in-memory Store with the same counter semantics as the repository
type memStore struct {
	mu        sync.Mutex
	tests     map[uuid.UUID]*models.ABTest
	order     []uuid.UUID
	exposures map[exposureKey]*models.Exposure
	err       error // returned by every call when set
}

func newMemStore() *memStore {
	return &memStore{
		tests:     make(map[uuid.UUID]*models.ABTest),
		exposures: make(map[exposureKey]*models.Exposure),
	}
}

func (m *memStore) CreateTest(_ context.Context, test *models.ABTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *test
	cp.Variants = append([]models.ABTestVariant(nil), test.Variants...)
	m.tests[test.ID] = &cp
	m.order = append(m.order, test.ID)
	return nil
}

func (m *memStore) GetTest(_ context.Context, id uuid.UUID) (*models.ABTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(t), nil
}

func (m *memStore) RunningTests(context.Context) ([]models.ABTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ABTest
	for _, id := range m.order {
		if t := m.tests[id]; t.Status == models.TestRunning {
			out = append(out, *clone(t))
		}
	}
	return out, nil
}

func (m *memStore) ExpiredTests(_ context.Context, now time.Time) ([]models.ABTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ABTest
	for _, id := range m.order {
		t := m.tests[id]
		live := t.Status == models.TestRunning || t.Status == models.TestPaused
		if live && t.EndDate != nil && t.EndDate.Before(now) {
			out = append(out, *clone(t))
		}
	}
	return out, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id uuid.UUID, from []models.TestStatus, to models.TestStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	t, ok := m.tests[id]
	if !ok {
		return models.ErrNotFound
	}
	for _, s := range from {
		if t.Status == s {
			t.Status = to
			t.UpdatedAt = at
			if to == models.TestRunning && t.StartDate == nil {
				start := at
				t.StartDate = &start
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, t.Status, to)
}

func (m *memStore) RecordExposure(_ context.Context, exp *models.Exposure) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := exposureKey{exp.TestID, exp.Identifier}
	if _, ok := m.exposures[key]; ok {
		return false, nil
	}
	cp := *exp
	m.exposures[key] = &cp
	m.variant(exp.TestID, exp.VariantID).Impressions++
	return true, nil
}

func (m *memStore) RecordConversion(_ context.Context, conv Conversion) (ConversionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ConversionDuplicate, m.err
	}
	exp, ok := m.exposures[exposureKey{conv.TestID, conv.Identifier}]
	if !ok || exp.VariantID != conv.VariantID {
		return ConversionDuplicate, models.ErrNotFound
	}
	if exp.Converted {
		return ConversionDuplicate, nil
	}
	exp.Converted = true
	booking := conv.BookingID
	exp.BookingID = &booking
	exp.Revenue = conv.Revenue

	v := m.variant(conv.TestID, conv.VariantID)
	v.Conversions++
	v.TotalRevenue = v.TotalRevenue.Add(conv.Revenue)
	return ConversionApplied, nil
}

func (m *memStore) variant(testID, variantID uuid.UUID) *models.ABTestVariant {
	t := m.tests[testID]
	for i := range t.Variants {
		if t.Variants[i].ID == variantID {
			return &t.Variants[i]
		}
	}
	panic("unknown variant " + variantID.String())
}

func clone(t *models.ABTest) *models.ABTest {
	cp := *t
	cp.Variants = append([]models.ABTestVariant(nil), t.Variants...)
	return &cp
}

// runningTest builds a running test with a 50/50 control/treatment split
func runningTest(traffic int, started time.Time) *models.ABTest {
	id := uuid.New()
	return &models.ABTest{
		ID:                id,
		Name:              "fare-uplift",
		Status:            models.TestRunning,
		StartDate:         &started,
		TrafficPercentage: traffic,
		MinimumSampleSize: 100,
		ConfidenceLevel:   0.95,
		CreatedAt:         started,
		Variants: []models.ABTestVariant{
			{ID: uuid.New(), TestID: id, Name: "control", IsControl: true, Weight: 50, Position: 0,
				Strategy: models.MultiplierStrategy{Multiplier: 1}},
			{ID: uuid.New(), TestID: id, Name: "plus10", Weight: 50, Position: 1,
				Strategy: models.MultiplierStrategy{Multiplier: 1.1}},
		},
	}
}
