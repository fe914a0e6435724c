package experiments

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selivandex/pricing-engine/pkg/models"
)

func reportTest(control, treatment models.ABTestVariant) *models.ABTest {
	control.IsControl = true
	control.ID = uuid.New()
	treatment.ID = uuid.New()
	return &models.ABTest{
		ID:                uuid.New(),
		Name:              "report",
		Status:            models.TestRunning,
		MinimumSampleSize: 1000,
		ConfidenceLevel:   0.95,
		Variants:          []models.ABTestVariant{control, treatment},
	}
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("lift without significance has no winner", func(t *testing.T) {
		test := reportTest(
			models.ABTestVariant{Name: "control", Impressions: 1000, Conversions: 50, TotalRevenue: decimal.NewFromInt(25000)},
			models.ABTestVariant{Name: "treatment", Impressions: 1000, Conversions: 70, TotalRevenue: decimal.NewFromInt(38500)},
		)

		r := BuildReport(test, now)
		require.Len(t, r.Variants, 2)

		c, tr := r.Variants[0], r.Variants[1]
		assert.InDelta(t, 0.05, c.ConversionRate, 1e-9)
		assert.InDelta(t, 0.07, tr.ConversionRate, 1e-9)
		assert.InDelta(t, 0.4, tr.RelativeLift, 1e-9)
		assert.False(t, tr.IsSignificant)
		assert.Greater(t, tr.PValue, 0.05)
		assert.InDelta(t, 25.0, c.RevenuePerImpression, 1e-9)
		assert.InDelta(t, 38.5, tr.RevenuePerImpression, 1e-9)
		assert.True(t, r.HasSufficientData)
		assert.Nil(t, r.Winner)
		assert.Equal(t, now, r.GeneratedAt)
	})

	t.Run("significant treatment with better revenue wins", func(t *testing.T) {
		test := reportTest(
			models.ABTestVariant{Name: "control", Impressions: 2000, Conversions: 100, TotalRevenue: decimal.NewFromInt(50000)},
			models.ABTestVariant{Name: "treatment", Impressions: 2000, Conversions: 200, TotalRevenue: decimal.NewFromInt(110000)},
		)

		r := BuildReport(test, now)
		require.NotNil(t, r.Winner)
		assert.Equal(t, "treatment", r.Winner.Name)
		assert.True(t, r.Variants[1].IsSignificant)
		assert.Greater(t, r.Variants[1].Power, 0.9)
	})

	t.Run("significant but less revenue keeps control", func(t *testing.T) {
		test := reportTest(
			models.ABTestVariant{Name: "control", Impressions: 2000, Conversions: 100, TotalRevenue: decimal.NewFromInt(200000)},
			models.ABTestVariant{Name: "discount", Impressions: 2000, Conversions: 200, TotalRevenue: decimal.NewFromInt(100000)},
		)

		r := BuildReport(test, now)
		require.NotNil(t, r.Winner)
		assert.Equal(t, "control", r.Winner.Name)
	})

	t.Run("insufficient data", func(t *testing.T) {
		test := reportTest(
			models.ABTestVariant{Name: "control", Impressions: 1000},
			models.ABTestVariant{Name: "treatment", Impressions: 999},
		)

		r := BuildReport(test, now)
		assert.False(t, r.HasSufficientData)
	})

	t.Run("empty counters are degenerate not errors", func(t *testing.T) {
		test := reportTest(models.ABTestVariant{Name: "control"}, models.ABTestVariant{Name: "treatment"})

		r := BuildReport(test, now)
		tr := r.Variants[1]
		assert.Equal(t, 1.0, tr.PValue)
		assert.Zero(t, tr.RelativeLift)
		assert.Zero(t, tr.RevenuePerImpression)
		assert.Nil(t, r.Winner)
	})
}
