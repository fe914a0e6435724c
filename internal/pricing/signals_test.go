package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/selivandex/pricing-engine/pkg/models"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name string
		in   models.PricingComponents
		want float64
	}{
		{"neutral", models.PricingComponents{Demand: 1, Optimization: 1, Segment: 1, Experiment: 1}, 1},
		{"weighted", models.PricingComponents{Demand: 1.2, Optimization: 1.1, Segment: 1, Experiment: 0.9}, 0.42 + 0.33 + 0.2 + 0.135},
		{"upper bound", models.PricingComponents{Demand: 3, Optimization: 2.5, Segment: 2, Experiment: 2}, 2},
		{"lower bound", models.PricingComponents{Demand: 0.2, Optimization: 0.7, Segment: 0.5, Experiment: 0.5}, 0.75},
		{"nan", models.PricingComponents{Demand: math.NaN(), Optimization: 1, Segment: 1, Experiment: 1}, 1},
		{"inf", models.PricingComponents{Demand: math.Inf(1), Optimization: 1, Segment: 1, Experiment: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Combine(tt.in), 1e-9)
		})
	}
}

func TestDemandMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, DemandMultiplier(nil, 7))
	assert.Equal(t, 1.0, DemandMultiplier([]models.DemandPoint{{RecommendedMultiplier: 0}}, 7))

	t.Run("constant series", func(t *testing.T) {
		assert.InDelta(t, 1.3, DemandMultiplier(constantForecast(1.3, 0, 10), 7), 1e-9)
	})

	t.Run("short series", func(t *testing.T) {
		assert.InDelta(t, 0.9, DemandMultiplier(constantForecast(0.9, 0, 2), 7), 1e-9)
	})

	t.Run("rising series ends between first and last", func(t *testing.T) {
		points := []models.DemandPoint{
			{RecommendedMultiplier: 1.0},
			{RecommendedMultiplier: 1.0},
			{RecommendedMultiplier: 1.0},
			{RecommendedMultiplier: 1.4},
			{RecommendedMultiplier: 1.4},
		}
		got := DemandMultiplier(points, 3)
		assert.Greater(t, got, 1.0)
		assert.LessOrEqual(t, got, 1.4)
	})
}

func TestAverageDemand(t *testing.T) {
	assert.Equal(t, 0.0, AverageDemand(nil))
	points := []models.DemandPoint{{PredictedDemand: 100}, {PredictedDemand: 50}}
	assert.Equal(t, 75.0, AverageDemand(points))
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.3, Confidence(false, false, false, 0), 1e-9)
	assert.InDelta(t, 0.6, Confidence(true, false, false, 0), 1e-9)
	assert.InDelta(t, 0.8, Confidence(true, true, false, 0), 1e-9)
	assert.InDelta(t, 1.0, Confidence(true, true, true, 12), 1e-9)
	assert.InDelta(t, 0.4, Confidence(false, false, true, 0), 1e-9)
}

func TestWithDeadline(t *testing.T) {
	ctx := context.Background()

	v, ok := withDeadline(ctx, time.Second, 0, func(context.Context) (int, error) { return 7, nil })
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	v, ok = withDeadline(ctx, time.Second, -1, func(context.Context) (int, error) { return 7, errors.New("boom") })
	assert.False(t, ok)
	assert.Equal(t, -1, v)

	started := time.Now()
	v, ok = withDeadline(ctx, 20*time.Millisecond, -1, func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 7, nil
	})
	assert.False(t, ok)
	assert.Equal(t, -1, v)
	assert.Less(t, time.Since(started), 150*time.Millisecond)
}
