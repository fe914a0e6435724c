package pricing

import (
	"context"
	"math"
	"time"

	"github.com/cinar/indicator"

	"github.com/selivandex/pricing-engine/internal/stats"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// Signal weights of the combined multiplier. They sum to 1.
const (
	demandWeight       = 0.35
	optimizationWeight = 0.30
	segmentWeight      = 0.20
	experimentWeight   = 0.15

	minMultiplier = 0.75
	maxMultiplier = 2.0
)

// withDeadline runs fn under timeout and returns fallback when it fails or
// does not finish in time, even if fn ignores its context.
func withDeadline[T any](ctx context.Context, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) (T, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return fallback, false
		}
		return r.v, true
	case <-ctx.Done():
		return fallback, false
	}
}

// DemandMultiplier smooths the forecast's recommended multipliers with an EMA
// and returns the latest value, or 1 without a forecast.
func DemandMultiplier(points []models.DemandPoint, period int) float64 {
	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.RecommendedMultiplier > 0 && !math.IsInf(p.RecommendedMultiplier, 0) {
			values = append(values, p.RecommendedMultiplier)
		}
	}
	if len(values) == 0 {
		return 1
	}

	if period < 1 {
		period = 1
	}
	if period > len(values) {
		period = len(values)
	}

	ema := indicator.Ema(period, values)
	if len(ema) == 0 {
		return 1
	}
	return ema[len(ema)-1]
}

// AverageDemand returns the mean predicted demand across the forecast horizon
func AverageDemand(points []models.DemandPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.PredictedDemand
	}
	return sum / float64(len(points))
}

// Combine weights the component multipliers and bounds the result
func Combine(c models.PricingComponents) float64 {
	m := demandWeight*c.Demand +
		optimizationWeight*c.Optimization +
		segmentWeight*c.Segment +
		experimentWeight*c.Experiment

	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 1
	}
	return stats.Clamp(m, minMultiplier, maxMultiplier)
}

// Confidence scores how many signals backed a result
func Confidence(hasDemand, hasSegment, hasExperiment bool, demandForecast float64) float64 {
	c := 0.3
	if hasDemand {
		c += 0.3
	}
	if hasSegment {
		c += 0.2
	}
	if hasExperiment {
		c += 0.1
	}
	if demandForecast != 0 {
		c += 0.1
	}
	return math.Min(c, 1)
}
