// Package optimizer turns elasticity and flight context into a bounded price
// suggestion and manages the suggested -> applied decision log.
package optimizer

import (
	"math"

	"github.com/selivandex/pricing-engine/internal/stats"
	"github.com/selivandex/pricing-engine/pkg/models"
)

const (
	maxAdjustment = 0.30

	minPriceRatio = 0.7
	maxPriceRatio = 2.5

	// price moves within this band of the current price are a hold
	holdBand = 0.02

	elasticDemand   = 1.5
	inelasticDemand = 0.8

	lastMinuteDays    = 3
	lastMinutePremium = 0.15
	earlyBirdDays     = 60
	earlyBirdDiscount = -0.05
	seasonalWeight    = 0.5
)

// Outcome is the result of one optimizer run
type Outcome struct {
	CurrentPrice             float64
	OptimizedPrice           float64
	Adjustment               float64 // after the ±30% bound
	RawAdjustment            float64 // before the bound
	Multiplier               float64
	Recommendation           models.Recommendation
	ExpectedRevenueChange    float64
	ExpectedLoadFactorChange float64
	Confidence               float64
}

// CalculateOptimalPrice suggests a price for currentPrice under goal.
// Unknown goals behave as GoalBalance.
func CalculateOptimalPrice(
	currentPrice float64,
	factors models.PricingFactors,
	goal models.OptimizationGoal,
	estimate models.PriceElasticityEstimate,
) Outcome {
	elasticity := models.ClampElasticity(estimate.Elasticity)

	raw := goalAdjustment(goal, factors, elasticity) + contextModifiers(factors)
	adjustment := stats.Clamp(raw, -maxAdjustment, maxAdjustment)

	optimized := math.Round(currentPrice * (1 + adjustment))
	optimized = stats.Clamp(optimized, currentPrice*minPriceRatio, currentPrice*maxPriceRatio)

	out := Outcome{
		CurrentPrice:   currentPrice,
		OptimizedPrice: optimized,
		Adjustment:     adjustment,
		RawAdjustment:  raw,
		Multiplier:     1,
		Recommendation: models.RecommendHold,
		Confidence:     estimate.Confidence,
	}

	if currentPrice <= 0 {
		return out
	}

	priceChange := (optimized - currentPrice) / currentPrice
	demandChange := elasticity * priceChange

	out.Multiplier = optimized / currentPrice
	out.Recommendation = recommend(priceChange)
	out.ExpectedRevenueChange = (1+priceChange)*(1+demandChange) - 1
	out.ExpectedLoadFactorChange = factors.OccupancyRate * demandChange

	return out
}

func goalAdjustment(goal models.OptimizationGoal, f models.PricingFactors, elasticity float64) float64 {
	abs := math.Abs(elasticity)

	switch goal {
	case models.GoalMaximizeRevenue:
		switch {
		case abs > elasticDemand:
			return -0.10
		case abs < inelasticDemand:
			return 0.15
		}
		return 0

	case models.GoalMaximizeLoadFactor:
		switch {
		case f.OccupancyRate < 0.5:
			return -0.20
		case f.OccupancyRate < 0.7:
			return -0.10
		case f.OccupancyRate > 0.9:
			return 0.10
		}
		return 0

	case models.GoalMaximizeYield:
		if f.OccupancyRate > 0.7 && f.DaysUntilDeparture < 14 {
			return 0.20
		}
		if f.DemandForecast > 0 {
			return 0.10
		}
		return 0

	default:
		return balanceAdjustment(f.OccupancyRate, abs)
	}
}

func balanceAdjustment(occupancy, absElasticity float64) float64 {
	var load float64
	switch {
	case occupancy < 0.3:
		load = -0.15
	case occupancy < 0.5:
		load = -0.08
	case occupancy > 0.85:
		load = 0.15
	}

	var revenue float64
	switch {
	case absElasticity > elasticDemand:
		revenue = -0.08
	case absElasticity < inelasticDemand:
		revenue = 0.10
	}

	loadWeight := 0.3
	if occupancy < 0.5 {
		loadWeight = 0.6
	}

	return load*loadWeight + revenue*(1-loadWeight)
}

func contextModifiers(f models.PricingFactors) float64 {
	var adj float64
	if f.DaysUntilDeparture < lastMinuteDays {
		adj += lastMinutePremium
	} else if f.DaysUntilDeparture > earlyBirdDays {
		adj += earlyBirdDiscount
	}

	seasonal := f.SeasonalFactor
	if seasonal == 0 {
		seasonal = 1
	}
	adj += (seasonal - 1) * seasonalWeight

	return adj
}

func recommend(priceChange float64) models.Recommendation {
	switch {
	case priceChange > holdBand:
		return models.RecommendIncrease
	case priceChange < -holdBand:
		return models.RecommendDecrease
	default:
		return models.RecommendHold
	}
}
