package experiments

import (
	"github.com/shopspring/decimal"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// ApplyVariantPricing prices basePrice under a variant strategy. The result is never negative.
func ApplyVariantPricing(basePrice decimal.Decimal, strategy models.PricingStrategy) decimal.Decimal {
	switch s := strategy.(type) {
	case models.MultiplierStrategy:
		return models.NonNegative(basePrice.Mul(decimal.NewFromFloat(s.Multiplier)))
	case models.FixedAdjustmentStrategy:
		return models.NonNegative(basePrice.Add(s.Adjustment))
	case models.DynamicRuleStrategy:
		// rules are not evaluated yet
		return models.NonNegative(basePrice)
	case nil:
		return models.NonNegative(basePrice)
	default:
		panic("experiments: unhandled pricing strategy " + string(strategy.Kind()))
	}
}

// StrategyMultiplier expresses a strategy as a multiplier of basePrice
func StrategyMultiplier(basePrice decimal.Decimal, strategy models.PricingStrategy) float64 {
	if !basePrice.IsPositive() {
		return 1
	}
	return models.ToFloat64(ApplyVariantPricing(basePrice, strategy).Div(basePrice))
}
