package models

import "github.com/shopspring/decimal"

// ToFloat64 converts decimal to float64, dropping the exactness flag
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// NonNegative floors a money amount at zero
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// RoundPrice rounds a float price to whole currency units
func RoundPrice(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Round(0)
}
