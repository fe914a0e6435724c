package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// StrategyKind tags a variant pricing strategy
type StrategyKind string

const (
	StrategyMultiplier      StrategyKind = "multiplier"
	StrategyFixedAdjustment StrategyKind = "fixed_adjustment"
	StrategyDynamicRule     StrategyKind = "dynamic_rule"
)

// PricingStrategy is the closed set of variant price treatments.
// Implementations live in this package only.
type PricingStrategy interface {
	Kind() StrategyKind
	pricingStrategy()
}

// MultiplierStrategy scales the base price
type MultiplierStrategy struct {
	Multiplier float64
}

// FixedAdjustmentStrategy adds a signed amount to the base price
type FixedAdjustmentStrategy struct {
	Adjustment decimal.Decimal
}

// DynamicRuleStrategy names a rule evaluated elsewhere. Prices are left unchanged.
type DynamicRuleStrategy struct {
	Rule string
}

func (MultiplierStrategy) Kind() StrategyKind      { return StrategyMultiplier }
func (FixedAdjustmentStrategy) Kind() StrategyKind { return StrategyFixedAdjustment }
func (DynamicRuleStrategy) Kind() StrategyKind     { return StrategyDynamicRule }

func (MultiplierStrategy) pricingStrategy()      {}
func (FixedAdjustmentStrategy) pricingStrategy() {}
func (DynamicRuleStrategy) pricingStrategy()     {}

// StrategySpec is the wire and storage form of a PricingStrategy
type StrategySpec struct {
	Type            StrategyKind     `json:"type" validate:"required,oneof=multiplier fixed_adjustment dynamic_rule"`
	Multiplier      *float64         `json:"multiplier,omitempty"`
	FixedAdjustment *decimal.Decimal `json:"fixed_adjustment,omitempty"`
	Rule            string           `json:"rule,omitempty"`
}

// Strategy decodes the spec into its sum type member
func (s StrategySpec) Strategy() (PricingStrategy, error) {
	switch s.Type {
	case StrategyMultiplier:
		if s.Multiplier == nil || *s.Multiplier <= 0 {
			return nil, fmt.Errorf("%w: multiplier strategy requires a positive multiplier", ErrValidation)
		}
		return MultiplierStrategy{Multiplier: *s.Multiplier}, nil
	case StrategyFixedAdjustment:
		if s.FixedAdjustment == nil {
			return nil, fmt.Errorf("%w: fixed_adjustment strategy requires an adjustment", ErrValidation)
		}
		return FixedAdjustmentStrategy{Adjustment: *s.FixedAdjustment}, nil
	case StrategyDynamicRule:
		return DynamicRuleStrategy{Rule: s.Rule}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy type %q", ErrValidation, s.Type)
	}
}

// SpecOf encodes a strategy. A nil strategy encodes as an empty spec.
func SpecOf(strategy PricingStrategy) StrategySpec {
	switch s := strategy.(type) {
	case MultiplierStrategy:
		m := s.Multiplier
		return StrategySpec{Type: StrategyMultiplier, Multiplier: &m}
	case FixedAdjustmentStrategy:
		adj := s.Adjustment
		return StrategySpec{Type: StrategyFixedAdjustment, FixedAdjustment: &adj}
	case DynamicRuleStrategy:
		return StrategySpec{Type: StrategyDynamicRule, Rule: s.Rule}
	default:
		return StrategySpec{}
	}
}

// Value stores the spec as JSONB
func (s StrategySpec) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the spec from JSONB
func (s *StrategySpec) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported strategy type %T", src)
	}
}
