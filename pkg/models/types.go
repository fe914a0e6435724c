package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// CabinClass identifies a fare cabin on a flight
type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

// Valid reports whether the cabin is one of the known classes
func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

// ParseCabinClass validates a raw cabin string
func ParseCabinClass(raw string) (CabinClass, error) {
	c := CabinClass(raw)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown cabin class %q", ErrValidation, raw)
	}
	return c, nil
}

// RouteKey identifies an origin/destination/cabin market
type RouteKey struct {
	OriginID      int64      `json:"origin_id" db:"origin_id"`
	DestinationID int64      `json:"destination_id" db:"destination_id"`
	CabinClass    CabinClass `json:"cabin_class" db:"cabin_class"`
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%d-%d:%s", k.OriginID, k.DestinationID, k.CabinClass)
}
