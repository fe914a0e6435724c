package demand

import (
	"context"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Provider forecasts demand for a flight cabin
type Provider interface {
	// Forecast returns one point per day for the next horizonDays days
	Forecast(ctx context.Context, flightID int64, cabin models.CabinClass, horizonDays int) ([]models.DemandPoint, error)

	// GetName returns provider name
	GetName() string
}
