package experiments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// ConversionResult is how the store applied a conversion
type ConversionResult int

const (
	ConversionApplied   ConversionResult = iota // counters incremented
	ConversionDuplicate                         // exposure already converted
)

// Store persists tests, variants and the exposure ledger.
// Counter updates are relative increments executed by the store.
type Store interface {
	CreateTest(ctx context.Context, test *models.ABTest) error
	// GetTest returns the test with variants in declaration order, or models.ErrNotFound
	GetTest(ctx context.Context, id uuid.UUID) (*models.ABTest, error)
	// RunningTests returns running tests with variants, oldest first
	RunningTests(ctx context.Context) ([]models.ABTest, error)
	// ExpiredTests returns running or paused tests whose end date is before now
	ExpiredTests(ctx context.Context, now time.Time) ([]models.ABTest, error)
	// TransitionStatus moves a test in one of from to to. Unknown ids yield
	// models.ErrNotFound and tests in another state models.ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.TestStatus, to models.TestStatus, at time.Time) error

	// RecordExposure inserts the exposure unless one exists for (test, identifier)
	// and bumps the variant impressions when it does. Reports whether it inserted.
	RecordExposure(ctx context.Context, exposure *models.Exposure) (bool, error)
	// RecordConversion marks the exposure converted and bumps the variant
	// conversions and revenue once. Missing exposures yield models.ErrNotFound.
	RecordConversion(ctx context.Context, conv Conversion) (ConversionResult, error)
}

// Conversion is a booking attributed to an exposure
type Conversion struct {
	TestID     uuid.UUID
	VariantID  uuid.UUID
	Identifier string
	BookingID  string
	Revenue    decimal.Decimal
	At         time.Time
}
