package experiments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/metrics"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// ConversionRequest attributes a booking to the variant an identifier saw
type ConversionRequest struct {
	TestID     uuid.UUID
	VariantID  uuid.UUID
	Identifier models.Identifier
	BookingID  string
	Revenue    decimal.Decimal
}

// ConversionOutcome reports what RecordConversion did
type ConversionOutcome struct {
	Recorded  bool // counters were incremented by this call
	Duplicate bool // the exposure had already converted
}

// Ledger records exposures and conversions against the store
type Ledger struct {
	store        Store
	events       metrics.Recorder
	storeTimeout time.Duration
	nowFn        func() time.Time
}

// NewLedger creates an exposure/conversion ledger
func NewLedger(store Store, events metrics.Recorder, storeTimeout time.Duration) *Ledger {
	if events == nil {
		events = metrics.Discard
	}
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Ledger{store: store, events: events, storeTimeout: storeTimeout, nowFn: time.Now}
}

// RecordExposure stores the first exposure of an identifier to a test.
// It reports whether this call created it.
func (l *Ledger) RecordExposure(ctx context.Context, exp *models.Exposure) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	if exp.ID == uuid.Nil {
		exp.ID = uuid.New()
	}
	if exp.ExposedAt.IsZero() {
		exp.ExposedAt = l.nowFn()
	}

	created, err := l.store.RecordExposure(ctx, exp)
	if err != nil {
		return false, fmt.Errorf("failed to record exposure: %w", err)
	}

	if created {
		l.events.Record(&metrics.ExposureEvent{
			Timestamp:  exp.ExposedAt,
			TestID:     exp.TestID.String(),
			VariantID:  exp.VariantID.String(),
			Identifier: exp.Identifier,
			FlightID:   exp.FlightID,
		})
	}

	return created, nil
}

// RecordConversion marks the exposure converted and adds the booking revenue once.
// A repeat call for the same exposure is a no-op reported as Duplicate.
// Store outages are logged and reported as not recorded.
func (l *Ledger) RecordConversion(ctx context.Context, req ConversionRequest) (ConversionOutcome, error) {
	if req.BookingID == "" {
		return ConversionOutcome{}, fmt.Errorf("%w: booking id is required", models.ErrValidation)
	}
	if req.Revenue.IsNegative() {
		return ConversionOutcome{}, fmt.Errorf("%w: revenue must not be negative", models.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	now := l.nowFn()
	res, err := l.store.RecordConversion(ctx, Conversion{
		TestID:     req.TestID,
		VariantID:  req.VariantID,
		Identifier: req.Identifier.String(),
		BookingID:  req.BookingID,
		Revenue:    req.Revenue,
		At:         now,
	})

	switch {
	case errors.Is(err, models.ErrNotFound):
		conversionsTotal.WithLabelValues("unknown_exposure").Inc()
		return ConversionOutcome{}, fmt.Errorf("exposure for %s in test %s: %w", req.Identifier, req.TestID, models.ErrNotFound)
	case err != nil:
		conversionsTotal.WithLabelValues("error").Inc()
		logger.Warn("conversion not recorded, ledger unavailable",
			zap.String("test_id", req.TestID.String()),
			zap.String("booking_id", req.BookingID),
			zap.Error(err),
		)
		return ConversionOutcome{}, nil
	case res == ConversionDuplicate:
		conversionsTotal.WithLabelValues("duplicate").Inc()
		return ConversionOutcome{Duplicate: true}, nil
	}

	conversionsTotal.WithLabelValues("recorded").Inc()
	l.events.Record(&metrics.ConversionEvent{
		Timestamp:  now,
		TestID:     req.TestID.String(),
		VariantID:  req.VariantID.String(),
		Identifier: req.Identifier.String(),
		BookingID:  req.BookingID,
		Revenue:    req.Revenue.InexactFloat64(),
	})

	return ConversionOutcome{Recorded: true}, nil
}
