package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/internal/adapters/redis"
	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// ErrApplyInProgress is returned when another caller holds the apply lock for a log
var ErrApplyInProgress = errors.New("optimization apply already in progress")

const applyLockTTL = 30 * time.Second

// Store persists flights and the optimization log
type Store interface {
	// Flight returns the live cabin snapshot or models.ErrNotFound
	Flight(ctx context.Context, flightID int64, cabin models.CabinClass) (*models.FlightSnapshot, error)
	SaveResult(ctx context.Context, result *models.OptimizationResult) error
	GetResult(ctx context.Context, id uuid.UUID) (*models.OptimizationResult, error)
	// ApplyResult marks a suggested log applied and writes its price to the flight cabin
	// in one transaction. Unknown ids yield models.ErrNotFound, applied logs
	// models.ErrInvalidTransition.
	ApplyResult(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) (*models.OptimizationResult, error)
}

// ElasticitySource provides the demand response of a market
type ElasticitySource interface {
	Estimate(ctx context.Context, key models.RouteKey) models.PriceElasticityEstimate
}

// FlightInvalidator drops cached prices of a flight
type FlightInvalidator interface {
	InvalidateFlight(ctx context.Context, flightID int64) (int, error)
}

// OptimizeRequest selects the flight cabin and goal to optimize
type OptimizeRequest struct {
	FlightID       int64
	CabinClass     models.CabinClass
	Goal           models.OptimizationGoal
	DemandForecast float64
}

// Service runs the optimizer against live flights and applies approved suggestions
type Service struct {
	store      Store
	elasticity ElasticitySource
	locks      redis.LockFactory
	cache      FlightInvalidator
	nowFn      func() time.Time
}

// NewService creates optimization service
func NewService(store Store, elasticity ElasticitySource, locks redis.LockFactory, cache FlightInvalidator) *Service {
	return &Service{
		store:      store,
		elasticity: elasticity,
		locks:      locks,
		cache:      cache,
		nowFn:      time.Now,
	}
}

// Optimize computes a suggestion for one flight cabin and logs it as suggested
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*models.OptimizationResult, error) {
	if !req.CabinClass.Valid() {
		return nil, fmt.Errorf("%w: unknown cabin class %q", models.ErrValidation, req.CabinClass)
	}

	flight, err := s.store.Flight(ctx, req.FlightID, req.CabinClass)
	if err != nil {
		return nil, fmt.Errorf("flight %d/%s: %w", req.FlightID, req.CabinClass, err)
	}

	now := s.nowFn()
	factors := FactorsFor(flight, req.DemandForecast, now)
	estimate := s.elasticity.Estimate(ctx, flight.Route())
	out := CalculateOptimalPrice(models.ToFloat64(flight.Price), factors, req.Goal, estimate)

	result := &models.OptimizationResult{
		ID:                       uuid.New(),
		FlightID:                 flight.FlightID,
		CabinClass:               flight.CabinClass,
		CurrentPrice:             flight.Price,
		OptimizedPrice:           decimal.NewFromFloat(out.OptimizedPrice),
		Multiplier:               out.Multiplier,
		ExpectedRevenueChange:    out.ExpectedRevenueChange,
		ExpectedLoadFactorChange: out.ExpectedLoadFactorChange,
		Confidence:               out.Confidence,
		Factors:                  factors,
		Recommendation:           out.Recommendation,
		Goal:                     normalizeGoal(req.Goal),
		Status:                   models.OptimizationSuggested,
		CreatedAt:                now,
	}

	if err := s.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save optimization: %w", err)
	}

	logger.Info("optimization suggested",
		zap.String("log_id", result.ID.String()),
		zap.Int64("flight_id", result.FlightID),
		zap.String("cabin", string(result.CabinClass)),
		zap.String("current", result.CurrentPrice.String()),
		zap.String("optimized", result.OptimizedPrice.String()),
		zap.String("recommendation", string(result.Recommendation)),
	)
	return result, nil
}

// ApplyOptimization applies a suggested price exactly once and drops the flight's cached prices
func (s *Service) ApplyOptimization(ctx context.Context, logID uuid.UUID, approverID string) (*models.OptimizationResult, error) {
	if approverID == "" {
		return nil, fmt.Errorf("%w: approver is required", models.ErrValidation)
	}

	lock := s.locks.NewLock("optimization:apply:"+logID.String(), applyLockTTL)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock optimization %s: %w", logID, err)
	}
	if !acquired {
		return nil, ErrApplyInProgress
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("failed to release apply lock", zap.String("lock", lock.Name()), zap.Error(err))
		}
	}()

	result, err := s.store.ApplyResult(ctx, logID, approverID, s.nowFn())
	if err != nil {
		return nil, fmt.Errorf("optimization %s: %w", logID, err)
	}

	removed, err := s.cache.InvalidateFlight(ctx, result.FlightID)
	if err != nil {
		logger.Warn("failed to invalidate cached prices after apply",
			zap.Int64("flight_id", result.FlightID),
			zap.Error(err),
		)
	}

	logger.Info("optimization applied",
		zap.String("log_id", logID.String()),
		zap.Int64("flight_id", result.FlightID),
		zap.String("price", result.OptimizedPrice.String()),
		zap.String("approved_by", approverID),
		zap.Int("cache_entries_removed", removed),
	)
	return result, nil
}

// FactorsFor derives optimizer context from a flight snapshot
func FactorsFor(flight *models.FlightSnapshot, demandForecast float64, now time.Time) models.PricingFactors {
	return models.PricingFactors{
		OccupancyRate:      flight.OccupancyRate(),
		DaysUntilDeparture: flight.DaysUntilDeparture(now),
		SeasonalFactor:     models.SeasonalFactor(flight.DepartureAt),
		DemandForecast:     demandForecast,
	}
}

func normalizeGoal(goal models.OptimizationGoal) models.OptimizationGoal {
	switch goal {
	case models.GoalMaximizeRevenue, models.GoalMaximizeLoadFactor, models.GoalMaximizeYield:
		return goal
	default:
		return models.GoalBalance
	}
}
