// Package elasticity estimates price elasticity of demand per route and cabin.
package elasticity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

var tracer = otel.Tracer("github.com/selivandex/pricing-engine/internal/elasticity")

// Store reads price history and reads/writes estimates
type Store interface {
	// LatestEstimate returns the newest estimate calculated after freshAfter, or models.ErrNotFound
	LatestEstimate(ctx context.Context, key models.RouteKey, freshAfter time.Time) (*models.PriceElasticityEstimate, error)
	Samples(ctx context.Context, key models.RouteKey, from, to time.Time) ([]models.PriceSample, error)
	UpsertEstimate(ctx context.Context, estimate *models.PriceElasticityEstimate) error
	ActiveRoutes(ctx context.Context, since time.Time) ([]models.RouteKey, error)
}

// Config tunes the estimator
type Config struct {
	StoreTimeout time.Duration
	MaxAge       time.Duration
	Lookback     time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		StoreTimeout: 2 * time.Second,
		MaxAge:       7 * 24 * time.Hour,
		Lookback:     180 * 24 * time.Hour,
	}
}

// Estimator returns an elasticity estimate for a route. It never fails:
// missing history or store errors degrade to the default estimate.
type Estimator struct {
	store Store
	cfg   Config
	group singleflight.Group
	nowFn func() time.Time
}

// NewEstimator creates an estimator over store
func NewEstimator(store Store, cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}

	return &Estimator{store: store, cfg: cfg, nowFn: time.Now}
}

// Estimate returns the stored estimate when it is fresh and well sampled,
// otherwise recomputes it from history.
func (e *Estimator) Estimate(ctx context.Context, key models.RouteKey) models.PriceElasticityEstimate {
	ctx, span := tracer.Start(ctx, "elasticity.Estimate")
	defer span.End()
	span.SetAttributes(attribute.String("route", key.String()))

	est := e.shared(ctx, key.String(), key, false)

	span.SetAttributes(
		attribute.Float64("elasticity", est.Elasticity),
		attribute.Bool("default", est.Default),
	)

	return est
}

// Refresh recomputes the estimate from history regardless of what is stored
func (e *Estimator) Refresh(ctx context.Context, key models.RouteKey) models.PriceElasticityEstimate {
	return e.shared(ctx, "refresh:"+key.String(), key, true)
}

// shared runs one computation per flight key, detached from the cancellation
// of whichever caller started it. Store calls inside stay bounded by
// StoreTimeout. A caller whose ctx ends first gets the default estimate.
func (e *Estimator) shared(ctx context.Context, flight string, key models.RouteKey, force bool) models.PriceElasticityEstimate {
	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(flight, func() (interface{}, error) {
		return e.estimate(detached, key, force), nil
	})

	select {
	case res := <-ch:
		return res.Val.(models.PriceElasticityEstimate)
	case <-ctx.Done():
		logger.Debug("elasticity wait abandoned, using default",
			zap.String("route", key.String()),
			zap.Error(ctx.Err()),
		)
		return models.DefaultEstimate(key)
	}
}

// ActiveRoutes lists routes with price history inside the lookback window
func (e *Estimator) ActiveRoutes(ctx context.Context) ([]models.RouteKey, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	routes, err := e.store.ActiveRoutes(ctx, e.nowFn().Add(-e.cfg.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list active routes: %w", err)
	}
	return routes, nil
}

func (e *Estimator) estimate(ctx context.Context, key models.RouteKey, force bool) models.PriceElasticityEstimate {
	now := e.nowFn()

	if !force {
		stored, err := e.lookup(ctx, key, now.Add(-e.cfg.MaxAge))
		switch {
		case err == nil && stored.SampleSize >= models.MinElasticitySamples:
			stored.Elasticity = models.ClampElasticity(stored.Elasticity)
			return *stored
		case err != nil && !errors.Is(err, models.ErrNotFound):
			logger.Warn("elasticity lookup failed, using default",
				zap.String("route", key.String()),
				zap.Error(err),
			)
			return models.DefaultEstimate(key)
		}
	}

	samples, err := e.samples(ctx, key, now.Add(-e.cfg.Lookback), now)
	if err != nil {
		logger.Warn("price history unavailable, using default elasticity",
			zap.String("route", key.String()),
			zap.Error(err),
		)
		return models.DefaultEstimate(key)
	}

	fit, ok := Fit(samples)
	if !ok {
		logger.Debug("not enough price history for elasticity",
			zap.String("route", key.String()),
			zap.Int("usable_points", fit.Points),
		)
		return models.DefaultEstimate(key)
	}

	est := models.PriceElasticityEstimate{
		OriginID:      key.OriginID,
		DestinationID: key.DestinationID,
		CabinClass:    key.CabinClass,
		Elasticity:    models.ClampElasticity(fit.Slope),
		SampleSize:    fit.Points,
		Confidence:    fit.RSquared,
		OptimalPrice:  models.RoundPrice(fit.OptimalPrice),
		MinPrice:      models.RoundPrice(fit.MinPrice),
		MaxPrice:      models.RoundPrice(fit.MaxPrice),
		PeriodStart:   now.Add(-e.cfg.Lookback),
		PeriodEnd:     now,
		CalculatedAt:  now,
	}

	if err := e.persist(ctx, &est); err != nil {
		logger.Warn("failed to persist elasticity estimate",
			zap.String("route", key.String()),
			zap.Error(err),
		)
	}

	logger.Debug("elasticity estimated",
		zap.String("route", key.String()),
		zap.Float64("elasticity", est.Elasticity),
		zap.Float64("r_squared", est.Confidence),
		zap.Int("samples", est.SampleSize),
	)

	return est
}

func (e *Estimator) lookup(ctx context.Context, key models.RouteKey, freshAfter time.Time) (*models.PriceElasticityEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.store.LatestEstimate(ctx, key, freshAfter)
}

func (e *Estimator) samples(ctx context.Context, key models.RouteKey, from, to time.Time) ([]models.PriceSample, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.store.Samples(ctx, key, from, to)
}

func (e *Estimator) persist(ctx context.Context, est *models.PriceElasticityEstimate) error {
	ctx, span := tracer.Start(ctx, "elasticity.persist")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	if err := e.store.UpsertEstimate(ctx, est); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
