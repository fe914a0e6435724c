// Package pricing combines demand, optimization, segment and experiment
// signals into one bounded price multiplier per flight cabin and identifier.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/selivandex/pricing-engine/internal/adapters/breaker"
	"github.com/selivandex/pricing-engine/internal/adapters/demand"
	"github.com/selivandex/pricing-engine/internal/adapters/segmentation"
	"github.com/selivandex/pricing-engine/internal/cache"
	"github.com/selivandex/pricing-engine/internal/experiments"
	"github.com/selivandex/pricing-engine/internal/optimizer"
	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/metrics"
	"github.com/selivandex/pricing-engine/pkg/models"
)

var tracer = otel.Tracer("github.com/selivandex/pricing-engine/internal/pricing")

// FlightReader loads the live state of a flight cabin
type FlightReader interface {
	Flight(ctx context.Context, flightID int64, cabin models.CabinClass) (*models.FlightSnapshot, error)
}

// VariantAssigner buckets identifiers into running experiments
type VariantAssigner interface {
	Assign(ctx context.Context, identifier models.Identifier, flightID int64, cabin models.CabinClass) *models.VariantAssignment
}

// Config tunes the orchestrator
type Config struct {
	SignalTimeout time.Duration
	// AssignTimeout bounds the experiment signal. It never drops below
	// SignalTimeout and should cover the assigner's own store calls, so an
	// exposure recorded by the assigner is not dropped from the response.
	AssignTimeout time.Duration
	FlightTimeout time.Duration
	ResultTTL     time.Duration
	Goal          models.OptimizationGoal
	EMAPeriod     int
	ForecastDays  int

	// provider breakers open after BreakerFailures consecutive failed calls
	BreakerFailures int
	BreakerCooldown time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		SignalTimeout: 800 * time.Millisecond,
		AssignTimeout: 4 * time.Second,
		FlightTimeout: 2 * time.Second,
		ResultTTL:     5 * time.Minute,
		Goal:          models.GoalBalance,
		EMAPeriod:     7,
		ForecastDays:  14,

		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Deps are the collaborators of an Orchestrator. Demand and Segments may be nil.
type Deps struct {
	Cache      *cache.Cache
	Flights    FlightReader
	Elasticity optimizer.ElasticitySource
	Assigner   VariantAssigner
	Demand     demand.Provider
	Segments   segmentation.Provider
	Events     metrics.Recorder
}

// Orchestrator computes AI pricing results
type Orchestrator struct {
	deps  Deps
	cfg   Config
	nowFn func() time.Time

	demandBreaker  *breaker.CircuitBreaker
	segmentBreaker *breaker.CircuitBreaker
}

// NewOrchestrator creates pricing orchestrator
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = def.SignalTimeout
	}
	if cfg.AssignTimeout <= 0 {
		cfg.AssignTimeout = def.AssignTimeout
	}
	if cfg.AssignTimeout < cfg.SignalTimeout {
		cfg.AssignTimeout = cfg.SignalTimeout
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = def.FlightTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.Goal == "" {
		cfg.Goal = def.Goal
	}
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = def.EMAPeriod
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = def.ForecastDays
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	if deps.Events == nil {
		deps.Events = metrics.Discard
	}
	return &Orchestrator{
		deps:           deps,
		cfg:            cfg,
		nowFn:          time.Now,
		demandBreaker:  breaker.New("demand", cfg.BreakerFailures, cfg.BreakerCooldown),
		segmentBreaker: breaker.New("segmentation", cfg.BreakerFailures, cfg.BreakerCooldown),
	}
}

// signals gathered concurrently; nil/zero means the signal was unavailable
type signals struct {
	estimate   models.PriceElasticityEstimate
	assignment *models.VariantAssignment
	profile    *models.SegmentProfile
	forecast   []models.DemandPoint
}

// GetPriceMultiplier returns the combined multiplier for one flight cabin and identifier.
// Only an unknown flight or an invalid cabin is an error; every signal
// failure degrades to its neutral value.
func (o *Orchestrator) GetPriceMultiplier(ctx context.Context, flightID int64, cabin models.CabinClass, identifier models.Identifier) (*models.AIPricingResult, error) {
	ctx, span := tracer.Start(ctx, "pricing.GetPriceMultiplier", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("flight_id", flightID),
		attribute.String("cabin_class", string(cabin)),
	)

	started := o.nowFn()

	if !cabin.Valid() {
		return nil, fmt.Errorf("%w: unknown cabin class %q", models.ErrValidation, cabin)
	}

	key := cache.PricingKey(flightID, cabin, identifier)
	var cached models.AIPricingResult
	if o.deps.Cache.GetJSON(ctx, key, &cached) {
		cached.Cached = true
		span.SetAttributes(attribute.Bool("cached", true))
		pricingRequests.WithLabelValues("cached").Inc()
		return &cached, nil
	}

	flight, err := o.flight(ctx, flightID, cabin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flight lookup failed")
		pricingRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	sig := o.gather(ctx, flight, identifier)
	result := o.combine(flight, identifier, sig)

	o.deps.Cache.SetJSON(ctx, key, result, o.cfg.ResultTTL)

	elapsed := o.nowFn().Sub(started)
	pricingLatency.Observe(elapsed.Seconds())
	pricingRequests.WithLabelValues("computed").Inc()
	o.record(result, elapsed)

	span.SetAttributes(
		attribute.Float64("multiplier", result.Multiplier),
		attribute.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// InvalidateFlight drops every cached result for the flight
func (o *Orchestrator) InvalidateFlight(ctx context.Context, flightID int64) (int, error) {
	return o.deps.Cache.InvalidateFlight(ctx, flightID)
}

func (o *Orchestrator) flight(ctx context.Context, flightID int64, cabin models.CabinClass) (*models.FlightSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.FlightTimeout)
	defer cancel()

	flight, err := o.deps.Flights.Flight(ctx, flightID, cabin)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("flight %d/%s: %w", flightID, cabin, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flight %d: %w", flightID, err)
	}
	return flight, nil
}

// gather fans out to every signal source and waits for all of them.
// Each task has its own deadline and never fails the group.
func (o *Orchestrator) gather(ctx context.Context, flight *models.FlightSnapshot, identifier models.Identifier) signals {
	ctx, span := tracer.Start(ctx, "pricing.gather")
	defer span.End()

	route := flight.Route()
	sig := signals{estimate: models.DefaultEstimate(route)}
	timeout := o.cfg.SignalTimeout

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		est, ok := withDeadline(gctx, timeout, models.DefaultEstimate(route),
			func(ctx context.Context) (models.PriceElasticityEstimate, error) {
				return o.deps.Elasticity.Estimate(ctx, route), nil
			})
		o.observe("elasticity", ok)
		sig.estimate = est
		return nil
	})

	g.Go(func() error {
		a, ok := withDeadline(gctx, o.cfg.AssignTimeout, (*models.VariantAssignment)(nil),
			func(ctx context.Context) (*models.VariantAssignment, error) {
				return o.deps.Assigner.Assign(ctx, identifier, flight.FlightID, flight.CabinClass), nil
			})
		o.observe("experiment", ok)
		sig.assignment = a
		return nil
	})

	if identifier.IsUser() && o.deps.Segments != nil && o.allow("segment", o.segmentBreaker) {
		g.Go(func() error {
			p, ok := withDeadline(gctx, timeout, (*models.SegmentProfile)(nil),
				func(ctx context.Context) (*models.SegmentProfile, error) {
					return o.deps.Segments.Profile(ctx, identifier.Value)
				})
			o.observe("segment", ok)
			o.segmentBreaker.Record(ok)
			if !ok {
				logger.Debug("segment signal unavailable", zap.String("identifier", identifier.String()))
			}
			sig.profile = p
			return nil
		})
	}

	if o.deps.Demand != nil && o.allow("demand", o.demandBreaker) {
		g.Go(func() error {
			points, ok := withDeadline(gctx, timeout, []models.DemandPoint(nil),
				func(ctx context.Context) ([]models.DemandPoint, error) {
					return o.deps.Demand.Forecast(ctx, flight.FlightID, flight.CabinClass, o.cfg.ForecastDays)
				})
			o.observe("demand", ok)
			o.demandBreaker.Record(ok)
			if !ok {
				logger.Debug("demand signal unavailable", zap.Int64("flight_id", flight.FlightID))
			}
			sig.forecast = points
			return nil
		})
	}

	_ = g.Wait()
	return sig
}

func (o *Orchestrator) combine(flight *models.FlightSnapshot, identifier models.Identifier, sig signals) *models.AIPricingResult {
	now := o.nowFn()
	basePrice := models.ToFloat64(flight.Price)

	demandForecast := AverageDemand(sig.forecast)
	factors := optimizer.FactorsFor(flight, demandForecast, now)
	outcome := optimizer.CalculateOptimalPrice(basePrice, factors, o.cfg.Goal, sig.estimate)

	components := models.PricingComponents{
		Demand:       DemandMultiplier(sig.forecast, o.cfg.EMAPeriod),
		Optimization: outcome.Multiplier,
		Segment:      1,
		Experiment:   1,
	}
	var segments []string
	hasSegment := sig.profile != nil && (len(sig.profile.Segments) > 0 || sig.profile.PricingAdjustment != 0)
	if hasSegment {
		components.Segment = 1 + sig.profile.PricingAdjustment
		segments = sig.profile.Names()
	}
	if sig.assignment != nil {
		components.Experiment = experiments.StrategyMultiplier(flight.Price, sig.assignment.Strategy)
	}

	multiplier := Combine(components)

	return &models.AIPricingResult{
		FlightID:       flight.FlightID,
		CabinClass:     flight.CabinClass,
		Identifier:     identifier.String(),
		Multiplier:     multiplier,
		Confidence:     Confidence(len(sig.forecast) > 0, hasSegment, sig.assignment != nil, demandForecast),
		Components:     components,
		OptimizedPrice: models.RoundPrice(basePrice * multiplier),
		Recommendation: outcome.Recommendation,
		Elasticity:     models.ClampElasticity(sig.estimate.Elasticity),
		Segments:       segments,
		Experiment:     sig.assignment,
		ComputedAt:     now,
	}
}

func (o *Orchestrator) observe(signal string, ok bool) {
	result := "ok"
	if !ok {
		result = "fallback"
	}
	signalOutcomes.WithLabelValues(signal, result).Inc()
}

// allow consults a provider breaker and counts short-circuited calls
func (o *Orchestrator) allow(signal string, cb *breaker.CircuitBreaker) bool {
	if cb.Allow() {
		return true
	}
	signalOutcomes.WithLabelValues(signal, "open").Inc()
	return false
}

func (o *Orchestrator) record(r *models.AIPricingResult, elapsed time.Duration) {
	event := &metrics.PricingDecisionEvent{
		Timestamp:      r.ComputedAt,
		FlightID:       r.FlightID,
		CabinClass:     string(r.CabinClass),
		Identifier:     r.Identifier,
		Multiplier:     r.Multiplier,
		Confidence:     r.Confidence,
		Demand:         r.Components.Demand,
		Optimization:   r.Components.Optimization,
		Segment:        r.Components.Segment,
		Experiment:     r.Components.Experiment,
		Elasticity:     r.Elasticity,
		Recommendation: string(r.Recommendation),
		DurationMs:     elapsed.Milliseconds(),
	}
	if r.Experiment != nil {
		event.TestID = r.Experiment.TestID.String()
		event.VariantID = r.Experiment.VariantID.String()
	}
	o.deps.Events.Record(event)
}
