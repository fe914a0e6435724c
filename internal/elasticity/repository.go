package elasticity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Repository is the Postgres-backed Store
type Repository struct {
	db *sqlx.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates new elasticity repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// LatestEstimate returns the newest estimate for the route calculated after freshAfter
func (r *Repository) LatestEstimate(ctx context.Context, key models.RouteKey, freshAfter time.Time) (*models.PriceElasticityEstimate, error) {
	query := `
		SELECT id, origin_id, destination_id, cabin_class, elasticity, sample_size, confidence,
		       optimal_price, min_price, max_price, period_start, period_end, calculated_at
		FROM price_elasticity_estimates
		WHERE origin_id = $1 AND destination_id = $2 AND cabin_class = $3
		  AND calculated_at > $4
		ORDER BY calculated_at DESC
		LIMIT 1
	`

	var est models.PriceElasticityEstimate
	err := r.db.GetContext(ctx, &est, query, key.OriginID, key.DestinationID, key.CabinClass, freshAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get elasticity estimate: %w", err)
	}

	return &est, nil
}

// Samples returns (price, occupancy) history for the route inside [from, to]
func (r *Repository) Samples(ctx context.Context, key models.RouteKey, from, to time.Time) ([]models.PriceSample, error) {
	query := `
		SELECT price::float8 AS price, occupancy_rate, recorded_at
		FROM price_history
		WHERE origin_id = $1 AND destination_id = $2 AND cabin_class = $3
		  AND recorded_at BETWEEN $4 AND $5
		ORDER BY recorded_at
	`

	var samples []models.PriceSample
	if err := r.db.SelectContext(ctx, &samples, query, key.OriginID, key.DestinationID, key.CabinClass, from, to); err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	return samples, nil
}

// UpsertEstimate stores an estimate, replacing one computed for the same route on the same day
func (r *Repository) UpsertEstimate(ctx context.Context, est *models.PriceElasticityEstimate) error {
	query := `
		INSERT INTO price_elasticity_estimates (
			origin_id, destination_id, cabin_class, elasticity, sample_size, confidence,
			optimal_price, min_price, max_price, period_start, period_end, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (origin_id, destination_id, cabin_class, period_end_date) DO UPDATE SET
			elasticity = EXCLUDED.elasticity,
			sample_size = EXCLUDED.sample_size,
			confidence = EXCLUDED.confidence,
			optimal_price = EXCLUDED.optimal_price,
			min_price = EXCLUDED.min_price,
			max_price = EXCLUDED.max_price,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			calculated_at = EXCLUDED.calculated_at
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		est.OriginID,
		est.DestinationID,
		est.CabinClass,
		est.Elasticity,
		est.SampleSize,
		est.Confidence,
		est.OptimalPrice,
		est.MinPrice,
		est.MaxPrice,
		est.PeriodStart,
		est.PeriodEnd,
		est.CalculatedAt,
	).Scan(&est.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert elasticity estimate: %w", err)
	}

	return nil
}

// ActiveRoutes lists route/cabin markets with history recorded since
func (r *Repository) ActiveRoutes(ctx context.Context, since time.Time) ([]models.RouteKey, error) {
	query := `
		SELECT DISTINCT origin_id, destination_id, cabin_class
		FROM price_history
		WHERE recorded_at >= $1
		ORDER BY origin_id, destination_id, cabin_class
	`

	var routes []models.RouteKey
	if err := r.db.SelectContext(ctx, &routes, query, since); err != nil {
		return nil, fmt.Errorf("failed to list active routes: %w", err)
	}

	return routes, nil
}
