package optimizer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Repository is the Postgres-backed Store
type Repository struct {
	db *sqlx.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates new optimizer repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const resultColumns = `
	id, flight_id, cabin_class, current_price, optimized_price, multiplier,
	expected_revenue_change, expected_load_factor_change, confidence, factors,
	recommendation, goal, status, approved_by, applied_at, created_at`

// Flight reads the live cabin snapshot of a flight
func (r *Repository) Flight(ctx context.Context, flightID int64, cabin models.CabinClass) (*models.FlightSnapshot, error) {
	var f models.FlightSnapshot
	err := r.db.GetContext(ctx, &f, `
		SELECT f.id AS flight_id, f.origin_id, f.destination_id, c.cabin_class,
		       c.price, c.capacity, c.seats_sold, f.departure_at
		FROM flights f
		JOIN flight_cabins c ON c.flight_id = f.id
		WHERE f.id = $1 AND c.cabin_class = $2`, flightID, cabin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flight: %w", err)
	}
	return &f, nil
}

// SaveResult inserts an optimization log entry
func (r *Repository) SaveResult(ctx context.Context, res *models.OptimizationResult) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO optimization_logs (`+resultColumns+`)
		VALUES (
			:id, :flight_id, :cabin_class, :current_price, :optimized_price, :multiplier,
			:expected_revenue_change, :expected_load_factor_change, :confidence, :factors,
			:recommendation, :goal, :status, :approved_by, :applied_at, :created_at
		)`, res)
	if err != nil {
		return fmt.Errorf("failed to insert optimization log: %w", err)
	}
	return nil
}

// GetResult returns one optimization log entry
func (r *Repository) GetResult(ctx context.Context, id uuid.UUID) (*models.OptimizationResult, error) {
	var res models.OptimizationResult
	err := r.db.GetContext(ctx, &res, `SELECT `+resultColumns+` FROM optimization_logs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get optimization log: %w", err)
	}
	return &res, nil
}

// ApplyResult flips suggested -> applied and updates the cabin price in one transaction
func (r *Repository) ApplyResult(ctx context.Context, id uuid.UUID, approvedBy string, at time.Time) (*models.OptimizationResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var res models.OptimizationResult
	err = tx.GetContext(ctx, &res, `
		UPDATE optimization_logs
		SET status = $2, approved_by = $3, applied_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+resultColumns,
		id, models.OptimizationApplied, approvedBy, at, models.OptimizationSuggested)

	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM optimization_logs WHERE id = $1)`, id); err != nil {
			return nil, fmt.Errorf("failed to look up optimization log: %w", err)
		}
		if !exists {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: optimization already applied", models.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark optimization applied: %w", err)
	}

	updated, err := tx.ExecContext(ctx, `
		UPDATE flight_cabins SET price = $3, updated_at = $4
		WHERE flight_id = $1 AND cabin_class = $2`,
		res.FlightID, res.CabinClass, res.OptimizedPrice, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update flight price: %w", err)
	}
	if n, _ := updated.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("flight cabin %d/%s: %w", res.FlightID, res.CabinClass, models.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO price_history (flight_id, origin_id, destination_id, cabin_class, price, occupancy_rate, recorded_at)
		SELECT f.id, f.origin_id, f.destination_id, c.cabin_class, c.price,
		       CASE WHEN c.capacity > 0 THEN c.seats_sold::float8 / c.capacity ELSE 0 END, $3
		FROM flights f JOIN flight_cabins c ON c.flight_id = f.id
		WHERE f.id = $1 AND c.cabin_class = $2`,
		res.FlightID, res.CabinClass, at,
	); err != nil {
		return nil, fmt.Errorf("failed to record price history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &res, nil
}
