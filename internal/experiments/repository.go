package experiments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// Repository is the Postgres-backed Store
type Repository struct {
	db *sqlx.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates new experiments repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type variantRow struct {
	models.ABTestVariant
	Spec models.StrategySpec `db:"strategy"`
}

const testColumns = `
	id, name, description, status, start_date, end_date, traffic_percentage,
	minimum_sample_size, confidence_level, cabin_classes, created_at, updated_at`

// CreateTest inserts the test and its variants in one transaction
func (r *Repository) CreateTest(ctx context.Context, test *models.ABTest) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ab_tests (`+testColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			test.ID,
			test.Name,
			test.Description,
			test.Status,
			test.StartDate,
			test.EndDate,
			test.TrafficPercentage,
			test.MinimumSampleSize,
			test.ConfidenceLevel,
			test.CabinClasses,
			test.CreatedAt,
			test.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert test: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO ab_test_variants (
				id, test_id, name, is_control, strategy, weight, position,
				impressions, conversions, total_revenue
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0)`)
		if err != nil {
			return fmt.Errorf("failed to prepare variant insert: %w", err)
		}
		defer stmt.Close()

		for _, v := range test.Variants {
			if _, err := stmt.ExecContext(ctx, v.ID, test.ID, v.Name, v.IsControl, models.SpecOf(v.Strategy), v.Weight, v.Position); err != nil {
				return fmt.Errorf("failed to insert variant %s: %w", v.Name, err)
			}
		}
		return nil
	})
}

// GetTest returns one test with its variants
func (r *Repository) GetTest(ctx context.Context, id uuid.UUID) (*models.ABTest, error) {
	var test models.ABTest
	err := r.db.GetContext(ctx, &test, `SELECT `+testColumns+` FROM ab_tests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	tests := []models.ABTest{test}
	if err := r.attachVariants(ctx, tests); err != nil {
		return nil, err
	}
	return &tests[0], nil
}

// RunningTests returns every running test, oldest first
func (r *Repository) RunningTests(ctx context.Context) ([]models.ABTest, error) {
	var tests []models.ABTest
	err := r.db.SelectContext(ctx, &tests, `
		SELECT `+testColumns+`
		FROM ab_tests
		WHERE status = $1
		ORDER BY created_at, id`, models.TestRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list running tests: %w", err)
	}

	if err := r.attachVariants(ctx, tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// ExpiredTests returns live tests whose end date has passed
func (r *Repository) ExpiredTests(ctx context.Context, now time.Time) ([]models.ABTest, error) {
	var tests []models.ABTest
	err := r.db.SelectContext(ctx, &tests, `
		SELECT `+testColumns+`
		FROM ab_tests
		WHERE status = ANY($1) AND end_date IS NOT NULL AND end_date < $2
		ORDER BY end_date`,
		pq.Array([]string{string(models.TestRunning), string(models.TestPaused)}), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tests: %w", err)
	}
	return tests, nil
}

// TransitionStatus performs a conditional status update
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.TestStatus, to models.TestStatus, at time.Time) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE ab_tests
		SET status = $2,
		    start_date = CASE WHEN $2 = 'running' AND start_date IS NULL THEN $4 ELSE start_date END,
		    updated_at = $4
		WHERE id = $1 AND status = ANY($3)`,
		id, to, pq.Array(allowed), at)
	if err != nil {
		return fmt.Errorf("failed to update test status: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current models.TestStatus
	err = r.db.GetContext(ctx, &current, `SELECT status FROM ab_tests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read test status: %w", err)
	}

	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, to)
}

// RecordExposure inserts a first exposure and counts one impression for it
func (r *Repository) RecordExposure(ctx context.Context, exp *models.Exposure) (bool, error) {
	inserted := false

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ab_test_exposures (id, test_id, variant_id, identifier, flight_id, exposed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (test_id, identifier) DO NOTHING`,
			exp.ID, exp.TestID, exp.VariantID, exp.Identifier, exp.FlightID, exp.ExposedAt)
		if err != nil {
			return fmt.Errorf("failed to insert exposure: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE ab_test_variants SET impressions = impressions + 1 WHERE id = $1`,
			exp.VariantID,
		); err != nil {
			return fmt.Errorf("failed to increment impressions: %w", err)
		}

		inserted = true
		return nil
	})

	return inserted, err
}

// RecordConversion converts an exposure once
func (r *Repository) RecordConversion(ctx context.Context, conv Conversion) (ConversionResult, error) {
	result := ConversionDuplicate

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE ab_test_exposures
			SET converted = TRUE, booking_id = $4, revenue = $5, converted_at = $6
			WHERE test_id = $1 AND variant_id = $2 AND identifier = $3 AND converted = FALSE`,
			conv.TestID, conv.VariantID, conv.Identifier, conv.BookingID, conv.Revenue, conv.At)
		if err != nil {
			return fmt.Errorf("failed to mark exposure converted: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			err := tx.GetContext(ctx, &exists, `
				SELECT EXISTS (
					SELECT 1 FROM ab_test_exposures
					WHERE test_id = $1 AND variant_id = $2 AND identifier = $3
				)`, conv.TestID, conv.VariantID, conv.Identifier)
			if err != nil {
				return fmt.Errorf("failed to look up exposure: %w", err)
			}
			if !exists {
				return models.ErrNotFound
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ab_test_variants
			SET conversions = conversions + 1, total_revenue = total_revenue + $2
			WHERE id = $1`,
			conv.VariantID, conv.Revenue,
		); err != nil {
			return fmt.Errorf("failed to increment conversions: %w", err)
		}

		result = ConversionApplied
		return nil
	})

	return result, err
}

func (r *Repository) attachVariants(ctx context.Context, tests []models.ABTest) error {
	if len(tests) == 0 {
		return nil
	}

	ids := make([]string, len(tests))
	for i, t := range tests {
		ids[i] = t.ID.String()
	}

	var rows []variantRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, test_id, name, is_control, strategy, weight, position,
		       impressions, conversions, total_revenue
		FROM ab_test_variants
		WHERE test_id = ANY($1::uuid[])
		ORDER BY test_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}

	byTest := make(map[uuid.UUID][]models.ABTestVariant, len(tests))
	for _, row := range rows {
		strategy, err := row.Spec.Strategy()
		if err != nil {
			logger.Warn("variant has an unreadable strategy, treating as no-op",
				zap.String("variant_id", row.ID.String()),
				zap.Error(err),
			)
			strategy = models.DynamicRuleStrategy{}
		}
		v := row.ABTestVariant
		v.Strategy = strategy
		byTest[v.TestID] = append(byTest[v.TestID], v)
	}

	for i := range tests {
		tests[i].Variants = byTest[tests[i].ID]
	}
	return nil
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
