package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/metrics"
)

// Repository writes analytics batches to ClickHouse
type Repository struct {
	db *sqlx.DB
}

var _ metrics.Writer = (*Repository)(nil)

// Connect opens a ClickHouse connection from a clickhouse:// DSN
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("clickhouse connection established")
	return NewRepository(db), nil
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// WriteBatch inserts rows in a single ClickHouse batch
func (r *Repository) WriteBatch(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, insertQuery(table, columns))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to append row to %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	logger.Debug("wrote batch to clickhouse",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// Health pings the server
func (r *Repository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func insertQuery(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
}
