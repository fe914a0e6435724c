// Package database owns the Postgres pool and schema migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/internal/adapters/config"
	"github.com/selivandex/pricing-engine/pkg/logger"
)

// DB wraps the Postgres connection pool
type DB struct {
	conn *sqlx.DB
}

// New opens the pool and pings it, retrying while Postgres comes up
func New(cfg *config.DatabaseConfig) (*DB, error) {
	conn, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithRetry(conn, cfg.ConnectAttempts, cfg.ConnectBackoff); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	registerPoolStats(conn, cfg.Name)

	logger.Info("database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return &DB{conn: conn}, nil
}

func pingWithRetry(conn *sqlx.DB, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = conn.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if i < attempts {
			logger.Warn("database not ready, retrying",
				zap.Int("attempt", i),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}
	return err
}

// registerPoolStats exports sql.DBStats; a second pool for the same database is skipped
func registerPoolStats(conn *sqlx.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(conn.DB, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.Warn("failed to register pool metrics", zap.Error(err))
	}
}

// Close closes the pool
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	logger.Info("closing database connection")
	return db.conn.Close()
}

// DB returns the sqlx handle used by repositories
func (db *DB) DB() *sqlx.DB {
	return db.conn
}

// Health pings the pool
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
