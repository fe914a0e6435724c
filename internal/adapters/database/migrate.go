package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

// MigrationState is the schema version recorded by golang-migrate
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Empty means no migration was ever applied
	Empty bool `json:"empty"`
}

// Migrator applies the SQL files under one directory
type Migrator struct {
	m    *migrate.Migrate
	path string
}

// NewMigrator binds the migration directory to db. The caller keeps ownership of db.
func NewMigrator(db *sql.DB, migrationsPath string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations from %s: %w", migrationsPath, err)
	}
	return &Migrator{m: m, path: migrationsPath}, nil
}

// State reports the current schema version
func (mg *Migrator) State() (MigrationState, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationState{Empty: true}, nil
	}
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return MigrationState{Version: version, Dirty: dirty}, nil
}

// Up applies every pending migration. A dirty schema is refused; fix it by hand
// and Force the version.
func (mg *Migrator) Up() error {
	before, err := mg.State()
	if err != nil {
		return err
	}
	if before.Dirty {
		return fmt.Errorf("schema version %d is dirty, force it after repairing", before.Version)
	}

	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema up to date", zap.Uint("version", before.Version))
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, err := mg.State()
	if err != nil {
		return err
	}
	logger.Info("migrations applied",
		zap.String("path", mg.path),
		zap.Uint("from_version", before.Version),
		zap.Uint("to_version", after.Version),
	)
	return nil
}

// Down rolls back steps migrations
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	before, err := mg.State()
	if err != nil {
		return err
	}
	if before.Empty {
		return fmt.Errorf("no migrations applied")
	}

	if err := mg.m.Steps(-steps); err != nil {
		return fmt.Errorf("failed to roll back %d migration(s): %w", steps, err)
	}

	logger.Info("migrations rolled back", zap.Uint("from_version", before.Version), zap.Int("steps", steps))
	return nil
}

// Force records version as clean without running anything
func (mg *Migrator) Force(version int) error {
	if err := mg.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	logger.Warn("schema version forced", zap.Int("version", version))
	return nil
}

// RunMigrations applies every pending migration in migrationsPath
func RunMigrations(db *sql.DB, migrationsPath string) error {
	mg, err := NewMigrator(db, migrationsPath)
	if err != nil {
		return err
	}
	return mg.Up()
}
