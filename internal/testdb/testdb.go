// Package testdb prepares a migrated Postgres database for integration tests.
// Tests using it carry the integration build tag and run with -p 1, since
// every package shares one database.
package testdb

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/selivandex/pricing-engine/internal/adapters/database"
	"github.com/selivandex/pricing-engine/pkg/models"
)

const defaultDSN = "host=localhost port=5432 user=pricing password=pricing dbname=pricing_test sslmode=disable"

var tables = []string{
	"ab_test_exposures", "ab_test_variants", "ab_tests",
	"optimization_logs", "price_elasticity_estimates",
	"price_history", "flight_cabins", "flights",
}

// Setup connects to TEST_DATABASE_URL, applies migrations and empties every table.
// Tables are emptied again when the test finishes.
func Setup(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = defaultDSN
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	if err := database.RunMigrations(db.DB, migrationsPath()); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	truncate(t, db)
	t.Cleanup(func() {
		truncate(t, db)
		db.Close()
	})

	return db
}

func migrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func truncate(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range tables {
		if _, err := db.Exec("TRUNCATE " + table + " CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// SeedFlight inserts a flight with one cabin and returns its id
func SeedFlight(t *testing.T, db *sqlx.DB, origin, destination int64, cabin models.CabinClass, price decimal.Decimal, capacity, sold int, departure time.Time) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO flights (flight_number, origin_id, destination_id, departure_at)
		VALUES ('PE100', $1, $2, $3)
		RETURNING id`, origin, destination, departure).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert flight: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO flight_cabins (flight_id, cabin_class, price, capacity, seats_sold)
		VALUES ($1, $2, $3, $4, $5)`, id, cabin, price, capacity, sold); err != nil {
		t.Fatalf("failed to insert flight cabin: %v", err)
	}
	return id
}

// SeedPriceHistory inserts one (price, occupancy) observation for a flight cabin
func SeedPriceHistory(t *testing.T, db *sqlx.DB, flightID int64, route models.RouteKey, price, occupancy float64, at time.Time) {
	t.Helper()

	if _, err := db.Exec(`
		INSERT INTO price_history (flight_id, origin_id, destination_id, cabin_class, price, occupancy_rate, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		flightID, route.OriginID, route.DestinationID, route.CabinClass, price, occupancy, at); err != nil {
		t.Fatalf("failed to insert price history: %v", err)
	}
}
