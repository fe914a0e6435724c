package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database    DatabaseConfig    `envconfig:"DB"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	ClickHouse  ClickHouseConfig  `envconfig:"CLICKHOUSE"`
	Providers   ProvidersConfig   `envconfig:"PROVIDER"`
	Pricing     PricingConfig     `envconfig:"PRICING"`
	Elasticity  ElasticityConfig  `envconfig:"ELASTICITY"`
	Experiments ExperimentsConfig `envconfig:"EXPERIMENT"`
	Health      HealthConfig      `envconfig:"HEALTH"`
	Logging     LoggingConfig     `envconfig:"LOG"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           int    `envconfig:"PORT" default:"5432"`
	Name           string `envconfig:"NAME" default:"pricing"`
	User           string `envconfig:"USER" required:"true"`
	Password       string `envconfig:"PASSWORD" required:"true"`
	SSLMode        string `envconfig:"SSLMODE" default:"disable"`
	MaxOpenConns   int    `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns   int    `envconfig:"MAX_IDLE_CONNS" default:"5"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./migrations"`

	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	ConnectAttempts int           `envconfig:"CONNECT_ATTEMPTS" default:"5"`
	ConnectBackoff  time.Duration `envconfig:"CONNECT_BACKOFF" default:"1s"`
}

// RedisConfig represents cache and lock backend parameters.
// Disabled falls back to an in-process cache and no apply lock.
type RedisConfig struct {
	Enabled  bool   `envconfig:"ENABLED" default:"true"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// ClickHouseConfig represents analytics sink parameters
type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"ENABLED" default:"false"`
	DSN           string        `envconfig:"DSN" default:"clickhouse://localhost:9000/pricing"`
	BatchSize     int           `envconfig:"BATCH_SIZE" default:"500"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"10s"`
	MaxPending    int           `envconfig:"MAX_PENDING" default:"10000"`
}

// ProvidersConfig represents the external signal services
type ProvidersConfig struct {
	DemandURL       string        `envconfig:"DEMAND_URL"`
	SegmentationURL string        `envconfig:"SEGMENTATION_URL"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"2s"`
	ForecastDays    int           `envconfig:"FORECAST_DAYS" default:"14"`
	// 0 disables the provider circuit breakers
	BreakerFailures int           `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// PricingConfig represents orchestrator parameters
type PricingConfig struct {
	SignalTimeout time.Duration `envconfig:"SIGNAL_TIMEOUT" default:"800ms"`
	ResultTTL     time.Duration `envconfig:"RESULT_TTL" default:"5m"`
	Goal          string        `envconfig:"GOAL" default:"balance"`
	EMAPeriod     int           `envconfig:"EMA_PERIOD" default:"7"`
	CacheTimeout  time.Duration `envconfig:"CACHE_TIMEOUT" default:"300ms"`
}

// ElasticityConfig represents estimator parameters
type ElasticityConfig struct {
	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"2s"`
	MaxAge          time.Duration `envconfig:"MAX_AGE" default:"168h"`
	Lookback        time.Duration `envconfig:"LOOKBACK" default:"4320h"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"6h"`
}

// ExperimentsConfig represents experiment engine parameters
type ExperimentsConfig struct {
	AssignmentTTL     time.Duration `envconfig:"ASSIGNMENT_TTL" default:"24h"`
	StoreTimeout      time.Duration `envconfig:"STORE_TIMEOUT" default:"2s"`
	LifecycleInterval time.Duration `envconfig:"LIFECYCLE_INTERVAL" default:"5m"`
}

// HealthConfig represents health and metrics server parameters
type HealthConfig struct {
	Port int `envconfig:"PORT" default:"8080"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"console"`
	File   string `envconfig:"FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.Pricing.Goal {
	case "maximize_revenue", "maximize_load_factor", "maximize_yield", "balance":
	default:
		return fmt.Errorf("unknown pricing goal %q", c.Pricing.Goal)
	}

	if c.Pricing.SignalTimeout <= 0 {
		return fmt.Errorf("pricing signal timeout must be positive")
	}
	if c.Pricing.ResultTTL <= 0 {
		return fmt.Errorf("pricing result ttl must be positive")
	}
	if c.Pricing.EMAPeriod < 1 {
		return fmt.Errorf("ema period must be at least 1")
	}

	if c.Experiments.AssignmentTTL <= 0 {
		return fmt.Errorf("assignment ttl must be positive")
	}

	if c.Elasticity.MaxAge <= 0 || c.Elasticity.Lookback <= 0 {
		return fmt.Errorf("elasticity max age and lookback must be positive")
	}

	if c.ClickHouse.Enabled && c.ClickHouse.DSN == "" {
		return fmt.Errorf("clickhouse dsn is required when clickhouse is enabled")
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns host:port of the redis server
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
