package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_USER", "pricing")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pricing.SignalTimeout != 800*time.Millisecond {
		t.Errorf("signal timeout = %v, want 800ms", cfg.Pricing.SignalTimeout)
	}
	if cfg.Pricing.ResultTTL != 5*time.Minute {
		t.Errorf("result ttl = %v, want 5m", cfg.Pricing.ResultTTL)
	}
	if cfg.Experiments.AssignmentTTL != 24*time.Hour {
		t.Errorf("assignment ttl = %v, want 24h", cfg.Experiments.AssignmentTTL)
	}
	if cfg.Elasticity.MaxAge != 7*24*time.Hour {
		t.Errorf("elasticity max age = %v, want 168h", cfg.Elasticity.MaxAge)
	}
	if cfg.Pricing.Goal != "balance" {
		t.Errorf("goal = %q, want balance", cfg.Pricing.Goal)
	}
	if cfg.ClickHouse.Enabled {
		t.Error("clickhouse should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_USER", "pricing")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("PRICING_SIGNAL_TIMEOUT", "1500ms")
	t.Setenv("PRICING_GOAL", "maximize_yield")
	t.Setenv("EXPERIMENT_ASSIGNMENT_TTL", "1h")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pricing.SignalTimeout != 1500*time.Millisecond {
		t.Errorf("signal timeout = %v", cfg.Pricing.SignalTimeout)
	}
	if cfg.Pricing.Goal != "maximize_yield" {
		t.Errorf("goal = %q", cfg.Pricing.Goal)
	}
	if cfg.Experiments.AssignmentTTL != time.Hour {
		t.Errorf("assignment ttl = %v", cfg.Experiments.AssignmentTTL)
	}
	if got := cfg.Redis.Addr(); got != "localhost:6380" {
		t.Errorf("redis addr = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown goal", func(c *Config) { c.Pricing.Goal = "maximize_profit" }, true},
		{"zero signal timeout", func(c *Config) { c.Pricing.SignalTimeout = 0 }, true},
		{"zero ema period", func(c *Config) { c.Pricing.EMAPeriod = 0 }, true},
		{"clickhouse without dsn", func(c *Config) {
			c.ClickHouse.Enabled = true
			c.ClickHouse.DSN = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Pricing: PricingConfig{
					SignalTimeout: time.Second,
					ResultTTL:     time.Minute,
					Goal:          "balance",
					EMAPeriod:     7,
				},
				Experiments: ExperimentsConfig{AssignmentTTL: time.Hour},
				Elasticity:  ElasticityConfig{MaxAge: time.Hour, Lookback: time.Hour},
			}
			tt.mutate(c)

			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "pricing", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=pricing sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
