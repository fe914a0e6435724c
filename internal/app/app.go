// Package app wires configuration, infrastructure and the pricing services
// into one process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/internal/adapters/clickhouse"
	"github.com/selivandex/pricing-engine/internal/adapters/config"
	"github.com/selivandex/pricing-engine/internal/adapters/database"
	"github.com/selivandex/pricing-engine/internal/adapters/demand"
	redisAdapter "github.com/selivandex/pricing-engine/internal/adapters/redis"
	"github.com/selivandex/pricing-engine/internal/adapters/segmentation"
	"github.com/selivandex/pricing-engine/internal/cache"
	"github.com/selivandex/pricing-engine/internal/elasticity"
	"github.com/selivandex/pricing-engine/internal/experiments"
	"github.com/selivandex/pricing-engine/internal/health"
	"github.com/selivandex/pricing-engine/internal/optimizer"
	"github.com/selivandex/pricing-engine/internal/pricing"
	"github.com/selivandex/pricing-engine/internal/workers"
	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/metrics"
	"github.com/selivandex/pricing-engine/pkg/models"
	"github.com/selivandex/pricing-engine/pkg/worker"
)

const shutdownTimeout = 25 * time.Second

// Options control what New sets up besides the services
type Options struct {
	// RunMigrations applies pending migrations before anything else
	RunMigrations bool
}

// App holds the wired services and the infrastructure behind them
type App struct {
	Config *config.Config

	Pricing     *pricing.Orchestrator
	Experiments *experiments.Service
	Optimizer   *optimizer.Service
	Elasticity  *elasticity.Estimator

	db        *database.DB
	redis     *redisAdapter.Client
	analytics *metrics.Batcher
	checks    map[string]health.Checker
}

// LoadConfig loads configuration and initializes the logger
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	err = logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Service: "pricing-engine",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// New connects infrastructure and builds every service. Close releases it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, checks: make(map[string]health.Checker)}

	if err := a.initDatabase(opts); err != nil {
		return nil, err
	}

	store, locks, err := a.initCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	events := a.initAnalytics(ctx)

	resultCache := cache.New(store, cfg.Pricing.CacheTimeout)
	sqlDB := a.db.DB()

	a.Elasticity = elasticity.NewEstimator(elasticity.NewRepository(sqlDB), elasticity.Config{
		StoreTimeout: cfg.Elasticity.StoreTimeout,
		MaxAge:       cfg.Elasticity.MaxAge,
		Lookback:     cfg.Elasticity.Lookback,
	})

	expRepo := experiments.NewRepository(sqlDB)
	ledger := experiments.NewLedger(expRepo, events, cfg.Experiments.StoreTimeout)
	assigner := experiments.NewAssigner(expRepo, ledger, resultCache, cfg.Experiments.AssignmentTTL, cfg.Experiments.StoreTimeout)
	a.Experiments = experiments.NewService(expRepo, ledger)

	flights := optimizer.NewRepository(sqlDB)
	a.Optimizer = optimizer.NewService(flights, a.Elasticity, locks, resultCache)

	deps := pricing.Deps{
		Cache:      resultCache,
		Flights:    flights,
		Elasticity: a.Elasticity,
		Assigner:   assigner,
		Events:     events,
	}
	if url := cfg.Providers.DemandURL; url != "" {
		deps.Demand = demand.NewClient(url, cfg.Providers.Timeout)
	} else {
		logger.Info("demand forecast provider not configured")
	}
	if url := cfg.Providers.SegmentationURL; url != "" {
		deps.Segments = segmentation.NewClient(url, cfg.Providers.Timeout)
	} else {
		logger.Info("segmentation provider not configured")
	}

	a.Pricing = pricing.NewOrchestrator(deps, pricing.Config{
		SignalTimeout: cfg.Pricing.SignalTimeout,
		// lookup plus exposure write, each bounded by the store timeout
		AssignTimeout: 2 * cfg.Experiments.StoreTimeout,
		ResultTTL:     cfg.Pricing.ResultTTL,
		Goal:          models.OptimizationGoal(cfg.Pricing.Goal),
		EMAPeriod:     cfg.Pricing.EMAPeriod,
		ForecastDays:  cfg.Providers.ForecastDays,

		BreakerFailures: cfg.Providers.BreakerFailures,
		BreakerCooldown: cfg.Providers.BreakerCooldown,
	})

	logger.Info("pricing services initialized",
		zap.String("goal", cfg.Pricing.Goal),
		zap.Bool("demand_provider", deps.Demand != nil),
		zap.Bool("segmentation_provider", deps.Segments != nil),
		zap.Bool("redis", a.redis != nil),
		zap.Bool("analytics", a.analytics != nil),
	)

	return a, nil
}

func (a *App) initDatabase(opts Options) error {
	db, err := database.New(&a.Config.Database)
	if err != nil {
		return err
	}

	if opts.RunMigrations {
		if err := database.RunMigrations(db.DB().DB, a.Config.Database.MigrationsPath); err != nil {
			db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a.db = db
	a.checks["database"] = db
	return nil
}

// initCache returns the result cache store and apply lock factory.
// Without Redis both live in process memory.
func (a *App) initCache(ctx context.Context) (cache.Store, redisAdapter.LockFactory, error) {
	if !a.Config.Redis.Enabled {
		logger.Warn("redis disabled, using in-memory cache and local locks")
		return cache.NewMemoryStore(), redisAdapter.NewLocalLockFactory(), nil
	}

	client, err := redisAdapter.New(ctx, &a.Config.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.redis = client
	a.checks["redis"] = client
	return client, client.LockFactory(), nil
}

// initAnalytics returns a ClickHouse-backed recorder, or Discard when
// ClickHouse is disabled or unreachable.
func (a *App) initAnalytics(ctx context.Context) metrics.Recorder {
	cfg := a.Config.ClickHouse
	if !cfg.Enabled {
		logger.Info("clickhouse analytics disabled")
		return metrics.Discard
	}

	repo, err := clickhouse.Connect(ctx, cfg.DSN)
	if err != nil {
		logger.Warn("clickhouse not available, analytics events dropped", zap.Error(err))
		return metrics.Discard
	}

	a.analytics = metrics.NewBatcher(metrics.BufferConfig{
		Writer:        repo,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		MaxPending:    cfg.MaxPending,
	})
	a.checks["clickhouse"] = repo
	return a.analytics
}

// Run starts background workers and the health server, then blocks until ctx is done
func (a *App) Run(ctx context.Context) error {
	group := worker.NewGroup(ctx)
	group.Add(workers.NewExperimentLifecycleWorker(a.Experiments), a.Config.Experiments.LifecycleInterval, time.Minute)
	group.Add(workers.NewElasticityRefreshWorker(a.Elasticity), a.Config.Elasticity.RefreshInterval, 30*time.Minute)
	group.Start()

	healthServer := health.NewServer(strconv.Itoa(a.Config.Health.Port), a.checks)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()
	healthServer.SetReady(true)

	logger.Info("pricing engine ready", zap.Int("health_port", a.Config.Health.Port))

	<-ctx.Done()

	return a.shutdown(healthServer, group)
}

func (a *App) shutdown(healthServer *health.Server, group *worker.Group) error {
	logger.Info("shutdown signal received, starting graceful shutdown")

	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	group.Stop(10 * time.Second)

	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	a.closeWith(shutdownCtx)

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded")
		return fmt.Errorf("graceful shutdown timeout")
	default:
		logger.Info("shutdown completed")
	}
	return nil
}

// Close flushes analytics and closes every connection
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.closeWith(ctx)
}

func (a *App) closeWith(ctx context.Context) {
	if a.analytics != nil {
		if err := a.analytics.Close(ctx); err != nil {
			logger.Error("analytics flush error", zap.Error(err))
		}
		a.analytics = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error("database close error", zap.Error(err))
		}
		a.db = nil
	}
	logger.Sync()
}
