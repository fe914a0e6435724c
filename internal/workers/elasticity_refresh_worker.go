package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// ElasticityRefresher recomputes stored elasticity estimates
type ElasticityRefresher interface {
	ActiveRoutes(ctx context.Context) ([]models.RouteKey, error)
	Refresh(ctx context.Context, key models.RouteKey) models.PriceElasticityEstimate
}

// ElasticityRefreshWorker recomputes estimates for every route with recent price history
type ElasticityRefreshWorker struct {
	estimator ElasticityRefresher
}

// NewElasticityRefreshWorker creates new elasticity refresh worker
func NewElasticityRefreshWorker(estimator ElasticityRefresher) *ElasticityRefreshWorker {
	return &ElasticityRefreshWorker{estimator: estimator}
}

// Name returns worker name
func (w *ElasticityRefreshWorker) Name() string {
	return "elasticity_refresh"
}

// Run executes one iteration. A cancelled context stops the sweep early.
func (w *ElasticityRefreshWorker) Run(ctx context.Context) error {
	routes, err := w.estimator.ActiveRoutes(ctx)
	if err != nil {
		return err
	}

	var fitted, defaulted int
	for _, route := range routes {
		if ctx.Err() != nil {
			logger.Warn("elasticity refresh interrupted",
				zap.Int("done", fitted+defaulted),
				zap.Int("routes", len(routes)),
			)
			return ctx.Err()
		}

		est := w.estimator.Refresh(ctx, route)
		if est.Default {
			defaulted++
			continue
		}
		fitted++
	}

	logger.Info("elasticity estimates refreshed",
		zap.Int("routes", len(routes)),
		zap.Int("fitted", fitted),
		zap.Int("default", defaulted),
	)
	return nil
}
