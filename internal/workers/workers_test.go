package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/selivandex/pricing-engine/pkg/models"
)

type completer struct {
	n   int
	err error
}

func (c completer) CompleteExpired(context.Context) (int, error) { return c.n, c.err }

func TestExperimentLifecycleWorker_Run(t *testing.T) {
	if err := NewExperimentLifecycleWorker(completer{n: 2}).Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	boom := errors.New("store down")
	if err := NewExperimentLifecycleWorker(completer{n: 1, err: boom}).Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

type refresher struct {
	routes    []models.RouteKey
	listErr   error
	refreshed []models.RouteKey
	cancel    context.CancelFunc
}

func (r *refresher) ActiveRoutes(context.Context) ([]models.RouteKey, error) {
	return r.routes, r.listErr
}

func (r *refresher) Refresh(_ context.Context, key models.RouteKey) models.PriceElasticityEstimate {
	r.refreshed = append(r.refreshed, key)
	if r.cancel != nil {
		r.cancel()
	}
	est := models.DefaultEstimate(key)
	est.Default = key.OriginID%2 == 0
	return est
}

func TestElasticityRefreshWorker_Run(t *testing.T) {
	routes := []models.RouteKey{
		{OriginID: 1, DestinationID: 2, CabinClass: models.CabinEconomy},
		{OriginID: 2, DestinationID: 1, CabinClass: models.CabinEconomy},
		{OriginID: 3, DestinationID: 4, CabinClass: models.CabinBusiness},
	}

	t.Run("refreshes every route", func(t *testing.T) {
		r := &refresher{routes: routes}
		if err := NewElasticityRefreshWorker(r).Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(r.refreshed) != len(routes) {
			t.Errorf("refreshed %d routes, want %d", len(r.refreshed), len(routes))
		}
	})

	t.Run("list failure", func(t *testing.T) {
		r := &refresher{listErr: errors.New("timeout")}
		if err := NewElasticityRefreshWorker(r).Run(context.Background()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		r := &refresher{routes: routes, cancel: cancel}
		if err := NewElasticityRefreshWorker(r).Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
		if len(r.refreshed) != 1 {
			t.Errorf("refreshed %d routes after cancel, want 1", len(r.refreshed))
		}
	})
}
