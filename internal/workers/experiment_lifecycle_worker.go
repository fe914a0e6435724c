package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

// ExpiredCompleter completes running experiments past their end date
type ExpiredCompleter interface {
	CompleteExpired(ctx context.Context) (int, error)
}

// ExperimentLifecycleWorker closes experiments whose end date has passed
type ExperimentLifecycleWorker struct {
	experiments ExpiredCompleter
}

// NewExperimentLifecycleWorker creates new experiment lifecycle worker
func NewExperimentLifecycleWorker(experiments ExpiredCompleter) *ExperimentLifecycleWorker {
	return &ExperimentLifecycleWorker{experiments: experiments}
}

// Name returns worker name
func (w *ExperimentLifecycleWorker) Name() string {
	return "experiment_lifecycle"
}

// Run executes one iteration
func (w *ExperimentLifecycleWorker) Run(ctx context.Context) error {
	completed, err := w.experiments.CompleteExpired(ctx)
	if completed > 0 {
		logger.Info("expired experiments completed", zap.Int("count", completed))
	}
	return err
}
