package experiments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// VariantRequest describes one arm of a new test
type VariantRequest struct {
	Name      string              `json:"name" validate:"required,max=100"`
	IsControl bool                `json:"is_control"`
	Strategy  models.StrategySpec `json:"pricing_strategy"`
	Weight    int                 `json:"weight" validate:"gt=0"`
}

// CreateExperimentRequest is the input of CreateExperiment
type CreateExperimentRequest struct {
	Name              string              `json:"name" validate:"required,max=200"`
	Description       string              `json:"description"`
	StartDate         *time.Time          `json:"start_date,omitempty"`
	EndDate           *time.Time          `json:"end_date,omitempty"`
	TrafficPercentage int                 `json:"traffic_percentage" validate:"gte=0,lte=100"`
	MinimumSampleSize int64               `json:"minimum_sample_size" validate:"gte=1"`
	ConfidenceLevel   float64             `json:"confidence_level" validate:"gt=0,lt=1"`
	CabinClasses      []models.CabinClass `json:"cabin_classes,omitempty"`
	Variants          []VariantRequest    `json:"variants" validate:"min=2,dive"`
}

// Service manages experiment definitions and their lifecycle
type Service struct {
	store    Store
	ledger   *Ledger
	validate *validator.Validate
	nowFn    func() time.Time
}

// NewService creates experiment lifecycle service
func NewService(store Store, ledger *Ledger) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		validate: validator.New(),
		nowFn:    time.Now,
	}
}

// CreateExperiment validates and stores a draft test
func (s *Service) CreateExperiment(ctx context.Context, req CreateExperimentRequest) (*models.ABTest, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, describeValidation(err))
	}

	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, fmt.Errorf("%w: end date must be after start date", models.ErrValidation)
	}

	cabins := make(pq.StringArray, 0, len(req.CabinClasses))
	for _, c := range req.CabinClasses {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown cabin class %q", models.ErrValidation, c)
		}
		cabins = append(cabins, string(c))
	}

	now := s.nowFn()
	test := &models.ABTest{
		ID:                uuid.New(),
		Name:              req.Name,
		Description:       req.Description,
		Status:            models.TestDraft,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		TrafficPercentage: req.TrafficPercentage,
		MinimumSampleSize: req.MinimumSampleSize,
		ConfidenceLevel:   req.ConfidenceLevel,
		CabinClasses:      cabins,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	controls := 0
	names := make(map[string]struct{}, len(req.Variants))
	for i, vr := range req.Variants {
		if _, dup := names[vr.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate variant name %q", models.ErrValidation, vr.Name)
		}
		names[vr.Name] = struct{}{}

		strategy, err := vr.Strategy.Strategy()
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", vr.Name, err)
		}
		if vr.IsControl {
			controls++
		}

		test.Variants = append(test.Variants, models.ABTestVariant{
			ID:        uuid.New(),
			TestID:    test.ID,
			Name:      vr.Name,
			IsControl: vr.IsControl,
			Strategy:  strategy,
			Weight:    vr.Weight,
			Position:  i,
		})
	}
	if controls != 1 {
		return nil, fmt.Errorf("%w: exactly one control variant is required, got %d", models.ErrValidation, controls)
	}

	if err := s.store.CreateTest(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	logger.Info("experiment created",
		zap.String("test_id", test.ID.String()),
		zap.String("name", test.Name),
		zap.Int("variants", len(test.Variants)),
	)
	return test, nil
}

// StartExperiment moves a draft or paused test to running
func (s *Service) StartExperiment(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []models.TestStatus{models.TestDraft, models.TestPaused}, models.TestRunning)
}

// PauseExperiment stops assigning new identifiers to a running test
func (s *Service) PauseExperiment(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []models.TestStatus{models.TestRunning}, models.TestPaused)
}

// CompleteExperiment closes a running or paused test
func (s *Service) CompleteExperiment(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []models.TestStatus{models.TestRunning, models.TestPaused}, models.TestCompleted)
}

// CancelExperiment abandons a test that has not completed
func (s *Service) CancelExperiment(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []models.TestStatus{models.TestDraft, models.TestRunning, models.TestPaused}, models.TestCancelled)
}

// GetExperiment returns a test with its variants
func (s *Service) GetExperiment(ctx context.Context, id uuid.UUID) (*models.ABTest, error) {
	test, err := s.store.GetTest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}
	return test, nil
}

// GetExperimentResults builds the statistical report of a test
func (s *Service) GetExperimentResults(ctx context.Context, id uuid.UUID) (*Report, error) {
	test, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildReport(test, s.nowFn()), nil
}

// RecordConversion attributes a booking to an experiment exposure
func (s *Service) RecordConversion(ctx context.Context, req ConversionRequest) (ConversionOutcome, error) {
	return s.ledger.RecordConversion(ctx, req)
}

// CompleteExpired completes live tests past their end date and returns how many it closed
func (s *Service) CompleteExpired(ctx context.Context) (int, error) {
	now := s.nowFn()
	tests, err := s.store.ExpiredTests(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired experiments: %w", err)
	}

	completed := 0
	for _, t := range tests {
		err := s.CompleteExperiment(ctx, t.ID)
		switch {
		case err == nil:
			completed++
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrNotFound):
			// changed concurrently
		default:
			return completed, err
		}
	}
	return completed, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from []models.TestStatus, to models.TestStatus) error {
	if err := s.store.TransitionStatus(ctx, id, from, to, s.nowFn()); err != nil {
		return fmt.Errorf("experiment %s: %w", id, err)
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	logger.Info("experiment status changed",
		zap.String("test_id", id.String()),
		zap.String("status", string(to)),
	)
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
