package experiments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selivandex/pricing-engine/internal/stats"
	"github.com/selivandex/pricing-engine/pkg/models"
)

// VariantResult is the aggregate performance of one variant
type VariantResult struct {
	VariantID            uuid.UUID       `json:"variant_id"`
	Name                 string          `json:"name"`
	IsControl            bool            `json:"is_control"`
	Impressions          int64           `json:"impressions"`
	Conversions          int64           `json:"conversions"`
	ConversionRate       float64         `json:"conversion_rate"`
	Revenue              decimal.Decimal `json:"revenue"`
	RevenuePerImpression float64         `json:"revenue_per_impression"`

	// set for treatments only
	RelativeLift  float64 `json:"relative_lift"`
	PValue        float64 `json:"p_value"`
	ZScore        float64 `json:"z_score"`
	IsSignificant bool    `json:"is_significant"`
	Power         float64 `json:"power"`
}

// Report summarizes a test for decision making
type Report struct {
	TestID            uuid.UUID         `json:"test_id"`
	Name              string            `json:"name"`
	Status            models.TestStatus `json:"status"`
	ConfidenceLevel   float64           `json:"confidence_level"`
	MinimumSampleSize int64             `json:"minimum_sample_size"`
	Variants          []VariantResult   `json:"variants"`
	HasSufficientData bool              `json:"has_sufficient_data"`
	Winner            *VariantResult    `json:"winner,omitempty"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// BuildReport computes per-variant statistics against the control variant
func BuildReport(test *models.ABTest, now time.Time) *Report {
	report := &Report{
		TestID:            test.ID,
		Name:              test.Name,
		Status:            test.Status,
		ConfidenceLevel:   test.ConfidenceLevel,
		MinimumSampleSize: test.MinimumSampleSize,
		Variants:          make([]VariantResult, 0, len(test.Variants)),
		HasSufficientData: len(test.Variants) > 0,
		GeneratedAt:       now,
	}

	control := test.Control()
	var controlSample stats.Sample
	if control != nil {
		controlSample = stats.Sample{Impressions: control.Impressions, Conversions: control.Conversions}
	}

	anySignificant := false
	for _, v := range test.Variants {
		sample := stats.Sample{Impressions: v.Impressions, Conversions: v.Conversions}
		res := VariantResult{
			VariantID:      v.ID,
			Name:           v.Name,
			IsControl:      v.IsControl,
			Impressions:    v.Impressions,
			Conversions:    v.Conversions,
			ConversionRate: sample.ConversionRate(),
			Revenue:        v.TotalRevenue,
		}
		if v.Impressions > 0 {
			res.RevenuePerImpression = models.ToFloat64(v.TotalRevenue) / float64(v.Impressions)
		}

		if !v.IsControl && control != nil {
			z := stats.TwoProportionZTest(controlSample, sample, test.ConfidenceLevel)
			res.RelativeLift = stats.RelativeLift(controlSample.ConversionRate(), res.ConversionRate)
			res.PValue = z.PValue
			res.ZScore = z.ZScore
			res.IsSignificant = z.IsSignificant
			res.Power = stats.EstimatePower(
				controlSample.ConversionRate(),
				res.ConversionRate,
				controlSample.Impressions+sample.Impressions,
			)
			anySignificant = anySignificant || z.IsSignificant
		}

		if v.Impressions < test.MinimumSampleSize {
			report.HasSufficientData = false
		}
		report.Variants = append(report.Variants, res)
	}

	if anySignificant {
		report.Winner = pickWinner(report.Variants)
	}
	return report
}

// pickWinner returns the best revenue per impression among the control and significant treatments
func pickWinner(variants []VariantResult) *VariantResult {
	var best *VariantResult
	for i := range variants {
		v := &variants[i]
		if !v.IsControl && !v.IsSignificant {
			continue
		}
		if best == nil || v.RevenuePerImpression > best.RevenuePerImpression {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	winner := *best
	return &winner
}
