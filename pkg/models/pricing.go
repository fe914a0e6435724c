package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Elasticity bounds and fallbacks
const (
	MinElasticity        = -5.0
	MaxElasticity        = -0.1
	DefaultElasticity    = -1.2
	DefaultElasticityR2  = 0.3
	MinElasticitySamples = 10
)

// PriceElasticityEstimate is the stored demand response for one route/cabin market
type PriceElasticityEstimate struct {
	ID            int64           `json:"id" db:"id"`
	OriginID      int64           `json:"origin_id" db:"origin_id"`
	DestinationID int64           `json:"destination_id" db:"destination_id"`
	CabinClass    CabinClass      `json:"cabin_class" db:"cabin_class"`
	Elasticity    float64         `json:"elasticity" db:"elasticity"`
	SampleSize    int             `json:"sample_size" db:"sample_size"`
	Confidence    float64         `json:"confidence" db:"confidence"` // R²
	OptimalPrice  decimal.Decimal `json:"optimal_price" db:"optimal_price"`
	MinPrice      decimal.Decimal `json:"min_price" db:"min_price"`
	MaxPrice      decimal.Decimal `json:"max_price" db:"max_price"`
	PeriodStart   time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time       `json:"period_end" db:"period_end"`
	CalculatedAt  time.Time       `json:"calculated_at" db:"calculated_at"`
	Default       bool            `json:"default" db:"-"`
}

// Route returns the market key of the estimate
func (e *PriceElasticityEstimate) Route() RouteKey {
	return RouteKey{OriginID: e.OriginID, DestinationID: e.DestinationID, CabinClass: e.CabinClass}
}

// DefaultEstimate is the neutral estimate used when history is missing or unreadable
func DefaultEstimate(key RouteKey) PriceElasticityEstimate {
	return PriceElasticityEstimate{
		OriginID:      key.OriginID,
		DestinationID: key.DestinationID,
		CabinClass:    key.CabinClass,
		Elasticity:    DefaultElasticity,
		Confidence:    DefaultElasticityR2,
		Default:       true,
	}
}

// ClampElasticity bounds elasticity to [MinElasticity, MaxElasticity]
func ClampElasticity(e float64) float64 {
	if e < MinElasticity {
		return MinElasticity
	}
	if e > MaxElasticity {
		return MaxElasticity
	}
	return e
}

// PriceSample is one historical (price, occupancy) observation
type PriceSample struct {
	Price         float64   `db:"price"`
	OccupancyRate float64   `db:"occupancy_rate"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// OptimizationGoal selects the optimizer branch
type OptimizationGoal string

const (
	GoalMaximizeRevenue    OptimizationGoal = "maximize_revenue"
	GoalMaximizeLoadFactor OptimizationGoal = "maximize_load_factor"
	GoalMaximizeYield      OptimizationGoal = "maximize_yield"
	GoalBalance            OptimizationGoal = "balance"
)

// Recommendation is the direction of an optimized price
type Recommendation string

const (
	RecommendIncrease Recommendation = "increase"
	RecommendDecrease Recommendation = "decrease"
	RecommendHold     Recommendation = "hold"
)

// OptimizationStatus is the lifecycle of a persisted optimization
type OptimizationStatus string

const (
	OptimizationSuggested OptimizationStatus = "suggested"
	OptimizationApplied   OptimizationStatus = "applied"
)

// PricingFactors is the context the optimizer reacts to
type PricingFactors struct {
	OccupancyRate      float64 `json:"occupancy_rate"`
	DaysUntilDeparture int     `json:"days_until_departure"`
	SeasonalFactor     float64 `json:"seasonal_factor"`
	DemandForecast     float64 `json:"demand_forecast"`
}

// Value stores factors as JSONB
func (f PricingFactors) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads factors from JSONB
func (f *PricingFactors) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*f = PricingFactors{}
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported factors type %T", src)
	}
}

// OptimizationResult is a logged optimizer decision
type OptimizationResult struct {
	ID                       uuid.UUID          `json:"id" db:"id"`
	FlightID                 int64              `json:"flight_id" db:"flight_id"`
	CabinClass               CabinClass         `json:"cabin_class" db:"cabin_class"`
	CurrentPrice             decimal.Decimal    `json:"current_price" db:"current_price"`
	OptimizedPrice           decimal.Decimal    `json:"optimized_price" db:"optimized_price"`
	Multiplier               float64            `json:"multiplier" db:"multiplier"`
	ExpectedRevenueChange    float64            `json:"expected_revenue_change" db:"expected_revenue_change"`
	ExpectedLoadFactorChange float64            `json:"expected_load_factor_change" db:"expected_load_factor_change"`
	Confidence               float64            `json:"confidence" db:"confidence"`
	Factors                  PricingFactors     `json:"factors" db:"factors"`
	Recommendation           Recommendation     `json:"recommendation" db:"recommendation"`
	Goal                     OptimizationGoal   `json:"goal" db:"goal"`
	Status                   OptimizationStatus `json:"status" db:"status"`
	ApprovedBy               *string            `json:"approved_by,omitempty" db:"approved_by"`
	AppliedAt                *time.Time         `json:"applied_at,omitempty" db:"applied_at"`
	CreatedAt                time.Time          `json:"created_at" db:"created_at"`
}

// FlightSnapshot is the live state of one flight cabin used for pricing
type FlightSnapshot struct {
	FlightID      int64           `db:"flight_id"`
	OriginID      int64           `db:"origin_id"`
	DestinationID int64           `db:"destination_id"`
	CabinClass    CabinClass      `db:"cabin_class"`
	Price         decimal.Decimal `db:"price"`
	Capacity      int             `db:"capacity"`
	SeatsSold     int             `db:"seats_sold"`
	DepartureAt   time.Time       `db:"departure_at"`
}

// Route returns the market of the flight cabin
func (f *FlightSnapshot) Route() RouteKey {
	return RouteKey{OriginID: f.OriginID, DestinationID: f.DestinationID, CabinClass: f.CabinClass}
}

// OccupancyRate returns the sold share of the cabin
func (f *FlightSnapshot) OccupancyRate() float64 {
	if f.Capacity <= 0 {
		return 0
	}
	return float64(f.SeatsSold) / float64(f.Capacity)
}

// DaysUntilDeparture returns whole days left at now, never negative
func (f *FlightSnapshot) DaysUntilDeparture(now time.Time) int {
	days := int(f.DepartureAt.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// seasonal multipliers by departure month, January first
var seasonalByMonth = [12]float64{0.85, 0.85, 0.95, 1.0, 1.05, 1.15, 1.25, 1.25, 1.0, 0.95, 0.9, 1.2}

// SeasonalFactor returns the seasonal demand index for a departure date
func SeasonalFactor(departure time.Time) float64 {
	return seasonalByMonth[departure.Month()-1]
}

// DemandPoint is one day of an external demand forecast
type DemandPoint struct {
	Date                  time.Time `json:"date"`
	PredictedDemand       float64   `json:"predicted_demand"`
	RecommendedMultiplier float64   `json:"recommended_multiplier"`
}

// CustomerSegment names a segment a user belongs to
type CustomerSegment struct {
	SegmentName string `json:"segment_name"`
}

// SegmentProfile is the segmentation provider's view of a user
type SegmentProfile struct {
	Segments          []CustomerSegment `json:"segments"`
	PricingAdjustment float64           `json:"pricing_adjustment"`
}

// Names returns segment names in provider order
func (p *SegmentProfile) Names() []string {
	names := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		names = append(names, s.SegmentName)
	}
	return names
}

// PricingComponents are the per-signal multipliers before weighting
type PricingComponents struct {
	Demand       float64 `json:"demand"`
	Optimization float64 `json:"optimization"`
	Segment      float64 `json:"segment"`
	Experiment   float64 `json:"experiment"`
}

// AIPricingResult is the combined multiplier returned to callers
type AIPricingResult struct {
	FlightID       int64              `json:"flight_id"`
	CabinClass     CabinClass         `json:"cabin_class"`
	Identifier     string             `json:"identifier"`
	Multiplier     float64            `json:"multiplier"`
	Confidence     float64            `json:"confidence"`
	Components     PricingComponents  `json:"components"`
	OptimizedPrice decimal.Decimal    `json:"optimized_price"`
	Recommendation Recommendation     `json:"recommendation"`
	Elasticity     float64            `json:"elasticity"`
	Segments       []string           `json:"segments,omitempty"`
	Experiment     *VariantAssignment `json:"experiment,omitempty"`
	ComputedAt     time.Time          `json:"computed_at"`
	Cached         bool               `json:"cached"`
}
