package metrics

import "time"

// PricingDecisionEvent is one orchestrator result
type PricingDecisionEvent struct {
	Timestamp      time.Time
	FlightID       int64
	CabinClass     string
	Identifier     string
	Multiplier     float64
	Confidence     float64
	Demand         float64
	Optimization   float64
	Segment        float64
	Experiment     float64
	Elasticity     float64
	Recommendation string
	TestID         string // empty without an assignment
	VariantID      string
	DurationMs     int64
}

func (e *PricingDecisionEvent) Table() string { return "pricing_decisions" }

func (e *PricingDecisionEvent) Columns() []string {
	return []string{
		"timestamp", "flight_id", "cabin_class", "identifier", "multiplier", "confidence",
		"demand_multiplier", "optimization_multiplier", "segment_multiplier", "experiment_multiplier",
		"elasticity", "recommendation", "test_id", "variant_id", "duration_ms",
	}
}

func (e *PricingDecisionEvent) Row() []interface{} {
	return []interface{}{
		e.Timestamp, e.FlightID, e.CabinClass, e.Identifier, e.Multiplier, e.Confidence,
		e.Demand, e.Optimization, e.Segment, e.Experiment,
		e.Elasticity, e.Recommendation, e.TestID, e.VariantID, e.DurationMs,
	}
}

// ExposureEvent is a first-time variant exposure
type ExposureEvent struct {
	Timestamp  time.Time
	TestID     string
	VariantID  string
	Identifier string
	FlightID   int64
}

func (e *ExposureEvent) Table() string { return "experiment_exposures" }

func (e *ExposureEvent) Columns() []string {
	return []string{"timestamp", "test_id", "variant_id", "identifier", "flight_id"}
}

func (e *ExposureEvent) Row() []interface{} {
	return []interface{}{e.Timestamp, e.TestID, e.VariantID, e.Identifier, e.FlightID}
}

// ConversionEvent is a booking attributed to an exposure
type ConversionEvent struct {
	Timestamp  time.Time
	TestID     string
	VariantID  string
	Identifier string
	BookingID  string
	Revenue    float64
}

func (e *ConversionEvent) Table() string { return "experiment_conversions" }

func (e *ConversionEvent) Columns() []string {
	return []string{"timestamp", "test_id", "variant_id", "identifier", "booking_id", "revenue"}
}

func (e *ConversionEvent) Row() []interface{} {
	return []interface{}{e.Timestamp, e.TestID, e.VariantID, e.Identifier, e.BookingID, e.Revenue}
}
