package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// TestStatus is the lifecycle state of an A/B test
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestRunning   TestStatus = "running"
	TestPaused    TestStatus = "paused"
	TestCompleted TestStatus = "completed"
	TestCancelled TestStatus = "cancelled"
)

// ABTest is a pricing experiment with its variants
type ABTest struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Description       string          `json:"description" db:"description"`
	Status            TestStatus      `json:"status" db:"status"`
	StartDate         *time.Time      `json:"start_date,omitempty" db:"start_date"`
	EndDate           *time.Time      `json:"end_date,omitempty" db:"end_date"`
	TrafficPercentage int             `json:"traffic_percentage" db:"traffic_percentage"`
	MinimumSampleSize int64           `json:"minimum_sample_size" db:"minimum_sample_size"`
	ConfidenceLevel   float64         `json:"confidence_level" db:"confidence_level"`
	CabinClasses      pq.StringArray  `json:"cabin_classes" db:"cabin_classes"` // empty = every cabin
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	Variants          []ABTestVariant `json:"variants" db:"-"`
}

// IsActiveAt reports whether the test is running and inside its date window
func (t *ABTest) IsActiveAt(now time.Time) bool {
	if t.Status != TestRunning {
		return false
	}
	if t.StartDate == nil || t.StartDate.After(now) {
		return false
	}
	return t.EndDate == nil || !t.EndDate.Before(now)
}

// MatchesCabin reports whether the cabin filter admits cabin
func (t *ABTest) MatchesCabin(cabin CabinClass) bool {
	if len(t.CabinClasses) == 0 {
		return true
	}
	for _, c := range t.CabinClasses {
		if CabinClass(c) == cabin {
			return true
		}
	}
	return false
}

// TotalWeight sums variant weights
func (t *ABTest) TotalWeight() int {
	total := 0
	for _, v := range t.Variants {
		total += v.Weight
	}
	return total
}

// Control returns the control variant, nil when absent
func (t *ABTest) Control() *ABTestVariant {
	for i := range t.Variants {
		if t.Variants[i].IsControl {
			return &t.Variants[i]
		}
	}
	return nil
}

// ABTestVariant is one arm of a test with its running counters
type ABTestVariant struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	TestID       uuid.UUID       `json:"test_id" db:"test_id"`
	Name         string          `json:"name" db:"name"`
	IsControl    bool            `json:"is_control" db:"is_control"`
	Strategy     PricingStrategy `json:"-" db:"-"`
	Weight       int             `json:"weight" db:"weight"`
	Position     int             `json:"position" db:"position"`
	Impressions  int64           `json:"impressions" db:"impressions"`
	Conversions  int64           `json:"conversions" db:"conversions"`
	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`
}

// MarshalJSON writes the strategy in its tagged form
func (v ABTestVariant) MarshalJSON() ([]byte, error) {
	type alias ABTestVariant
	return json.Marshal(struct {
		alias
		Strategy StrategySpec `json:"pricing_strategy"`
	}{alias(v), SpecOf(v.Strategy)})
}

// Exposure records an identifier being shown a variant
type Exposure struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	TestID      uuid.UUID       `json:"test_id" db:"test_id"`
	VariantID   uuid.UUID       `json:"variant_id" db:"variant_id"`
	Identifier  string          `json:"identifier" db:"identifier"`
	FlightID    int64           `json:"flight_id" db:"flight_id"`
	Converted   bool            `json:"converted" db:"converted"`
	BookingID   *string         `json:"booking_id,omitempty" db:"booking_id"`
	Revenue     decimal.Decimal `json:"revenue" db:"revenue"`
	ExposedAt   time.Time       `json:"exposed_at" db:"exposed_at"`
	ConvertedAt *time.Time      `json:"converted_at,omitempty" db:"converted_at"`
}

// VariantAssignment is the cached bucket an identifier landed in.
// CabinClasses and EndDate copy the test's filter so a cached entry can be
// rejected without a store round trip.
type VariantAssignment struct {
	TestID       uuid.UUID       `json:"test_id"`
	VariantID    uuid.UUID       `json:"variant_id"`
	VariantName  string          `json:"variant_name"`
	Strategy     PricingStrategy `json:"-"`
	AssignedAt   time.Time       `json:"assigned_at"`
	CabinClasses []string        `json:"cabin_classes,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
}

// Admits reports whether the assignment still applies to cabin at now
func (a *VariantAssignment) Admits(cabin CabinClass, now time.Time) bool {
	if a.EndDate != nil && a.EndDate.Before(now) {
		return false
	}
	if len(a.CabinClasses) == 0 {
		return true
	}
	for _, c := range a.CabinClasses {
		if CabinClass(c) == cabin {
			return true
		}
	}
	return false
}

func (a VariantAssignment) MarshalJSON() ([]byte, error) {
	type alias VariantAssignment
	return json.Marshal(struct {
		alias
		Strategy StrategySpec `json:"pricing_strategy"`
	}{alias(a), SpecOf(a.Strategy)})
}

func (a *VariantAssignment) UnmarshalJSON(data []byte) error {
	type alias VariantAssignment
	aux := struct {
		*alias
		Strategy StrategySpec `json:"pricing_strategy"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	strategy, err := aux.Strategy.Strategy()
	if err != nil {
		return fmt.Errorf("failed to decode assignment strategy: %w", err)
	}
	a.Strategy = strategy
	return nil
}

// IdentifierKind distinguishes logged-in users from anonymous sessions
type IdentifierKind string

const (
	IdentifierUser    IdentifierKind = "user"
	IdentifierSession IdentifierKind = "session"
)

// Identifier is the subject being priced and bucketed
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// UserIdentifier builds a user:<id> identifier
func UserIdentifier(id string) Identifier {
	return Identifier{Kind: IdentifierUser, Value: id}
}

// SessionIdentifier builds a session:<id> identifier
func SessionIdentifier(id string) Identifier {
	return Identifier{Kind: IdentifierSession, Value: id}
}

func (i Identifier) String() string {
	return string(i.Kind) + ":" + i.Value
}

// IsUser reports whether the identifier names a known user
func (i Identifier) IsUser() bool {
	return i.Kind == IdentifierUser
}

// ParseIdentifier parses user:<id> or session:<id>
func ParseIdentifier(raw string) (Identifier, error) {
	kind, value, ok := strings.Cut(raw, ":")
	if !ok || value == "" {
		return Identifier{}, fmt.Errorf("%w: malformed identifier %q", ErrValidation, raw)
	}
	switch IdentifierKind(kind) {
	case IdentifierUser, IdentifierSession:
		return Identifier{Kind: IdentifierKind(kind), Value: value}, nil
	default:
		return Identifier{}, fmt.Errorf("%w: unknown identifier kind %q", ErrValidation, kind)
	}
}
