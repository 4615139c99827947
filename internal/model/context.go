// Package model defines the shared data contracts for the learning-loop
// analytics engine: client profiles, strategic paths, outcomes, surveys,
// and recalculation history.
package model

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// CompanySize buckets a client's headcount.
type CompanySize string

const (
	CompanySizeSolo   CompanySize = "solo"
	CompanySizeMicro  CompanySize = "micro"  // 2-10
	CompanySizeSmall  CompanySize = "small"  // 11-50
	CompanySizeMedium CompanySize = "medium" // 51-200
	CompanySizeLarge  CompanySize = "large"  // 200+
)

// IsValid returns true if the company size is a known value.
func (s CompanySize) IsValid() bool {
	switch s {
	case CompanySizeSolo, CompanySizeMicro, CompanySizeSmall, CompanySizeMedium, CompanySizeLarge:
		return true
	default:
		return false
	}
}

// BusinessStage describes where the client is in its lifecycle.
type BusinessStage string

const (
	StageIdea        BusinessStage = "idea"
	StageStartup     BusinessStage = "startup"
	StageGrowth      BusinessStage = "growth"
	StageEstablished BusinessStage = "established"
	StageMature      BusinessStage = "mature"
)

// IsValid returns true if the stage is a known value.
func (s BusinessStage) IsValid() bool {
	switch s {
	case StageIdea, StageStartup, StageGrowth, StageEstablished, StageMature:
		return true
	default:
		return false
	}
}

// TimelinePreference is the client's stated patience for results.
type TimelinePreference string

const (
	TimelineUrgent   TimelinePreference = "urgent"   // results within ~6 months
	TimelineShort    TimelinePreference = "short"    // ~12 months
	TimelineMedium   TimelinePreference = "medium"   // ~24 months
	TimelineFlexible TimelinePreference = "flexible" // multi-year horizon
)

// IsValid returns true if the preference is a known value.
func (p TimelinePreference) IsValid() bool {
	switch p {
	case TimelineUrgent, TimelineShort, TimelineMedium, TimelineFlexible:
		return true
	default:
		return false
	}
}

// HorizonMonths maps the preference to a planning horizon in months.
func (p TimelinePreference) HorizonMonths() float64 {
	switch p {
	case TimelineUrgent:
		return 6
	case TimelineShort:
		return 12
	case TimelineMedium:
		return 24
	case TimelineFlexible:
		return 48
	default:
		return 0
	}
}

// RiskTolerance is the client's appetite for risk.
type RiskTolerance string

const (
	RiskAverse     RiskTolerance = "averse"
	RiskModerate   RiskTolerance = "moderate"
	RiskAggressive RiskTolerance = "aggressive"
)

// IsValid returns true if the tolerance is a known value.
func (r RiskTolerance) IsValid() bool {
	switch r {
	case RiskAverse, RiskModerate, RiskAggressive:
		return true
	default:
		return false
	}
}

// Ordinal maps the tolerance onto a 0-1 scale for alignment math.
func (r RiskTolerance) Ordinal() float64 {
	switch r {
	case RiskAverse:
		return 0.2
	case RiskModerate:
		return 0.5
	case RiskAggressive:
		return 0.8
	default:
		return 0.5
	}
}

// BudgetFlexibility describes how movable the client's capital ceiling is.
type BudgetFlexibility string

const (
	BudgetFixed    BudgetFlexibility = "fixed"
	BudgetSomewhat BudgetFlexibility = "somewhat"
	BudgetFlexible BudgetFlexibility = "flexible"
)

// IsValid returns true if the flexibility is a known value.
func (b BudgetFlexibility) IsValid() bool {
	switch b {
	case BudgetFixed, BudgetSomewhat, BudgetFlexible:
		return true
	default:
		return false
	}
}

// ClientContext is the normalized business profile produced by intake.
// Immutable once scored; the engine only ever reads it.
type ClientContext struct {
	ID               string             `json:"id"`
	Industry         string             `json:"industry"`
	CompanySize      CompanySize        `json:"company_size"`
	AnnualRevenue    *string            `json:"annual_revenue,omitempty"` // decimal string
	YearsInBusiness  *int               `json:"years_in_business,omitempty"`
	Stage            BusinessStage      `json:"stage"`
	PrimaryGoal      string             `json:"primary_goal"`
	BiggestChallenge string             `json:"biggest_challenge"`
	Timeline         TimelinePreference `json:"timeline"`
	RiskTolerance    RiskTolerance      `json:"risk_tolerance"`
	AvailableCapital string             `json:"available_capital"` // decimal string, required
	Budget           BudgetFlexibility  `json:"budget"`
	Constraints      string             `json:"constraints,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Validate checks the required fields and enum values. Intake performs the
// full validation pass; this is the engine-side sanity check.
func (c *ClientContext) Validate() error {
	if c.AvailableCapital == "" {
		return eris.New("context: available capital is required")
	}
	capital, ok := DecimalValue(&c.AvailableCapital)
	if !ok || capital < 0 {
		return eris.Errorf("context: available capital must be a non-negative decimal (got %q)", c.AvailableCapital)
	}
	if c.CompanySize != "" && !c.CompanySize.IsValid() {
		return eris.Errorf("context: unknown company size %q", c.CompanySize)
	}
	if c.Stage != "" && !c.Stage.IsValid() {
		return eris.Errorf("context: unknown business stage %q", c.Stage)
	}
	if c.Timeline != "" && !c.Timeline.IsValid() {
		return eris.Errorf("context: unknown timeline preference %q", c.Timeline)
	}
	if c.RiskTolerance != "" && !c.RiskTolerance.IsValid() {
		return eris.Errorf("context: unknown risk tolerance %q", c.RiskTolerance)
	}
	if c.Budget != "" && !c.Budget.IsValid() {
		return eris.Errorf("context: unknown budget flexibility %q", c.Budget)
	}
	return nil
}

// DecimalValue parses a nullable decimal string into a float64. Monetary
// fields are stored as arbitrary-precision decimals and only converted to
// floating point at the boundary of scoring and variance math.
func DecimalValue(s *string) (float64, bool) {
	if s == nil || *s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
