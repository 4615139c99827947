package model

import "time"

// ConfidenceLevel grades how much evidence backs a path's published metrics.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// IsValid returns true if the confidence level is a known value.
func (c ConfidenceLevel) IsValid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	default:
		return false
	}
}

// PathMetrics holds the published, recalculable metrics of a strategic path.
// Mutated exclusively by the metric recalculator.
type PathMetrics struct {
	SuccessRate float64         `json:"success_rate"` // percent, one decimal
	CaseCount   int             `json:"case_count"`
	TimelineP25 float64         `json:"timeline_p25_months"`
	TimelineP75 float64         `json:"timeline_p75_months"`
	CapitalP25  string          `json:"capital_p25"` // decimal string
	CapitalP75  string          `json:"capital_p75"` // decimal string
	RiskScore   float64         `json:"risk_score"`  // 0-10
	Confidence  ConfidenceLevel `json:"confidence"`
}

// StrategicPath is a recommendable growth strategy with published metrics.
type StrategicPath struct {
	ID                 string      `json:"id"`
	Slug               string      `json:"slug"`
	Name               string      `json:"name"`
	Summary            string      `json:"summary"`
	Metrics            PathMetrics `json:"metrics"`
	ContradictionFlags []string    `json:"contradiction_flags,omitempty"`
	ModelVersion       int         `json:"model_version"`
	LastAggregated     time.Time   `json:"last_aggregated"`
	Active             bool        `json:"active"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// PathExploration records a client committing to a path, snapshotting the
// predictions in force at recommendation time. Surveys and outcomes hang off
// an exploration so later drift is measured against what was actually
// promised, not against recalculated metrics.
type PathExploration struct {
	ID                      string        `json:"id"`
	PathID                  string        `json:"path_id"`
	Context                 ClientContext `json:"context"`
	PredictedTimelineMonths float64       `json:"predicted_timeline_months"`
	PredictedCost           string        `json:"predicted_cost"` // decimal string
	PredictedSuccessRate    float64       `json:"predicted_success_rate"`
	ModelVersion            int           `json:"model_version"` // path version at exploration time
	CreatedAt               time.Time     `json:"created_at"`
}
