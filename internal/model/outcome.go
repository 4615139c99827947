package model

import "time"

// OutcomeCategory is the realized result of an explored path.
type OutcomeCategory string

const (
	OutcomeSuccess   OutcomeCategory = "success"
	OutcomePartial   OutcomeCategory = "partial"
	OutcomeFailure   OutcomeCategory = "failure"
	OutcomePivoted   OutcomeCategory = "pivoted"
	OutcomeAbandoned OutcomeCategory = "abandoned"
)

// IsValid returns true if the category is a known value.
func (c OutcomeCategory) IsValid() bool {
	switch c {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure, OutcomePivoted, OutcomeAbandoned:
		return true
	default:
		return false
	}
}

// CountsAsSuccess reports whether the category contributes to the actual
// success rate (full and partial successes both count).
func (c OutcomeCategory) CountsAsSuccess() bool {
	return c == OutcomeSuccess || c == OutcomePartial
}

// CarriesFailureLayer reports whether a failure attribution layer applies.
func (c OutcomeCategory) CarriesFailureLayer() bool {
	return c == OutcomeFailure || c == OutcomePivoted || c == OutcomeAbandoned
}

// FailureLayer attributes where a non-success went wrong, following the
// reality / understanding / decision / action breakdown.
type FailureLayer string

const (
	LayerReality       FailureLayer = "reality"
	LayerUnderstanding FailureLayer = "understanding"
	LayerDecision      FailureLayer = "decision"
	LayerAction        FailureLayer = "action"
)

// IsValid returns true if the layer is a known value.
func (l FailureLayer) IsValid() bool {
	switch l {
	case LayerReality, LayerUnderstanding, LayerDecision, LayerAction:
		return true
	default:
		return false
	}
}

// PathOutcome is one realized result tied to a path. The predicted fields are
// snapshotted at recommendation time; the actual fields are populated once,
// when a survey response arrives, and never mutated after that.
type PathOutcome struct {
	ID            string  `json:"id"`
	PathID        string  `json:"path_id"`
	ExplorationID *string `json:"exploration_id,omitempty"`

	PredictedTimelineMonths *float64 `json:"predicted_timeline_months,omitempty"`
	PredictedCost           *string  `json:"predicted_cost,omitempty"` // decimal string
	PredictedSuccessRate    *float64 `json:"predicted_success_rate,omitempty"`

	ActualTimelineMonths *float64         `json:"actual_timeline_months,omitempty"`
	ActualCost           *string          `json:"actual_cost,omitempty"` // decimal string
	ActualOutcome        *OutcomeCategory `json:"actual_outcome,omitempty"`
	FailureLayer         *FailureLayer    `json:"failure_layer,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the actual result has been recorded. Only
// completed outcomes feed published metrics.
func (o *PathOutcome) Completed() bool {
	return o.ActualOutcome != nil
}
