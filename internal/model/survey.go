package model

import "time"

// SurveyStatus tracks the outcome-survey lifecycle:
// pending -> sent -> completed | skipped | expired.
type SurveyStatus string

const (
	SurveyPending   SurveyStatus = "pending"
	SurveySent      SurveyStatus = "sent"
	SurveyCompleted SurveyStatus = "completed"
	SurveySkipped   SurveyStatus = "skipped"
	SurveyExpired   SurveyStatus = "expired"
)

// IsValid returns true if the status is a known value.
func (s SurveyStatus) IsValid() bool {
	switch s {
	case SurveyPending, SurveySent, SurveyCompleted, SurveySkipped, SurveyExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the survey can no longer change state.
func (s SurveyStatus) Terminal() bool {
	return s == SurveyCompleted || s == SurveySkipped || s == SurveyExpired
}

// OutcomeSurvey is a scheduled request for the real-world result of an
// exploration. Submission creates the PathOutcome that feeds the loop.
type OutcomeSurvey struct {
	ID             string       `json:"id"`
	ExplorationID  string       `json:"exploration_id"`
	PathID         string       `json:"path_id"`
	RecipientEmail *string      `json:"recipient_email,omitempty"`
	Status         SurveyStatus `json:"status"`
	ScheduledFor   time.Time    `json:"scheduled_for"`
	SentAt         *time.Time   `json:"sent_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
