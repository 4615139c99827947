package model

import "time"

// TriggerType records what initiated a recalculation.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// IsValid returns true if the trigger type is a known value.
func (t TriggerType) IsValid() bool {
	return t == TriggerManual || t == TriggerScheduled
}

// RecalcStatus is the final state of a recalculation attempt.
type RecalcStatus string

const (
	RecalcCompleted RecalcStatus = "completed"
	RecalcFailed    RecalcStatus = "failed"
	RecalcSkipped   RecalcStatus = "skipped"
)

// RecalculationRun is the append-only audit record of one recalculation
// attempt for one path.
type RecalculationRun struct {
	ID                string       `json:"id"`
	PathID            string       `json:"path_id"`
	Trigger           TriggerType  `json:"trigger"`
	Actor             string       `json:"actor"`
	OutcomesProcessed int          `json:"outcomes_processed"`
	ResultVersion     int          `json:"result_version"`
	Status            RecalcStatus `json:"status"`
	Error             string       `json:"error,omitempty"`
	StartedAt         time.Time    `json:"started_at"`
	FinishedAt        time.Time    `json:"finished_at"`
}
