package survey

import (
	"context"

	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// Mailer hands a survey to the outbound delivery collaborator. Delivery
// itself lives outside this service.
type Mailer interface {
	Send(ctx context.Context, s model.OutcomeSurvey) error
}

// LogMailer records dispatches without sending anything. Used when no
// delivery collaborator is wired in, and in tests.
type LogMailer struct{}

// Send logs the dispatch and reports success.
func (LogMailer) Send(_ context.Context, s model.OutcomeSurvey) error {
	recipient := "unknown"
	if s.RecipientEmail != nil {
		recipient = *s.RecipientEmail
	}
	zap.L().Info("survey: dispatch",
		zap.String("survey_id", s.ID),
		zap.String("path_id", s.PathID),
		zap.String("recipient", recipient),
	)
	return nil
}
