// Package survey manages the outcome-survey lifecycle that feeds realized
// results back into the analytics loop.
package survey

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pathlight-hq/pathlight/internal/config"
	"github.com/pathlight-hq/pathlight/internal/model"
	"github.com/pathlight-hq/pathlight/internal/resilience"
)

// ErrSurveyClosed is returned when a submission or skip targets a survey
// already in a terminal state.
var ErrSurveyClosed = eris.New("survey: already closed")

// Source is the store access the scheduler needs.
type Source interface {
	GetExploration(ctx context.Context, id string) (*model.PathExploration, error)
	CreateOutcome(ctx context.Context, o model.PathOutcome) (*model.PathOutcome, error)
	CreateSurvey(ctx context.Context, s model.OutcomeSurvey) (*model.OutcomeSurvey, error)
	GetSurvey(ctx context.Context, id string) (*model.OutcomeSurvey, error)
	ListDueSurveys(ctx context.Context, now time.Time, limit int) ([]model.OutcomeSurvey, error)
	UpdateSurveyStatus(ctx context.Context, id string, status model.SurveyStatus) error
	ExpireSurveys(ctx context.Context, sentBefore time.Time) (int, error)
}

// Submission is a survey response: the realized result of an exploration.
type Submission struct {
	ActualTimelineMonths *float64              `json:"actual_timeline_months,omitempty"`
	ActualCost           *string               `json:"actual_cost,omitempty"`
	Outcome              model.OutcomeCategory `json:"outcome"`
	FailureLayer         *model.FailureLayer   `json:"failure_layer,omitempty"`
}

// Validate checks a submission before it becomes evidence.
func (s Submission) Validate() error {
	if !s.Outcome.IsValid() {
		return eris.Errorf("survey: unknown outcome category %q", s.Outcome)
	}
	if s.FailureLayer != nil {
		if !s.FailureLayer.IsValid() {
			return eris.Errorf("survey: unknown failure layer %q", *s.FailureLayer)
		}
		if !s.Outcome.CarriesFailureLayer() {
			return eris.Errorf("survey: failure layer not applicable to %q outcome", s.Outcome)
		}
	}
	if s.ActualCost != nil {
		if _, ok := model.DecimalValue(s.ActualCost); !ok {
			return eris.Errorf("survey: actual cost %q is not a decimal", *s.ActualCost)
		}
	}
	return nil
}

// Scheduler creates, dispatches, collects and expires outcome surveys.
type Scheduler struct {
	store   Source
	mailer  Mailer
	cfg     config.SurveyConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewScheduler creates a Scheduler. A nil mailer falls back to LogMailer.
func NewScheduler(store Source, mailer Mailer, cfg config.SurveyConfig) *Scheduler {
	if mailer == nil {
		mailer = LogMailer{}
	}
	perSecond := cfg.DispatchPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Scheduler{
		store:   store,
		mailer:  mailer,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		now:     time.Now,
	}
}

// Create schedules an outcome survey for an exploration, due after the
// configured follow-up window.
func (s *Scheduler) Create(ctx context.Context, explorationID string, recipient *string) (*model.OutcomeSurvey, error) {
	exp, err := s.store.GetExploration(ctx, explorationID)
	if err != nil {
		return nil, eris.Wrapf(err, "survey: load exploration %s", explorationID)
	}

	now := s.now()
	created, err := s.store.CreateSurvey(ctx, model.OutcomeSurvey{
		ID:             uuid.NewString(),
		ExplorationID:  exp.ID,
		PathID:         exp.PathID,
		RecipientEmail: recipient,
		Status:         model.SurveyPending,
		ScheduledFor:   now.AddDate(0, 0, s.cfg.FollowUpDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, eris.Wrap(err, "survey: create")
	}

	zap.L().Info("survey: scheduled",
		zap.String("survey_id", created.ID),
		zap.String("exploration_id", exp.ID),
		zap.Time("scheduled_for", created.ScheduledFor),
	)
	return created, nil
}

// DispatchDue sends every pending survey whose scheduled time has passed, up
// to the configured batch size, rate-limited toward the mail collaborator.
// Returns the number dispatched. Per-survey send failures are logged and the
// survey stays pending for the next run.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.store.ListDueSurveys(ctx, s.now(), s.cfg.DispatchBatch)
	if err != nil {
		return 0, eris.Wrap(err, "survey: list due")
	}

	sent := 0
	for _, sv := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, eris.Wrap(err, "survey: dispatch cancelled")
		}
		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger("survey", "send")
		err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			return s.mailer.Send(ctx, sv)
		})
		if err != nil {
			zap.L().Warn("survey: send failed",
				zap.String("survey_id", sv.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.store.UpdateSurveyStatus(ctx, sv.ID, model.SurveySent); err != nil {
			zap.L().Error("survey: mark sent failed",
				zap.String("survey_id", sv.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	if len(due) > 0 {
		zap.L().Info("survey: dispatch run",
			zap.Int("due", len(due)),
			zap.Int("sent", sent),
		)
	}
	return sent, nil
}

// Submit records a survey response as a completed PathOutcome, snapshotting
// the predictions from the exploration, and closes the survey. The outcome
// row is append-only evidence; submitting twice is rejected.
func (s *Scheduler) Submit(ctx context.Context, surveyID string, sub Submission) (*model.PathOutcome, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, eris.Wrapf(err, "survey: load %s", surveyID)
	}
	if sv.Status.Terminal() {
		return nil, eris.Wrapf(ErrSurveyClosed, "survey %s is %s", surveyID, sv.Status)
	}

	exp, err := s.store.GetExploration(ctx, sv.ExplorationID)
	if err != nil {
		return nil, eris.Wrapf(err, "survey: load exploration %s", sv.ExplorationID)
	}

	now := s.now()
	outcome := sub.Outcome
	o := model.PathOutcome{
		ID:            uuid.NewString(),
		PathID:        sv.PathID,
		ExplorationID: &sv.ExplorationID,

		PredictedTimelineMonths: &exp.PredictedTimelineMonths,
		PredictedCost:           &exp.PredictedCost,
		PredictedSuccessRate:    &exp.PredictedSuccessRate,

		ActualTimelineMonths: sub.ActualTimelineMonths,
		ActualCost:           sub.ActualCost,
		ActualOutcome:        &outcome,
		FailureLayer:         sub.FailureLayer,

		CreatedAt:   now,
		CompletedAt: &now,
	}

	created, err := s.store.CreateOutcome(ctx, o)
	if err != nil {
		return nil, eris.Wrap(err, "survey: create outcome")
	}
	if err := s.store.UpdateSurveyStatus(ctx, surveyID, model.SurveyCompleted); err != nil {
		return nil, eris.Wrapf(err, "survey: close %s", surveyID)
	}

	zap.L().Info("survey: submitted",
		zap.String("survey_id", surveyID),
		zap.String("outcome", string(sub.Outcome)),
	)
	return created, nil
}

// Skip closes a survey without collecting an outcome.
func (s *Scheduler) Skip(ctx context.Context, surveyID string) error {
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return eris.Wrapf(err, "survey: load %s", surveyID)
	}
	if sv.Status.Terminal() {
		return eris.Wrapf(ErrSurveyClosed, "survey %s is %s", surveyID, sv.Status)
	}
	if err := s.store.UpdateSurveyStatus(ctx, surveyID, model.SurveySkipped); err != nil {
		return eris.Wrapf(err, "survey: skip %s", surveyID)
	}
	return nil
}

// ExpireStale expires sent surveys that have been open longer than the
// configured window. Returns the number expired.
func (s *Scheduler) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.ExpireDays)
	n, err := s.store.ExpireSurveys(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "survey: expire stale")
	}
	if n > 0 {
		zap.L().Info("survey: expired stale", zap.Int("count", n))
	}
	return n, nil
}
