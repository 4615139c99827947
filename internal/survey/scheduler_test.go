package survey

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlight-hq/pathlight/internal/config"
	"github.com/pathlight-hq/pathlight/internal/model"
	"github.com/pathlight-hq/pathlight/internal/store"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func layerPtr(l model.FailureLayer) *model.FailureLayer { return &l }

type stubStore struct {
	explorations map[string]*model.PathExploration
	surveys      map[string]*model.OutcomeSurvey
	outcomes     []model.PathOutcome
	due          []model.OutcomeSurvey

	updateErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		explorations: map[string]*model.PathExploration{},
		surveys:      map[string]*model.OutcomeSurvey{},
	}
}

func (s *stubStore) GetExploration(_ context.Context, id string) (*model.PathExploration, error) {
	e, ok := s.explorations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (s *stubStore) CreateOutcome(_ context.Context, o model.PathOutcome) (*model.PathOutcome, error) {
	s.outcomes = append(s.outcomes, o)
	return &o, nil
}

func (s *stubStore) CreateSurvey(_ context.Context, sv model.OutcomeSurvey) (*model.OutcomeSurvey, error) {
	s.surveys[sv.ID] = &sv
	return &sv, nil
}

func (s *stubStore) GetSurvey(_ context.Context, id string) (*model.OutcomeSurvey, error) {
	sv, ok := s.surveys[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sv, nil
}

func (s *stubStore) ListDueSurveys(_ context.Context, _ time.Time, limit int) ([]model.OutcomeSurvey, error) {
	if len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *stubStore) UpdateSurveyStatus(_ context.Context, id string, status model.SurveyStatus) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	sv, ok := s.surveys[id]
	if !ok {
		return store.ErrNotFound
	}
	sv.Status = status
	return nil
}

func (s *stubStore) ExpireSurveys(_ context.Context, _ time.Time) (int, error) {
	n := 0
	for _, sv := range s.surveys {
		if sv.Status == model.SurveySent {
			sv.Status = model.SurveyExpired
			n++
		}
	}
	return n, nil
}

type recordingMailer struct {
	sent []string
	fail map[string]error
}

func (m *recordingMailer) Send(_ context.Context, sv model.OutcomeSurvey) error {
	if err := m.fail[sv.ID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sv.ID)
	return nil
}

func testConfig() config.SurveyConfig {
	return config.SurveyConfig{
		FollowUpDays:      90,
		ExpireDays:        30,
		DispatchPerSecond: 1000, // keep tests fast
		DispatchBatch:     100,
	}
}

func testExploration() *model.PathExploration {
	return &model.PathExploration{
		ID:                      "exp1",
		PathID:                  "p1",
		PredictedTimelineMonths: 12,
		PredictedCost:           "20000.00",
		PredictedSuccessRate:    65,
		ModelVersion:            3,
	}
}

func TestCreateSchedulesFollowUp(t *testing.T) {
	s := newStubStore()
	s.explorations["exp1"] = testExploration()
	sched := NewScheduler(s, nil, testConfig())

	before := time.Now()
	sv, err := sched.Create(context.Background(), "exp1", strPtr("owner@example.com"))
	require.NoError(t, err)

	assert.Equal(t, model.SurveyPending, sv.Status)
	assert.Equal(t, "exp1", sv.ExplorationID)
	assert.Equal(t, "p1", sv.PathID)
	wantDue := before.AddDate(0, 0, 90)
	assert.WithinDuration(t, wantDue, sv.ScheduledFor, time.Minute)
}

func TestCreateUnknownExploration(t *testing.T) {
	sched := NewScheduler(newStubStore(), nil, testConfig())

	_, err := sched.Create(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestDispatchDueMarksSent(t *testing.T) {
	s := newStubStore()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		sv := model.OutcomeSurvey{ID: id, Status: model.SurveyPending}
		s.surveys[id] = &sv
		s.due = append(s.due, sv)
	}
	mailer := &recordingMailer{}
	sched := NewScheduler(s, mailer, testConfig())

	n, err := sched.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, mailer.sent, 3)
	for _, sv := range s.surveys {
		assert.Equal(t, model.SurveySent, sv.Status)
	}
}

func TestDispatchDueIsolatesSendFailures(t *testing.T) {
	s := newStubStore()
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("s%d", i)
		sv := model.OutcomeSurvey{ID: id, Status: model.SurveyPending}
		s.surveys[id] = &sv
		s.due = append(s.due, sv)
	}
	mailer := &recordingMailer{fail: map[string]error{"s0": fmt.Errorf("smtp refused")}}
	sched := NewScheduler(s, mailer, testConfig())

	n, err := sched.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// The failed survey stays pending for the next run.
	assert.Equal(t, model.SurveyPending, s.surveys["s0"].Status)
	assert.Equal(t, model.SurveySent, s.surveys["s1"].Status)
}

func TestDispatchDueRespectsBatchLimit(t *testing.T) {
	s := newStubStore()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		sv := model.OutcomeSurvey{ID: id, Status: model.SurveyPending}
		s.surveys[id] = &sv
		s.due = append(s.due, sv)
	}
	cfg := testConfig()
	cfg.DispatchBatch = 2
	sched := NewScheduler(s, &recordingMailer{}, cfg)

	n, err := sched.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubmitCreatesOutcomeWithSnapshots(t *testing.T) {
	s := newStubStore()
	s.explorations["exp1"] = testExploration()
	s.surveys["s1"] = &model.OutcomeSurvey{
		ID: "s1", ExplorationID: "exp1", PathID: "p1", Status: model.SurveySent,
	}
	sched := NewScheduler(s, nil, testConfig())

	o, err := sched.Submit(context.Background(), "s1", Submission{
		ActualTimelineMonths: floatPtr(15),
		ActualCost:           strPtr("24000.00"),
		Outcome:              model.OutcomeSuccess,
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", o.PathID)
	require.NotNil(t, o.ExplorationID)
	assert.Equal(t, "exp1", *o.ExplorationID)
	// Predictions snapshot from the exploration, not from current path
	// metrics.
	require.NotNil(t, o.PredictedTimelineMonths)
	assert.Equal(t, 12.0, *o.PredictedTimelineMonths)
	require.NotNil(t, o.PredictedCost)
	assert.Equal(t, "20000.00", *o.PredictedCost)
	require.NotNil(t, o.PredictedSuccessRate)
	assert.Equal(t, 65.0, *o.PredictedSuccessRate)
	require.NotNil(t, o.ActualOutcome)
	assert.Equal(t, model.OutcomeSuccess, *o.ActualOutcome)
	assert.NotNil(t, o.CompletedAt)

	assert.Equal(t, model.SurveyCompleted, s.surveys["s1"].Status)
	assert.Len(t, s.outcomes, 1)
}

func TestSubmitWithFailureLayer(t *testing.T) {
	s := newStubStore()
	s.explorations["exp1"] = testExploration()
	s.surveys["s1"] = &model.OutcomeSurvey{
		ID: "s1", ExplorationID: "exp1", PathID: "p1", Status: model.SurveySent,
	}
	sched := NewScheduler(s, nil, testConfig())

	o, err := sched.Submit(context.Background(), "s1", Submission{
		Outcome:      model.OutcomeAbandoned,
		FailureLayer: layerPtr(model.LayerDecision),
	})
	require.NoError(t, err)
	require.NotNil(t, o.FailureLayer)
	assert.Equal(t, model.LayerDecision, *o.FailureLayer)
}

func TestSubmitClosedSurveyRejected(t *testing.T) {
	s := newStubStore()
	s.explorations["exp1"] = testExploration()
	s.surveys["s1"] = &model.OutcomeSurvey{
		ID: "s1", ExplorationID: "exp1", PathID: "p1", Status: model.SurveyCompleted,
	}
	sched := NewScheduler(s, nil, testConfig())

	_, err := sched.Submit(context.Background(), "s1", Submission{Outcome: model.OutcomeSuccess})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSurveyClosed))
	// No duplicate evidence.
	assert.Empty(t, s.outcomes)
}

func TestSubmitValidation(t *testing.T) {
	sched := NewScheduler(newStubStore(), nil, testConfig())

	tests := []struct {
		name string
		sub  Submission
	}{
		{"unknown category", Submission{Outcome: "exploded"}},
		{"layer on success", Submission{Outcome: model.OutcomeSuccess, FailureLayer: layerPtr(model.LayerReality)}},
		{"unknown layer", Submission{Outcome: model.OutcomeFailure, FailureLayer: layerPtr("karma")}},
		{"bad cost", Submission{Outcome: model.OutcomeSuccess, ActualCost: strPtr("lots")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sched.Submit(context.Background(), "s1", tt.sub)
			assert.Error(t, err)
		})
	}
}

func TestSkip(t *testing.T) {
	s := newStubStore()
	s.surveys["s1"] = &model.OutcomeSurvey{ID: "s1", Status: model.SurveySent}
	sched := NewScheduler(s, nil, testConfig())

	require.NoError(t, sched.Skip(context.Background(), "s1"))
	assert.Equal(t, model.SurveySkipped, s.surveys["s1"].Status)

	err := sched.Skip(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSurveyClosed))
}

func TestExpireStale(t *testing.T) {
	s := newStubStore()
	s.surveys["s1"] = &model.OutcomeSurvey{ID: "s1", Status: model.SurveySent}
	s.surveys["s2"] = &model.OutcomeSurvey{ID: "s2", Status: model.SurveyPending}
	sched := NewScheduler(s, nil, testConfig())

	n, err := sched.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.SurveyExpired, s.surveys["s1"].Status)
	assert.Equal(t, model.SurveyPending, s.surveys["s2"].Status)
}
