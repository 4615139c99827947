package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &PostgresStore{pool: pool}, pool
}

var pathRowColumns = []string{
	"id", "slug", "name", "summary", "success_rate", "case_count",
	"timeline_p25", "timeline_p75", "capital_p25", "capital_p75",
	"risk_score", "confidence", "contradiction_flags", "model_version",
	"last_aggregated", "active", "created_at", "updated_at",
}

func pathRow(rows *pgxmock.Rows, id, slug string, version int) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, slug, "Path "+slug, "summary",
		62.5, 24, 6.0, 18.0, "10000.00", "50000.00",
		4.0, "medium", []byte(`["timeline-drift"]`), version,
		now, true, now, now,
	)
}

func TestPostgresGetPath(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM strategic_paths WHERE id").
		WithArgs("p1").
		WillReturnRows(pathRow(pgxmock.NewRows(pathRowColumns), "p1", "franchise", 3))

	p, err := st.GetPath(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "franchise", p.Slug)
	assert.Equal(t, 62.5, p.Metrics.SuccessRate)
	assert.Equal(t, "10000.00", p.Metrics.CapitalP25)
	assert.Equal(t, model.ConfidenceMedium, p.Metrics.Confidence)
	assert.Equal(t, []string{"timeline-drift"}, p.ContradictionFlags)
	assert.Equal(t, 3, p.ModelVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPathNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM strategic_paths WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetPath(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresGetPathBySlugNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM strategic_paths WHERE slug").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetPathBySlug(context.Background(), "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresListActivePaths(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows(pathRowColumns)
	pathRow(rows, "p1", "export", 1)
	pathRow(rows, "p2", "franchise", 2)
	mock.ExpectQuery("FROM strategic_paths WHERE active").WillReturnRows(rows)

	paths, err := st.ListActivePaths(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "export", paths[0].Slug)
	assert.Equal(t, "franchise", paths[1].Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertPath(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO strategic_paths").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.UpsertPath(context.Background(), model.StrategicPath{
		Slug: "franchise", Name: "Franchise Expansion", Active: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdatePathMetrics(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE strategic_paths SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdatePathMetrics(context.Background(), "p1", model.PathMetrics{
		SuccessRate: 70, CaseCount: 30, CapitalP25: "12000.00", CapitalP75: "48000.00",
		RiskScore: 3.5, Confidence: model.ConfidenceHigh,
	}, time.Now(), 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdatePathMetricsVersionConflict(t *testing.T) {
	st, mock := newMockStore(t)

	// The conditional update matches zero rows when another writer already
	// bumped the version.
	mock.ExpectExec("UPDATE strategic_paths SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdatePathMetrics(context.Background(), "p1", model.PathMetrics{}, time.Now(), 2)
	assert.True(t, eris.Is(err, ErrVersionConflict))
}

func TestPostgresReplaceContradictionFlags(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE strategic_paths SET contradiction_flags").
		WithArgs([]byte(`["cost-drift","abandonment-pattern"]`), pgxmock.AnyArg(), "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.ReplaceContradictionFlags(context.Background(), "p1", []string{"cost-drift", "abandonment-pattern"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceContradictionFlagsNilClears(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE strategic_paths SET contradiction_flags").
		WithArgs([]byte(`[]`), pgxmock.AnyArg(), "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.ReplaceContradictionFlags(context.Background(), "p1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceContradictionFlagsUnknownPath(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE strategic_paths SET contradiction_flags").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.ReplaceContradictionFlags(context.Background(), "missing", []string{"cost-drift"})
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresCreateExploration(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO path_explorations").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e, err := st.CreateExploration(context.Background(), model.PathExploration{
		PathID:                  "p1",
		Context:                 model.ClientContext{Industry: "retail", AvailableCapital: "30000"},
		PredictedTimelineMonths: 12,
		PredictedCost:           "30000.00",
		PredictedSuccessRate:    62.5,
		ModelVersion:            3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetExploration(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "path_id", "client_context", "predicted_timeline_months",
		"predicted_cost", "predicted_success_rate", "model_version", "created_at",
	}).AddRow("e1", "p1", []byte(`{"industry":"retail","available_capital":"30000"}`),
		12.0, "30000.00", 62.5, 3, now)
	mock.ExpectQuery("FROM path_explorations WHERE id").
		WithArgs("e1").
		WillReturnRows(rows)

	e, err := st.GetExploration(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "p1", e.PathID)
	assert.Equal(t, "retail", e.Context.Industry)
	assert.Equal(t, "30000.00", e.PredictedCost)
	assert.Equal(t, 3, e.ModelVersion)
}

func TestPostgresGetExplorationNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM path_explorations WHERE id").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetExploration(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresCreateOutcomeStampsCompletion(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO path_outcomes").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	success := model.OutcomeSuccess
	o, err := st.CreateOutcome(context.Background(), model.PathOutcome{
		PathID:        "p1",
		ActualOutcome: &success,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	require.NotNil(t, o.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListCompletedOutcomes(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	timeline := 14.0
	rows := pgxmock.NewRows([]string{
		"id", "path_id", "exploration_id", "predicted_timeline_months",
		"predicted_cost", "predicted_success_rate", "actual_timeline_months",
		"actual_cost", "actual_outcome", "failure_layer", "created_at", "completed_at",
	}).
		AddRow("o1", "p1", nil, 12.0, "30000.00", 62.5, timeline, "35000.00", "success", nil, now, now).
		AddRow("o2", "p1", nil, nil, nil, nil, nil, nil, "abandoned", "action", now, now)
	mock.ExpectQuery("FROM path_outcomes").
		WithArgs("p1").
		WillReturnRows(rows)

	outcomes, err := st.ListCompletedOutcomes(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.NotNil(t, outcomes[0].ActualOutcome)
	assert.Equal(t, model.OutcomeSuccess, *outcomes[0].ActualOutcome)
	require.NotNil(t, outcomes[1].FailureLayer)
	assert.Equal(t, model.LayerAction, *outcomes[1].FailureLayer)
	assert.Nil(t, outcomes[1].PredictedTimelineMonths)
}

func TestPostgresCountCompletedOutcomesSince(t *testing.T) {
	st, mock := newMockStore(t)

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT count").
		WithArgs("p1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := st.CountCompletedOutcomesSince(context.Background(), "p1", since)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestPostgresCreateSurveyDefaultsPending(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO outcome_surveys").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sv, err := st.CreateSurvey(context.Background(), model.OutcomeSurvey{
		ExplorationID: "e1",
		PathID:        "p1",
		ScheduledFor:  time.Now().AddDate(0, 0, 90),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sv.ID)
	assert.Equal(t, model.SurveyPending, sv.Status)
}

func TestPostgresGetSurveyNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM outcome_surveys WHERE id").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetSurvey(context.Background(), "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresListDueSurveys(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "exploration_id", "path_id", "recipient_email", "status",
		"scheduled_for", "sent_at", "completed_at", "created_at", "updated_at",
	}).AddRow("s1", "e1", "p1", nil, "pending", now.Add(-time.Hour), nil, nil, now, now)
	mock.ExpectQuery("FROM outcome_surveys").
		WithArgs("pending", now, 100).
		WillReturnRows(rows)

	surveys, err := st.ListDueSurveys(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, surveys, 1)
	assert.Equal(t, model.SurveyPending, surveys[0].Status)
}

func TestPostgresUpdateSurveyStatusSentStampsSentAt(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("sent_at").
		WithArgs("sent", pgxmock.AnyArg(), "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.UpdateSurveyStatus(context.Background(), "s1", model.SurveySent))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSurveyStatusUnknownSurvey(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE outcome_surveys").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateSurveyStatus(context.Background(), "missing", model.SurveySkipped)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestPostgresExpireSurveys(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE outcome_surveys").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := st.ExpireSurveys(context.Background(), time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgresRecordRecalculationRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO recalculation_runs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := st.RecordRecalculationRun(context.Background(), model.RecalculationRun{
		PathID:            "p1",
		Trigger:           model.TriggerScheduled,
		Actor:             "scheduler",
		OutcomesProcessed: 12,
		ResultVersion:     4,
		Status:            model.RecalcCompleted,
		StartedAt:         now,
		FinishedAt:        now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRecalculationRuns(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "path_id", "trigger_type", "actor", "outcomes_processed",
		"result_version", "status", "error", "started_at", "finished_at",
	}).
		AddRow("r2", "p1", "manual", "ops", 12, 4, "completed", "", now, now).
		AddRow("r1", "p1", "scheduled", "scheduler", 0, 0, "failed", "version conflict", now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery("FROM recalculation_runs").
		WithArgs("p1", 20).
		WillReturnRows(rows)

	runs, err := st.ListRecalculationRuns(context.Background(), "p1", 20)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.TriggerManual, runs[0].Trigger)
	assert.Equal(t, model.RecalcFailed, runs[1].Status)
	assert.Equal(t, "version conflict", runs[1].Error)
}

func TestPostgresMigrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
}
