package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pathlight-hq/pathlight/internal/db"
	"github.com/pathlight-hq/pathlight/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS strategic_paths (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	success_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	case_count          INTEGER NOT NULL DEFAULT 0,
	timeline_p25        DOUBLE PRECISION NOT NULL DEFAULT 0,
	timeline_p75        DOUBLE PRECISION NOT NULL DEFAULT 0,
	capital_p25         NUMERIC(14,2) NOT NULL DEFAULT 0,
	capital_p75         NUMERIC(14,2) NOT NULL DEFAULT 0,
	risk_score          DOUBLE PRECISION NOT NULL DEFAULT 5,
	confidence          TEXT NOT NULL DEFAULT 'low',
	contradiction_flags JSONB NOT NULL DEFAULT '[]',
	model_version       INTEGER NOT NULL DEFAULT 1,
	last_aggregated     TIMESTAMPTZ NOT NULL DEFAULT now(),
	active              BOOLEAN NOT NULL DEFAULT true,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_paths_active ON strategic_paths(active);

CREATE TABLE IF NOT EXISTS path_explorations (
	id                        TEXT PRIMARY KEY,
	path_id                   TEXT NOT NULL REFERENCES strategic_paths(id),
	client_context            JSONB NOT NULL,
	predicted_timeline_months DOUBLE PRECISION NOT NULL,
	predicted_cost            NUMERIC(14,2) NOT NULL,
	predicted_success_rate    DOUBLE PRECISION NOT NULL,
	model_version             INTEGER NOT NULL,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_explorations_path ON path_explorations(path_id);

CREATE TABLE IF NOT EXISTS path_outcomes (
	id                        TEXT PRIMARY KEY,
	path_id                   TEXT NOT NULL REFERENCES strategic_paths(id),
	exploration_id            TEXT REFERENCES path_explorations(id),
	predicted_timeline_months DOUBLE PRECISION,
	predicted_cost            NUMERIC(14,2),
	predicted_success_rate    DOUBLE PRECISION,
	actual_timeline_months    DOUBLE PRECISION,
	actual_cost               NUMERIC(14,2),
	actual_outcome            TEXT,
	failure_layer             TEXT,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at              TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outcomes_path ON path_outcomes(path_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_path_completed
	ON path_outcomes(path_id, created_at) WHERE actual_outcome IS NOT NULL;

CREATE TABLE IF NOT EXISTS outcome_surveys (
	id              TEXT PRIMARY KEY,
	exploration_id  TEXT NOT NULL REFERENCES path_explorations(id),
	path_id         TEXT NOT NULL REFERENCES strategic_paths(id),
	recipient_email TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	scheduled_for   TIMESTAMPTZ NOT NULL,
	sent_at         TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_surveys_status_scheduled ON outcome_surveys(status, scheduled_for);

CREATE TABLE IF NOT EXISTS recalculation_runs (
	id                 TEXT PRIMARY KEY,
	path_id            TEXT NOT NULL REFERENCES strategic_paths(id),
	trigger_type       TEXT NOT NULL,
	actor              TEXT NOT NULL DEFAULT '',
	outcomes_processed INTEGER NOT NULL DEFAULT 0,
	result_version     INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recalc_runs_path ON recalculation_runs(path_id, started_at DESC);
`

// pathColumns selects a full StrategicPath row. NUMERIC columns are cast to
// text so capital bands stay arbitrary-precision strings until scoring math.
const pathColumns = `id, slug, name, summary, success_rate, case_count,
	timeline_p25, timeline_p75, capital_p25::text, capital_p75::text,
	risk_score, confidence, contradiction_flags, model_version,
	last_aggregated, active, created_at, updated_at`

const outcomeColumns = `id, path_id, exploration_id,
	predicted_timeline_months, predicted_cost::text, predicted_success_rate,
	actual_timeline_months, actual_cost::text, actual_outcome, failure_layer,
	created_at, completed_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertPath inserts a path or, on slug conflict, updates its descriptive
// fields only. Published metrics are never clobbered by seeding; they belong
// to the recalculator.
func (s *PostgresStore) UpsertPath(ctx context.Context, p model.StrategicPath) error {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	lastAggregated := p.LastAggregated
	if lastAggregated.IsZero() {
		lastAggregated = now
	}
	capP25 := defaultDecimal(p.Metrics.CapitalP25)
	capP75 := defaultDecimal(p.Metrics.CapitalP75)
	confidence := p.Metrics.Confidence
	if confidence == "" {
		confidence = model.ConfidenceLow
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO strategic_paths
			(id, slug, name, summary, success_rate, case_count, timeline_p25, timeline_p75,
			 capital_p25, capital_p75, risk_score, confidence, model_version, last_aggregated,
			 active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			summary = EXCLUDED.summary,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		id, p.Slug, p.Name, p.Summary,
		p.Metrics.SuccessRate, p.Metrics.CaseCount,
		p.Metrics.TimelineP25, p.Metrics.TimelineP75,
		capP25, capP75, p.Metrics.RiskScore, string(confidence),
		maxInt(p.ModelVersion, 1), lastAggregated, p.Active, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert path %s", p.Slug)
}

func (s *PostgresStore) GetPath(ctx context.Context, id string) (*model.StrategicPath, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pathColumns+` FROM strategic_paths WHERE id = $1`, id)
	p, err := scanPath(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "path %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get path %s", id)
	}
	return p, nil
}

func (s *PostgresStore) GetPathBySlug(ctx context.Context, slug string) (*model.StrategicPath, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pathColumns+` FROM strategic_paths WHERE slug = $1`, slug)
	p, err := scanPath(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "path slug %s", slug)
		}
		return nil, eris.Wrapf(err, "postgres: get path by slug %s", slug)
	}
	return p, nil
}

func (s *PostgresStore) ListActivePaths(ctx context.Context) ([]model.StrategicPath, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pathColumns+` FROM strategic_paths WHERE active ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active paths")
	}
	defer rows.Close()

	var paths []model.StrategicPath
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan path")
		}
		paths = append(paths, *p)
	}
	return paths, eris.Wrap(rows.Err(), "postgres: iterate paths")
}

func (s *PostgresStore) UpdatePathMetrics(ctx context.Context, pathID string, m model.PathMetrics, lastAggregated time.Time, expectedVersion int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategic_paths SET
			success_rate = $1, case_count = $2,
			timeline_p25 = $3, timeline_p75 = $4,
			capital_p25 = $5::numeric, capital_p75 = $6::numeric,
			risk_score = $7, confidence = $8,
			model_version = model_version + 1,
			last_aggregated = $9, updated_at = $10
		 WHERE id = $11 AND model_version = $12`,
		m.SuccessRate, m.CaseCount, m.TimelineP25, m.TimelineP75,
		defaultDecimal(m.CapitalP25), defaultDecimal(m.CapitalP75),
		m.RiskScore, string(m.Confidence),
		lastAggregated, time.Now().UTC(), pathID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update path metrics %s", pathID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrVersionConflict, "path %s at version %d", pathID, expectedVersion)
	}
	return nil
}

func (s *PostgresStore) ReplaceContradictionFlags(ctx context.Context, pathID string, flags []string) error {
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal flags")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategic_paths SET contradiction_flags = $1, updated_at = $2 WHERE id = $3`,
		flagsJSON, time.Now().UTC(), pathID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: replace contradiction flags %s", pathID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "path %s", pathID)
	}
	return nil
}

func (s *PostgresStore) CreateExploration(ctx context.Context, e model.PathExploration) (*model.PathExploration, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal client context")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO path_explorations
			(id, path_id, client_context, predicted_timeline_months, predicted_cost,
			 predicted_success_rate, model_version, created_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		e.ID, e.PathID, contextJSON, e.PredictedTimelineMonths,
		defaultDecimal(e.PredictedCost), e.PredictedSuccessRate, e.ModelVersion, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert exploration for path %s", e.PathID)
	}
	return &e, nil
}

func (s *PostgresStore) GetExploration(ctx context.Context, id string) (*model.PathExploration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, path_id, client_context, predicted_timeline_months,
			predicted_cost::text, predicted_success_rate, model_version, created_at
		 FROM path_explorations WHERE id = $1`, id)

	var e model.PathExploration
	var contextJSON []byte
	err := row.Scan(&e.ID, &e.PathID, &contextJSON, &e.PredictedTimelineMonths,
		&e.PredictedCost, &e.PredictedSuccessRate, &e.ModelVersion, &e.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "exploration %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get exploration %s", id)
	}
	if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal client context")
	}
	return &e, nil
}

func (s *PostgresStore) CreateOutcome(ctx context.Context, o model.PathOutcome) (*model.PathOutcome, error) {
	o.ID = uuid.New().String()
	o.CreatedAt = time.Now().UTC()
	if o.Completed() && o.CompletedAt == nil {
		now := o.CreatedAt
		o.CompletedAt = &now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO path_outcomes
			(id, path_id, exploration_id, predicted_timeline_months, predicted_cost,
			 predicted_success_rate, actual_timeline_months, actual_cost, actual_outcome,
			 failure_layer, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9, $10, $11, $12)`,
		o.ID, o.PathID, o.ExplorationID,
		o.PredictedTimelineMonths, o.PredictedCost, o.PredictedSuccessRate,
		o.ActualTimelineMonths, o.ActualCost, outcomeString(o.ActualOutcome),
		layerString(o.FailureLayer), o.CreatedAt, o.CompletedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert outcome for path %s", o.PathID)
	}
	return &o, nil
}

func (s *PostgresStore) ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outcomeColumns+` FROM path_outcomes
		 WHERE path_id = $1 AND actual_outcome IS NOT NULL
		 ORDER BY created_at`, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list completed outcomes %s", pathID)
	}
	defer rows.Close()

	var outcomes []model.PathOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: iterate outcomes")
}

func (s *PostgresStore) CountCompletedOutcomesSince(ctx context.Context, pathID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM path_outcomes
		 WHERE path_id = $1 AND actual_outcome IS NOT NULL AND created_at > $2`,
		pathID, since,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count outcomes since for %s", pathID)
	}
	return n, nil
}

func (s *PostgresStore) CreateSurvey(ctx context.Context, sv model.OutcomeSurvey) (*model.OutcomeSurvey, error) {
	sv.ID = uuid.New().String()
	now := time.Now().UTC()
	sv.CreatedAt = now
	sv.UpdatedAt = now
	if sv.Status == "" {
		sv.Status = model.SurveyPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcome_surveys
			(id, exploration_id, path_id, recipient_email, status, scheduled_for, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sv.ID, sv.ExplorationID, sv.PathID, sv.RecipientEmail,
		string(sv.Status), sv.ScheduledFor, sv.CreatedAt, sv.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert survey for exploration %s", sv.ExplorationID)
	}
	return &sv, nil
}

func (s *PostgresStore) GetSurvey(ctx context.Context, id string) (*model.OutcomeSurvey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, exploration_id, path_id, recipient_email, status, scheduled_for,
			sent_at, completed_at, created_at, updated_at
		 FROM outcome_surveys WHERE id = $1`, id)

	var sv model.OutcomeSurvey
	var status string
	err := row.Scan(&sv.ID, &sv.ExplorationID, &sv.PathID, &sv.RecipientEmail, &status,
		&sv.ScheduledFor, &sv.SentAt, &sv.CompletedAt, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "survey %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get survey %s", id)
	}
	sv.Status = model.SurveyStatus(status)
	return &sv, nil
}

func (s *PostgresStore) ListDueSurveys(ctx context.Context, now time.Time, limit int) ([]model.OutcomeSurvey, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, exploration_id, path_id, recipient_email, status, scheduled_for,
			sent_at, completed_at, created_at, updated_at
		 FROM outcome_surveys
		 WHERE status = $1 AND scheduled_for <= $2
		 ORDER BY scheduled_for
		 LIMIT $3`,
		string(model.SurveyPending), now, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list due surveys")
	}
	defer rows.Close()

	var surveys []model.OutcomeSurvey
	for rows.Next() {
		var sv model.OutcomeSurvey
		var status string
		err := rows.Scan(&sv.ID, &sv.ExplorationID, &sv.PathID, &sv.RecipientEmail, &status,
			&sv.ScheduledFor, &sv.SentAt, &sv.CompletedAt, &sv.CreatedAt, &sv.UpdatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan survey")
		}
		sv.Status = model.SurveyStatus(status)
		surveys = append(surveys, sv)
	}
	return surveys, eris.Wrap(rows.Err(), "postgres: iterate surveys")
}

func (s *PostgresStore) UpdateSurveyStatus(ctx context.Context, id string, status model.SurveyStatus) error {
	now := time.Now().UTC()
	query := `UPDATE outcome_surveys SET status = $1, updated_at = $2 WHERE id = $3`
	switch status {
	case model.SurveySent:
		query = `UPDATE outcome_surveys SET status = $1, updated_at = $2, sent_at = $2 WHERE id = $3`
	case model.SurveyCompleted:
		query = `UPDATE outcome_surveys SET status = $1, updated_at = $2, completed_at = $2 WHERE id = $3`
	}
	tag, err := s.pool.Exec(ctx, query, string(status), now, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update survey status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "survey %s", id)
	}
	return nil
}

func (s *PostgresStore) ExpireSurveys(ctx context.Context, sentBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outcome_surveys SET status = $1, updated_at = $2
		 WHERE status = $3 AND sent_at < $4`,
		string(model.SurveyExpired), time.Now().UTC(), string(model.SurveySent), sentBefore,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire surveys")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordRecalculationRun(ctx context.Context, run model.RecalculationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recalculation_runs
			(id, path_id, trigger_type, actor, outcomes_processed, result_version,
			 status, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.PathID, string(run.Trigger), run.Actor,
		run.OutcomesProcessed, run.ResultVersion, string(run.Status), run.Error,
		run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: record recalculation run for %s", run.PathID)
}

func (s *PostgresStore) ListRecalculationRuns(ctx context.Context, pathID string, limit int) ([]model.RecalculationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, path_id, trigger_type, actor, outcomes_processed, result_version,
			status, error, started_at, finished_at
		 FROM recalculation_runs WHERE path_id = $1
		 ORDER BY started_at DESC LIMIT $2`, pathID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list recalculation runs %s", pathID)
	}
	defer rows.Close()

	var runs []model.RecalculationRun
	for rows.Next() {
		var r model.RecalculationRun
		var trigger, status string
		err := rows.Scan(&r.ID, &r.PathID, &trigger, &r.Actor, &r.OutcomesProcessed,
			&r.ResultVersion, &status, &r.Error, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan recalculation run")
		}
		r.Trigger = model.TriggerType(trigger)
		r.Status = model.RecalcStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate recalculation runs")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanPath(row scannable) (*model.StrategicPath, error) {
	var p model.StrategicPath
	var confidence string
	var flagsJSON []byte

	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Summary,
		&p.Metrics.SuccessRate, &p.Metrics.CaseCount,
		&p.Metrics.TimelineP25, &p.Metrics.TimelineP75,
		&p.Metrics.CapitalP25, &p.Metrics.CapitalP75,
		&p.Metrics.RiskScore, &confidence, &flagsJSON,
		&p.ModelVersion, &p.LastAggregated, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Metrics.Confidence = model.ConfidenceLevel(confidence)
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &p.ContradictionFlags); err != nil {
			return nil, eris.Wrap(err, "unmarshal contradiction flags")
		}
	}
	return &p, nil
}

func scanOutcome(row scannable) (*model.PathOutcome, error) {
	var o model.PathOutcome
	var outcome, layer *string

	err := row.Scan(&o.ID, &o.PathID, &o.ExplorationID,
		&o.PredictedTimelineMonths, &o.PredictedCost, &o.PredictedSuccessRate,
		&o.ActualTimelineMonths, &o.ActualCost, &outcome, &layer,
		&o.CreatedAt, &o.CompletedAt)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		c := model.OutcomeCategory(*outcome)
		o.ActualOutcome = &c
	}
	if layer != nil {
		l := model.FailureLayer(*layer)
		o.FailureLayer = &l
	}
	return &o, nil
}

func outcomeString(c *model.OutcomeCategory) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func layerString(l *model.FailureLayer) *string {
	if l == nil {
		return nil
	}
	s := string(*l)
	return &s
}

func defaultDecimal(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
