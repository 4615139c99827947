package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// development and tests; Postgres is the production backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS strategic_paths (
	id                  TEXT PRIMARY KEY,
	slug                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	success_rate        REAL NOT NULL DEFAULT 0,
	case_count          INTEGER NOT NULL DEFAULT 0,
	timeline_p25        REAL NOT NULL DEFAULT 0,
	timeline_p75        REAL NOT NULL DEFAULT 0,
	capital_p25         TEXT NOT NULL DEFAULT '0',
	capital_p75         TEXT NOT NULL DEFAULT '0',
	risk_score          REAL NOT NULL DEFAULT 5,
	confidence          TEXT NOT NULL DEFAULT 'low',
	contradiction_flags TEXT NOT NULL DEFAULT '[]',
	model_version       INTEGER NOT NULL DEFAULT 1,
	last_aggregated     DATETIME NOT NULL,
	active              INTEGER NOT NULL DEFAULT 1,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS path_explorations (
	id                        TEXT PRIMARY KEY,
	path_id                   TEXT NOT NULL REFERENCES strategic_paths(id),
	client_context            TEXT NOT NULL,
	predicted_timeline_months REAL NOT NULL,
	predicted_cost            TEXT NOT NULL,
	predicted_success_rate    REAL NOT NULL,
	model_version             INTEGER NOT NULL,
	created_at                DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS path_outcomes (
	id                        TEXT PRIMARY KEY,
	path_id                   TEXT NOT NULL REFERENCES strategic_paths(id),
	exploration_id            TEXT REFERENCES path_explorations(id),
	predicted_timeline_months REAL,
	predicted_cost            TEXT,
	predicted_success_rate    REAL,
	actual_timeline_months    REAL,
	actual_cost               TEXT,
	actual_outcome            TEXT,
	failure_layer             TEXT,
	created_at                DATETIME NOT NULL,
	completed_at              DATETIME
);

CREATE INDEX IF NOT EXISTS idx_outcomes_path ON path_outcomes(path_id);

CREATE TABLE IF NOT EXISTS outcome_surveys (
	id              TEXT PRIMARY KEY,
	exploration_id  TEXT NOT NULL REFERENCES path_explorations(id),
	path_id         TEXT NOT NULL REFERENCES strategic_paths(id),
	recipient_email TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	scheduled_for   DATETIME NOT NULL,
	sent_at         DATETIME,
	completed_at    DATETIME,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
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
	started_at         DATETIME NOT NULL,
	finished_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recalc_runs_path ON recalculation_runs(path_id, started_at);
`

const sqlitePathColumns = `id, slug, name, summary, success_rate, case_count,
	timeline_p25, timeline_p75, capital_p25, capital_p75,
	risk_score, confidence, contradiction_flags, model_version,
	last_aggregated, active, created_at, updated_at`

const sqliteOutcomeColumns = `id, path_id, exploration_id,
	predicted_timeline_months, predicted_cost, predicted_success_rate,
	actual_timeline_months, actual_cost, actual_outcome, failure_layer,
	created_at, completed_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertPath(ctx context.Context, p model.StrategicPath) error {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	lastAggregated := p.LastAggregated
	if lastAggregated.IsZero() {
		lastAggregated = now
	}
	confidence := p.Metrics.Confidence
	if confidence == "" {
		confidence = model.ConfidenceLow
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategic_paths
			(id, slug, name, summary, success_rate, case_count, timeline_p25, timeline_p75,
			 capital_p25, capital_p75, risk_score, confidence, model_version, last_aggregated,
			 active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			summary = excluded.summary,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		id, p.Slug, p.Name, p.Summary,
		p.Metrics.SuccessRate, p.Metrics.CaseCount,
		p.Metrics.TimelineP25, p.Metrics.TimelineP75,
		defaultDecimal(p.Metrics.CapitalP25), defaultDecimal(p.Metrics.CapitalP75),
		p.Metrics.RiskScore, string(confidence),
		maxInt(p.ModelVersion, 1), lastAggregated, p.Active, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert path %s", p.Slug)
}

func (s *SQLiteStore) GetPath(ctx context.Context, id string) (*model.StrategicPath, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePathColumns+` FROM strategic_paths WHERE id = ?`, id)
	p, err := scanPath(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "path %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get path %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) GetPathBySlug(ctx context.Context, slug string) (*model.StrategicPath, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePathColumns+` FROM strategic_paths WHERE slug = ?`, slug)
	p, err := scanPath(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "path slug %s", slug)
		}
		return nil, eris.Wrapf(err, "sqlite: get path by slug %s", slug)
	}
	return p, nil
}

func (s *SQLiteStore) ListActivePaths(ctx context.Context) ([]model.StrategicPath, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePathColumns+` FROM strategic_paths WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active paths")
	}
	defer rows.Close()

	var paths []model.StrategicPath
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan path")
		}
		paths = append(paths, *p)
	}
	return paths, eris.Wrap(rows.Err(), "sqlite: iterate paths")
}

func (s *SQLiteStore) UpdatePathMetrics(ctx context.Context, pathID string, m model.PathMetrics, lastAggregated time.Time, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategic_paths SET
			success_rate = ?, case_count = ?,
			timeline_p25 = ?, timeline_p75 = ?,
			capital_p25 = ?, capital_p75 = ?,
			risk_score = ?, confidence = ?,
			model_version = model_version + 1,
			last_aggregated = ?, updated_at = ?
		 WHERE id = ? AND model_version = ?`,
		m.SuccessRate, m.CaseCount, m.TimelineP25, m.TimelineP75,
		defaultDecimal(m.CapitalP25), defaultDecimal(m.CapitalP75),
		m.RiskScore, string(m.Confidence),
		lastAggregated, time.Now().UTC(), pathID, expectedVersion,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update path metrics %s", pathID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrVersionConflict, "path %s at version %d", pathID, expectedVersion)
	}
	return nil
}

func (s *SQLiteStore) ReplaceContradictionFlags(ctx context.Context, pathID string, flags []string) error {
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flags")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE strategic_paths SET contradiction_flags = ?, updated_at = ? WHERE id = ?`,
		string(flagsJSON), time.Now().UTC(), pathID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace contradiction flags %s", pathID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "path %s", pathID)
	}
	return nil
}

func (s *SQLiteStore) CreateExploration(ctx context.Context, e model.PathExploration) (*model.PathExploration, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal client context")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO path_explorations
			(id, path_id, client_context, predicted_timeline_months, predicted_cost,
			 predicted_success_rate, model_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PathID, string(contextJSON), e.PredictedTimelineMonths,
		defaultDecimal(e.PredictedCost), e.PredictedSuccessRate, e.ModelVersion, e.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert exploration for path %s", e.PathID)
	}
	return &e, nil
}

func (s *SQLiteStore) GetExploration(ctx context.Context, id string) (*model.PathExploration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, path_id, client_context, predicted_timeline_months,
			predicted_cost, predicted_success_rate, model_version, created_at
		 FROM path_explorations WHERE id = ?`, id)

	var e model.PathExploration
	var contextJSON string
	err := row.Scan(&e.ID, &e.PathID, &contextJSON, &e.PredictedTimelineMonths,
		&e.PredictedCost, &e.PredictedSuccessRate, &e.ModelVersion, &e.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "exploration %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get exploration %s", id)
	}
	if err := json.Unmarshal([]byte(contextJSON), &e.Context); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal client context")
	}
	return &e, nil
}

func (s *SQLiteStore) CreateOutcome(ctx context.Context, o model.PathOutcome) (*model.PathOutcome, error) {
	o.ID = uuid.New().String()
	o.CreatedAt = time.Now().UTC()
	if o.Completed() && o.CompletedAt == nil {
		now := o.CreatedAt
		o.CompletedAt = &now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO path_outcomes
			(id, path_id, exploration_id, predicted_timeline_months, predicted_cost,
			 predicted_success_rate, actual_timeline_months, actual_cost, actual_outcome,
			 failure_layer, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PathID, o.ExplorationID,
		o.PredictedTimelineMonths, o.PredictedCost, o.PredictedSuccessRate,
		o.ActualTimelineMonths, o.ActualCost, outcomeString(o.ActualOutcome),
		layerString(o.FailureLayer), o.CreatedAt, o.CompletedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert outcome for path %s", o.PathID)
	}
	return &o, nil
}

func (s *SQLiteStore) ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteOutcomeColumns+` FROM path_outcomes
		 WHERE path_id = ? AND actual_outcome IS NOT NULL
		 ORDER BY created_at`, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list completed outcomes %s", pathID)
	}
	defer rows.Close()

	var outcomes []model.PathOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: iterate outcomes")
}

func (s *SQLiteStore) CountCompletedOutcomesSince(ctx context.Context, pathID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM path_outcomes
		 WHERE path_id = ? AND actual_outcome IS NOT NULL AND created_at > ?`,
		pathID, since,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count outcomes since for %s", pathID)
	}
	return n, nil
}

func (s *SQLiteStore) CreateSurvey(ctx context.Context, sv model.OutcomeSurvey) (*model.OutcomeSurvey, error) {
	sv.ID = uuid.New().String()
	now := time.Now().UTC()
	sv.CreatedAt = now
	sv.UpdatedAt = now
	if sv.Status == "" {
		sv.Status = model.SurveyPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcome_surveys
			(id, exploration_id, path_id, recipient_email, status, scheduled_for, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sv.ID, sv.ExplorationID, sv.PathID, sv.RecipientEmail,
		string(sv.Status), sv.ScheduledFor, sv.CreatedAt, sv.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert survey for exploration %s", sv.ExplorationID)
	}
	return &sv, nil
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id string) (*model.OutcomeSurvey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, exploration_id, path_id, recipient_email, status, scheduled_for,
			sent_at, completed_at, created_at, updated_at
		 FROM outcome_surveys WHERE id = ?`, id)

	sv, err := scanSurvey(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "survey %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get survey %s", id)
	}
	return sv, nil
}

func (s *SQLiteStore) ListDueSurveys(ctx context.Context, now time.Time, limit int) ([]model.OutcomeSurvey, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exploration_id, path_id, recipient_email, status, scheduled_for,
			sent_at, completed_at, created_at, updated_at
		 FROM outcome_surveys
		 WHERE status = ? AND scheduled_for <= ?
		 ORDER BY scheduled_for
		 LIMIT ?`,
		string(model.SurveyPending), now, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list due surveys")
	}
	defer rows.Close()

	var surveys []model.OutcomeSurvey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan survey")
		}
		surveys = append(surveys, *sv)
	}
	return surveys, eris.Wrap(rows.Err(), "sqlite: iterate surveys")
}

func (s *SQLiteStore) UpdateSurveyStatus(ctx context.Context, id string, status model.SurveyStatus) error {
	now := time.Now().UTC()
	query := `UPDATE outcome_surveys SET status = ?, updated_at = ? WHERE id = ?`
	switch status {
	case model.SurveySent:
		query = `UPDATE outcome_surveys SET status = ?, updated_at = ?, sent_at = ? WHERE id = ?`
	case model.SurveyCompleted:
		query = `UPDATE outcome_surveys SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?`
	}

	var res sql.Result
	var err error
	if status == model.SurveySent || status == model.SurveyCompleted {
		res, err = s.db.ExecContext(ctx, query, string(status), now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx, query, string(status), now, id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update survey status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "survey %s", id)
	}
	return nil
}

func (s *SQLiteStore) ExpireSurveys(ctx context.Context, sentBefore time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outcome_surveys SET status = ?, updated_at = ?
		 WHERE status = ? AND sent_at < ?`,
		string(model.SurveyExpired), time.Now().UTC(), string(model.SurveySent), sentBefore,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire surveys")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordRecalculationRun(ctx context.Context, run model.RecalculationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recalculation_runs
			(id, path_id, trigger_type, actor, outcomes_processed, result_version,
			 status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PathID, string(run.Trigger), run.Actor,
		run.OutcomesProcessed, run.ResultVersion, string(run.Status), run.Error,
		run.StartedAt, run.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: record recalculation run for %s", run.PathID)
}

func (s *SQLiteStore) ListRecalculationRuns(ctx context.Context, pathID string, limit int) ([]model.RecalculationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path_id, trigger_type, actor, outcomes_processed, result_version,
			status, error, started_at, finished_at
		 FROM recalculation_runs WHERE path_id = ?
		 ORDER BY started_at DESC LIMIT ?`, pathID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list recalculation runs %s", pathID)
	}
	defer rows.Close()

	var runs []model.RecalculationRun
	for rows.Next() {
		var r model.RecalculationRun
		var trigger, status string
		err := rows.Scan(&r.ID, &r.PathID, &trigger, &r.Actor, &r.OutcomesProcessed,
			&r.ResultVersion, &status, &r.Error, &r.StartedAt, &r.FinishedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recalculation run")
		}
		r.Trigger = model.TriggerType(trigger)
		r.Status = model.RecalcStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate recalculation runs")
}

func scanSurvey(row scannable) (*model.OutcomeSurvey, error) {
	var sv model.OutcomeSurvey
	var status string
	err := row.Scan(&sv.ID, &sv.ExplorationID, &sv.PathID, &sv.RecipientEmail, &status,
		&sv.ScheduledFor, &sv.SentAt, &sv.CompletedAt, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sv.Status = model.SurveyStatus(status)
	return &sv, nil
}
