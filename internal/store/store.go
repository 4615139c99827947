// Package store provides persistence for paths, explorations, outcomes,
// surveys, and recalculation history, with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrVersionConflict is returned when a conditional metrics write loses the
// race against a concurrent recalculation. The losing caller must discard its
// computed result rather than overwrite fresher data.
var ErrVersionConflict = eris.New("store: model version conflict")

// Store is the persistence contract the engine depends on. Engine packages
// declare narrower local interfaces; this is the union both backends satisfy.
type Store interface {
	// Paths
	UpsertPath(ctx context.Context, p model.StrategicPath) error
	GetPath(ctx context.Context, id string) (*model.StrategicPath, error)
	GetPathBySlug(ctx context.Context, slug string) (*model.StrategicPath, error)
	ListActivePaths(ctx context.Context) ([]model.StrategicPath, error)
	// UpdatePathMetrics writes recalculated metrics, bumps the model version
	// and stamps last_aggregated. The write is conditional on expectedVersion;
	// a concurrent bump surfaces as ErrVersionConflict.
	UpdatePathMetrics(ctx context.Context, pathID string, m model.PathMetrics, lastAggregated time.Time, expectedVersion int) error
	// ReplaceContradictionFlags fully replaces the path's flag snapshot.
	ReplaceContradictionFlags(ctx context.Context, pathID string, flags []string) error

	// Explorations
	CreateExploration(ctx context.Context, e model.PathExploration) (*model.PathExploration, error)
	GetExploration(ctx context.Context, id string) (*model.PathExploration, error)

	// Outcomes (append-only evidence)
	CreateOutcome(ctx context.Context, o model.PathOutcome) (*model.PathOutcome, error)
	ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error)
	CountCompletedOutcomesSince(ctx context.Context, pathID string, since time.Time) (int, error)

	// Surveys
	CreateSurvey(ctx context.Context, s model.OutcomeSurvey) (*model.OutcomeSurvey, error)
	GetSurvey(ctx context.Context, id string) (*model.OutcomeSurvey, error)
	ListDueSurveys(ctx context.Context, now time.Time, limit int) ([]model.OutcomeSurvey, error)
	UpdateSurveyStatus(ctx context.Context, id string, status model.SurveyStatus) error
	ExpireSurveys(ctx context.Context, sentBefore time.Time) (int, error)

	// Recalculation history (append-only)
	RecordRecalculationRun(ctx context.Context, run model.RecalculationRun) error
	ListRecalculationRuns(ctx context.Context, pathID string, limit int) ([]model.RecalculationRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
