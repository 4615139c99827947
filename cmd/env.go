package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pathlight-hq/pathlight/internal/contradiction"
	"github.com/pathlight-hq/pathlight/internal/recalc"
	"github.com/pathlight-hq/pathlight/internal/scoring"
	"github.com/pathlight-hq/pathlight/internal/store"
	"github.com/pathlight-hq/pathlight/internal/survey"
	"github.com/pathlight-hq/pathlight/internal/variance"
)

// engineEnv bundles the store and the engine components used by commands.
type engineEnv struct {
	Store    store.Store
	Engine   *scoring.Engine
	Variance *variance.Calculator
	Detector *contradiction.Detector
	Recalc   *recalc.Recalculator
	Surveys  *survey.Scheduler
}

// Close releases the store connection.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pathlight.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	return &engineEnv{
		Store:    st,
		Engine:   scoring.NewEngine(st, cfg.Scoring),
		Variance: variance.NewCalculator(st),
		Detector: contradiction.NewDetector(st),
		Recalc:   recalc.NewRecalculator(st, cfg.Recalc),
		Surveys:  survey.NewScheduler(st, nil, cfg.Survey),
	}, nil
}
