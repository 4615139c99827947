// Package recalc re-aggregates a path's published metrics from its full
// outcome history and versions the result.
package recalc

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathlight-hq/pathlight/internal/config"
	"github.com/pathlight-hq/pathlight/internal/model"
	"github.com/pathlight-hq/pathlight/internal/resilience"
	"github.com/pathlight-hq/pathlight/internal/store"
)

// Confidence tiers by evidence volume.
const (
	highConfidenceCases   = 30
	mediumConfidenceCases = 10
)

// Result reports one path's recalculation attempt.
type Result struct {
	PathID            string             `json:"path_id"`
	Slug              string             `json:"slug"`
	Status            model.RecalcStatus `json:"status"`
	OutcomesProcessed int                `json:"outcomes_processed"`
	PreviousVersion   int                `json:"previous_version"`
	NewVersion        int                `json:"new_version"`
	Metrics           *model.PathMetrics `json:"metrics,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// Source is the store access the recalculator needs.
type Source interface {
	GetPath(ctx context.Context, id string) (*model.StrategicPath, error)
	ListActivePaths(ctx context.Context) ([]model.StrategicPath, error)
	ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error)
	CountCompletedOutcomesSince(ctx context.Context, pathID string, since time.Time) (int, error)
	UpdatePathMetrics(ctx context.Context, pathID string, m model.PathMetrics, lastAggregated time.Time, expectedVersion int) error
	RecordRecalculationRun(ctx context.Context, run model.RecalculationRun) error
}

// Recalculator derives published path metrics from accumulated outcomes.
type Recalculator struct {
	store Source
	cfg   config.RecalcConfig
	now   func() time.Time
}

// NewRecalculator creates a Recalculator over the given store.
func NewRecalculator(store Source, cfg config.RecalcConfig) *Recalculator {
	return &Recalculator{store: store, cfg: cfg, now: time.Now}
}

// CheckNeeded reports whether enough new completed outcomes have accumulated
// since the path's last aggregation to warrant a recalculation.
func (r *Recalculator) CheckNeeded(ctx context.Context, pathID string) (bool, error) {
	p, err := r.store.GetPath(ctx, pathID)
	if err != nil {
		return false, eris.Wrapf(err, "recalc: load path %s", pathID)
	}
	n, err := r.store.CountCompletedOutcomesSince(ctx, pathID, p.LastAggregated)
	if err != nil {
		return false, eris.Wrapf(err, "recalc: count new outcomes for %s", pathID)
	}
	return n >= r.cfg.MinNewOutcomes, nil
}

// Recalculate recomputes one path's published metrics from its complete
// outcome history. Unless force is set, paths below the new-outcome gate are
// recorded as skipped. Every attempt leaves a RecalculationRun row; failed
// attempts never touch the published metrics.
func (r *Recalculator) Recalculate(ctx context.Context, pathID string, trigger model.TriggerType, actor string, force bool) (*Result, error) {
	started := r.now()

	p, err := r.store.GetPath(ctx, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "recalc: load path %s", pathID)
	}

	res := &Result{
		PathID:          p.ID,
		Slug:            p.Slug,
		PreviousVersion: p.ModelVersion,
		NewVersion:      p.ModelVersion,
	}

	if !force {
		needed, err := r.CheckNeeded(ctx, pathID)
		if err != nil {
			return nil, err
		}
		if !needed {
			res.Status = model.RecalcSkipped
			res.Error = "below new-outcome threshold"
			r.record(ctx, p, trigger, actor, res, started)
			return res, nil
		}
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("recalc", "list_outcomes")
	outcomes, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]model.PathOutcome, error) {
		return r.store.ListCompletedOutcomes(ctx, pathID)
	})
	if err != nil {
		res.Status = model.RecalcFailed
		res.Error = err.Error()
		r.record(ctx, p, trigger, actor, res, started)
		return res, eris.Wrapf(err, "recalc: load outcomes for %s", pathID)
	}
	res.OutcomesProcessed = len(outcomes)

	if len(outcomes) == 0 {
		// Nothing to aggregate from: leave the published metrics alone.
		res.Status = model.RecalcSkipped
		res.Error = "no completed outcomes"
		r.record(ctx, p, trigger, actor, res, started)
		return res, nil
	}

	metrics := Aggregate(outcomes, p.Metrics)
	aggregatedAt := r.now()

	if err := r.store.UpdatePathMetrics(ctx, pathID, metrics, aggregatedAt, p.ModelVersion); err != nil {
		res.Status = model.RecalcFailed
		res.Error = err.Error()
		r.record(ctx, p, trigger, actor, res, started)
		if eris.Is(err, store.ErrVersionConflict) {
			// A concurrent run won the race; its result stands, ours is
			// discarded.
			zap.L().Warn("recalc: version conflict, result discarded",
				zap.String("path", p.Slug),
				zap.Int("expected_version", p.ModelVersion),
			)
			return res, nil
		}
		return res, eris.Wrapf(err, "recalc: write metrics for %s", pathID)
	}

	res.Status = model.RecalcCompleted
	res.NewVersion = p.ModelVersion + 1
	res.Metrics = &metrics
	r.record(ctx, p, trigger, actor, res, started)

	zap.L().Info("recalc: path metrics updated",
		zap.String("path", p.Slug),
		zap.Int("outcomes", res.OutcomesProcessed),
		zap.Int("version", res.NewVersion),
	)
	return res, nil
}

// RecalculateAll sweeps every active path, recalculating the ones that cross
// the gate (or all of them when forced). Paths below the gate are omitted
// from the results. Per-path failures are isolated; the sweep errors only
// when every attempted path failed.
func (r *Recalculator) RecalculateAll(ctx context.Context, trigger model.TriggerType, actor string, force bool) ([]Result, error) {
	paths, err := r.store.ListActivePaths(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "recalc: load active paths")
	}

	limit := r.cfg.MaxParallel
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	var results []Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range paths {
		p := paths[i]
		g.Go(func() error {
			if !force {
				needed, err := r.CheckNeeded(gctx, p.ID)
				if err != nil {
					zap.L().Warn("recalc: gate check failed",
						zap.String("path", p.Slug),
						zap.Error(err),
					)
					mu.Lock()
					results = append(results, Result{
						PathID: p.ID,
						Slug:   p.Slug,
						Status: model.RecalcFailed,
						Error:  err.Error(),
					})
					mu.Unlock()
					return nil
				}
				if !needed {
					return nil // omitted, not a failure
				}
			}

			res, err := r.Recalculate(gctx, p.ID, trigger, actor, true)
			if err != nil {
				zap.L().Warn("recalc: path failed in sweep",
					zap.String("path", p.Slug),
					zap.Error(err),
				)
			}
			if res != nil {
				mu.Lock()
				results = append(results, *res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "recalc: sweep")
	}

	if len(results) > 0 && allFailed(results) {
		return results, eris.Errorf("recalc: all %d attempted paths failed", len(results))
	}
	return results, nil
}

func allFailed(results []Result) bool {
	for _, res := range results {
		if res.Status != model.RecalcFailed {
			return false
		}
	}
	return true
}

// record writes the audit row for an attempt. Audit failures are logged, not
// propagated: the recalculation outcome already happened.
func (r *Recalculator) record(ctx context.Context, p *model.StrategicPath, trigger model.TriggerType, actor string, res *Result, started time.Time) {
	run := model.RecalculationRun{
		ID:                uuid.NewString(),
		PathID:            p.ID,
		Trigger:           trigger,
		Actor:             actor,
		OutcomesProcessed: res.OutcomesProcessed,
		ResultVersion:     res.NewVersion,
		Status:            res.Status,
		Error:             res.Error,
		StartedAt:         started,
		FinishedAt:        r.now(),
	}
	if err := r.store.RecordRecalculationRun(ctx, run); err != nil {
		zap.L().Error("recalc: record run failed",
			zap.String("path", p.Slug),
			zap.Error(err),
		)
	}
}

// Aggregate recomputes published metrics from the complete outcome set.
// Metric families with no samples keep their previously published values so
// sparse evidence never zeroes out an established band.
func Aggregate(outcomes []model.PathOutcome, prev model.PathMetrics) model.PathMetrics {
	m := prev
	m.CaseCount = len(outcomes)

	var timelines, capitals stats.Float64Data
	successes, failures, abandoned, pivoted := 0, 0, 0, 0

	for i := range outcomes {
		o := &outcomes[i]
		if o.ActualOutcome == nil {
			m.CaseCount--
			continue
		}
		switch *o.ActualOutcome {
		case model.OutcomeSuccess, model.OutcomePartial:
			successes++
		case model.OutcomeFailure:
			failures++
		case model.OutcomeAbandoned:
			abandoned++
		case model.OutcomePivoted:
			pivoted++
		}
		if o.ActualTimelineMonths != nil && *o.ActualTimelineMonths > 0 {
			timelines = append(timelines, *o.ActualTimelineMonths)
		}
		if cost, ok := model.DecimalValue(o.ActualCost); ok && cost > 0 {
			capitals = append(capitals, cost)
		}
	}

	if m.CaseCount == 0 {
		return prev
	}

	total := float64(m.CaseCount)
	m.SuccessRate = round1(float64(successes) / total * 100)
	m.RiskScore = round1((float64(failures) + float64(abandoned) + 0.5*float64(pivoted)) / total * 10)

	if p25, p75, ok := percentileBand(timelines); ok {
		m.TimelineP25 = round1(p25)
		m.TimelineP75 = round1(p75)
	}
	if p25, p75, ok := percentileBand(capitals); ok {
		m.CapitalP25 = formatDecimal(p25)
		m.CapitalP75 = formatDecimal(p75)
	}

	switch {
	case m.CaseCount >= highConfidenceCases:
		m.Confidence = model.ConfidenceHigh
	case m.CaseCount >= mediumConfidenceCases:
		m.Confidence = model.ConfidenceMedium
	default:
		m.Confidence = model.ConfidenceLow
	}

	return m
}

func percentileBand(data stats.Float64Data) (p25, p75 float64, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	p25, err := stats.Percentile(data, 25)
	if err != nil {
		return 0, 0, false
	}
	p75, err = stats.Percentile(data, 75)
	if err != nil {
		return 0, 0, false
	}
	return p25, p75, true
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
