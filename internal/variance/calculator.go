// Package variance measures how far path predictions diverged from realized
// outcomes, per path and globally.
package variance

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// Trend classifies whether a path's prediction error is moving over time.
// Computing a real trend needs persisted historical variance snapshots; until
// those exist every path reports TrendStable.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
)

// Metrics aggregates predicted-vs-actual deltas over a set of completed
// outcomes. Each metric family is computed only over the outcomes that carry
// both sides of its comparison, and carries its own sample count so partial
// data never distorts unrelated families.
type Metrics struct {
	OutcomeCount int `json:"outcome_count"`

	TimelineVariancePct *float64 `json:"timeline_variance_pct,omitempty"`
	TimelineSamples     int      `json:"timeline_samples"`

	CostVariancePct *float64 `json:"cost_variance_pct,omitempty"`
	CostSamples     int      `json:"cost_samples"`

	ActualSuccessRate    float64  `json:"actual_success_rate"`
	PredictedSuccessRate *float64 `json:"predicted_success_rate,omitempty"`
	PredictedSamples     int      `json:"predicted_samples"`

	Distribution map[model.OutcomeCategory]int `json:"distribution"`
	Attribution  map[model.FailureLayer]int    `json:"attribution"`

	Trend Trend `json:"trend"`
}

// PathVarianceData pairs a path's identity with its variance metrics.
type PathVarianceData struct {
	PathID  string  `json:"path_id"`
	Slug    string  `json:"slug"`
	Name    string  `json:"name"`
	Metrics Metrics `json:"metrics"`
}

// GlobalVariance is the outcome-count-weighted combination of every active
// path's variance.
type GlobalVariance struct {
	Overall Metrics            `json:"overall"`
	ByPath  []PathVarianceData `json:"by_path"`
}

// OutcomeSource is the read access the calculator needs from the store.
type OutcomeSource interface {
	ListActivePaths(ctx context.Context) ([]model.StrategicPath, error)
	ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error)
}

// Calculator computes variance metrics from stored outcomes. Read-only: it
// never mutates paths.
type Calculator struct {
	store OutcomeSource
}

// NewCalculator creates a Calculator over the given outcome source.
func NewCalculator(store OutcomeSource) *Calculator {
	return &Calculator{store: store}
}

// PathVariance computes variance metrics for one path. Returns (nil, nil)
// when the path has no completed outcomes: absence, not an error.
func (c *Calculator) PathVariance(ctx context.Context, pathID string) (*Metrics, error) {
	outcomes, err := c.store.ListCompletedOutcomes(ctx, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "variance: load outcomes for %s", pathID)
	}
	return Compute(outcomes), nil
}

// GlobalVariance computes per-path variance for every active path and merges
// the results with sample-count-weighted averages. Paths are analyzed
// independently; one path's storage failure is logged and skipped rather
// than aborting the sweep.
func (c *Calculator) GlobalVariance(ctx context.Context) (*GlobalVariance, error) {
	paths, err := c.store.ListActivePaths(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "variance: load active paths")
	}

	var mu sync.Mutex
	var byPath []PathVarianceData

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range paths {
		p := paths[i]
		g.Go(func() error {
			m, err := c.PathVariance(gctx, p.ID)
			if err != nil {
				zap.L().Warn("variance: path analysis failed",
					zap.String("path", p.Slug),
					zap.Error(err),
				)
				return nil
			}
			if m == nil {
				return nil // no completed outcomes yet
			}
			mu.Lock()
			byPath = append(byPath, PathVarianceData{PathID: p.ID, Slug: p.Slug, Name: p.Name, Metrics: *m})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "variance: global sweep")
	}

	sort.Slice(byPath, func(i, j int) bool { return byPath[i].Slug < byPath[j].Slug })

	return &GlobalVariance{
		Overall: mergeAll(byPath),
		ByPath:  byPath,
	}, nil
}

// Compute derives variance metrics from a set of completed outcomes.
// Returns nil when the set is empty.
func Compute(outcomes []model.PathOutcome) *Metrics {
	if len(outcomes) == 0 {
		return nil
	}

	m := &Metrics{
		OutcomeCount: len(outcomes),
		Distribution: map[model.OutcomeCategory]int{},
		Attribution:  map[model.FailureLayer]int{},
		Trend:        TrendStable,
	}

	var timelineDeltas, costDeltas, predictedRates []float64
	successes := 0

	for i := range outcomes {
		o := &outcomes[i]
		if o.ActualOutcome == nil {
			continue // defensive: only completed outcomes carry evidence
		}
		cat := *o.ActualOutcome
		m.Distribution[cat]++
		if cat.CountsAsSuccess() {
			successes++
		}
		if cat.CarriesFailureLayer() && o.FailureLayer != nil {
			m.Attribution[*o.FailureLayer]++
		}

		if o.PredictedTimelineMonths != nil && o.ActualTimelineMonths != nil && *o.PredictedTimelineMonths > 0 {
			timelineDeltas = append(timelineDeltas,
				(*o.ActualTimelineMonths-*o.PredictedTimelineMonths) / *o.PredictedTimelineMonths*100)
		}

		predicted, pOK := model.DecimalValue(o.PredictedCost)
		actual, aOK := model.DecimalValue(o.ActualCost)
		if pOK && aOK && predicted > 0 {
			costDeltas = append(costDeltas, (actual-predicted)/predicted*100)
		}

		if o.PredictedSuccessRate != nil {
			predictedRates = append(predictedRates, *o.PredictedSuccessRate)
		}
	}

	m.ActualSuccessRate = round1(float64(successes) / float64(m.OutcomeCount) * 100)
	m.TimelineSamples = len(timelineDeltas)
	m.CostSamples = len(costDeltas)
	m.PredictedSamples = len(predictedRates)

	if v, err := stats.Mean(timelineDeltas); err == nil && len(timelineDeltas) > 0 {
		v = round1(v)
		m.TimelineVariancePct = &v
	}
	if v, err := stats.Mean(costDeltas); err == nil && len(costDeltas) > 0 {
		v = round1(v)
		m.CostVariancePct = &v
	}
	if v, err := stats.Mean(predictedRates); err == nil && len(predictedRates) > 0 {
		v = round1(v)
		m.PredictedSuccessRate = &v
	}

	return m
}

// mergeAll combines per-path metrics into a single global Metrics using
// running sample-count-weighted averages for the percentage families and
// straight sums for the counts. Weighting by each family's own sample count
// keeps the averages statistically correct under heterogeneous sample sizes.
func mergeAll(byPath []PathVarianceData) Metrics {
	overall := Metrics{
		Distribution: map[model.OutcomeCategory]int{},
		Attribution:  map[model.FailureLayer]int{},
		Trend:        TrendStable,
	}

	var actualRate weightedAvg
	var timeline, cost, predicted weightedAvg

	for i := range byPath {
		m := &byPath[i].Metrics
		overall.OutcomeCount += m.OutcomeCount
		for cat, n := range m.Distribution {
			overall.Distribution[cat] += n
		}
		for layer, n := range m.Attribution {
			overall.Attribution[layer] += n
		}

		actualRate.add(m.ActualSuccessRate, m.OutcomeCount)
		if m.TimelineVariancePct != nil {
			timeline.add(*m.TimelineVariancePct, m.TimelineSamples)
		}
		if m.CostVariancePct != nil {
			cost.add(*m.CostVariancePct, m.CostSamples)
		}
		if m.PredictedSuccessRate != nil {
			predicted.add(*m.PredictedSuccessRate, m.PredictedSamples)
		}
	}

	overall.ActualSuccessRate = round1(actualRate.value())
	overall.TimelineSamples = timeline.n
	overall.CostSamples = cost.n
	overall.PredictedSamples = predicted.n
	if timeline.n > 0 {
		v := round1(timeline.value())
		overall.TimelineVariancePct = &v
	}
	if cost.n > 0 {
		v := round1(cost.value())
		overall.CostVariancePct = &v
	}
	if predicted.n > 0 {
		v := round1(predicted.value())
		overall.PredictedSuccessRate = &v
	}

	return overall
}

// weightedAvg maintains a running sample-count-weighted average:
// newAvg = (prevAvg*prevN + avg*n) / (prevN + n).
type weightedAvg struct {
	avg float64
	n   int
}

func (w *weightedAvg) add(avg float64, n int) {
	if n <= 0 {
		return
	}
	total := w.n + n
	w.avg = (w.avg*float64(w.n) + avg*float64(n)) / float64(total)
	w.n = total
}

func (w *weightedAvg) value() float64 {
	return w.avg
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
