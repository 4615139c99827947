// Package contradiction flags systematic prediction errors by applying fixed
// statistical thresholds to a path's outcome history.
package contradiction

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// Type categorizes what kind of signal a contradiction came from.
type Type string

const (
	TypeMetric  Type = "metric"  // predicted vs actual numeric drift
	TypeOutcome Type = "outcome" // success rate divergence
	TypePattern Type = "pattern" // outcome category distribution anomaly
)

// Severity grades how urgently a contradiction needs attention.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Evidence carries the predicted baseline, the observed value, and the
// numeric variance backing a contradiction.
type Evidence struct {
	Predicted string  `json:"predicted"`
	Actual    string  `json:"actual"`
	Variance  float64 `json:"variance"`
}

// Contradiction is one detected systematic prediction error on a path. The
// ID is stable across runs: "<pathSlug>:<check>".
type Contradiction struct {
	ID              string   `json:"id"`
	Check           string   `json:"check"`
	Type            Type     `json:"type"`
	Severity        Severity `json:"severity"`
	PathID          string   `json:"path_id"`
	PathSlug        string   `json:"path_slug"`
	Description     string   `json:"description"`
	Evidence        Evidence `json:"evidence"`
	SuggestedAction string   `json:"suggested_action"`
}

// Summary is the cross-path detection result: the highest-ranked
// contradictions plus counts over everything found.
type Summary struct {
	Total          int              `json:"total"`
	Contradictions []Contradiction  `json:"contradictions"`
	BySeverity     map[Severity]int `json:"by_severity"`
	ByType         map[Type]int     `json:"by_type"`
}

// Detection thresholds. Fixed by policy, not configuration: tuning them per
// deployment would make flag history incomparable across environments.
const (
	minOutcomesForDetection = 3

	timelineMinSamples = 3
	timelineTriggerPct = 30.0
	timelineHighPct    = 50.0

	costMinSamples = 3
	costTriggerPct = 25.0
	costHighPct    = 40.0

	successMinSamples = 5
	successTriggerPts = 20.0
	successHighPts    = 35.0

	abandonedRatioTrigger = 0.30
	pivotRatioTrigger     = 0.25

	maxReported = 10
)

// Check names, also used as contradiction flag values on the path.
const (
	checkTimelineDrift    = "timeline-drift"
	checkCostDrift        = "cost-drift"
	checkSuccessRateDrift = "success-rate-drift"
	checkAbandonment      = "abandonment-pattern"
	checkPivot            = "pivot-pattern"
)

// Source is the read/write access the detector needs from the store.
type Source interface {
	GetPath(ctx context.Context, id string) (*model.StrategicPath, error)
	ListActivePaths(ctx context.Context) ([]model.StrategicPath, error)
	ListCompletedOutcomes(ctx context.Context, pathID string) ([]model.PathOutcome, error)
	ReplaceContradictionFlags(ctx context.Context, pathID string, flags []string) error
}

// Detector runs contradiction checks against stored outcomes.
type Detector struct {
	store Source
}

// NewDetector creates a Detector over the given store.
func NewDetector(store Source) *Detector {
	return &Detector{store: store}
}

// DetectForPath runs every check against one path's completed outcomes.
// Fewer than three completed outcomes yields no contradictions at all:
// insufficient data is never a contradiction.
func (d *Detector) DetectForPath(ctx context.Context, pathID string) ([]Contradiction, error) {
	p, err := d.store.GetPath(ctx, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "contradiction: load path %s", pathID)
	}
	outcomes, err := d.store.ListCompletedOutcomes(ctx, pathID)
	if err != nil {
		return nil, eris.Wrapf(err, "contradiction: load outcomes for %s", pathID)
	}
	return Detect(p, outcomes), nil
}

// DetectAll runs detection for every active path, ranks the combined results
// by severity then by absolute variance, and returns the top results plus
// counts over everything found. Paths are checked independently; one path's
// storage failure is logged and skipped.
func (d *Detector) DetectAll(ctx context.Context) (*Summary, error) {
	paths, err := d.store.ListActivePaths(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "contradiction: load active paths")
	}

	var mu sync.Mutex
	var all []Contradiction

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range paths {
		p := paths[i]
		g.Go(func() error {
			outcomes, err := d.store.ListCompletedOutcomes(gctx, p.ID)
			if err != nil {
				zap.L().Warn("contradiction: path check failed",
					zap.String("path", p.Slug),
					zap.Error(err),
				)
				return nil
			}
			found := Detect(&p, outcomes)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "contradiction: sweep")
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Severity != all[j].Severity {
			return all[i].Severity.rank() > all[j].Severity.rank()
		}
		return math.Abs(all[i].Evidence.Variance) > math.Abs(all[j].Evidence.Variance)
	})

	summary := &Summary{
		Total:      len(all),
		BySeverity: map[Severity]int{},
		ByType:     map[Type]int{},
	}
	for _, c := range all {
		summary.BySeverity[c.Severity]++
		summary.ByType[c.Type]++
	}
	if len(all) > maxReported {
		all = all[:maxReported]
	}
	summary.Contradictions = all
	return summary, nil
}

// UpdatePathContradictionFlags re-derives contradictions for one path and
// fully replaces the path's flag snapshot with the current check names.
// Callers decide when to invoke this; detection alone never writes.
func (d *Detector) UpdatePathContradictionFlags(ctx context.Context, pathID string) ([]string, error) {
	found, err := d.DetectForPath(ctx, pathID)
	if err != nil {
		return nil, err
	}
	flags := make([]string, 0, len(found))
	for _, c := range found {
		flags = append(flags, c.Check)
	}
	if err := d.store.ReplaceContradictionFlags(ctx, pathID, flags); err != nil {
		return nil, eris.Wrapf(err, "contradiction: replace flags for %s", pathID)
	}
	zap.L().Info("contradiction: flags replaced",
		zap.String("path_id", pathID),
		zap.Strings("flags", flags),
	)
	return flags, nil
}

// Detect runs every check against a path and its completed outcomes.
// Pure and deterministic; results come back in fixed check order.
func Detect(p *model.StrategicPath, outcomes []model.PathOutcome) []Contradiction {
	if len(outcomes) < minOutcomesForDetection {
		return nil
	}

	agg := aggregate(outcomes)
	var found []Contradiction

	if c := checkTimeline(p, agg); c != nil {
		found = append(found, *c)
	}
	if c := checkCost(p, agg); c != nil {
		found = append(found, *c)
	}
	if c := checkSuccessRate(p, agg); c != nil {
		found = append(found, *c)
	}
	if c := checkAbandonedRatio(p, agg); c != nil {
		found = append(found, *c)
	}
	if c := checkPivotRatio(p, agg); c != nil {
		found = append(found, *c)
	}
	return found
}

// aggregates holds the per-family paired means the checks evaluate. Each
// family only counts outcomes carrying both sides of its comparison.
type aggregates struct {
	total int

	timelineSamples  int
	timelinePredMean float64
	timelineActMean  float64
	timelineVariance float64 // mean of per-outcome (actual-predicted)/predicted*100

	costSamples  int
	costPredMean float64
	costActMean  float64
	costVariance float64

	successSamples int
	predictedRate  float64 // mean of snapshotted predictions
	actualRate     float64 // (success+partial)/total*100

	abandoned int
	pivoted   int
}

func aggregate(outcomes []model.PathOutcome) aggregates {
	var a aggregates
	a.total = len(outcomes)

	var tlPred, tlAct, tlVar float64
	var costPred, costAct, costVar float64
	var predRate float64
	successes := 0

	for i := range outcomes {
		o := &outcomes[i]
		if o.ActualOutcome == nil {
			a.total--
			continue
		}
		switch *o.ActualOutcome {
		case model.OutcomeSuccess, model.OutcomePartial:
			successes++
		case model.OutcomeAbandoned:
			a.abandoned++
		case model.OutcomePivoted:
			a.pivoted++
		}

		if o.PredictedTimelineMonths != nil && o.ActualTimelineMonths != nil && *o.PredictedTimelineMonths > 0 {
			a.timelineSamples++
			tlPred += *o.PredictedTimelineMonths
			tlAct += *o.ActualTimelineMonths
			tlVar += (*o.ActualTimelineMonths - *o.PredictedTimelineMonths) / *o.PredictedTimelineMonths * 100
		}

		pred, pOK := model.DecimalValue(o.PredictedCost)
		act, aOK := model.DecimalValue(o.ActualCost)
		if pOK && aOK && pred > 0 {
			a.costSamples++
			costPred += pred
			costAct += act
			costVar += (act - pred) / pred * 100
		}

		if o.PredictedSuccessRate != nil {
			a.successSamples++
			predRate += *o.PredictedSuccessRate
		}
	}

	if a.timelineSamples > 0 {
		n := float64(a.timelineSamples)
		a.timelinePredMean = tlPred / n
		a.timelineActMean = tlAct / n
		a.timelineVariance = tlVar / n
	}
	if a.costSamples > 0 {
		n := float64(a.costSamples)
		a.costPredMean = costPred / n
		a.costActMean = costAct / n
		a.costVariance = costVar / n
	}
	if a.successSamples > 0 {
		a.predictedRate = predRate / float64(a.successSamples)
	}
	if a.total > 0 {
		a.actualRate = float64(successes) / float64(a.total) * 100
	}
	return a
}

func checkTimeline(p *model.StrategicPath, a aggregates) *Contradiction {
	if a.timelineSamples < timelineMinSamples {
		return nil
	}
	v := round1(a.timelineVariance)
	if math.Abs(v) <= timelineTriggerPct {
		return nil
	}
	severity := SeverityMedium
	if math.Abs(v) > timelineHighPct {
		severity = SeverityHigh
	}
	direction := "longer"
	if v < 0 {
		direction = "shorter"
	}
	return &Contradiction{
		ID:       p.Slug + ":" + checkTimelineDrift,
		Check:    checkTimelineDrift,
		Type:     TypeMetric,
		Severity: severity,
		PathID:   p.ID,
		PathSlug: p.Slug,
		Description: fmt.Sprintf("actual timelines run %s%% %s than predicted across %d outcomes",
			formatNum(math.Abs(v)), direction, a.timelineSamples),
		Evidence: Evidence{
			Predicted: formatNum(round1(a.timelinePredMean)) + " months",
			Actual:    formatNum(round1(a.timelineActMean)) + " months",
			Variance:  v,
		},
		SuggestedAction: "re-estimate the published timeline band from recent outcomes",
	}
}

func checkCost(p *model.StrategicPath, a aggregates) *Contradiction {
	if a.costSamples < costMinSamples {
		return nil
	}
	v := round1(a.costVariance)
	if math.Abs(v) <= costTriggerPct {
		return nil
	}
	severity := SeverityMedium
	if math.Abs(v) > costHighPct {
		severity = SeverityHigh
	}
	direction := "over"
	if v < 0 {
		direction = "under"
	}
	return &Contradiction{
		ID:       p.Slug + ":" + checkCostDrift,
		Check:    checkCostDrift,
		Type:     TypeMetric,
		Severity: severity,
		PathID:   p.ID,
		PathSlug: p.Slug,
		Description: fmt.Sprintf("actual costs run %s%% %s predictions across %d outcomes",
			formatNum(math.Abs(v)), direction, a.costSamples),
		Evidence: Evidence{
			Predicted: formatNum(round1(a.costPredMean)),
			Actual:    formatNum(round1(a.costActMean)),
			Variance:  v,
		},
		SuggestedAction: "refresh the published capital band and review cost assumptions",
	}
}

func checkSuccessRate(p *model.StrategicPath, a aggregates) *Contradiction {
	if a.successSamples < successMinSamples {
		return nil
	}
	delta := round1(a.actualRate - a.predictedRate)
	if math.Abs(delta) <= successTriggerPts {
		return nil
	}
	severity := SeverityMedium
	if math.Abs(delta) > successHighPts {
		severity = SeverityHigh
	}
	return &Contradiction{
		ID:       p.Slug + ":" + checkSuccessRateDrift,
		Check:    checkSuccessRateDrift,
		Type:     TypeOutcome,
		Severity: severity,
		PathID:   p.ID,
		PathSlug: p.Slug,
		Description: fmt.Sprintf("actual success rate diverges %s points from predictions",
			formatNum(math.Abs(delta))),
		Evidence: Evidence{
			Predicted: formatNum(round1(a.predictedRate)) + "%",
			Actual:    formatNum(round1(a.actualRate)) + "%",
			Variance:  delta,
		},
		SuggestedAction: "recalculate path metrics so recommendations reflect realized success rates",
	}
}

func checkAbandonedRatio(p *model.StrategicPath, a aggregates) *Contradiction {
	if a.total == 0 {
		return nil
	}
	ratio := float64(a.abandoned) / float64(a.total)
	if ratio <= abandonedRatioTrigger {
		return nil
	}
	pct := round1(ratio * 100)
	return &Contradiction{
		ID:       p.Slug + ":" + checkAbandonment,
		Check:    checkAbandonment,
		Type:     TypePattern,
		Severity: SeverityHigh,
		PathID:   p.ID,
		PathSlug: p.Slug,
		Description: fmt.Sprintf("%d of %d outcomes were abandoned before completion",
			a.abandoned, a.total),
		Evidence: Evidence{
			Predicted: formatNum(abandonedRatioTrigger*100) + "%",
			Actual:    formatNum(pct) + "%",
			Variance:  pct,
		},
		SuggestedAction: "investigate whether the path's entry requirements screen out clients who cannot finish it",
	}
}

func checkPivotRatio(p *model.StrategicPath, a aggregates) *Contradiction {
	if a.total == 0 {
		return nil
	}
	ratio := float64(a.pivoted) / float64(a.total)
	if ratio <= pivotRatioTrigger {
		return nil
	}
	pct := round1(ratio * 100)
	return &Contradiction{
		ID:       p.Slug + ":" + checkPivot,
		Check:    checkPivot,
		Type:     TypePattern,
		Severity: SeverityMedium,
		PathID:   p.ID,
		PathSlug: p.Slug,
		Description: fmt.Sprintf("%d of %d outcomes pivoted away from the recommended path",
			a.pivoted, a.total),
		Evidence: Evidence{
			Predicted: formatNum(pivotRatioTrigger*100) + "%",
			Actual:    formatNum(pct) + "%",
			Variance:  pct,
		},
		SuggestedAction: "review whether the path description sets accurate expectations for this client profile",
	}
}

// formatNum renders a number without trailing zeros: 40 not 40.0, 12.5 as is.
func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
