// Package scoring ranks active strategic paths against a client context
// using weighted multi-factor scoring.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pathlight-hq/pathlight/internal/config"
	"github.com/pathlight-hq/pathlight/internal/model"
)

// PathScore holds the scoring result for a single path.
type PathScore struct {
	PathID        string             `json:"path_id"`
	Slug          string             `json:"slug"`
	Name          string             `json:"name"`
	Score         float64            `json:"score"` // 0-100
	CaseCount     int                `json:"case_count"`
	ModelVersion  int                `json:"model_version"`
	Breakdown     map[string]float64 `json:"breakdown"` // factor -> [0,1]
	PrimaryReason string             `json:"primary_reason"`
}

// Factor keys used in the score breakdown.
const (
	FactorCapitalFit  = "capital_fit"
	FactorTimelineFit = "timeline_fit"
	FactorRiskAlign   = "risk_align"
	FactorTrackRecord = "track_record"
	FactorConfidence  = "confidence"
)

// neutral is the factor contribution when the data needed to judge a factor
// is missing. Unknown inputs degrade gracefully instead of failing the rank.
const neutral = 0.5

// factorOrder fixes the accumulation and tie-break order across factors.
var factorOrder = []string{FactorCapitalFit, FactorTimelineFit, FactorRiskAlign, FactorTrackRecord, FactorConfidence}

// Rank scores every path against the client context and returns the results
// sorted by score descending. Pure and deterministic: equal scores are
// ordered by case count descending (more evidence first), then name
// ascending.
func Rank(paths []model.StrategicPath, cc model.ClientContext, cfg config.ScoringConfig) []PathScore {
	scores := make([]PathScore, 0, len(paths))
	for i := range paths {
		scores = append(scores, scoreOne(&paths[i], &cc, cfg))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].CaseCount != scores[j].CaseCount {
			return scores[i].CaseCount > scores[j].CaseCount
		}
		return scores[i].Name < scores[j].Name
	})
	return scores
}

// scoreOne computes the composite score for one path.
func scoreOne(p *model.StrategicPath, cc *model.ClientContext, cfg config.ScoringConfig) PathScore {
	components := map[string]float64{
		FactorCapitalFit:  scoreCapitalFit(cc.AvailableCapital, p.Metrics.CapitalP25, p.Metrics.CapitalP75),
		FactorTimelineFit: scoreTimelineFit(cc.Timeline, p.Metrics.TimelineP25, p.Metrics.TimelineP75),
		FactorRiskAlign:   scoreRiskAlignment(cc.RiskTolerance, p.Metrics.RiskScore),
		FactorTrackRecord: scoreTrackRecord(p.Metrics.SuccessRate, p.Metrics.CaseCount),
		FactorConfidence:  scoreConfidence(p.Metrics.Confidence),
	}

	weights := map[string]float64{
		FactorCapitalFit:  cfg.CapitalFitWeight,
		FactorTimelineFit: cfg.TimelineFitWeight,
		FactorRiskAlign:   cfg.RiskAlignWeight,
		FactorTrackRecord: cfg.TrackRecordWeight,
		FactorConfidence:  cfg.ConfidenceWeight,
	}

	weightSum := cfg.WeightSum()
	var total float64
	for _, k := range factorOrder {
		total += components[k] * weights[k]
	}
	if weightSum > 0 {
		total = (total / weightSum) * 100
	}
	total = math.Min(100, math.Max(0, total))

	return PathScore{
		PathID:        p.ID,
		Slug:          p.Slug,
		Name:          p.Name,
		Score:         round1(total),
		CaseCount:     p.Metrics.CaseCount,
		ModelVersion:  p.ModelVersion,
		Breakdown:     components,
		PrimaryReason: primaryReason(components, weights, p.Metrics.CaseCount),
	}
}

// scoreCapitalFit returns 0.0-1.0 for the client's available capital against
// the path's capital percentile band. Full credit inside the band, decaying
// credit outside it in either direction.
func scoreCapitalFit(availableCapital string, p25, p75 string) float64 {
	capital, ok := model.DecimalValue(&availableCapital)
	if !ok {
		return neutral
	}
	low, lowOK := model.DecimalValue(&p25)
	high, highOK := model.DecimalValue(&p75)
	if !lowOK || !highOK || (low <= 0 && high <= 0) {
		return neutral // path has no capital band yet
	}
	if capital >= low && capital <= high {
		return 1.0
	}
	if capital < low {
		if low <= 0 {
			return 1.0
		}
		return math.Max(0, capital/low)
	}
	// Over-capitalized: gentle decay, a bigger budget is a weaker mismatch.
	if capital <= 0 {
		return 0
	}
	return math.Max(0, high/capital)
}

// scoreTimelineFit returns 0.0-1.0 for the client's planning horizon against
// the path's timeline percentile band.
func scoreTimelineFit(pref model.TimelinePreference, p25, p75 float64) float64 {
	if !pref.IsValid() {
		return neutral
	}
	if p25 <= 0 && p75 <= 0 {
		return neutral // no timeline evidence yet
	}
	horizon := pref.HorizonMonths()
	if horizon >= p75 {
		return 1.0
	}
	if horizon <= p25 {
		if p25 <= 0 {
			return 1.0
		}
		return math.Max(0, horizon/p25)
	}
	// Inside the band: partial credit scaling from 0.5 at p25 to 1.0 at p75.
	return 0.5 + 0.5*(horizon-p25)/(p75-p25)
}

// scoreRiskAlignment returns 0.0-1.0 with a symmetric penalty for mismatch:
// an aggressive client on a conservative path scores as poorly as the
// reverse.
func scoreRiskAlignment(tolerance model.RiskTolerance, riskScore float64) float64 {
	if !tolerance.IsValid() {
		return neutral
	}
	pathRisk := math.Min(math.Max(riskScore/10, 0), 1)
	return math.Min(math.Max(1-math.Abs(tolerance.Ordinal()-pathRisk), 0), 1)
}

// scoreTrackRecord returns 0.0-1.0 from the path's success rate, with case
// count as a confidence dampener: few cases pull a high success rate back
// toward neutral instead of letting thin evidence dominate.
func scoreTrackRecord(successRate float64, caseCount int) float64 {
	if caseCount <= 0 {
		return neutral
	}
	damp := math.Min(float64(caseCount)/20, 1.0)
	sr := math.Min(math.Max(successRate/100, 0), 1)
	return sr*damp + neutral*(1-damp)
}

// scoreConfidence returns the categorical boost/penalty for the path's
// published confidence level.
func scoreConfidence(level model.ConfidenceLevel) float64 {
	switch level {
	case model.ConfidenceHigh:
		return 1.0
	case model.ConfidenceMedium:
		return 0.6
	case model.ConfidenceLow:
		return 0.3
	default:
		return neutral
	}
}

// primaryReason names the factor that contributed most to the composite.
func primaryReason(components, weights map[string]float64, caseCount int) string {
	best := ""
	var bestContribution float64
	for _, k := range factorOrder {
		c := components[k] * weights[k]
		if best == "" || c > bestContribution {
			best = k
			bestContribution = c
		}
	}

	switch best {
	case FactorCapitalFit:
		return "capital requirements match your available budget"
	case FactorTimelineFit:
		return "expected timeline fits your planning horizon"
	case FactorRiskAlign:
		return "risk profile aligns with your tolerance"
	case FactorTrackRecord:
		return fmt.Sprintf("proven track record across %d recorded cases", caseCount)
	case FactorConfidence:
		return "high confidence in the published metrics"
	default:
		return "balanced fit across all factors"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// PathSource is the read access the engine needs from the store.
type PathSource interface {
	ListActivePaths(ctx context.Context) ([]model.StrategicPath, error)
}

// Engine ranks paths loaded from the store.
type Engine struct {
	paths PathSource
	cfg   config.ScoringConfig
}

// NewEngine creates a scoring engine over the given path source.
func NewEngine(paths PathSource, cfg config.ScoringConfig) *Engine {
	return &Engine{paths: paths, cfg: cfg}
}

// RankForContext loads all active paths and ranks them against the context.
func (e *Engine) RankForContext(ctx context.Context, cc model.ClientContext) ([]PathScore, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	paths, err := e.paths.ListActivePaths(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: load active paths")
	}

	scores := Rank(paths, cc, e.cfg)

	zap.L().Info("scoring: ranked paths",
		zap.Int("paths", len(scores)),
		zap.String("industry", cc.Industry),
	)
	return scores, nil
}
