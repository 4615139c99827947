package contradiction

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlight-hq/pathlight/internal/model"
)

func floatPtr(f float64) *float64 { return &f }

func strPtr(s string) *string { return &s }

func catPtr(c model.OutcomeCategory) *model.OutcomeCategory { return &c }

func testPath() *model.StrategicPath {
	return &model.StrategicPath{ID: "p1", Slug: "franchise", Name: "Franchise Expansion"}
}

// timelineOutcomes builds n completed outcomes whose per-outcome timeline
// variance is exactly variancePct.
func timelineOutcomes(n int, variancePct float64) []model.PathOutcome {
	predicted := 10.0
	actual := predicted * (1 + variancePct/100)
	outcomes := make([]model.PathOutcome, 0, n)
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, model.PathOutcome{
			PredictedTimelineMonths: floatPtr(predicted),
			ActualTimelineMonths:    floatPtr(actual),
			ActualOutcome:           catPtr(model.OutcomeSuccess),
		})
	}
	return outcomes
}

func findCheck(t *testing.T, found []Contradiction, check string) *Contradiction {
	t.Helper()
	for i := range found {
		if found[i].Check == check {
			return &found[i]
		}
	}
	return nil
}

func TestDetectOuterGate(t *testing.T) {
	// Two completed outcomes with wild drift still yield nothing.
	assert.Nil(t, Detect(testPath(), timelineOutcomes(2, 200)))
	assert.Nil(t, Detect(testPath(), nil))
}

func TestTimelineDriftThresholdExactness(t *testing.T) {
	// Exactly 30% must not trigger; 30.1% must.
	found := Detect(testPath(), timelineOutcomes(3, 30))
	assert.Nil(t, findCheck(t, found, "timeline-drift"))

	found = Detect(testPath(), timelineOutcomes(3, 30.1))
	c := findCheck(t, found, "timeline-drift")
	require.NotNil(t, c)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.Equal(t, TypeMetric, c.Type)
	assert.Equal(t, "franchise:timeline-drift", c.ID)
	assert.InDelta(t, 30.1, c.Evidence.Variance, 0.001)
}

func TestTimelineDriftHighSeverity(t *testing.T) {
	found := Detect(testPath(), timelineOutcomes(4, 60))
	c := findCheck(t, found, "timeline-drift")
	require.NotNil(t, c)
	assert.Equal(t, SeverityHigh, c.Severity)
}

func TestTimelineDriftUnderPrediction(t *testing.T) {
	// Finishing faster than predicted is drift too.
	found := Detect(testPath(), timelineOutcomes(3, -45))
	c := findCheck(t, found, "timeline-drift")
	require.NotNil(t, c)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.InDelta(t, -45, c.Evidence.Variance, 0.001)
}

func TestCostDrift(t *testing.T) {
	outcome := func(predicted, actual string) model.PathOutcome {
		return model.PathOutcome{
			PredictedCost: strPtr(predicted),
			ActualCost:    strPtr(actual),
			ActualOutcome: catPtr(model.OutcomeSuccess),
		}
	}

	tests := []struct {
		name     string
		actual   string // against predicted 10000
		severity Severity
		trigger  bool
	}{
		{"within tolerance", "12500", "", false},
		{"medium drift", "13000", SeverityMedium, true},
		{"high drift", "15000", SeverityHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := []model.PathOutcome{
				outcome("10000", tt.actual),
				outcome("10000", tt.actual),
				outcome("10000", tt.actual),
			}
			c := findCheck(t, Detect(testPath(), outcomes), "cost-drift")
			if !tt.trigger {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, TypeMetric, c.Type)
		})
	}
}

func TestSuccessRateDrift(t *testing.T) {
	// Five outcomes predicted at 80% success, but only one succeeded:
	// actual 20%, delta -60 points, high severity.
	outcomes := make([]model.PathOutcome, 0, 5)
	for i := 0; i < 5; i++ {
		cat := model.OutcomeFailure
		if i == 0 {
			cat = model.OutcomeSuccess
		}
		outcomes = append(outcomes, model.PathOutcome{
			PredictedSuccessRate: floatPtr(80),
			ActualOutcome:        catPtr(cat),
		})
	}

	c := findCheck(t, Detect(testPath(), outcomes), "success-rate-drift")
	require.NotNil(t, c)
	assert.Equal(t, TypeOutcome, c.Type)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Equal(t, "80%", c.Evidence.Predicted)
	assert.Equal(t, "20%", c.Evidence.Actual)
	assert.InDelta(t, -60, c.Evidence.Variance, 0.001)
}

func TestSuccessRateDriftMinSamples(t *testing.T) {
	// Four predicted rates is below the five-sample floor: no check runs
	// even with total divergence.
	outcomes := []model.PathOutcome{
		{PredictedSuccessRate: floatPtr(90), ActualOutcome: catPtr(model.OutcomeFailure)},
		{PredictedSuccessRate: floatPtr(90), ActualOutcome: catPtr(model.OutcomeFailure)},
		{PredictedSuccessRate: floatPtr(90), ActualOutcome: catPtr(model.OutcomeFailure)},
		{PredictedSuccessRate: floatPtr(90), ActualOutcome: catPtr(model.OutcomeFailure)},
	}
	assert.Nil(t, findCheck(t, Detect(testPath(), outcomes), "success-rate-drift"))
}

func TestAbandonmentPattern(t *testing.T) {
	// Ten completed outcomes, four abandoned: pattern/high with actual "40%".
	outcomes := make([]model.PathOutcome, 0, 10)
	for i := 0; i < 10; i++ {
		cat := model.OutcomeSuccess
		if i < 4 {
			cat = model.OutcomeAbandoned
		}
		outcomes = append(outcomes, model.PathOutcome{ActualOutcome: catPtr(cat)})
	}

	c := findCheck(t, Detect(testPath(), outcomes), "abandonment-pattern")
	require.NotNil(t, c)
	assert.Equal(t, TypePattern, c.Type)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Equal(t, "40%", c.Evidence.Actual)
	assert.Equal(t, "franchise:abandonment-pattern", c.ID)
}

func TestAbandonmentPatternBoundary(t *testing.T) {
	// Exactly 30% abandoned does not trigger (strict >).
	outcomes := make([]model.PathOutcome, 0, 10)
	for i := 0; i < 10; i++ {
		cat := model.OutcomeSuccess
		if i < 3 {
			cat = model.OutcomeAbandoned
		}
		outcomes = append(outcomes, model.PathOutcome{ActualOutcome: catPtr(cat)})
	}
	assert.Nil(t, findCheck(t, Detect(testPath(), outcomes), "abandonment-pattern"))
}

func TestPivotPattern(t *testing.T) {
	outcomes := make([]model.PathOutcome, 0, 4)
	for i := 0; i < 4; i++ {
		cat := model.OutcomeSuccess
		if i < 2 {
			cat = model.OutcomePivoted
		}
		outcomes = append(outcomes, model.PathOutcome{ActualOutcome: catPtr(cat)})
	}

	c := findCheck(t, Detect(testPath(), outcomes), "pivot-pattern")
	require.NotNil(t, c)
	assert.Equal(t, TypePattern, c.Type)
	assert.Equal(t, SeverityMedium, c.Severity)
	assert.Equal(t, "50%", c.Evidence.Actual)
}

type stubSource struct {
	paths    []model.StrategicPath
	outcomes map[string][]model.PathOutcome
	errs     map[string]error
	flags    map[string][]string
}

func (s *stubSource) GetPath(_ context.Context, id string) (*model.StrategicPath, error) {
	for i := range s.paths {
		if s.paths[i].ID == id {
			return &s.paths[i], nil
		}
	}
	return nil, fmt.Errorf("path %s not found", id)
}

func (s *stubSource) ListActivePaths(context.Context) ([]model.StrategicPath, error) {
	return s.paths, nil
}

func (s *stubSource) ListCompletedOutcomes(_ context.Context, pathID string) ([]model.PathOutcome, error) {
	if err := s.errs[pathID]; err != nil {
		return nil, err
	}
	return s.outcomes[pathID], nil
}

func (s *stubSource) ReplaceContradictionFlags(_ context.Context, pathID string, flags []string) error {
	if s.flags == nil {
		s.flags = map[string][]string{}
	}
	s.flags[pathID] = flags
	return nil
}

func TestDetectAllOrderingAndCounts(t *testing.T) {
	// Path "a" produces a high-severity abandonment flag, path "b" a medium
	// timeline drift. High must sort first regardless of variance magnitude.
	abandoned := make([]model.PathOutcome, 0, 10)
	for i := 0; i < 10; i++ {
		cat := model.OutcomeSuccess
		if i < 4 {
			cat = model.OutcomeAbandoned
		}
		abandoned = append(abandoned, model.PathOutcome{ActualOutcome: catPtr(cat)})
	}

	src := &stubSource{
		paths: []model.StrategicPath{
			{ID: "a", Slug: "alpha"},
			{ID: "b", Slug: "beta"},
		},
		outcomes: map[string][]model.PathOutcome{
			"a": abandoned,
			"b": timelineOutcomes(3, 45),
		},
	}

	summary, err := NewDetector(src).DetectAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Contradictions, 2)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, SeverityHigh, summary.Contradictions[0].Severity)
	assert.Equal(t, "alpha:abandonment-pattern", summary.Contradictions[0].ID)
	assert.Equal(t, SeverityMedium, summary.Contradictions[1].Severity)
	assert.Equal(t, 1, summary.BySeverity[SeverityHigh])
	assert.Equal(t, 1, summary.BySeverity[SeverityMedium])
	assert.Equal(t, 1, summary.ByType[TypePattern])
	assert.Equal(t, 1, summary.ByType[TypeMetric])
}

func TestDetectAllCapsReported(t *testing.T) {
	// Twelve drifting paths produce twelve contradictions; only ten are
	// listed but counts cover all of them.
	src := &stubSource{outcomes: map[string][]model.PathOutcome{}}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("p%02d", i)
		src.paths = append(src.paths, model.StrategicPath{ID: id, Slug: id})
		src.outcomes[id] = timelineOutcomes(3, 40+float64(i))
	}

	summary, err := NewDetector(src).DetectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Total)
	assert.Len(t, summary.Contradictions, 10)
	// Largest absolute variance first within equal severity.
	assert.InDelta(t, 51, summary.Contradictions[0].Evidence.Variance, 0.001)
}

func TestDetectAllIsolatesFailures(t *testing.T) {
	src := &stubSource{
		paths: []model.StrategicPath{
			{ID: "a", Slug: "alpha"},
			{ID: "b", Slug: "beta"},
		},
		outcomes: map[string][]model.PathOutcome{"a": timelineOutcomes(3, 45)},
		errs:     map[string]error{"b": fmt.Errorf("connection reset")},
	}

	summary, err := NewDetector(src).DetectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
}

func TestUpdatePathContradictionFlags(t *testing.T) {
	src := &stubSource{
		paths:    []model.StrategicPath{{ID: "a", Slug: "alpha"}},
		outcomes: map[string][]model.PathOutcome{"a": timelineOutcomes(3, 60)},
	}

	d := NewDetector(src)
	flags, err := d.UpdatePathContradictionFlags(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"timeline-drift"}, flags)
	assert.Equal(t, []string{"timeline-drift"}, src.flags["a"])

	// A clean follow-up run replaces the snapshot with an empty set.
	src.outcomes["a"] = timelineOutcomes(3, 5)
	flags, err = d.UpdatePathContradictionFlags(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Empty(t, src.flags["a"])
}
