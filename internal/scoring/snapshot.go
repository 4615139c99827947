package scoring

import (
	"strconv"

	"github.com/pathlight-hq/pathlight/internal/model"
)

// Snapshot captures the predictions in force when a client commits to a
// path. Outcomes are later judged against these values, not against whatever
// the path publishes after recalculation.
type Snapshot struct {
	TimelineMonths float64
	Cost           string
	SuccessRate    float64
	ModelVersion   int
}

// SnapshotPrediction derives the prediction snapshot from a path's current
// published metrics: band midpoints for timeline and cost, the published
// success rate as-is.
func SnapshotPrediction(p *model.StrategicPath) Snapshot {
	s := Snapshot{
		SuccessRate:  p.Metrics.SuccessRate,
		ModelVersion: p.ModelVersion,
	}

	if p.Metrics.TimelineP25 > 0 || p.Metrics.TimelineP75 > 0 {
		s.TimelineMonths = (p.Metrics.TimelineP25 + p.Metrics.TimelineP75) / 2
	}

	low, lowOK := model.DecimalValue(&p.Metrics.CapitalP25)
	high, highOK := model.DecimalValue(&p.Metrics.CapitalP75)
	if lowOK && highOK && (low > 0 || high > 0) {
		s.Cost = strconv.FormatFloat((low+high)/2, 'f', 2, 64)
	}

	return s
}
