package variance

import "math"

// Band grades the magnitude of a variance percentage for presentation.
type Band string

const (
	BandGood    Band = "good"    // |v| <= 10
	BandWarning Band = "warning" // |v| <= 25
	BandBad     Band = "bad"
)

// Direction reports which way predictions missed.
type Direction string

const (
	DirectionOver     Direction = "over"   // actuals ran over predictions
	DirectionUnder    Direction = "under"  // actuals came in under
	DirectionOnTarget Direction = "on-target"
)

// Classify grades a variance percentage into a band and a direction.
func Classify(v float64) (Band, Direction) {
	band := BandBad
	switch {
	case math.Abs(v) <= 10:
		band = BandGood
	case math.Abs(v) <= 25:
		band = BandWarning
	}

	direction := DirectionOnTarget
	switch {
	case v > 5:
		direction = DirectionOver
	case v < -5:
		direction = DirectionUnder
	}

	return band, direction
}
