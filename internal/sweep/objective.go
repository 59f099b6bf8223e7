package sweep

import (
	"math"
	"sort"

	"github.com/meridianav/fusiontrack/internal/scenario"
)

// ObjectiveWeights defines weights for multi-objective scoring of a
// tracking run.
type ObjectiveWeights struct {
	CountAccuracy  float64 `json:"count_accuracy"`  // Positive = maximise exact-count frames
	PositionRMSE   float64 `json:"position_rmse"`   // Negative = minimise position error
	IDSwitches     float64 `json:"id_switches"`     // Negative = minimise identity churn
	Fragmentation  float64 `json:"fragmentation"`   // Negative = minimise identities per target
	Misses         float64 `json:"misses"`          // Negative = minimise uncovered truth
	PredictedRatio float64 `json:"predicted_ratio"` // Negative = minimise coasted output
}

// DefaultObjectiveWeights returns default weights for multi-objective scoring.
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{
		CountAccuracy:  1.0,
		PositionRMSE:   -0.5,
		IDSwitches:     -2.0,
		Fragmentation:  -1.0,
		Misses:         -1.0,
		PredictedRatio: -0.5,
	}
}

// ScoreMetrics computes a scalar score for one scenario run using the given
// weights. All terms are linear. Note: minimisation weights (e.g. PositionRMSE,
// IDSwitches) should be negative.
func ScoreMetrics(m scenario.Metrics, weights ObjectiveWeights) float64 {
	score := 0.0

	// Track count accuracy (0-1, higher is better)
	score += weights.CountAccuracy * m.TrackCountAccuracy

	// Position RMSE in metres (lower is better, so weight is typically negative)
	score += weights.PositionRMSE * m.PositionRMSE

	// ID switches and misses per step, so longer scenarios do not dominate
	if m.Steps > 0 {
		steps := float64(m.Steps)
		score += weights.IDSwitches * float64(m.IDSwitches) / steps
		score += weights.Misses * float64(m.Misses) / steps
	}

	// Fragmentation: ideal is 1.0 (one identity per target), so only the
	// excess counts. Runs that covered nothing clamp to the ideal rather
	// than below it.
	frag := m.Fragmentation
	if frag < 1 {
		frag = 1
	}
	score += weights.Fragmentation * (frag - 1)

	// Predicted output ratio (0-1, lower is better, so weight is typically negative)
	score += weights.PredictedRatio * m.PredictedRatio

	return score
}

// AcceptanceCriteria defines hard thresholds a run must satisfy to be
// considered viable. A nil pointer means no constraint for that metric.
type AcceptanceCriteria struct {
	MaxPositionRMSE  *float64 `json:"max_position_rmse,omitempty"`
	MaxFragmentation *float64 `json:"max_fragmentation,omitempty"`
	MinCountAccuracy *float64 `json:"min_count_accuracy,omitempty"`
}

// CheckAcceptance returns true if the metrics satisfy all acceptance criteria.
// A nil criteria pointer means all results are accepted.
func CheckAcceptance(m scenario.Metrics, criteria *AcceptanceCriteria) bool {
	if criteria == nil {
		return true
	}
	if criteria.MaxPositionRMSE != nil && m.PositionRMSE > *criteria.MaxPositionRMSE {
		return false
	}
	if criteria.MaxFragmentation != nil && m.Fragmentation > *criteria.MaxFragmentation {
		return false
	}
	if criteria.MinCountAccuracy != nil && m.TrackCountAccuracy < *criteria.MinCountAccuracy {
		return false
	}
	return true
}

// RankResults sorts permutation results by score (highest first) and returns
// the sorted copy.
func RankResults(results []PermutationResult) []PermutationResult {
	ranked := make([]PermutationResult, len(results))
	copy(ranked, results)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// RankResultsWithCriteria ranks results after applying acceptance criteria.
// Runs that fail criteria receive score = -MaxFloat64 and sort to the bottom.
func RankResultsWithCriteria(results []PermutationResult, criteria *AcceptanceCriteria) []PermutationResult {
	ranked := make([]PermutationResult, len(results))
	copy(ranked, results)
	for i := range ranked {
		if !CheckAcceptance(ranked[i].Metrics, criteria) {
			ranked[i].Score = -math.MaxFloat64
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
