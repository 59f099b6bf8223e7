package match

import (
	"sort"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/track"
)

// NearestMatcher is the greedy nearest-neighbour matcher: candidate pairs
// are taken cheapest-first, each side at most once. O(n·m·log(n·m)) and
// good enough for sparse scenes, but it can split a track when two
// observations compete; the hungarian matcher avoids that at higher cost.
type NearestMatcher struct {
	maxDistance     float64
	histogramWeight float64
}

// NewNearestMatcher builds the matcher from the tuning config.
func NewNearestMatcher(cfg *config.TuningConfig) (Matcher, error) {
	return &NearestMatcher{
		maxDistance:     cfg.GetMatchDistanceMax(),
		histogramWeight: cfg.GetHistogramWeight(),
	}, nil
}

type candidatePair struct {
	cost     float64
	trackIdx int
	obsIdx   int
}

// Match implements Matcher.
func (m *NearestMatcher) Match(tracks []*track.TrackData, observations []*track.Observation) Result {
	if len(tracks) == 0 || len(observations) == 0 {
		return collectResult(allUnassigned(len(tracks)), len(tracks), len(observations))
	}

	cost := buildCostMatrix(tracks, observations, m.maxDistance, m.histogramWeight)

	pairs := make([]candidatePair, 0, len(tracks)*len(observations))
	for i := range cost {
		for j, c := range cost[i] {
			if c < matchInf {
				pairs = append(pairs, candidatePair{cost: c, trackIdx: i, obsIdx: j})
			}
		}
	}
	// Ties break on (track, observation) index so the result is
	// deterministic across runs.
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].cost != pairs[b].cost {
			return pairs[a].cost < pairs[b].cost
		}
		if pairs[a].trackIdx != pairs[b].trackIdx {
			return pairs[a].trackIdx < pairs[b].trackIdx
		}
		return pairs[a].obsIdx < pairs[b].obsIdx
	})

	assign := allUnassigned(len(tracks))
	obsTaken := make([]bool, len(observations))
	for _, p := range pairs {
		if assign[p.trackIdx] >= 0 || obsTaken[p.obsIdx] {
			continue
		}
		assign[p.trackIdx] = p.obsIdx
		obsTaken[p.obsIdx] = true
	}

	return collectResult(assign, len(tracks), len(observations))
}
