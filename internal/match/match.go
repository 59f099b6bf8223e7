// Package match associates observations with existing tracks. A Matcher
// consumes one partition's tracks and the frame's observations for that
// partition and produces a one-to-one assignment; the engine caches the
// matched observations and spawns tracks for the unmatched ones.
//
// Two implementations are provided: "hungarian" solves the assignment
// problem optimally, "nearest" is the cheaper greedy fallback. Both gate
// on a maximum centre distance so distant pairs can never associate.
package match

import (
	"github.com/meridianav/fusiontrack/internal/track"
)

// Assignment pairs one track index with one observation index.
type Assignment struct {
	TrackIdx int
	ObsIdx   int
}

// Result is the outcome of one Match call. Indices refer to the input
// slices. Every track and observation appears exactly once, either in an
// assignment or in the corresponding unassigned list.
type Result struct {
	Assignments            []Assignment
	UnassignedTracks       []int
	UnassignedObservations []int
}

// Matcher associates observations with tracks. Implementations must be
// deterministic: the same inputs produce the same Result, so replays and
// parameter sweeps are reproducible.
type Matcher interface {
	Match(tracks []*track.TrackData, observations []*track.Observation) Result
}

// collectResult converts a row assignment vector (assign[i] = observation
// index for track i, or -1) into a Result.
func collectResult(assign []int, nTracks, nObs int) Result {
	res := Result{}
	obsTaken := make([]bool, nObs)
	for ti := 0; ti < nTracks; ti++ {
		oi := assign[ti]
		if oi >= 0 {
			res.Assignments = append(res.Assignments, Assignment{TrackIdx: ti, ObsIdx: oi})
			obsTaken[oi] = true
		} else {
			res.UnassignedTracks = append(res.UnassignedTracks, ti)
		}
	}
	for oi := 0; oi < nObs; oi++ {
		if !obsTaken[oi] {
			res.UnassignedObservations = append(res.UnassignedObservations, oi)
		}
	}
	return res
}
