// Package motion advances per-track motion and shape state. A Tracker owns
// the evolution of TrackData.Motion and TrackData.Shape: the engine decides
// WHEN a track advances (drain dispatch on authoritative frames), the
// Tracker decides HOW.
package motion

import (
	"github.com/meridianav/fusiontrack/internal/track"
)

// Tracker is the per-track state machine. Implementations must uphold the
// visibility contract: UpdateWithObservation clears the predicted flag and
// advances LatestVisibleNanos; UpdateWithoutObservation sets the predicted
// flag and leaves LatestVisibleNanos alone, so eviction still sees the last
// real sighting.
type Tracker interface {
	// InitializeTrack seeds a fresh track from its first observation.
	InitializeTrack(td *track.TrackData, obs *track.Observation)

	// UpdateWithObservation folds one matched observation into the track,
	// advancing the state to the observation's timestamp first. Called once
	// per drained observation, in timestamp order.
	UpdateWithObservation(td *track.TrackData, obs *track.Observation)

	// UpdateWithoutObservation advances the track to nowNanos by pure
	// prediction.
	UpdateWithoutObservation(td *track.TrackData, nowNanos int64)
}
