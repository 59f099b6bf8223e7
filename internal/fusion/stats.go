package fusion

// Stats is a snapshot of engine counters. Counters accumulate from
// construction (or the last Reset); the track counts and offset flag
// reflect the moment of the snapshot.
type Stats struct {
	FramesProcessed        int64
	AuthoritativeFrames    int64
	ForegroundObservations int64
	BackgroundObservations int64
	Matches                int64
	Spawns                 int64
	PredictedSuppressed    int64
	Evictions              int64
	SerializeFailures      int64
	OutsideMapZeroed       int64
	InvariantAborts        int64

	ForegroundTracks int
	BackgroundTracks int
	OffsetFrozen     bool
}

// Stats returns a snapshot of the engine's counters and current state.
func (e *Engine) Stats() Stats {
	s := e.counters
	s.ForegroundTracks = len(e.fgTracks)
	s.BackgroundTracks = len(e.bgTracks)
	s.OffsetFrozen = e.offsetFrozen
	return s
}
