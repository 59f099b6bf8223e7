package track

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridianav/fusiontrack/internal/geom"
)

// MotionState is the filtered kinematic state of a track in the local
// frame. The tracker owns its evolution; everything else reads it.
type MotionState struct {
	Position     geom.Vec3
	Velocity     geom.Vec3
	Acceleration geom.Vec3
	// Covariance is the 4x4 row-major covariance of [x, y, vx, vy].
	Covariance [16]float64
	// LastUpdateNanos is the state's reference time, advanced by both
	// observation updates and pure predictions.
	LastUpdateNanos int64
}

// ShapeState is the smoothed extent and orientation of a track.
type ShapeState struct {
	Size      geom.Vec3
	Direction geom.Vec3
	// Histogram is the smoothed shape descriptor carried for matching.
	Histogram []float64
}

// TrackData is the persistent record behind one track. It lives in
// exactly one partition list (foreground or background) from spawn to
// eviction, and its ID is never reused for a different physical object.
type TrackData struct {
	ID         string
	Background bool

	Motion MotionState
	Shape  ShapeState

	// LatestVisibleNanos is the timestamp of the last matched observation
	// folded into this track (not advanced by pure prediction).
	LatestVisibleNanos int64
	// Predicted is true when the last state advance had no observation.
	Predicted bool

	// pending is the time-windowed cache of matched observations not yet
	// folded into the state, in arrival order.
	pending []*Observation
}

// NewTrackID returns a globally unique track identifier. UUIDs prevent
// collisions across engine resets and across engines running in parallel.
func NewTrackID() string {
	return fmt.Sprintf("trk_%s", uuid.NewString())
}

// PushObservation appends a matched observation to the pending cache.
// State is not advanced here; several sensors may contribute to the same
// track within one authoritative cycle.
func (t *TrackData) PushObservation(obs *Observation) {
	t.pending = append(t.pending, obs)
}

// PendingCount returns the number of cached observations awaiting a drain.
func (t *TrackData) PendingCount() int {
	return len(t.pending)
}

// DrainPending removes and returns every cached observation, sorted
// stably by timestamp so same-timestamp observations from different
// sensors keep their arrival order. Ownership of the returned
// observations transfers to the caller.
func (t *TrackData) DrainPending() []*Observation {
	if len(t.pending) == 0 {
		return nil
	}
	drained := t.pending
	t.pending = nil
	sort.SliceStable(drained, func(i, j int) bool {
		return drained[i].TimestampNanos < drained[j].TimestampNanos
	})
	return drained
}

// Visible reports whether the track survives eviction at the given frame
// time: LatestVisibleNanos + retention >= now.
func (t *TrackData) Visible(retention time.Duration, nowNanos int64) bool {
	return t.LatestVisibleNanos+int64(retention) >= nowNanos
}

// reset clears the record for pool reuse.
func (t *TrackData) reset() {
	*t = TrackData{}
}

// TrackedObject is the serialized output form of a track, expressed back
// in the large-scale world frame.
type TrackedObject struct {
	TrackID        string
	Position       geom.Vec3
	Velocity       geom.Vec3
	Acceleration   geom.Vec3
	Size           geom.Vec3
	Direction      geom.Vec3
	Background     bool
	Predicted      bool
	TimestampNanos int64
}

// reset clears the output object for pool reuse.
func (o *TrackedObject) reset() {
	*o = TrackedObject{}
}

// ToTrackedObject serializes the track into out. offsetToWorld is the
// translation restoring the large-scale frame (the negated global-to-local
// offset) and is added to the filtered position. Fails without touching
// track state when the motion state has gone non-finite; the track stays
// in its list for future attempts.
func (t *TrackData) ToTrackedObject(offsetToWorld geom.Vec3, timestampNanos int64, out *TrackedObject) error {
	if out == nil {
		return fmt.Errorf("track %s: nil output object", t.ID)
	}
	if !vecFinite(t.Motion.Position) || !vecFinite(t.Motion.Velocity) || !vecFinite(t.Motion.Acceleration) {
		return fmt.Errorf("track %s: non-finite motion state", t.ID)
	}

	out.TrackID = t.ID
	out.Position = t.Motion.Position.Add(offsetToWorld)
	out.Velocity = t.Motion.Velocity
	out.Acceleration = t.Motion.Acceleration
	out.Size = t.Shape.Size
	out.Direction = t.Shape.Direction
	out.Background = t.Background
	out.Predicted = t.Predicted
	out.TimestampNanos = timestampNanos
	return nil
}

func vecFinite(v geom.Vec3) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
