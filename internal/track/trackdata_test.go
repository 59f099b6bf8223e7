package track

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianav/fusiontrack/internal/geom"
)

func TestNewTrackIDPrefixAndUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTrackID()
		assert.True(t, strings.HasPrefix(id, "trk_"), "id %q missing prefix", id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestAttachAppliesPose(t *testing.T) {
	t.Parallel()

	// Sensor at (10, 20, 0) rotated 90 degrees: sensor +X maps to local +Y.
	pose := geom.FromTranslationYaw(geom.Vec3{X: 10, Y: 20}, math.Pi/2)
	det := &Detection{
		Center:                 geom.Vec3{X: 1, Y: 0, Z: 0.5},
		Direction:              geom.Vec3{X: 1},
		Velocity:               geom.Vec3{X: 2},
		Size:                   geom.Vec3{X: 4, Y: 2, Z: 1.5},
		LatestTrackedTimeNanos: 12345,
	}

	var obs Observation
	obs.Histogram = []float64{0.5, 0.5} // stale descriptor from a previous frame
	obs.Attach(det, pose, "lidar_main")

	assert.InDelta(t, 10.0, obs.Center.X, 1e-9)
	assert.InDelta(t, 21.0, obs.Center.Y, 1e-9)
	assert.InDelta(t, 0.5, obs.Center.Z, 1e-9)

	// Direction and velocity rotate but do not translate.
	assert.InDelta(t, 0.0, obs.Direction.X, 1e-9)
	assert.InDelta(t, 1.0, obs.Direction.Y, 1e-9)
	assert.InDelta(t, 0.0, obs.Velocity.X, 1e-9)
	assert.InDelta(t, 2.0, obs.Velocity.Y, 1e-9)

	assert.Equal(t, "lidar_main", obs.SensorName)
	assert.Equal(t, int64(12345), obs.TimestampNanos)
	assert.Equal(t, det.Size, obs.Size)
	assert.Nil(t, obs.Histogram, "attach must clear a recycled descriptor")
}

func TestDrainPendingOrdersByTimestamp(t *testing.T) {
	t.Parallel()

	td := &TrackData{ID: NewTrackID()}
	td.PushObservation(&Observation{SensorName: "c", TimestampNanos: 300})
	td.PushObservation(&Observation{SensorName: "a", TimestampNanos: 100})
	td.PushObservation(&Observation{SensorName: "b", TimestampNanos: 200})
	require.Equal(t, 3, td.PendingCount())

	drained := td.DrainPending()
	require.Len(t, drained, 3)
	assert.Equal(t, int64(100), drained[0].TimestampNanos)
	assert.Equal(t, int64(200), drained[1].TimestampNanos)
	assert.Equal(t, int64(300), drained[2].TimestampNanos)

	// Drain empties the cache; a second drain yields nothing.
	assert.Equal(t, 0, td.PendingCount())
	assert.Nil(t, td.DrainPending())
}

func TestDrainPendingStableForEqualTimestamps(t *testing.T) {
	t.Parallel()

	// Two sensors report the same instant; arrival order must survive the
	// sort so neither contribution is lost or reordered.
	td := &TrackData{ID: NewTrackID()}
	td.PushObservation(&Observation{SensorName: "lidar_main", TimestampNanos: 500})
	td.PushObservation(&Observation{SensorName: "radar_front", TimestampNanos: 500})
	td.PushObservation(&Observation{SensorName: "lidar_rear", TimestampNanos: 400})

	drained := td.DrainPending()
	require.Len(t, drained, 3)
	assert.Equal(t, "lidar_rear", drained[0].SensorName)
	assert.Equal(t, "lidar_main", drained[1].SensorName)
	assert.Equal(t, "radar_front", drained[2].SensorName)
}

func TestVisibleBoundary(t *testing.T) {
	t.Parallel()

	retention := 300 * time.Millisecond
	td := &TrackData{LatestVisibleNanos: 1_000_000_000}

	// Exactly at the boundary the track survives.
	boundary := td.LatestVisibleNanos + int64(retention)
	assert.True(t, td.Visible(retention, boundary))
	// One nanosecond past it, the track is gone.
	assert.False(t, td.Visible(retention, boundary+1))
	assert.True(t, td.Visible(retention, td.LatestVisibleNanos))
}

func TestToTrackedObjectAppliesOffset(t *testing.T) {
	t.Parallel()

	td := &TrackData{
		ID:         "trk_test",
		Background: true,
		Predicted:  true,
		Motion: MotionState{
			Position:     geom.Vec3{X: 5, Y: 6, Z: 0},
			Velocity:     geom.Vec3{X: 1, Y: -1},
			Acceleration: geom.Vec3{X: 0.1},
		},
		Shape: ShapeState{
			Size:      geom.Vec3{X: 4, Y: 2, Z: 1.5},
			Direction: geom.Vec3{X: 1},
		},
	}

	var out TrackedObject
	offset := geom.Vec3{X: 1000, Y: 2000, Z: 0}
	require.NoError(t, td.ToTrackedObject(offset, 777, &out))

	assert.Equal(t, "trk_test", out.TrackID)
	assert.InDelta(t, 1005.0, out.Position.X, 1e-9)
	assert.InDelta(t, 2006.0, out.Position.Y, 1e-9)
	assert.Equal(t, td.Motion.Velocity, out.Velocity)
	assert.Equal(t, td.Motion.Acceleration, out.Acceleration)
	assert.Equal(t, td.Shape.Size, out.Size)
	assert.True(t, out.Background)
	assert.True(t, out.Predicted)
	assert.Equal(t, int64(777), out.TimestampNanos)
}

func TestToTrackedObjectRejectsNonFiniteState(t *testing.T) {
	t.Parallel()

	td := &TrackData{
		ID: "trk_bad",
		Motion: MotionState{
			Position: geom.Vec3{X: math.NaN()},
		},
	}

	var out TrackedObject
	err := td.ToTrackedObject(geom.Vec3{}, 1, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trk_bad")

	// The failed serialization must not half-fill the output.
	assert.Equal(t, TrackedObject{}, out)

	assert.Error(t, td.ToTrackedObject(geom.Vec3{}, 1, nil))
}
