package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/geom"
	"github.com/meridianav/fusiontrack/internal/roi"
	"github.com/meridianav/fusiontrack/internal/track"
)

const frameStep = int64(100 * time.Millisecond)

func newTestEngine(t *testing.T, mutate func(*config.TuningConfig)) *Engine {
	t.Helper()
	cfg := config.EmptyTuningConfig()
	if mutate != nil {
		mutate(cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func det(x, y float64, background bool, tsNanos int64) *track.Detection {
	return &track.Detection{
		Center:                 geom.Vec3{X: x, Y: y},
		Size:                   geom.Vec3{X: 4, Y: 2, Z: 1.5},
		Background:             background,
		LatestTrackedTimeNanos: tsNanos,
	}
}

func mainFrame(ts int64, dets ...*track.Detection) *Frame {
	return &Frame{
		SensorName:     "lidar_main",
		SensorToWorld:  geom.Identity(),
		TimestampNanos: ts,
		Detections:     dets,
	}
}

func TestEmptyFrameNoTracks(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	frame := mainFrame(0)
	e.Track(frame)

	assert.Empty(t, frame.Tracked)
	s := e.Stats()
	assert.Zero(t, s.ForegroundTracks)
	assert.Zero(t, s.BackgroundTracks)
	assert.False(t, s.OffsetFrozen)
	assert.Equal(t, int64(1), s.FramesProcessed)
}

func TestOffsetRecomputedWhileTrackless(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	// Trackless frames keep re-deriving the offset from the latest pose.
	f1 := mainFrame(0)
	f1.SensorToWorld = geom.FromTranslationYaw(geom.Vec3{X: 100, Y: 50}, 0)
	e.Track(f1)
	assert.Equal(t, geom.Vec3{X: -100, Y: -50}, e.offset)

	f2 := mainFrame(frameStep)
	f2.SensorToWorld = geom.FromTranslationYaw(geom.Vec3{X: 200, Y: 80}, 0)
	e.Track(f2)
	assert.Equal(t, geom.Vec3{X: -200, Y: -80}, e.offset)
	assert.False(t, e.offsetFrozen)
}

func TestFirstDetectionFixesOffsetAndEmitsOne(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	pose := geom.FromTranslationYaw(geom.Vec3{X: 1000, Y: 2000}, 0)

	frame := &Frame{
		SensorName:     "lidar_main",
		SensorToWorld:  pose,
		TimestampNanos: 0,
		Detections:     []*track.Detection{det(5, 3, false, 0)},
	}
	e.Track(frame)

	// Offset fixed to the negated sensor translation and frozen.
	assert.Equal(t, geom.Vec3{X: -1000, Y: -2000}, e.offset)
	assert.True(t, e.offsetFrozen)

	require.Len(t, frame.Tracked, 1)
	out := frame.Tracked[0]
	assert.False(t, out.Predicted)
	assert.False(t, out.Background)
	assert.NotEmpty(t, out.TrackID)

	// The detection at (5,3) in the sensor frame lands at world
	// (1005, 2003): local state plus the inverse offset.
	assert.InDelta(t, 1005.0, out.Position.X, 1e-6)
	assert.InDelta(t, 2003.0, out.Position.Y, 1e-6)

	s := e.Stats()
	assert.Equal(t, 1, s.ForegroundTracks)
	assert.Equal(t, int64(1), s.Spawns)
}

func TestOffsetStaysFrozenAfterTotalEviction(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	f := mainFrame(0, det(1, 1, false, 0))
	f.SensorToWorld = geom.FromTranslationYaw(geom.Vec3{X: 10}, 0)
	e.Track(f)
	require.True(t, e.offsetFrozen)
	frozen := e.offset

	// Starve the track past retention; the partition empties again.
	for ts := frameStep; ts <= 5*frameStep; ts += frameStep {
		g := mainFrame(ts)
		g.SensorToWorld = geom.FromTranslationYaw(geom.Vec3{X: 999}, 0)
		e.Track(g)
	}
	require.Zero(t, e.Stats().ForegroundTracks)

	// The offset must not follow the new pose.
	assert.Equal(t, frozen, e.offset)
	assert.True(t, e.offsetFrozen)
}

func TestIdentityStableAcrossFrames(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	var id string
	for i := int64(0); i < 5; i++ {
		ts := i * frameStep
		frame := mainFrame(ts, det(float64(i)*0.5, 0, false, ts))
		e.Track(frame)
		require.Len(t, frame.Tracked, 1, "frame %d", i)
		if i == 0 {
			id = frame.Tracked[0].TrackID
			continue
		}
		assert.Equal(t, id, frame.Tracked[0].TrackID, "frame %d changed identity", i)
	}
	assert.Equal(t, int64(1), e.Stats().Spawns, "a moving target must not respawn")
}

func TestPartitionExclusivity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	frame := mainFrame(0,
		det(5, 0, false, 0),
		det(5.5, 0, true, 0), // background neighbour inside matching range
	)
	e.Track(frame)

	s := e.Stats()
	assert.Equal(t, 1, s.ForegroundTracks)
	assert.Equal(t, 1, s.BackgroundTracks)

	require.Len(t, frame.Tracked, 2)
	byBackground := map[bool]*track.TrackedObject{}
	for _, obj := range frame.Tracked {
		byBackground[obj.Background] = obj
	}
	require.Len(t, byBackground, 2, "one object per partition")

	// The nearby background detection must keep matching the background
	// track, never stealing the foreground one.
	for i := int64(1); i < 4; i++ {
		ts := i * frameStep
		f := mainFrame(ts, det(5, 0, false, ts), det(5.5, 0, true, ts))
		e.Track(f)
		s = e.Stats()
		assert.Equal(t, 1, s.ForegroundTracks)
		assert.Equal(t, 1, s.BackgroundTracks)
	}
	assert.Equal(t, int64(2), e.Stats().Spawns)
}

func TestNonAuthoritativeFrameCachesWithoutAdvancing(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	// Spawn on the authoritative sensor.
	e.Track(mainFrame(0, det(5, 0, false, 0)))
	require.Equal(t, 1, e.Stats().ForegroundTracks)
	td := e.fgTracks[0]
	posAfterSpawn := td.Motion.Position

	// Secondary sensor sees the same object: cached, not folded, no output.
	sec := &Frame{
		SensorName:     "radar_front",
		SensorToWorld:  geom.Identity(),
		TimestampNanos: frameStep,
		Detections:     []*track.Detection{det(5.2, 0, false, frameStep)},
	}
	e.Track(sec)

	assert.Empty(t, sec.Tracked, "non-authoritative frames emit nothing")
	assert.Equal(t, 1, td.PendingCount())
	assert.Equal(t, posAfterSpawn, td.Motion.Position, "state must not advance")
	assert.Equal(t, int64(0), td.Motion.LastUpdateNanos)

	// Next authoritative frame drains the cache along with its own
	// observation and emits a non-predicted object.
	ts2 := 2 * frameStep
	f2 := mainFrame(ts2, det(5.4, 0, false, ts2))
	e.Track(f2)

	require.Len(t, f2.Tracked, 1)
	assert.False(t, f2.Tracked[0].Predicted)
	assert.Equal(t, 0, td.PendingCount())
	assert.Equal(t, ts2, td.Motion.LastUpdateNanos)
	assert.Equal(t, 1, e.Stats().ForegroundTracks, "still one identity")
}

func TestPredictedSuppressionDefaultOff(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	e.Track(mainFrame(0, det(5, 0, false, 0)))

	// No detection this cycle: the track goes predicted and the default
	// config suppresses it from the output while keeping it alive.
	f := mainFrame(frameStep)
	e.Track(f)

	assert.Empty(t, f.Tracked)
	s := e.Stats()
	assert.Equal(t, 1, s.ForegroundTracks)
	assert.Equal(t, int64(1), s.PredictedSuppressed)
}

func TestPredictedEmittedWhenConfigured(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.OutputPredictObjects = config.Bool(true)
	})
	e.Track(mainFrame(0, det(5, 0, false, 0)))

	f := mainFrame(frameStep)
	e.Track(f)

	require.Len(t, f.Tracked, 1)
	assert.True(t, f.Tracked[0].Predicted)
}

func TestEvictionAtRetentionBoundary(t *testing.T) {
	t.Parallel()

	// Default retention 300ms; last sighting at t=0. The inequality
	// lastVisible+retention >= now first fails at t=400ms.
	e := newTestEngine(t, nil)
	e.Track(mainFrame(0, det(5, 0, false, 0)))

	for ts := frameStep; ts <= 3*frameStep; ts += frameStep {
		e.Track(mainFrame(ts))
		assert.Equal(t, 1, e.Stats().ForegroundTracks, "alive at %dms", ts/int64(time.Millisecond))
	}

	e.Track(mainFrame(4 * frameStep))
	s := e.Stats()
	assert.Zero(t, s.ForegroundTracks)
	assert.Equal(t, int64(1), s.Evictions)

	// Gone for good.
	for ts := 5 * frameStep; ts <= 8*frameStep; ts += frameStep {
		f := mainFrame(ts)
		e.Track(f)
		assert.Empty(t, f.Tracked)
	}
	assert.Equal(t, int64(1), e.Stats().Evictions)
}

func TestEvictionPreservesOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	// Three well-separated tracks; B then goes unseen.
	e.Track(mainFrame(0,
		det(0, 0, false, 0),
		det(20, 0, false, 0),
		det(40, 0, false, 0),
	))
	require.Equal(t, 3, e.Stats().ForegroundTracks)
	idA, idB, idC := e.fgTracks[0].ID, e.fgTracks[1].ID, e.fgTracks[2].ID

	for i := int64(1); i <= 4; i++ {
		ts := i * frameStep
		e.Track(mainFrame(ts, det(0, 0, false, ts), det(40, 0, false, ts)))
	}

	require.Equal(t, 2, e.Stats().ForegroundTracks)
	assert.Equal(t, idA, e.fgTracks[0].ID, "surviving order must be stable")
	assert.Equal(t, idC, e.fgTracks[1].ID)
	assert.NotEqual(t, idB, e.fgTracks[0].ID)
	assert.Equal(t, int64(1), e.Stats().Evictions)
}

func TestOutputBudgetInvariant(t *testing.T) {
	t.Parallel()

	n, ok := outputBudget(5, 2)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = outputBudget(4, 4)
	assert.True(t, ok)
	assert.Zero(t, n)

	// Corrupt bookkeeping: suppressed exceeding the total must abort.
	_, ok = outputBudget(3, 4)
	assert.False(t, ok)
}

func TestSerializationFailureSkipsTrack(t *testing.T) {
	t.Parallel()

	// Emit predicted objects so a corrupted (hence unmatched and
	// predicted) track reaches the serializer instead of the suppressor.
	e := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.OutputPredictObjects = config.Bool(true)
	})
	e.Track(mainFrame(0, det(0, 0, false, 0), det(20, 0, false, 0)))
	require.Equal(t, 2, e.Stats().ForegroundTracks)

	corrupt := e.fgTracks[0].ID
	e.fgTracks[0].Motion.Position.X = math.NaN()
	healthy := e.fgTracks[1].ID

	ts := frameStep
	f := mainFrame(ts, det(0, 0, false, ts), det(20, 0, false, ts))
	e.Track(f)

	// The corrupted track cannot match (non-finite distance) or
	// serialize; its old observation spawns a replacement. Output holds
	// the healthy track and the replacement, truncated past the failure.
	require.Len(t, f.Tracked, 2)
	ids := []string{f.Tracked[0].TrackID, f.Tracked[1].TrackID}
	assert.Contains(t, ids, healthy)
	assert.NotContains(t, ids, corrupt)
	assert.Equal(t, int64(1), e.Stats().SerializeFailures)
	assert.Equal(t, 3, e.Stats().ForegroundTracks, "the failing track stays for future frames")
}

func TestOutsideMapZeroing(t *testing.T) {
	t.Parallel()

	road := roi.Polygon{
		{X: -10, Y: -10}, {X: 10, Y: -10}, {X: 10, Y: 10}, {X: -10, Y: 10},
	}
	regions := &roi.Regions{RoadPolygons: []roi.Polygon{road}}

	e := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.ZeroVelocityOutsideMap = config.Bool(true)
	})

	spawn := mainFrame(0, det(5, 0, false, 0), det(50, 0, false, 0))
	spawn.Regions = regions
	e.Track(spawn)
	require.Len(t, spawn.Tracked, 2)

	// Give both tracks real velocity, then collect again.
	for _, td := range e.fgTracks {
		td.Motion.Velocity = geom.Vec3{X: 3}
		td.Motion.Acceleration = geom.Vec3{X: 0.5}
	}
	ts := frameStep
	f := mainFrame(ts, det(5.3, 0, false, ts), det(50.3, 0, false, ts))
	f.Regions = regions
	e.Track(f)
	require.Len(t, f.Tracked, 2)

	var inside, outside *track.TrackedObject
	for _, obj := range f.Tracked {
		if obj.Position.X < 20 {
			inside = obj
		} else {
			outside = obj
		}
	}
	require.NotNil(t, inside)
	require.NotNil(t, outside)

	assert.False(t, inside.Velocity.IsZero(), "on-map velocity preserved")
	assert.True(t, outside.Velocity.IsZero(), "off-map velocity zeroed")
	assert.True(t, outside.Acceleration.IsZero())
	assert.Equal(t, int64(1), e.Stats().OutsideMapZeroed)
}

func TestOutsideMapDisabledOrAbsentIsNoOp(t *testing.T) {
	t.Parallel()

	// Flag off: motion passes through even far off any map.
	e := newTestEngine(t, nil)
	e.Track(mainFrame(0, det(50, 0, false, 0)))
	e.fgTracks[0].Motion.Velocity = geom.Vec3{X: 3}

	ts := frameStep
	f := mainFrame(ts, det(50.3, 0, false, ts))
	f.Regions = &roi.Regions{RoadPolygons: []roi.Polygon{
		{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}},
	}}
	e.Track(f)
	require.Len(t, f.Tracked, 1)
	assert.False(t, f.Tracked[0].Velocity.IsZero())

	// Flag on but no region data: also a no-op.
	e2 := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.ZeroVelocityOutsideMap = config.Bool(true)
	})
	e2.Track(mainFrame(0, det(50, 0, false, 0)))
	e2.fgTracks[0].Motion.Velocity = geom.Vec3{X: 3}
	f2 := mainFrame(ts, det(50.3, 0, false, ts))
	e2.Track(f2)
	require.Len(t, f2.Tracked, 1)
	assert.False(t, f2.Tracked[0].Velocity.IsZero())
	assert.Zero(t, e2.Stats().OutsideMapZeroed)
}

func TestInvalidPoseRejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	e.Track(mainFrame(0, det(5, 0, false, 0)))
	require.Equal(t, 1, e.Stats().ForegroundTracks)

	bad := mainFrame(frameStep, det(5, 0, false, frameStep))
	bad.SensorToWorld = geom.Pose{} // all zeros, clearly not rigid
	e.Track(bad)

	assert.Empty(t, bad.Tracked)
	s := e.Stats()
	assert.Equal(t, int64(1), s.FramesProcessed, "rejected frames do not count")
	assert.Equal(t, 1, s.ForegroundTracks, "state untouched")
}

func TestFrameTimestampOverride(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.UseFrameTimestamp = config.Bool(true)
	})

	// Detection carries a stale timestamp; the frame time must win.
	d := det(5, 0, false, 12345)
	e.Track(mainFrame(7*frameStep, d))

	assert.Equal(t, 7*frameStep, d.LatestTrackedTimeNanos)
	require.Equal(t, 1, e.Stats().ForegroundTracks)
	assert.Equal(t, 7*frameStep, e.fgTracks[0].LatestVisibleNanos)
}

func TestHistogramDisabledLeavesDescriptorEmpty(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(cfg *config.TuningConfig) {
		cfg.UseHistogramForMatch = config.Bool(false)
	})

	d := det(5, 0, false, 0)
	d.Polygon = []geom.Vec3{{X: 4, Y: -1}, {X: 6, Y: -1}, {X: 6, Y: 1}, {X: 4, Y: 1}}
	e.Track(mainFrame(0, d))

	require.Equal(t, 1, e.Stats().ForegroundTracks)
	assert.Nil(t, e.fgTracks[0].Shape.Histogram)
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	f := mainFrame(0, det(5, 0, false, 0), det(9, 0, true, 0))
	f.SensorToWorld = geom.FromTranslationYaw(geom.Vec3{X: 77}, 0)
	e.Track(f)
	require.True(t, e.offsetFrozen)
	oldID := e.fgTracks[0].ID

	e.Reset()

	s := e.Stats()
	assert.Zero(t, s.ForegroundTracks)
	assert.Zero(t, s.BackgroundTracks)
	assert.Zero(t, s.FramesProcessed)
	assert.False(t, e.offsetFrozen)
	assert.Equal(t, geom.Vec3{}, e.offset)

	// A fresh spawn gets a fresh identity.
	g := mainFrame(0, det(5, 0, false, 0))
	e.Track(g)
	require.Len(t, g.Tracked, 1)
	assert.NotEqual(t, oldID, g.Tracked[0].TrackID)
}

func TestOutputMatchesExpectedStructure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	pose := geom.FromTranslationYaw(geom.Vec3{X: 100}, 0)
	f := &Frame{
		SensorName:     "lidar_main",
		SensorToWorld:  pose,
		TimestampNanos: 0,
		Detections:     []*track.Detection{det(5, 0, false, 0)},
	}
	e.Track(f)
	require.Len(t, f.Tracked, 1)

	want := &track.TrackedObject{
		TrackID:        f.Tracked[0].TrackID,
		Position:       geom.Vec3{X: 105},
		Size:           geom.Vec3{X: 4, Y: 2, Z: 1.5},
		Background:     false,
		Predicted:      false,
		TimestampNanos: 0,
	}
	if diff := cmp.Diff(want, f.Tracked[0], cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSecondarySpawnThenAuthoritativeDrain(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)

	// A secondary sensor sees the object first: track spawns with its
	// observation cached, nothing emitted, state waits for the
	// authoritative cycle.
	sec := &Frame{
		SensorName:     "radar_front",
		SensorToWorld:  geom.Identity(),
		TimestampNanos: 0,
		Detections:     []*track.Detection{det(5, 0, false, 0)},
	}
	e.Track(sec)
	assert.Empty(t, sec.Tracked)
	require.Equal(t, 1, e.Stats().ForegroundTracks)
	assert.Equal(t, 1, e.fgTracks[0].PendingCount())

	// The authoritative frame drains the pending observation: the track
	// comes out non-predicted without needing a fresh detection.
	f := mainFrame(frameStep)
	e.Track(f)
	require.Len(t, f.Tracked, 1)
	assert.False(t, f.Tracked[0].Predicted)
	assert.Equal(t, 0, e.fgTracks[0].PendingCount())
}

func TestSharedPoolsAcrossEngines(t *testing.T) {
	t.Parallel()

	pools := NewPools()
	cfg := config.EmptyTuningConfig()

	e1, err := NewEngineWithPools(cfg, pools)
	require.NoError(t, err)
	e2, err := NewEngineWithPools(cfg, pools)
	require.NoError(t, err)

	f1 := mainFrame(0, det(5, 0, false, 0))
	f2 := mainFrame(0, det(8, 0, false, 0))
	e1.Track(f1)
	e2.Track(f2)

	require.Len(t, f1.Tracked, 1)
	require.Len(t, f2.Tracked, 1)
	assert.NotEqual(t, f1.Tracked[0].TrackID, f2.Tracked[0].TrackID,
		"engines sharing pools still mint distinct identities")
}
