package fusion

import (
	"github.com/meridianav/fusiontrack/internal/geom"
	"github.com/meridianav/fusiontrack/internal/roi"
	"github.com/meridianav/fusiontrack/internal/track"
)

// Frame is one sensor cycle's worth of input plus the result list the
// engine fills. Callers may reuse a Frame across calls; Tracked keeps its
// capacity between frames.
type Frame struct {
	// SensorName identifies the producing sensor; the engine consults the
	// sensor registry to decide whether this is an authoritative frame.
	SensorName string

	// SensorToWorld is the calibrated sensor pose in the large-scale world
	// frame at capture time.
	SensorToWorld geom.Pose

	// TimestampNanos is the frame capture time (Unix nanoseconds).
	TimestampNanos int64

	// Detections are the segmented objects for this cycle, in the sensor
	// frame. The engine reads them and, when the frame-timestamp override
	// is enabled, rewrites their timestamps; it never retains them.
	Detections []*track.Detection

	// Regions is the drivable-map data for the outside-map velocity
	// correction. Nil or empty disables the correction for this frame.
	Regions *roi.Regions

	// Tracked is the engine's output: the fused tracked-object list in the
	// world frame. Mutated in place; objects are pool-owned, so callers
	// return them via Engine.ReleaseOutput (or keep the Frame cycling
	// through the same engine, which reuses them).
	Tracked []*track.TrackedObject
}
