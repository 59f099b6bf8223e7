package track

import (
	"github.com/meridianav/fusiontrack/internal/geom"
)

// Detection is one segmented object delivered by an upstream sensor
// pipeline, expressed in the sensor frame.
type Detection struct {
	// Center is the object centroid in the sensor frame.
	Center geom.Vec3
	// Direction is the heading direction (unit-ish vector) in the sensor frame.
	Direction geom.Vec3
	// Velocity is the observed velocity, if the upstream segmenter
	// estimates one; zero otherwise.
	Velocity geom.Vec3
	// Size is the bounding box extents (length, width, height) in metres.
	Size geom.Vec3
	// Polygon is the footprint outline in the sensor frame, used for the
	// shape-histogram descriptor.
	Polygon []geom.Vec3
	// Confidence in [0,1] from the segmenter.
	Confidence float64
	// Background marks static scenery (building faces, vegetation).
	Background bool
	// LatestTrackedTimeNanos is the detection's own timestamp. The engine
	// may overwrite it with the frame timestamp (use_frame_timestamp).
	LatestTrackedTimeNanos int64
}

// Observation is a Detection re-based into the engine's local working
// frame, plus the sensor identity that produced it. Observations are
// pooled; Attach fully overwrites every field, so a recycled value never
// leaks state from an earlier frame.
type Observation struct {
	Detection *Detection

	// Pose in the local frame.
	Center    geom.Vec3
	Direction geom.Vec3
	Velocity  geom.Vec3
	Size      geom.Vec3

	SensorName     string
	TimestampNanos int64
	Background     bool

	// Histogram is the optional shape descriptor (nil when histogram
	// matching is disabled or the detection is background).
	Histogram []float64
}

// Attach binds a detection to this observation, applying sensorToLocal to
// its position and orientation. Velocity and direction transform through
// the rotation block only.
func (o *Observation) Attach(det *Detection, sensorToLocal geom.Pose, sensorName string) {
	o.Detection = det
	o.Center = sensorToLocal.ApplyPoint(det.Center)
	o.Direction = sensorToLocal.ApplyDirection(det.Direction)
	o.Velocity = sensorToLocal.ApplyDirection(det.Velocity)
	o.Size = det.Size
	o.SensorName = sensorName
	o.TimestampNanos = det.LatestTrackedTimeNanos
	o.Background = det.Background
	o.Histogram = nil
}

// reset clears the observation for pool reuse.
func (o *Observation) reset() {
	*o = Observation{}
}
