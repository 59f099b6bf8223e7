package motion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/geom"
	"github.com/meridianav/fusiontrack/internal/track"
)

const (
	// MinDeterminantThreshold is the minimum determinant for innovation
	// covariance inversion; below it the measurement fold is skipped.
	MinDeterminantThreshold = 1e-6
)

// initialCovariance seeds a fresh track: high position uncertainty, lower
// velocity uncertainty.
var initialCovariance = [16]float64{
	10, 0, 0, 0,
	0, 10, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// KalmanCV is a constant-velocity Kalman filter over the planar state
// [x, y, vx, vy]. Height passes through from the latest observation
// unfiltered. Shape (size, heading direction, histogram descriptor) is
// smoothed with an EMA rather than filtered.
type KalmanCV struct {
	processNoisePos  float64
	processNoiseVel  float64
	measurementNoise float64
	maxSpeed         float64
	maxPredictDt     time.Duration
	shapeAlpha       float64
}

// NewKalmanCV builds the filter from the tuning config.
func NewKalmanCV(cfg *config.TuningConfig) (Tracker, error) {
	return &KalmanCV{
		processNoisePos:  cfg.GetProcessNoisePos(),
		processNoiseVel:  cfg.GetProcessNoiseVel(),
		measurementNoise: cfg.GetMeasurementNoise(),
		maxSpeed:         cfg.GetMaxReasonableSpeedMps(),
		maxPredictDt:     cfg.GetMaxPredictDt(),
		shapeAlpha:       cfg.GetShapeSmoothingAlpha(),
	}, nil
}

// InitializeTrack implements Tracker. Velocity seeds from the observation
// when the upstream segmenter estimated one, zero otherwise.
func (k *KalmanCV) InitializeTrack(td *track.TrackData, obs *track.Observation) {
	td.Motion = track.MotionState{
		Position:        obs.Center,
		Velocity:        obs.Velocity,
		Covariance:      initialCovariance,
		LastUpdateNanos: obs.TimestampNanos,
	}
	k.clampVelocity(&td.Motion)

	td.Shape = track.ShapeState{
		Size:      obs.Size,
		Direction: obs.Direction,
		Histogram: obs.Histogram,
	}

	td.LatestVisibleNanos = obs.TimestampNanos
	td.Predicted = false
}

// UpdateWithObservation implements Tracker.
func (k *KalmanCV) UpdateWithObservation(td *track.TrackData, obs *track.Observation) {
	m := &td.Motion

	dt := k.clampDt(obs.TimestampNanos - m.LastUpdateNanos)
	if dt > 0 {
		k.predict(m, dt)
	}

	velBefore := m.Velocity
	k.correct(m, obs.Center.X, obs.Center.Y)
	m.Position.Z = obs.Center.Z

	if !finiteState(m) {
		// Numerical blowup: restart the filter at the measurement rather
		// than emitting garbage until eviction.
		m.Position = obs.Center
		m.Velocity = geom.Vec3{}
		m.Acceleration = geom.Vec3{}
		m.Covariance = initialCovariance
	}
	k.clampVelocity(m)

	// Acceleration as the velocity change rate across the fold. The CV
	// state carries no acceleration; this is a derived output quantity.
	if dt > 0 {
		m.Acceleration = m.Velocity.Sub(velBefore).Scale(1 / dt)
	}

	if obs.TimestampNanos > m.LastUpdateNanos {
		m.LastUpdateNanos = obs.TimestampNanos
	}

	k.smoothShape(&td.Shape, obs)

	if obs.TimestampNanos > td.LatestVisibleNanos {
		td.LatestVisibleNanos = obs.TimestampNanos
	}
	td.Predicted = false
}

// UpdateWithoutObservation implements Tracker.
func (k *KalmanCV) UpdateWithoutObservation(td *track.TrackData, nowNanos int64) {
	m := &td.Motion

	dt := k.clampDt(nowNanos - m.LastUpdateNanos)
	if dt > 0 {
		k.predict(m, dt)
		if !finiteState(m) {
			m.Velocity = geom.Vec3{}
			m.Acceleration = geom.Vec3{}
			m.Covariance = initialCovariance
		}
		k.clampVelocity(m)
	}

	if nowNanos > m.LastUpdateNanos {
		m.LastUpdateNanos = nowNanos
	}
	td.Predicted = true
}

// clampDt converts a nanosecond delta to seconds, clamped to
// [0, maxPredictDt]. Large gaps (occlusion, replayed captures catching up)
// would otherwise balloon the covariance quadratically.
func (k *KalmanCV) clampDt(deltaNanos int64) float64 {
	if deltaNanos <= 0 {
		return 0
	}
	if d := time.Duration(deltaNanos); d > k.maxPredictDt {
		deltaNanos = int64(k.maxPredictDt)
	}
	return float64(deltaNanos) / float64(time.Second)
}

// predict advances the state by dt seconds under the constant-velocity
// model: x' = F·x, P' = F·P·Fᵀ + Q·dt.
func (k *KalmanCV) predict(m *track.MotionState, dt float64) {
	m.Position.X += m.Velocity.X * dt
	m.Position.Y += m.Velocity.Y * dt

	F := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	P := mat.NewDense(4, 4, m.Covariance[:])

	var fp, fpf mat.Dense
	fp.Mul(F, P)
	fpf.Mul(&fp, F.T())
	P.Copy(&fpf)

	// Process noise scaled by dt for frame-rate independent growth.
	m.Covariance[0] += k.processNoisePos * dt
	m.Covariance[5] += k.processNoisePos * dt
	m.Covariance[10] += k.processNoiseVel * dt
	m.Covariance[15] += k.processNoiseVel * dt
}

// correct folds a planar position measurement: S = H·P·Hᵀ + R,
// K = P·Hᵀ·S⁻¹, x' = x + K·y, P' = (I − K·H)·P. A near-singular S skips
// the fold and keeps the predicted state.
func (k *KalmanCV) correct(m *track.MotionState, zx, zy float64) {
	P := mat.NewDense(4, 4, m.Covariance[:])
	H := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	var pht mat.Dense
	pht.Mul(P, H.T())
	var s mat.Dense
	s.Mul(H, &pht)
	s.Set(0, 0, s.At(0, 0)+k.measurementNoise)
	s.Set(1, 1, s.At(1, 1)+k.measurementNoise)

	if mat.Det(&s) < MinDeterminantThreshold {
		return
	}
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	y := mat.NewVecDense(2, []float64{zx - m.Position.X, zy - m.Position.Y})
	var dx mat.VecDense
	dx.MulVec(&gain, y)

	m.Position.X += dx.AtVec(0)
	m.Position.Y += dx.AtVec(1)
	m.Velocity.X += dx.AtVec(2)
	m.Velocity.Y += dx.AtVec(3)

	var kh mat.Dense
	kh.Mul(&gain, H)
	ikh := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)

	var newP mat.Dense
	newP.Mul(ikh, P)
	P.Copy(&newP)
}

// smoothShape blends the observation's extent and heading into the track
// with an EMA. The histogram descriptor is blended bin-wise when shapes
// agree, replaced otherwise.
func (k *KalmanCV) smoothShape(s *track.ShapeState, obs *track.Observation) {
	a := k.shapeAlpha
	s.Size.X += a * (obs.Size.X - s.Size.X)
	s.Size.Y += a * (obs.Size.Y - s.Size.Y)
	s.Size.Z += a * (obs.Size.Z - s.Size.Z)
	s.Direction.X += a * (obs.Direction.X - s.Direction.X)
	s.Direction.Y += a * (obs.Direction.Y - s.Direction.Y)
	s.Direction.Z += a * (obs.Direction.Z - s.Direction.Z)

	switch {
	case len(obs.Histogram) == 0:
		// Keep the current descriptor; a frame without one (histogram
		// matching off, degenerate footprint) must not erase it.
	case len(s.Histogram) != len(obs.Histogram):
		s.Histogram = obs.Histogram
	default:
		for i := range s.Histogram {
			s.Histogram[i] += a * (obs.Histogram[i] - s.Histogram[i])
		}
	}
}

// clampVelocity scales the planar velocity so its magnitude never exceeds
// the configured maximum, preventing teleport-like extrapolation.
func (k *KalmanCV) clampVelocity(m *track.MotionState) {
	speed := math.Hypot(m.Velocity.X, m.Velocity.Y)
	if speed > k.maxSpeed {
		scale := k.maxSpeed / speed
		m.Velocity.X *= scale
		m.Velocity.Y *= scale
	}
}

func finiteState(m *track.MotionState) bool {
	for _, v := range []float64{
		m.Position.X, m.Position.Y,
		m.Velocity.X, m.Velocity.Y,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		v := m.Covariance[i*4+i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
