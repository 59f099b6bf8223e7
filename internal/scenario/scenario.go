// Package scenario builds deterministic synthetic multi-sensor scenes and
// scores tracker output against their ground truth. A scenario is a frame
// sequence ready to replay through the fusion engine plus the per-step
// truth needed to compute quality metrics afterwards. Generation is fully
// seeded, so the same Config always yields the same scene.
package scenario

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/meridianav/fusiontrack/internal/fusion"
	"github.com/meridianav/fusiontrack/internal/geom"
	"github.com/meridianav/fusiontrack/internal/roi"
	"github.com/meridianav/fusiontrack/internal/track"
)

// Target is one moving object. TurnRateRad zero gives straight
// constant-velocity motion; nonzero gives a constant-rate turn at
// constant speed.
type Target struct {
	Start       geom.Vec3
	Speed       float64
	HeadingRad  float64
	TurnRateRad float64
	Size        geom.Vec3
}

// Sensor is one simulated detection source.
type Sensor struct {
	Name string
	// Pose maps the sensor frame into the world frame.
	Pose geom.Pose
	// NoiseStddev is the per-axis position noise in metres.
	NoiseStddev float64
	// DropoutRate is the probability that a target produces no detection
	// in a given frame.
	DropoutRate float64
	// LatencyNanos shifts the sensor's frame and detection timestamps
	// behind the nominal step time. Must stay below the frame step.
	LatencyNanos int64
	// MeasuresVelocity marks radar-like sensors whose detections carry a
	// velocity estimate. Others report zero velocity.
	MeasuresVelocity bool
	// Authoritative marks the sensor that drives state advancement.
	// Exactly one sensor per scenario must be authoritative.
	Authoritative bool
}

// Config describes a scenario to generate.
type Config struct {
	Name           string
	Seed           int64
	FrameCount     int
	FrameStepNanos int64
	Targets        []Target
	Sensors        []Sensor

	// ClutterCount static background objects are scattered uniformly over
	// [-ClutterSpread, ClutterSpread] on both axes and re-detected by the
	// authoritative sensor every step.
	ClutterCount  int
	ClutterSpread float64

	// Road, when it has at least three vertices, is attached to the
	// authoritative frames as the drivable region, in world coordinates.
	Road []geom.Vec3
}

// TruthObject is one target's true state at a step time, world frame.
type TruthObject struct {
	Target   int
	Position geom.Vec3
	Velocity geom.Vec3
}

// Step is the ground truth for one authoritative cycle.
type Step struct {
	TimestampNanos int64
	Truth          []TruthObject
}

// Scenario is a generated frame sequence plus its ground truth. Frames is
// ordered for direct replay: all secondary frames of a step precede its
// authoritative frame. A Scenario holds mutable frame state (the engine
// writes output buffers into frames), so concurrent runs must each
// generate their own copy.
type Scenario struct {
	Name       string
	MainSensor string
	Frames     []fusion.Frame
	// Steps is aligned with the authoritative frames, in order.
	Steps []Step
}

// Generate builds the scenario described by cfg. Frame timestamps start
// one step after zero so latency-shifted secondary frames never go
// negative.
func Generate(cfg Config) (*Scenario, error) {
	if cfg.FrameCount <= 0 {
		return nil, fmt.Errorf("scenario %s: frame count must be positive, got %d", cfg.Name, cfg.FrameCount)
	}
	if cfg.FrameStepNanos <= 0 {
		return nil, fmt.Errorf("scenario %s: frame step must be positive, got %d", cfg.Name, cfg.FrameStepNanos)
	}
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one sensor required", cfg.Name)
	}
	main := ""
	for _, s := range cfg.Sensors {
		if !s.Authoritative {
			continue
		}
		if main != "" {
			return nil, fmt.Errorf("scenario %s: multiple authoritative sensors (%s, %s)", cfg.Name, main, s.Name)
		}
		main = s.Name
	}
	if main == "" {
		return nil, fmt.Errorf("scenario %s: no authoritative sensor", cfg.Name)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	clutter := make([]geom.Vec3, cfg.ClutterCount)
	clutterSize := make([]geom.Vec3, cfg.ClutterCount)
	for i := range clutter {
		clutter[i] = geom.Vec3{
			X: (rng.Float64()*2 - 1) * cfg.ClutterSpread,
			Y: (rng.Float64()*2 - 1) * cfg.ClutterSpread,
		}
		clutterSize[i] = geom.Vec3{
			X: 1 + 2*rng.Float64(),
			Y: 1 + 2*rng.Float64(),
			Z: 2 + rng.Float64(),
		}
	}

	var regions *roi.Regions
	if len(cfg.Road) >= 3 {
		regions = &roi.Regions{RoadPolygons: []roi.Polygon{roi.Polygon(cfg.Road)}}
	}

	sc := &Scenario{
		Name:       cfg.Name,
		MainSensor: main,
		Frames:     make([]fusion.Frame, 0, cfg.FrameCount*len(cfg.Sensors)),
		Steps:      make([]Step, 0, cfg.FrameCount),
	}

	for k := 0; k < cfg.FrameCount; k++ {
		stepTime := int64(k+1) * cfg.FrameStepNanos

		// Secondary sensors report first, each at its own latency behind
		// the step time; the authoritative frame closes the cycle.
		for _, s := range cfg.Sensors {
			if s.Authoritative {
				continue
			}
			sc.Frames = append(sc.Frames, makeFrame(cfg, s, stepTime, rng, nil, nil, nil))
		}
		for _, s := range cfg.Sensors {
			if !s.Authoritative {
				continue
			}
			sc.Frames = append(sc.Frames, makeFrame(cfg, s, stepTime, rng, clutter, clutterSize, regions))
		}

		step := Step{TimestampNanos: stepTime}
		for ti, tg := range cfg.Targets {
			pos, vel, _ := truthAt(tg, stepTime)
			step.Truth = append(step.Truth, TruthObject{Target: ti, Position: pos, Velocity: vel})
		}
		sc.Steps = append(sc.Steps, step)
	}

	return sc, nil
}

// makeFrame renders one sensor's view of the scene at the given step.
// Target states are sampled at the sensor's own (latency-shifted) time,
// then expressed in the sensor frame with measurement noise applied there.
func makeFrame(cfg Config, s Sensor, stepTime int64, rng *rand.Rand, clutter, clutterSize []geom.Vec3, regions *roi.Regions) fusion.Frame {
	ts := stepTime - s.LatencyNanos
	worldToSensor := s.Pose.Inverse()

	dets := make([]*track.Detection, 0, len(cfg.Targets)+len(clutter))
	for _, tg := range cfg.Targets {
		dropped := rng.Float64() < s.DropoutRate
		nx := rng.NormFloat64() * s.NoiseStddev
		ny := rng.NormFloat64() * s.NoiseStddev
		if dropped {
			continue
		}

		pos, vel, dir := truthAt(tg, ts)
		center := worldToSensor.ApplyPoint(pos)
		center.X += nx
		center.Y += ny

		det := &track.Detection{
			Center:                 center,
			Direction:              worldToSensor.ApplyDirection(dir),
			Size:                   tg.Size,
			Polygon:                footprint(center, tg.Size),
			Confidence:             0.9,
			LatestTrackedTimeNanos: ts,
		}
		if s.MeasuresVelocity {
			det.Velocity = worldToSensor.ApplyDirection(vel)
		}
		dets = append(dets, det)
	}

	for i, c := range clutter {
		center := worldToSensor.ApplyPoint(c)
		center.X += rng.NormFloat64() * s.NoiseStddev
		center.Y += rng.NormFloat64() * s.NoiseStddev
		dets = append(dets, &track.Detection{
			Center:                 center,
			Size:                   clutterSize[i],
			Confidence:             0.6,
			Background:             true,
			LatestTrackedTimeNanos: ts,
		})
	}

	return fusion.Frame{
		SensorName:     s.Name,
		SensorToWorld:  s.Pose,
		TimestampNanos: ts,
		Detections:     dets,
		Regions:        regions,
	}
}

// truthAt returns the target's world position, velocity and heading
// direction at the given time. The turning case integrates the circular
// arc analytically, so truth never accumulates stepping error.
func truthAt(tg Target, tNanos int64) (pos, vel, dir geom.Vec3) {
	t := float64(tNanos) / float64(time.Second)
	theta := tg.HeadingRad + tg.TurnRateRad*t
	dir = geom.Vec3{X: math.Cos(theta), Y: math.Sin(theta)}
	vel = dir.Scale(tg.Speed)

	if tg.TurnRateRad == 0 {
		pos = tg.Start.Add(dir.Scale(tg.Speed * t))
		return pos, vel, dir
	}

	r := tg.Speed / tg.TurnRateRad
	pos = geom.Vec3{
		X: tg.Start.X + r*(math.Sin(theta)-math.Sin(tg.HeadingRad)),
		Y: tg.Start.Y - r*(math.Cos(theta)-math.Cos(tg.HeadingRad)),
		Z: tg.Start.Z,
	}
	return pos, vel, dir
}

// footprint builds a rectangular outline around the detection centre in
// the sensor frame, feeding the shape-histogram descriptor.
func footprint(center, size geom.Vec3) []geom.Vec3 {
	hx, hy := size.X/2, size.Y/2
	return []geom.Vec3{
		{X: center.X - hx, Y: center.Y - hy},
		{X: center.X + hx, Y: center.Y - hy},
		{X: center.X + hx, Y: center.Y + hy},
		{X: center.X - hx, Y: center.Y + hy},
	}
}
