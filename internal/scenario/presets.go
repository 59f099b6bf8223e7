package scenario

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/meridianav/fusiontrack/internal/geom"
)

// Built-in scenarios for benchmarking and sweeps. Seeds and frame counts
// are fixed so runs reproduce exactly; callers may override fields before
// Generate.
var presets = map[string]func() Config{
	"crossing": crossingPreset,
	"convoy":   convoyPreset,
	"turning":  turningPreset,
}

// PresetNames returns the built-in scenario names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the named built-in configuration.
func Preset(name string) (Config, error) {
	fn, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown scenario %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// crossingPreset: two cars passing in opposite lanes plus a cyclist
// crossing the road, watched by a lidar and a laggy, noisier radar that
// contributes velocity measurements.
func crossingPreset() Config {
	return Config{
		Name:           "crossing",
		Seed:           42,
		FrameCount:     120,
		FrameStepNanos: int64(100 * time.Millisecond),
		Targets: []Target{
			{Start: geom.Vec3{X: -40, Y: 2}, Speed: 12, HeadingRad: 0, Size: geom.Vec3{X: 4.5, Y: 1.9, Z: 1.5}},
			{Start: geom.Vec3{X: 40, Y: -2}, Speed: 10, HeadingRad: math.Pi, Size: geom.Vec3{X: 4.2, Y: 1.8, Z: 1.4}},
			{Start: geom.Vec3{X: 0, Y: -35}, Speed: 8, HeadingRad: math.Pi / 2, Size: geom.Vec3{X: 2.0, Y: 0.8, Z: 1.7}},
		},
		Sensors: []Sensor{
			{
				Name:          "lidar_main",
				Pose:          geom.FromTranslationYaw(geom.Vec3{Y: 12}, 0),
				NoiseStddev:   0.08,
				DropoutRate:   0.02,
				Authoritative: true,
			},
			{
				Name:             "radar_front",
				Pose:             geom.FromTranslationYaw(geom.Vec3{X: 2, Y: 12}, 0),
				NoiseStddev:      0.35,
				DropoutRate:      0.10,
				LatencyNanos:     int64(20 * time.Millisecond),
				MeasuresVelocity: true,
			},
		},
		ClutterCount:  6,
		ClutterSpread: 50,
		Road: []geom.Vec3{
			{X: -60, Y: -8}, {X: 60, Y: -8}, {X: 60, Y: 8}, {X: -60, Y: 8},
		},
	}
}

// convoyPreset: three vehicles in line at matched speed, single clean
// sensor. The easy case; any regression here is a real defect.
func convoyPreset() Config {
	return Config{
		Name:           "convoy",
		Seed:           7,
		FrameCount:     100,
		FrameStepNanos: int64(100 * time.Millisecond),
		Targets: []Target{
			{Start: geom.Vec3{X: -30}, Speed: 14, Size: geom.Vec3{X: 4.6, Y: 1.9, Z: 1.5}},
			{Start: geom.Vec3{X: -42}, Speed: 14, Size: geom.Vec3{X: 4.4, Y: 1.8, Z: 1.4}},
			{Start: geom.Vec3{X: -54}, Speed: 14, Size: geom.Vec3{X: 12.0, Y: 2.5, Z: 3.8}},
		},
		Sensors: []Sensor{
			{
				Name:          "lidar_main",
				Pose:          geom.Identity(),
				NoiseStddev:   0.05,
				Authoritative: true,
			},
		},
		ClutterCount:  4,
		ClutterSpread: 40,
	}
}

// turningPreset: one target on a constant-rate turn (the stress case for
// a constant-velocity motion model) plus one straight mover, with a badly
// aimed, dropout-prone camera as the secondary sensor.
func turningPreset() Config {
	return Config{
		Name:           "turning",
		Seed:           1234,
		FrameCount:     150,
		FrameStepNanos: int64(100 * time.Millisecond),
		Targets: []Target{
			{Start: geom.Vec3{X: -25, Y: -10}, Speed: 9, HeadingRad: 0.3, TurnRateRad: 0.25, Size: geom.Vec3{X: 4.5, Y: 1.9, Z: 1.5}},
			{Start: geom.Vec3{X: 20, Y: 15}, Speed: 6, HeadingRad: -math.Pi / 2, Size: geom.Vec3{X: 0.8, Y: 0.8, Z: 1.8}},
		},
		Sensors: []Sensor{
			{
				Name:          "lidar_main",
				Pose:          geom.FromTranslationYaw(geom.Vec3{X: -5}, 0.1),
				NoiseStddev:   0.1,
				DropoutRate:   0.05,
				Authoritative: true,
			},
			{
				Name:         "cam_left",
				Pose:         geom.FromTranslationYaw(geom.Vec3{X: -5, Y: 1}, 0.8),
				NoiseStddev:  0.6,
				DropoutRate:  0.25,
				LatencyNanos: int64(35 * time.Millisecond),
			},
		},
		ClutterCount:  5,
		ClutterSpread: 35,
		Road: []geom.Vec3{
			{X: -45, Y: -30}, {X: 45, Y: -30}, {X: 45, Y: 30}, {X: -45, Y: 30},
		},
	}
}
