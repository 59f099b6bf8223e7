package scenario

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianav/fusiontrack/internal/geom"
)

const stepNanos = int64(100 * time.Millisecond)

// twoSensorConfig is a clean (noiseless, no-dropout) scene: one target at
// 10 m/s watched by a latency-shifted radar and an authoritative lidar.
func twoSensorConfig() Config {
	return Config{
		Name:           "test",
		Seed:           99,
		FrameCount:     5,
		FrameStepNanos: stepNanos,
		Targets: []Target{
			{Start: geom.Vec3{X: 10, Y: 5}, Speed: 10, HeadingRad: 0, Size: geom.Vec3{X: 4, Y: 2, Z: 1.5}},
		},
		Sensors: []Sensor{
			{Name: "radar_front", Pose: geom.Identity(), LatencyNanos: int64(20 * time.Millisecond), MeasuresVelocity: true},
			{Name: "lidar_main", Pose: geom.Identity(), Authoritative: true},
		},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	cfg := twoSensorConfig()
	cfg.Sensors[0].NoiseStddev = 0.3
	cfg.Sensors[0].DropoutRate = 0.4
	cfg.Sensors[1].NoiseStddev = 0.1
	cfg.ClutterCount = 4
	cfg.ClutterSpread = 30

	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(a, b))
}

func TestGenerateFrameLayout(t *testing.T) {
	t.Parallel()

	sc, err := Generate(twoSensorConfig())
	require.NoError(t, err)
	require.Len(t, sc.Frames, 10)
	require.Len(t, sc.Steps, 5)
	assert.Equal(t, "lidar_main", sc.MainSensor)

	for k := 0; k < 5; k++ {
		sec := sc.Frames[2*k]
		main := sc.Frames[2*k+1]
		want := int64(k+1) * stepNanos

		assert.Equal(t, "radar_front", sec.SensorName)
		assert.Equal(t, want-int64(20*time.Millisecond), sec.TimestampNanos)
		assert.Equal(t, "lidar_main", main.SensorName)
		assert.Equal(t, want, main.TimestampNanos)
		assert.Equal(t, want, sc.Steps[k].TimestampNanos)
	}
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frames", func(c *Config) { c.FrameCount = 0 }},
		{"zero step", func(c *Config) { c.FrameStepNanos = 0 }},
		{"no sensors", func(c *Config) { c.Sensors = nil }},
		{"no authoritative", func(c *Config) { c.Sensors[1].Authoritative = false }},
		{"two authoritative", func(c *Config) { c.Sensors[0].Authoritative = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := twoSensorConfig()
			tc.mutate(&cfg)
			_, err := Generate(cfg)
			assert.Error(t, err)
		})
	}
}

func TestTruthMotionStraight(t *testing.T) {
	t.Parallel()

	tg := Target{Start: geom.Vec3{X: 1, Y: 2, Z: 0.5}, Speed: 10, HeadingRad: math.Pi / 2}
	pos, vel, dir := truthAt(tg, int64(2*time.Second))

	assert.InDelta(t, 1.0, pos.X, 1e-9)
	assert.InDelta(t, 22.0, pos.Y, 1e-9)
	assert.InDelta(t, 0.5, pos.Z, 1e-9)
	assert.InDelta(t, 0.0, vel.X, 1e-9)
	assert.InDelta(t, 10.0, vel.Y, 1e-9)
	assert.InDelta(t, 1.0, dir.Y, 1e-9)
}

func TestTruthMotionQuarterTurn(t *testing.T) {
	t.Parallel()

	// Heading 0 turning left at 0.3 rad/s: after a quarter turn the target
	// sits at (r, r) facing +Y, where r is the turn radius.
	tg := Target{Speed: 6, TurnRateRad: 0.3}
	quarter := int64(math.Pi / 2 / 0.3 * float64(time.Second))
	pos, vel, dir := truthAt(tg, quarter)

	r := 6.0 / 0.3
	assert.InDelta(t, r, pos.X, 1e-6)
	assert.InDelta(t, r, pos.Y, 1e-6)
	assert.InDelta(t, 0.0, dir.X, 1e-6)
	assert.InDelta(t, 1.0, dir.Y, 1e-6)
	assert.InDelta(t, 6.0, vel.Norm(), 1e-9)
}

func TestTruthMotionTurnClosesCircle(t *testing.T) {
	t.Parallel()

	tg := Target{Start: geom.Vec3{X: 5, Y: -3}, Speed: 8, HeadingRad: 0.7, TurnRateRad: 0.5}
	period := int64(2 * math.Pi / 0.5 * float64(time.Second))
	pos, vel, _ := truthAt(tg, period)

	assert.InDelta(t, 5.0, pos.X, 1e-6)
	assert.InDelta(t, -3.0, pos.Y, 1e-6)
	assert.InDelta(t, 8.0, vel.Norm(), 1e-9)
}

func TestGenerateNoiselessMatchesTruth(t *testing.T) {
	t.Parallel()

	cfg := twoSensorConfig()
	cfg.Sensors[1].Pose = geom.FromTranslationYaw(geom.Vec3{X: 3, Y: -4}, math.Pi/2)
	sc, err := Generate(cfg)
	require.NoError(t, err)

	// Re-basing each sensor-frame detection through the sensor pose must
	// land exactly on the world-frame truth.
	for k, step := range sc.Steps {
		main := sc.Frames[2*k+1]
		require.Len(t, main.Detections, 1)
		world := main.SensorToWorld.ApplyPoint(main.Detections[0].Center)
		truth := step.Truth[0].Position
		assert.InDelta(t, truth.X, world.X, 1e-9)
		assert.InDelta(t, truth.Y, world.Y, 1e-9)
	}
}

func TestGenerateVelocityOnlyFromMeasuringSensors(t *testing.T) {
	t.Parallel()

	sc, err := Generate(twoSensorConfig())
	require.NoError(t, err)

	radar := sc.Frames[0]
	require.Len(t, radar.Detections, 1)
	worldVel := radar.SensorToWorld.ApplyDirection(radar.Detections[0].Velocity)
	assert.InDelta(t, 10.0, worldVel.X, 1e-9)
	assert.InDelta(t, 0.0, worldVel.Y, 1e-9)

	lidar := sc.Frames[1]
	require.Len(t, lidar.Detections, 1)
	assert.True(t, lidar.Detections[0].Velocity.IsZero())
}

func TestGenerateDropoutAndClutter(t *testing.T) {
	t.Parallel()

	cfg := twoSensorConfig()
	cfg.Sensors[0].DropoutRate = 1
	cfg.Sensors[1].DropoutRate = 1
	cfg.ClutterCount = 3
	cfg.ClutterSpread = 30
	sc, err := Generate(cfg)
	require.NoError(t, err)

	for i := range sc.Frames {
		f := sc.Frames[i]
		if f.SensorName == "lidar_main" {
			require.Len(t, f.Detections, 3)
			for _, d := range f.Detections {
				assert.True(t, d.Background)
			}
		} else {
			assert.Empty(t, f.Detections)
		}
	}

	// Clutter is static scenery: identical positions every frame when the
	// sensor is noiseless.
	first := sc.Frames[1].Detections
	last := sc.Frames[len(sc.Frames)-1].Detections
	for i := range first {
		assert.Equal(t, first[i].Center, last[i].Center)
	}
}

func TestGenerateRoadRegions(t *testing.T) {
	t.Parallel()

	cfg := twoSensorConfig()
	cfg.Road = []geom.Vec3{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	sc, err := Generate(cfg)
	require.NoError(t, err)

	for i := range sc.Frames {
		f := sc.Frames[i]
		if f.SensorName == "lidar_main" {
			require.NotNil(t, f.Regions)
			assert.True(t, f.Regions.Contains(geom.Vec3{}))
		} else {
			assert.Nil(t, f.Regions)
		}
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"convoy", "crossing", "turning"}, PresetNames())

	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg, err := Preset(name)
			require.NoError(t, err)
			sc, err := Generate(cfg)
			require.NoError(t, err)
			assert.Len(t, sc.Steps, cfg.FrameCount)
			assert.NotEmpty(t, sc.MainSensor)
		})
	}

	_, err := Preset("rush_hour")
	assert.Error(t, err)
}
