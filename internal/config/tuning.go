// Package config loads and validates the tuning configuration for the
// fusion engine and its collaborators (matcher, tracker, pools). The
// schema uses pointer fields so a partial JSON file only overrides the
// keys it names; Get* accessors supply defaults for absent keys.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// tuning.defaults.json is the canonical defaults file. It is embedded so
// binaries and tests never depend on the working directory.
//
//go:embed tuning.defaults.json
var defaultConfigJSON []byte

// TuningConfig represents the root configuration for the tracking stack.
// All engine flags, matcher parameters and tracker parameters live here so
// a single file configures one engine instance end to end.
type TuningConfig struct {
	// Engine params
	UseHistogramForMatch   *bool    `json:"use_histogram_for_match,omitempty"`
	HistogramBinSize       *int     `json:"histogram_bin_size,omitempty"`
	OutputPredictObjects   *bool    `json:"output_predict_objects,omitempty"`
	ReservedInvisibleTime  *string  `json:"reserved_invisible_time,omitempty"` // duration string like "300ms"
	UseFrameTimestamp      *bool    `json:"use_frame_timestamp,omitempty"`
	ZeroVelocityOutsideMap *bool    `json:"zero_velocity_outside_map,omitempty"`
	MainSensors            []string `json:"main_sensors,omitempty"`

	// Matcher params
	Matcher          *string  `json:"matcher,omitempty"` // registry tag: "hungarian", "nearest"
	MatchDistanceMax *float64 `json:"match_distance_max,omitempty"`
	HistogramWeight  *float64 `json:"histogram_weight,omitempty"`

	// Tracker params
	Tracker               *string  `json:"tracker,omitempty"` // registry tag: "kalman_cv"
	ProcessNoisePos       *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel       *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise      *float64 `json:"measurement_noise,omitempty"`
	MaxReasonableSpeedMps *float64 `json:"max_reasonable_speed_mps,omitempty"`
	ShapeSmoothingAlpha   *float64 `json:"shape_smoothing_alpha,omitempty"`
	MaxPredictDtSecs      *float64 `json:"max_predict_dt_secs,omitempty"`
}

// Pointer helpers for building configs in code (tests, sweep permutations).
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }
func Bool(v bool) *bool          { return &v }
func String(v string) *string    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset; every
// accessor then answers with its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under the max file size. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig returns the canonical embedded defaults.
// Panics on a malformed embedded file, which is a build defect, so this is
// safe for test setup and binary startup alike.
func MustLoadDefaultConfig() *TuningConfig {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(defaultConfigJSON, cfg); err != nil {
		panic(fmt.Sprintf("embedded tuning defaults malformed: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("embedded tuning defaults invalid: %v", err))
	}
	return cfg
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.HistogramBinSize != nil && *c.HistogramBinSize <= 0 {
		return fmt.Errorf("histogram_bin_size must be positive, got %d", *c.HistogramBinSize)
	}

	if c.ReservedInvisibleTime != nil && *c.ReservedInvisibleTime != "" {
		d, err := time.ParseDuration(*c.ReservedInvisibleTime)
		if err != nil {
			return fmt.Errorf("invalid reserved_invisible_time '%s': %w", *c.ReservedInvisibleTime, err)
		}
		if d < 0 {
			return fmt.Errorf("reserved_invisible_time must be non-negative, got %s", d)
		}
	}

	if c.MatchDistanceMax != nil && *c.MatchDistanceMax <= 0 {
		return fmt.Errorf("match_distance_max must be positive, got %f", *c.MatchDistanceMax)
	}

	if c.HistogramWeight != nil && *c.HistogramWeight < 0 {
		return fmt.Errorf("histogram_weight must be non-negative, got %f", *c.HistogramWeight)
	}

	if c.ShapeSmoothingAlpha != nil {
		if *c.ShapeSmoothingAlpha < 0 || *c.ShapeSmoothingAlpha > 1 {
			return fmt.Errorf("shape_smoothing_alpha must be between 0 and 1, got %f", *c.ShapeSmoothingAlpha)
		}
	}

	for name, v := range map[string]*float64{
		"process_noise_pos":        c.ProcessNoisePos,
		"process_noise_vel":        c.ProcessNoiseVel,
		"measurement_noise":        c.MeasurementNoise,
		"max_reasonable_speed_mps": c.MaxReasonableSpeedMps,
		"max_predict_dt_secs":      c.MaxPredictDtSecs,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.Matcher != nil && *c.Matcher == "" {
		return fmt.Errorf("matcher must not be empty when set")
	}
	if c.Tracker != nil && *c.Tracker == "" {
		return fmt.Errorf("tracker must not be empty when set")
	}

	return nil
}

// GetUseHistogramForMatch returns the use_histogram_for_match value or the default.
func (c *TuningConfig) GetUseHistogramForMatch() bool {
	if c.UseHistogramForMatch == nil {
		return true
	}
	return *c.UseHistogramForMatch
}

// GetHistogramBinSize returns the histogram_bin_size value or the default.
func (c *TuningConfig) GetHistogramBinSize() int {
	if c.HistogramBinSize == nil {
		return 10
	}
	return *c.HistogramBinSize
}

// GetOutputPredictObjects returns the output_predict_objects value or the default.
func (c *TuningConfig) GetOutputPredictObjects() bool {
	if c.OutputPredictObjects == nil {
		return false
	}
	return *c.OutputPredictObjects
}

// GetReservedInvisibleTime parses and returns the retention window as a
// time.Duration.
func (c *TuningConfig) GetReservedInvisibleTime() time.Duration {
	if c.ReservedInvisibleTime == nil || *c.ReservedInvisibleTime == "" {
		return 300 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.ReservedInvisibleTime)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// GetUseFrameTimestamp returns the use_frame_timestamp value or the default.
func (c *TuningConfig) GetUseFrameTimestamp() bool {
	if c.UseFrameTimestamp == nil {
		return false
	}
	return *c.UseFrameTimestamp
}

// GetZeroVelocityOutsideMap returns the zero_velocity_outside_map value or the default.
func (c *TuningConfig) GetZeroVelocityOutsideMap() bool {
	if c.ZeroVelocityOutsideMap == nil {
		return false
	}
	return *c.ZeroVelocityOutsideMap
}

// GetMainSensors returns the main_sensors list or the default.
func (c *TuningConfig) GetMainSensors() []string {
	if len(c.MainSensors) == 0 {
		return []string{"lidar_main"}
	}
	return c.MainSensors
}

// GetMatcher returns the matcher registry tag or the default.
func (c *TuningConfig) GetMatcher() string {
	if c.Matcher == nil || *c.Matcher == "" {
		return "hungarian"
	}
	return *c.Matcher
}

// GetMatchDistanceMax returns the match_distance_max value or the default.
func (c *TuningConfig) GetMatchDistanceMax() float64 {
	if c.MatchDistanceMax == nil {
		return 4.0
	}
	return *c.MatchDistanceMax
}

// GetHistogramWeight returns the histogram_weight value or the default.
func (c *TuningConfig) GetHistogramWeight() float64 {
	if c.HistogramWeight == nil {
		return 0.5
	}
	return *c.HistogramWeight
}

// GetTracker returns the tracker registry tag or the default.
func (c *TuningConfig) GetTracker() string {
	if c.Tracker == nil || *c.Tracker == "" {
		return "kalman_cv"
	}
	return *c.Tracker
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.1
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0.5
	}
	return *c.ProcessNoiseVel
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.3
	}
	return *c.MeasurementNoise
}

// GetMaxReasonableSpeedMps returns the max_reasonable_speed_mps value or the default.
func (c *TuningConfig) GetMaxReasonableSpeedMps() float64 {
	if c.MaxReasonableSpeedMps == nil {
		return 35.0
	}
	return *c.MaxReasonableSpeedMps
}

// GetShapeSmoothingAlpha returns the shape_smoothing_alpha value or the default.
func (c *TuningConfig) GetShapeSmoothingAlpha() float64 {
	if c.ShapeSmoothingAlpha == nil {
		return 0.2
	}
	return *c.ShapeSmoothingAlpha
}

// GetMaxPredictDt returns the prediction dt clamp as a time.Duration.
func (c *TuningConfig) GetMaxPredictDt() time.Duration {
	if c.MaxPredictDtSecs == nil {
		return 500 * time.Millisecond
	}
	return time.Duration(*c.MaxPredictDtSecs * float64(time.Second))
}

// Clone returns a deep copy of the config. Sweep permutations mutate
// copies so the base config is never touched.
func (c *TuningConfig) Clone() *TuningConfig {
	out := &TuningConfig{}
	data, err := json.Marshal(c)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, out)
	return out
}
