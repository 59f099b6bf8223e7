// Package sweep runs tuning-parameter grid searches for the fusion
// engine: every parameter combination is applied to a cloned config,
// replayed over synthetic scenarios on a fresh engine, scored against
// ground truth, and persisted for comparison.
package sweep

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/meridianav/fusiontrack/internal/config"
)

// Param defines one parameter dimension to sweep. Name must be a tuning
// config JSON key. Either explicit Values or a Start/End/Step range for
// numeric types; bool expands to {true, false}; string requires explicit
// values.
type Param struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"` // "float64", "int", "bool", "string"
	Values []interface{} `json:"values,omitempty"`

	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Step  float64 `json:"step,omitempty"`
}

// sweepableKeys are the tuning config JSON keys a sweep may vary.
// main_sensors is list-valued and deliberately excluded.
var sweepableKeys = map[string]bool{
	"use_histogram_for_match":   true,
	"histogram_bin_size":        true,
	"output_predict_objects":    true,
	"reserved_invisible_time":   true,
	"use_frame_timestamp":       true,
	"zero_velocity_outside_map": true,
	"matcher":                   true,
	"match_distance_max":        true,
	"histogram_weight":          true,
	"tracker":                   true,
	"process_noise_pos":         true,
	"process_noise_vel":         true,
	"measurement_noise":         true,
	"max_reasonable_speed_mps":  true,
	"shape_smoothing_alpha":     true,
	"max_predict_dt_secs":       true,
}

// GenerateRange expands an inclusive [min, max] float range. The upper
// bound is padded by step/1000 so accumulated float error cannot drop the
// final value. Invalid ranges return nil.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 || min > max {
		return nil
	}
	const maxValues = 10000
	if int((max-min)/step)+1 > maxValues {
		return nil
	}
	var out []float64
	for v := min; v <= max+step/1000; v += step {
		out = append(out, v)
	}
	return out
}

// GenerateIntRange expands an inclusive [min, max] int range.
// Invalid ranges return nil.
func GenerateIntRange(min, max, step int) []int {
	if step <= 0 || min > max {
		return nil
	}
	const maxValues = 10000
	if (max-min)/step+1 > maxValues {
		return nil
	}
	var out []int
	for v := min; v <= max; v += step {
		out = append(out, v)
	}
	return out
}

// expandParam checks the key is sweepable and fills sp.Values from its
// range fields when no explicit values were given.
func expandParam(sp *Param) error {
	if !sweepableKeys[sp.Name] {
		return fmt.Errorf("%q is not a sweepable tuning key", sp.Name)
	}

	if len(sp.Values) > 0 {
		// Explicit value list, just type-coerce each entry.
		for i, v := range sp.Values {
			sp.Values[i] = coerceValue(v, sp.Type)
		}
		return nil
	}

	// Generate values from Start/End/Step
	switch sp.Type {
	case "float64":
		if sp.Step <= 0 {
			return fmt.Errorf("step must be positive for float64 range")
		}
		for _, v := range GenerateRange(sp.Start, sp.End, sp.Step) {
			sp.Values = append(sp.Values, v)
		}
	case "int":
		if sp.Step <= 0 {
			return fmt.Errorf("step must be positive for int range")
		}
		for _, v := range GenerateIntRange(int(sp.Start), int(sp.End), int(sp.Step)) {
			sp.Values = append(sp.Values, v)
		}
	case "bool":
		sp.Values = []interface{}{true, false}
	case "string":
		// No range generation for strings; values must be explicit
		return fmt.Errorf("string params require explicit values")
	default:
		return fmt.Errorf("unknown type %q", sp.Type)
	}

	if len(sp.Values) == 0 {
		return fmt.Errorf("range produced no values")
	}
	return nil
}

// ParseParamSpec parses a command line parameter spec of the form
// "name=type:values". Values are either a comma list
// ("matcher=string:hungarian,nearest") or start:end:step for numeric types
// ("match_distance_max=float64:2:6:0.5"). Bool params need no values
// ("use_histogram_for_match=bool").
func ParseParamSpec(s string) (Param, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Param{}, fmt.Errorf("param spec %q: want name=type:values", s)
	}
	typ, spec, _ := strings.Cut(rest, ":")
	typ = strings.TrimSpace(typ)

	p := Param{Name: name, Type: typ}
	switch typ {
	case "bool":
		if spec != "" {
			for _, v := range strings.Split(spec, ",") {
				p.Values = append(p.Values, strings.TrimSpace(v))
			}
		}
		return p, nil
	case "string":
		if spec == "" {
			return Param{}, fmt.Errorf("param spec %q: string params need explicit values", s)
		}
		for _, v := range strings.Split(spec, ",") {
			p.Values = append(p.Values, strings.TrimSpace(v))
		}
		return p, nil
	case "float64", "int":
		if spec == "" {
			return Param{}, fmt.Errorf("param spec %q: numeric params need start:end:step or a comma list", s)
		}
		if strings.Contains(spec, ",") {
			for _, v := range strings.Split(spec, ",") {
				p.Values = append(p.Values, strings.TrimSpace(v))
			}
			return p, nil
		}
		parts := strings.Split(spec, ":")
		if len(parts) == 1 {
			p.Values = append(p.Values, strings.TrimSpace(parts[0]))
			return p, nil
		}
		if len(parts) != 3 {
			return Param{}, fmt.Errorf("param spec %q: want start:end:step or a comma list", s)
		}
		var nums [3]float64
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return Param{}, fmt.Errorf("param spec %q: invalid number %q", s, part)
			}
			nums[i] = v
		}
		p.Start, p.End, p.Step = nums[0], nums[1], nums[2]
		return p, nil
	default:
		return Param{}, fmt.Errorf("param spec %q: unknown type %q", s, typ)
	}
}

// coerceValue converts a value to the appropriate Go type for the given param type.
func coerceValue(v interface{}, typ string) interface{} {
	switch typ {
	case "float64":
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case string:
			f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
			return f
		}
	case "int":
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		case string:
			n, _ := strconv.Atoi(strings.TrimSpace(val))
			return n
		}
	case "bool":
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.TrimSpace(strings.ToLower(val)) == "true"
		case float64:
			return val != 0
		}
	case "string":
		switch val := v.(type) {
		case string:
			return strings.TrimSpace(val)
		default:
			return fmt.Sprintf("%v", val)
		}
	}
	return v
}

// cartesianProduct computes the Cartesian product of all param value lists.
// Returns a slice of maps, where each map represents one parameter combination.
func cartesianProduct(params []Param) []map[string]interface{} {
	if len(params) == 0 {
		return nil
	}

	total := 1
	for _, p := range params {
		total *= len(p.Values)
	}

	combos := make([]map[string]interface{}, total)
	for i := range combos {
		combos[i] = make(map[string]interface{}, len(params))
	}

	repeat := 1
	for dim := len(params) - 1; dim >= 0; dim-- {
		vals := params[dim].Values
		name := params[dim].Name
		cycle := len(vals)
		for i := 0; i < total; i++ {
			combos[i][name] = vals[(i/repeat)%cycle]
		}
		repeat *= cycle
	}

	return combos
}

// applyCombo overlays one parameter combination onto a clone of base.
// Combo keys are tuning config JSON keys, so the overlay is a partial
// JSON unmarshal, exactly like loading a partial config file.
func applyCombo(base *config.TuningConfig, combo map[string]interface{}) (*config.TuningConfig, error) {
	for name := range combo {
		if !sweepableKeys[name] {
			return nil, fmt.Errorf("parameter %q is not a sweepable tuning key", name)
		}
	}

	cfg := base.Clone()
	data, err := json.Marshal(combo)
	if err != nil {
		return nil, fmt.Errorf("encoding combo: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("applying combo %s: %w", data, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("combo %s: %w", data, err)
	}
	return cfg, nil
}

// comboJSON renders a combination with stable key order for storage and
// report labels.
func comboJSON(combo map[string]interface{}) string {
	data, err := json.Marshal(combo)
	if err != nil {
		return fmt.Sprintf("%v", combo)
	}
	return string(data)
}
