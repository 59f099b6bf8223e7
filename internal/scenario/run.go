package scenario

import (
	"fmt"

	"github.com/meridianav/fusiontrack/internal/fusion"
	"github.com/meridianav/fusiontrack/internal/track"
)

// Result is one engine pass over a scenario.
type Result struct {
	// Outputs holds the emitted objects for each authoritative step. The
	// engine's own output buffers are pooled, so these are value copies
	// that outlive the run.
	Outputs [][]track.TrackedObject
	Stats   fusion.Stats
	Metrics Metrics
}

// Run replays every scenario frame through the engine in order and scores
// the authoritative outputs against truth. The engine is used as-is;
// callers wanting a cold start Reset it first.
func Run(e *fusion.Engine, sc *Scenario) (*Result, error) {
	if e == nil {
		return nil, fmt.Errorf("nil engine")
	}
	if sc == nil {
		return nil, fmt.Errorf("nil scenario")
	}

	res := &Result{Outputs: make([][]track.TrackedObject, 0, len(sc.Steps))}
	for i := range sc.Frames {
		frame := &sc.Frames[i]
		e.Track(frame)
		if frame.SensorName != sc.MainSensor {
			continue
		}
		snap := make([]track.TrackedObject, len(frame.Tracked))
		for j, obj := range frame.Tracked {
			snap[j] = *obj
		}
		res.Outputs = append(res.Outputs, snap)
		e.ReleaseOutput(frame)
	}

	if len(res.Outputs) != len(sc.Steps) {
		return nil, fmt.Errorf("scenario %s: %d authoritative outputs for %d steps", sc.Name, len(res.Outputs), len(sc.Steps))
	}

	res.Stats = e.Stats()
	res.Metrics = Evaluate(sc, res.Outputs)
	return res, nil
}
