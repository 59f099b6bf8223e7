package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/fusion"
	"github.com/meridianav/fusiontrack/internal/scenario"
	"github.com/meridianav/fusiontrack/internal/sweep"
	"github.com/meridianav/fusiontrack/internal/units"
	"github.com/meridianav/fusiontrack/internal/version"
)

var (
	scenarioName = flag.String("scenario", "crossing", "Scenario preset to run")
	listPresets  = flag.Bool("list", false, "List scenario presets and exit")
	configFile   = flag.String("config", "", "Tuning config JSON file (default: embedded defaults)")
	seedOverride = flag.Int64("seed", 0, "Override the preset's random seed (0 keeps the preset value)")
	frames       = flag.Int("frames", 0, "Override the preset's frame count (0 keeps the preset value)")
	plotDir      = flag.String("plot-dir", "", "Write truth-vs-track trajectory PNGs into this directory")
	jsonOut      = flag.Bool("json", false, "Print metrics and stats as JSON on stdout")
	speedUnits   = flag.String("units", "mps", "Speed units for the report (mps, mph, kmph, kph)")
	debug        = flag.Bool("debug", false, "Enable per-frame diagnostic logging")
	trace        = flag.Bool("trace", false, "Enable trace logging (very noisy)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("trackbench %s\n", version.String())
		return
	}

	if *listPresets {
		for _, name := range scenario.PresetNames() {
			fmt.Println(name)
		}
		return
	}

	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid units %q (valid: %s)", *speedUnits, units.GetValidUnitsString())
	}

	writers := fusion.LogWriters{Ops: os.Stderr}
	if *debug {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Diag = os.Stderr
		writers.Trace = os.Stderr
	}
	fusion.SetLogWriters(writers)

	cfg := config.MustLoadDefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
	}

	preset, err := scenario.Preset(*scenarioName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *seedOverride != 0 {
		preset.Seed = *seedOverride
	}
	if *frames > 0 {
		preset.FrameCount = *frames
	}

	sc, err := scenario.Generate(preset)
	if err != nil {
		log.Fatalf("Failed to generate scenario: %v", err)
	}

	eng, err := fusion.NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	log.Printf("Running scenario %s: %d steps, %d frames, %d targets",
		sc.Name, len(sc.Steps), len(sc.Frames), len(preset.Targets))
	start := time.Now()
	res, err := scenario.Run(eng, sc)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	m := res.Metrics
	score := sweep.ScoreMetrics(m, sweep.DefaultObjectiveWeights())
	log.Printf("Run complete in %v (%.0f frames/sec)", elapsed.Round(time.Millisecond),
		float64(len(sc.Frames))/elapsed.Seconds())
	log.Printf("Quality: score=%.4f count_accuracy=%.3f rmse=%.3fm p95=%.3fm",
		score, m.TrackCountAccuracy, m.PositionRMSE, m.PositionP95)
	log.Printf("Continuity: id_switches=%d fragmentation=%.3f misses=%d predicted_ratio=%.3f",
		m.IDSwitches, m.Fragmentation, m.Misses, m.PredictedRatio)
	log.Printf("Engine: matches=%d spawns=%d evictions=%d suppressed=%d fg_obs=%d bg_obs=%d",
		res.Stats.Matches, res.Stats.Spawns, res.Stats.Evictions,
		res.Stats.PredictedSuppressed, res.Stats.ForegroundObservations, res.Stats.BackgroundObservations)

	peakSpeed := 0.0
	for _, objs := range res.Outputs {
		for _, obj := range objs {
			if s := obj.Velocity.Norm(); s > peakSpeed {
				peakSpeed = s
			}
		}
	}
	log.Printf("Peak tracked speed: %s", units.FormatSpeed(peakSpeed, *speedUnits))
	if res.Stats.InvariantAborts > 0 || res.Stats.SerializeFailures > 0 {
		log.Printf("WARNING: invariant_aborts=%d serialize_failures=%d",
			res.Stats.InvariantAborts, res.Stats.SerializeFailures)
	}

	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0755); err != nil {
			log.Fatalf("Failed to create plot directory: %v", err)
		}
		files, err := scenario.WritePlots(sc, res.Outputs, *plotDir)
		if err != nil {
			log.Fatalf("Failed to write plots: %v", err)
		}
		for _, f := range files {
			log.Printf("Wrote %s", f)
		}
	}

	if *jsonOut {
		out := struct {
			Scenario string           `json:"scenario"`
			Score    float64          `json:"score"`
			Metrics  scenario.Metrics `json:"metrics"`
			Stats    fusion.Stats     `json:"stats"`
		}{sc.Name, score, m, res.Stats}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode output: %v", err)
		}
		fmt.Println(string(data))
	}
}
