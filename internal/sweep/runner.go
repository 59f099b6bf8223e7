package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/fusion"
	"github.com/meridianav/fusiontrack/internal/scenario"
)

// Options defines a sweep: which parameter grid to explore, which
// scenarios to score each combination on, and how to weigh the metrics.
type Options struct {
	Params    []Param
	Scenarios []scenario.Config

	// BaseConfig is the tuning config each combination overlays. Nil means
	// the embedded defaults.
	BaseConfig *config.TuningConfig

	// Workers is the number of concurrent engine instances. Zero means 4.
	Workers int

	// Weights for the scalar score. The zero value means DefaultObjectiveWeights.
	Weights ObjectiveWeights
}

// PermutationResult holds the outcome of one parameter combination on one
// scenario.
type PermutationResult struct {
	Combo     map[string]interface{} `json:"combo"`
	ComboJSON string                 `json:"combo_json"`
	Scenario  string                 `json:"scenario"`

	Metrics scenario.Metrics `json:"metrics"`
	Stats   fusion.Stats     `json:"stats"`
	Score   float64          `json:"score"`

	DurationMillis int64 `json:"duration_ms"`
}

// Runner executes parameter sweeps. Engines are built per permutation but
// draw from one shared pool set, so buffers recycle across the whole run.
type Runner struct {
	opts  Options
	pools *fusion.Pools
}

// job is one (combination, scenario) cell of the sweep grid.
type job struct {
	comboNum int
	combo    map[string]interface{}
	scenario scenario.Config
}

const maxCombos = 1000

// NewRunner validates the options and prepares a runner. The parameter
// grid is expanded here so an invalid sweep fails before any engine runs.
func NewRunner(opts Options) (*Runner, error) {
	if len(opts.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to sweep over")
	}
	for i := range opts.Params {
		if err := expandParam(&opts.Params[i]); err != nil {
			return nil, fmt.Errorf("param %q: %w", opts.Params[i].Name, err)
		}
	}
	if opts.BaseConfig == nil {
		opts.BaseConfig = config.MustLoadDefaultConfig()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Weights == (ObjectiveWeights{}) {
		opts.Weights = DefaultObjectiveWeights()
	}
	return &Runner{opts: opts, pools: fusion.NewPools()}, nil
}

// Run executes the full grid and returns one result per (combination,
// scenario) pair, in grid order. The first permutation error aborts the
// sweep; ctx cancellation does the same.
func (r *Runner) Run(ctx context.Context) ([]PermutationResult, error) {
	combos := cartesianProduct(r.opts.Params)
	if len(combos) == 0 {
		return nil, fmt.Errorf("no parameter combinations to sweep")
	}
	if len(combos) > maxCombos {
		return nil, fmt.Errorf("parameter range too large: would generate %d combinations (max %d)", len(combos), maxCombos)
	}

	jobs := make([]job, 0, len(combos)*len(r.opts.Scenarios))
	for ci, combo := range combos {
		for _, sc := range r.opts.Scenarios {
			jobs = append(jobs, job{comboNum: ci + 1, combo: combo, scenario: sc})
		}
	}
	Opsf("sweep start: %d combinations x %d scenarios = %d runs, %d workers",
		len(combos), len(r.opts.Scenarios), len(jobs), r.opts.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	results := make([]PermutationResult, len(jobs))
	jobCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				if runCtx.Err() != nil {
					continue
				}
				res, err := r.runJob(jobs[idx], len(combos))
				if err != nil {
					fail(err)
					continue
				}
				results[idx] = res
			}
		}()
	}

feed:
	for i := range jobs {
		select {
		case jobCh <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobCh)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep cancelled: %w", err)
	}
	Opsf("sweep complete: %d runs evaluated", len(jobs))
	return results, nil
}

// runJob scores one combination on one scenario with a fresh engine.
func (r *Runner) runJob(j job, totalCombos int) (PermutationResult, error) {
	start := time.Now()

	cfg, err := applyCombo(r.opts.BaseConfig, j.combo)
	if err != nil {
		return PermutationResult{}, err
	}
	eng, err := fusion.NewEngineWithPools(cfg, r.pools)
	if err != nil {
		return PermutationResult{}, fmt.Errorf("combo %s: %w", comboJSON(j.combo), err)
	}

	// Every permutation generates its own scenario copy: frames carry
	// per-run mutable state, so they cannot be shared across workers.
	sc, err := scenario.Generate(j.scenario)
	if err != nil {
		return PermutationResult{}, fmt.Errorf("scenario %q: %w", j.scenario.Name, err)
	}

	res, err := scenario.Run(eng, sc)
	if err != nil {
		return PermutationResult{}, fmt.Errorf("combo %s on %q: %w", comboJSON(j.combo), sc.Name, err)
	}
	eng.Reset()

	out := PermutationResult{
		Combo:          j.combo,
		ComboJSON:      comboJSON(j.combo),
		Scenario:       sc.Name,
		Metrics:        res.Metrics,
		Stats:          res.Stats,
		Score:          ScoreMetrics(res.Metrics, r.opts.Weights),
		DurationMillis: time.Since(start).Milliseconds(),
	}
	Diagf("combination %d/%d on %q: score=%.4f rmse=%.3f switches=%d (%dms)",
		j.comboNum, totalCombos, out.Scenario, out.Score,
		out.Metrics.PositionRMSE, out.Metrics.IDSwitches, out.DurationMillis)
	return out, nil
}
