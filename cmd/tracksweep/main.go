package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meridianav/fusiontrack/internal/config"
	"github.com/meridianav/fusiontrack/internal/fusion"
	"github.com/meridianav/fusiontrack/internal/scenario"
	"github.com/meridianav/fusiontrack/internal/sweep"
	"github.com/meridianav/fusiontrack/internal/version"
)

// paramFlags collects repeated -param values.
type paramFlags []sweep.Param

func (p *paramFlags) String() string {
	names := make([]string, len(*p))
	for i, sp := range *p {
		names[i] = sp.Name
	}
	return strings.Join(names, ",")
}

func (p *paramFlags) Set(s string) error {
	sp, err := sweep.ParseParamSpec(s)
	if err != nil {
		return err
	}
	*p = append(*p, sp)
	return nil
}

var (
	scenarioList = flag.String("scenarios", "crossing,convoy,turning", "Comma-separated scenario presets to score each combination on")
	configFile   = flag.String("config", "", "Base tuning config JSON file (default: embedded defaults)")
	workers      = flag.Int("workers", 4, "Number of concurrent engine instances")
	weightsJSON  = flag.String("weights", "", "Objective weights as JSON (default: built-in weights)")
	dbFile       = flag.String("db", "tracksweep.db", "SQLite results database (empty to skip persistence)")
	output       = flag.String("csv", "", "Output CSV filename (defaults to tracksweep-<timestamp>.csv)")
	htmlFile     = flag.String("html", "", "Write an HTML chart report to this file")
	topN         = flag.Int("top", 10, "Number of best combinations to print")
	listenAddr   = flag.String("serve", "", "After the sweep, serve the results DB debug UI on this address (requires -db)")
	debug        = flag.Bool("debug", false, "Enable per-permutation diagnostic logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	var params paramFlags
	flag.Var(&params, "param", "Swept parameter as name=type:spec (repeatable). "+
		"Examples: match_distance_max=float64:2:6:0.5, matcher=string:hungarian,nearest, use_histogram_for_match=bool")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracksweep %s\n", version.String())
		return
	}

	if len(params) == 0 {
		log.Fatalf("No -param flags given; nothing to sweep (try -param match_distance_max=float64:2:6:0.5)")
	}
	if *listenAddr != "" && *dbFile == "" {
		log.Fatalf("-serve requires -db")
	}

	sweepWriters := sweep.LogWriters{Ops: os.Stderr}
	fusionWriters := fusion.LogWriters{Ops: os.Stderr}
	if *debug {
		sweepWriters.Diag = os.Stderr
		fusionWriters.Diag = os.Stderr
	}
	sweep.SetLogWriters(sweepWriters)
	fusion.SetLogWriters(fusionWriters)

	cfg := config.MustLoadDefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
	}

	weights := sweep.DefaultObjectiveWeights()
	if *weightsJSON != "" {
		if err := json.Unmarshal([]byte(*weightsJSON), &weights); err != nil {
			log.Fatalf("Invalid -weights JSON: %v", err)
		}
	}

	var scenarios []scenario.Config
	for _, name := range strings.Split(*scenarioList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		preset, err := scenario.Preset(name)
		if err != nil {
			log.Fatalf("%v", err)
		}
		scenarios = append(scenarios, preset)
	}

	runner, err := sweep.NewRunner(sweep.Options{
		Params:     params,
		Scenarios:  scenarios,
		BaseConfig: cfg,
		Workers:    *workers,
		Weights:    weights,
	})
	if err != nil {
		log.Fatalf("Invalid sweep: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *sweep.Store
	var runID int64
	if *dbFile != "" {
		store, err = sweep.OpenStore(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open results db: %v", err)
		}
		defer store.Close()

		runID, err = store.InsertRun(sweep.Options{Params: params, Scenarios: scenarios, BaseConfig: cfg, Workers: *workers}, time.Now())
		if err != nil {
			log.Fatalf("Failed to record sweep run: %v", err)
		}
	}

	results, err := runner.Run(ctx)
	if err != nil {
		if store != nil {
			if cerr := store.CompleteRun(runID, err, time.Now()); cerr != nil {
				log.Printf("WARNING: could not record failure: %v", cerr)
			}
		}
		log.Fatalf("Sweep failed: %v", err)
	}

	if store != nil {
		if err := store.SaveResults(runID, results); err != nil {
			log.Fatalf("Failed to save results: %v", err)
		}
		if err := store.CompleteRun(runID, nil, time.Now()); err != nil {
			log.Fatalf("Failed to complete run: %v", err)
		}
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("tracksweep-%s.csv", time.Now().Format("20060102-150405"))
	}
	if err := sweep.WriteCSV(filename, params, results); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}

	if *htmlFile != "" {
		if err := sweep.WriteHTMLReport(*htmlFile, params, results); err != nil {
			log.Fatalf("Failed to write HTML report: %v", err)
		}
	}

	summaries := sweep.Summarize(results)
	n := *topN
	if n > len(summaries) {
		n = len(summaries)
	}
	log.Printf("Top %d of %d combinations (mean score over %d scenarios):", n, len(summaries), len(scenarios))
	for i := 0; i < n; i++ {
		s := summaries[i]
		log.Printf("  #%d score=%.4f stddev=%.4f %s", i+1, s.ScoreMean, s.ScoreStddev, s.ComboJSON)
	}

	log.Printf("Sweep complete!")
	log.Printf("Summary: %s", filename)
	if *htmlFile != "" {
		log.Printf("Charts: %s", *htmlFile)
	}
	if store != nil {
		log.Printf("Results db: %s (run %d)", *dbFile, runID)
	}

	if *listenAddr != "" && store != nil {
		serveResults(ctx, store, *listenAddr)
	}
}

// serveResults blocks serving the debug UI and JSON API until the context is
// cancelled.
func serveResults(ctx context.Context, store *sweep.Store, addr string) {
	mux := http.NewServeMux()
	store.AttachAdminRoutes(mux)
	sweep.NewAPI(store).AttachRoutes(mux)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("Serving results db on %s (debug UI at /debug/, API at /api/sweep/)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
