package sweep

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

var viridisColours = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// metricColumns is the fixed tail of every CSV row, after the scenario and
// parameter columns.
var metricColumns = []string{
	"score", "position_rmse", "position_p95", "id_switches", "fragmentation",
	"misses", "predicted_ratio", "count_accuracy",
	"frames_processed", "matches", "spawns", "evictions", "duration_ms",
}

// WriteCSV writes one row per permutation result: scenario, one column per
// swept parameter, then the metric columns.
func WriteCSV(path string, params []Param, results []PermutationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	header := []string{"scenario"}
	for _, p := range params {
		header = append(header, p.Name)
	}
	header = append(header, metricColumns...)
	w.Write(header)

	for i := range results {
		r := &results[i]
		row := []string{r.Scenario}
		for _, p := range params {
			row = append(row, formatValue(r.Combo[p.Name]))
		}
		row = append(row,
			fmt.Sprintf("%.6f", r.Score),
			fmt.Sprintf("%.6f", r.Metrics.PositionRMSE),
			fmt.Sprintf("%.6f", r.Metrics.PositionP95),
			fmt.Sprintf("%d", r.Metrics.IDSwitches),
			fmt.Sprintf("%.6f", r.Metrics.Fragmentation),
			fmt.Sprintf("%d", r.Metrics.Misses),
			fmt.Sprintf("%.6f", r.Metrics.PredictedRatio),
			fmt.Sprintf("%.6f", r.Metrics.TrackCountAccuracy),
			fmt.Sprintf("%d", r.Stats.FramesProcessed),
			fmt.Sprintf("%d", r.Stats.Matches),
			fmt.Sprintf("%d", r.Stats.Spawns),
			fmt.Sprintf("%d", r.Stats.Evictions),
			fmt.Sprintf("%d", r.DurationMillis),
		)
		w.Write(row)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// WriteHTMLReport renders an ECharts page with one score-vs-value scatter
// per numeric swept parameter plus a score overview. Points are coloured by
// position RMSE so good scores with poor accuracy stand out.
func WriteHTMLReport(path string, params []Param, results []PermutationResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	page := components.NewPage()
	page.AddCharts(scoreOverviewChart(results))
	for _, p := range params {
		if sc, ok := paramScoreChart(p, results); ok {
			page.AddCharts(sc)
		}
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("rendering sweep report: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// paramScoreChart plots score against one parameter's values. String
// parameters have no numeric axis and report ok=false.
func paramScoreChart(p Param, results []PermutationResult) (*charts.Scatter, bool) {
	data := make([]opts.ScatterData, 0, len(results))
	maxRMSE := 0.0
	for i := range results {
		r := &results[i]
		x, ok := numericValue(r.Combo[p.Name])
		if !ok {
			return nil, false
		}
		if r.Metrics.PositionRMSE > maxRMSE {
			maxRMSE = r.Metrics.PositionRMSE
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, r.Score, r.Metrics.PositionRMSE}})
	}
	if len(data) == 0 {
		return nil, false
	}
	if maxRMSE == 0 {
		maxRMSE = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "score vs " + p.Name, Subtitle: fmt.Sprintf("%d runs, colour = position RMSE (m)", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: p.Name, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxRMSE),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColours},
		}),
	)
	scatter.AddSeries("runs", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter, true
}

// scoreOverviewChart plots every permutation's score in grid order.
func scoreOverviewChart(results []PermutationResult) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(results))
	minScore, maxScore := results[0].Score, results[0].Score
	for i := range results {
		s := results[i].Score
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
		data = append(data, opts.ScatterData{Value: []interface{}{i, s, s}})
	}
	if maxScore == minScore {
		maxScore = minScore + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "score by permutation", Subtitle: fmt.Sprintf("%d runs", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "permutation", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minScore),
			Max:        float32(maxScore),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColours},
		}),
	)
	scatter.AddSeries("permutations", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}

// ComboSummary aggregates one combination's scores across all scenarios it
// ran on.
type ComboSummary struct {
	Combo       map[string]interface{} `json:"combo"`
	ComboJSON   string                 `json:"combo_json"`
	Scenarios   int                    `json:"scenarios"`
	ScoreMean   float64                `json:"score_mean"`
	ScoreStddev float64                `json:"score_stddev"`
}

// Summarize groups results by combination and ranks by mean score, best
// first. The stddev is the sample standard deviation across scenarios,
// zero for a single scenario.
func Summarize(results []PermutationResult) []ComboSummary {
	byCombo := make(map[string][]int)
	var order []string
	for i := range results {
		key := results[i].ComboJSON
		if _, ok := byCombo[key]; !ok {
			order = append(order, key)
		}
		byCombo[key] = append(byCombo[key], i)
	}

	out := make([]ComboSummary, 0, len(order))
	for _, key := range order {
		idxs := byCombo[key]
		scores := make([]float64, len(idxs))
		for j, i := range idxs {
			scores[j] = results[i].Score
		}
		sum := ComboSummary{
			Combo:     results[idxs[0]].Combo,
			ComboJSON: key,
			Scenarios: len(idxs),
			ScoreMean: stat.Mean(scores, nil),
		}
		if len(scores) > 1 {
			sum.ScoreStddev = stat.StdDev(scores, nil)
		}
		out = append(out, sum)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScoreMean > out[j].ScoreMean
	})
	return out
}

// formatValue renders a combo value for CSV output.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// numericValue maps a combo value onto a chart axis. Bools plot as 0/1.
func numericValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
