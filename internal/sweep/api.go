package sweep

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianav/fusiontrack/internal/httputil"
)

// API serves read-only JSON views of a results store, for dashboards and
// scripted comparison of sweep runs.
type API struct {
	store *Store
}

// NewAPI creates an API over the given store.
func NewAPI(store *Store) *API {
	return &API{store: store}
}

// AttachRoutes mounts the API handlers on mux.
func (a *API) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sweep/runs", a.handleListRuns)
	mux.HandleFunc("/api/sweep/results", a.handleTopResults)
}

// RunsListResponse is the JSON response for the run listing.
type RunsListResponse struct {
	Runs      []RunSummary `json:"runs"`
	Count     int          `json:"count"`
	Timestamp string       `json:"timestamp"`
}

// ResultsListResponse is the JSON response for one run's best results.
type ResultsListResponse struct {
	RunID     int64          `json:"run_id"`
	Results   []StoredResult `json:"results"`
	Count     int            `json:"count"`
	Timestamp string         `json:"timestamp"`
}

// handleListRuns handles GET /api/sweep/runs
// Query params:
//   - limit (optional): max runs returned, most recent first (default 20)
func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := a.store.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []RunSummary{}
	}

	httputil.WriteJSONOK(w, RunsListResponse{
		Runs:      runs,
		Count:     len(runs),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTopResults handles GET /api/sweep/results
// Query params:
//   - run_id (required)
//   - limit (optional): max results, best score first (default 20)
func (a *API) handleTopResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	runParam := r.URL.Query().Get("run_id")
	if runParam == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}
	runID, err := strconv.ParseInt(runParam, 10, 64)
	if err != nil || runID <= 0 {
		httputil.BadRequest(w, "invalid run_id")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	results, err := a.store.TopResults(runID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load results: %v", err))
		return
	}
	if results == nil {
		results = []StoredResult{}
	}

	httputil.WriteJSONOK(w, ResultsListResponse{
		RunID:     runID,
		Results:   results,
		Count:     len(results),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
