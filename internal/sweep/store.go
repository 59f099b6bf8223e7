package sweep

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// Schema migrations are embedded so binaries and tests never depend on a
// migrations directory existing on disk.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store persists sweep runs and their permutation results in SQLite.
type Store struct {
	*sql.DB
	path string
}

// OpenStore opens (creating if necessary) the sweep database at path and
// applies any pending migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sweep db %s: %w", path, err)
	}
	s := &Store{DB: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp runs all pending migrations up to the latest version.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: we don't close m here because it would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// InsertRun records the start of a sweep and returns its row id.
func (s *Store) InsertRun(opts Options, startedAt time.Time) (int64, error) {
	baseConfig, err := json.Marshal(opts.BaseConfig)
	if err != nil {
		return 0, fmt.Errorf("encoding base config: %w", err)
	}
	params, err := json.Marshal(opts.Params)
	if err != nil {
		return 0, fmt.Errorf("encoding params: %w", err)
	}
	names := make([]string, len(opts.Scenarios))
	for i, sc := range opts.Scenarios {
		names[i] = sc.Name
	}
	scenarios, err := json.Marshal(names)
	if err != nil {
		return 0, fmt.Errorf("encoding scenario names: %w", err)
	}

	query := `
		INSERT INTO sweep_runs (status, started_at, base_config, params, scenarios, workers)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	var id int64
	err = retryOnBusy(func() error {
		res, err := s.Exec(query,
			"running",
			startedAt.UTC().Format(time.RFC3339),
			string(baseConfig),
			string(params),
			string(scenarios),
			opts.Workers,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("inserting sweep run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run finished. A nil runErr records "complete";
// anything else records "error" with the message.
func (s *Store) CompleteRun(runID int64, runErr error, completedAt time.Time) error {
	status := "complete"
	msg := ""
	if runErr != nil {
		status = "error"
		msg = runErr.Error()
	}
	query := `UPDATE sweep_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`
	err := retryOnBusy(func() error {
		_, err := s.Exec(query, status, nullStr(msg), completedAt.UTC().Format(time.RFC3339), runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("completing sweep run %d: %w", runID, err)
	}
	return nil
}

// SaveResults writes all permutation results for a run in one transaction.
func (s *Store) SaveResults(runID int64, results []PermutationResult) error {
	query := `
		INSERT INTO sweep_results (
			run_id, scenario, combo, score,
			position_rmse, position_p95, id_switches, fragmentation,
			misses, predicted_ratio, count_accuracy,
			frames_processed, matches, spawns, evictions, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range results {
			r := &results[i]
			if _, err := stmt.Exec(
				runID, r.Scenario, r.ComboJSON, r.Score,
				r.Metrics.PositionRMSE, r.Metrics.PositionP95, r.Metrics.IDSwitches, r.Metrics.Fragmentation,
				r.Metrics.Misses, r.Metrics.PredictedRatio, r.Metrics.TrackCountAccuracy,
				r.Stats.FramesProcessed, r.Stats.Matches, r.Stats.Spawns, r.Stats.Evictions, r.DurationMillis,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("saving %d results for run %d: %w", len(results), runID, err)
	}
	return nil
}

// StoredResult is one persisted permutation result row.
type StoredResult struct {
	ID       int64   `json:"id"`
	RunID    int64   `json:"run_id"`
	Scenario string  `json:"scenario"`
	Combo    string  `json:"combo"`
	Score    float64 `json:"score"`

	PositionRMSE   float64 `json:"position_rmse"`
	PositionP95    float64 `json:"position_p95"`
	IDSwitches     int     `json:"id_switches"`
	Fragmentation  float64 `json:"fragmentation"`
	Misses         int     `json:"misses"`
	PredictedRatio float64 `json:"predicted_ratio"`
	CountAccuracy  float64 `json:"count_accuracy"`

	FramesProcessed int64 `json:"frames_processed"`
	Matches         int64 `json:"matches"`
	Spawns          int64 `json:"spawns"`
	Evictions       int64 `json:"evictions"`
	DurationMillis  int64 `json:"duration_ms"`
}

// TopResults returns a run's results ordered by score, best first.
func (s *Store) TopResults(runID int64, limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, run_id, scenario, combo, score,
		       position_rmse, position_p95, id_switches, fragmentation,
		       misses, predicted_ratio, count_accuracy,
		       frames_processed, matches, spawns, evictions, duration_ms
		FROM sweep_results
		WHERE run_id = ?
		ORDER BY score DESC, id ASC
		LIMIT ?
	`
	rows, err := s.Query(query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying results for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Scenario, &r.Combo, &r.Score,
			&r.PositionRMSE, &r.PositionP95, &r.IDSwitches, &r.Fragmentation,
			&r.Misses, &r.PredictedRatio, &r.CountAccuracy,
			&r.FramesProcessed, &r.Matches, &r.Spawns, &r.Evictions, &r.DurationMillis,
		); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSummary is a lightweight view of one sweep run for list output.
type RunSummary struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Workers     int        `json:"workers"`
	Results     int        `json:"results"`
}

// ListRuns returns recent runs, most recent first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT r.id, r.status, r.error, r.started_at, r.completed_at, r.workers,
		       (SELECT COUNT(*) FROM sweep_results WHERE run_id = r.id)
		FROM sweep_runs r
		ORDER BY r.id DESC
		LIMIT ?
	`
	rows, err := s.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var rec RunSummary
		var errMsg, startedAt, completedAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Status, &errMsg, &startedAt, &completedAt, &rec.Workers, &rec.Results); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if errMsg.Valid {
			rec.Error = errMsg.String
		}
		if startedAt.Valid {
			t, err := time.Parse(time.RFC3339, startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing started_at for run %d: %w", rec.ID, err)
			}
			rec.StartedAt = t
		}
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339, completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing completed_at for run %d: %w", rec.ID, err)
			}
			rec.CompletedAt = &t
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its results.
func (s *Store) DeleteRun(runID int64) error {
	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM sweep_results WHERE run_id = ?`, runID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM sweep_runs WHERE id = ?`, runID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// AttachAdminRoutes mounts live SQL debugging and a backup endpoint on the
// given mux under /debug/.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it at the sweep DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Sweep results",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("sweep-backup-%d.db", unixTime)
		if _, err := s.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

// nullStr returns nil for empty strings, pointer to string otherwise.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isSQLiteBusy reports whether err is a transient SQLITE_BUSY condition.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while it reports
// SQLITE_BUSY. Other errors return immediately.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	delay := 10 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, err)
}
