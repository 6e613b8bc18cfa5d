// Package store persists resolution runs and their resolved rows.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/engine"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/resolve"
)

// ErrNotFound is returned, wrapped, when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one resolved table.
type Run struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"`
	Table     string           `json:"table"`
	Status    RunStatus        `json:"status"`
	Summary   *resolve.Summary `json:"summary,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Row is a persisted resolved row. Path holds the filled codes.
type Row struct {
	RunID       string          `json:"run_id"`
	Seq         int             `json:"seq"`
	Label       string          `json:"label"`
	Value       *float64        `json:"value,omitempty"`
	Level       gazetteer.Level `json:"level"`
	HUC         bool            `json:"huc,omitempty"`
	Code        string          `json:"code,omitempty"`
	MatchedName string          `json:"matched_name,omitempty"`
	Score       int             `json:"score"`
	Outcome     resolve.Outcome `json:"outcome"`
	Ambiguous   bool            `json:"ambiguous,omitempty"`
	Path        resolve.Path    `json:"path"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Source string    `json:"source,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for resolution runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source, table string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary resolve.Summary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Rows
	SaveRows(ctx context.Context, runID string, rows []Row) error
	ListRows(ctx context.Context, runID string) ([]Row, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and migrates it. driver is
// "sqlite" or "postgres".
func Open(ctx context.Context, driver, url string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite":
		st, err = NewSQLite(url)
	case "postgres":
		st, err = NewPostgres(ctx, url, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// RowsFromResult converts a resolved table into persisted rows.
func RowsFromResult(runID string, res engine.Result) []Row {
	out := make([]Row, len(res.Rows))
	for i, r := range res.Rows {
		row := Row{
			RunID:     runID,
			Seq:       r.Seq,
			Label:     r.Text,
			Value:     r.Value,
			Level:     r.Level,
			HUC:       r.HUC,
			Score:     r.Score,
			Outcome:   r.Outcome,
			Ambiguous: r.Ambiguous,
			Path:      r.Path,
		}
		if i < len(res.Paths) {
			row.Path = res.Paths[i]
		}
		if r.Entity != nil {
			row.Code = r.Entity.Code
			row.MatchedName = r.Entity.Name
		}
		out[i] = row
	}
	return out
}

// Record persists one resolved table as a run. A run whose rows cannot be
// saved is marked failed.
func Record(ctx context.Context, st Store, source string, res engine.Result) (*Run, error) {
	log := zap.L().With(zap.String("component", "store"), zap.String("table", res.Name))

	run, err := st.CreateRun(ctx, source, res.Name)
	if err != nil {
		return nil, err
	}
	if err := st.SaveRows(ctx, run.ID, RowsFromResult(run.ID, res)); err != nil {
		if ferr := st.FailRun(ctx, run.ID, err); ferr != nil {
			log.Warn("mark run failed", zap.String("run_id", run.ID), zap.Error(ferr))
		}
		return nil, err
	}
	if err := st.CompleteRun(ctx, run.ID, res.Summary); err != nil {
		return nil, err
	}

	summary := res.Summary
	run.Status = RunStatusComplete
	run.Summary = &summary
	log.Info("run recorded", zap.String("run_id", run.ID), zap.Int("rows", len(res.Rows)))
	return run, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
