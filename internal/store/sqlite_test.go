package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/resolve"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSummary() resolve.Summary {
	return resolve.Summary{
		Levels: []resolve.LevelStats{
			{Level: gazetteer.LevelProvince, Total: 2, Matched: 1, Unmatched: 1, MeanScore: 100, MatchRate: 0.5},
		},
		Overall:   resolve.LevelStats{Total: 2, Matched: 1, Unmatched: 1, MeanScore: 100, MatchRate: 0.5},
		Anomalies: map[detect.AnomalyKind]int{detect.AnomalyUndershoot: 1},
	}
}

func testRows() []Row {
	v := 500.0
	return []Row{
		{
			Seq: 0, Label: "REGION V", Value: &v, Level: gazetteer.LevelRegion,
			Code: "PH05", MatchedName: "Region V (Bicol Region)", Score: 100, Outcome: resolve.OutcomeMatched,
			Path: resolve.Path{ADM0: "PH", ADM1: "PH05"},
		},
		{
			Seq: 1, Label: "Cebu City", Level: gazetteer.LevelMunicipality, HUC: true,
			Code: "PH072217", MatchedName: "Cebu City", Score: 100, Outcome: resolve.OutcomeMatched,
			Path: resolve.Path{ADM0: "PH", ADM1: "PH07", ADM2: "PH072217", ADM3: "PH072217"},
		},
		{
			Seq: 2, Label: "Daragaa", Level: gazetteer.LevelMunicipality, Score: 75,
			Outcome: resolve.OutcomeNoMatch, Ambiguous: true,
		},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sitrep.xlsx", "affected")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sitrep.xlsx", got.Source)
	assert.Equal(t, "affected", got.Table)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.Summary)

	require.NoError(t, st.CompleteRun(ctx, run.ID, testSummary()))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, testSummary(), *got.Summary)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sitrep.csv", "t")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("disk full")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "disk full", got.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.CompleteRun(ctx, "missing", resolve.Summary{})
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.FailRun(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "a.csv", "t1")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "a.csv", "t2")
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "b.csv", "t1")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, a.ID, testSummary()))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySource, err := st.ListRuns(ctx, RunFilter{Source: "a.csv"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)
	assert.NotNil(t, complete[0].Summary)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_Rows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sitrep.csv", "t")
	require.NoError(t, err)
	require.NoError(t, st.SaveRows(ctx, run.ID, testRows()))

	got, err := st.ListRows(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	want := testRows()
	for i := range want {
		want[i].RunID = run.ID
	}
	assert.Equal(t, want, got)

	// Saving again replaces the run's whole row set.
	updated := testRows()[2:]
	updated[0].Outcome = resolve.OutcomeSkipped
	require.NoError(t, st.SaveRows(ctx, run.ID, updated))
	got, err = st.ListRows(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, updated[0].Seq, got[0].Seq)
	assert.Equal(t, resolve.OutcomeSkipped, got[0].Outcome)

	require.NoError(t, st.SaveRows(ctx, run.ID, nil))
	got, err = st.ListRows(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_SaveRowsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.SaveRows(context.Background(), "any", nil))

	rows, err := st.ListRows(context.Background(), "any")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
