package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/config"
	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/gazetteer/gazettest"
	"github.com/reliefmap/pcoder/internal/policy"
	"github.com/reliefmap/pcoder/internal/resolve"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func v(f float64) *float64 { return &f }

func rows(items ...detect.RawRow) []detect.RawRow {
	for i := range items {
		items[i].Seq = i
	}
	return items
}

func bicolTable() []detect.RawRow {
	return rows(
		detect.RawRow{Text: "REGION V", Value: v(1300)},
		detect.RawRow{Text: "Albay", Value: v(500)},
		detect.RawRow{Text: "Legazpi City", Value: v(300)},
		detect.RawRow{Text: "Daraga", Value: v(200)},
		detect.RawRow{Text: "Camarines Sur", Value: v(800)},
	)
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	opts.Detect.HUC = gazettest.HUCs()
	return New(gazettest.New(t), policy.Default(), opts)
}

func TestProcess(t *testing.T) {
	e := newEngine(t, DefaultOptions())

	res, err := e.Process(context.Background(), Input{Name: "dromic", Rows: bicolTable()})
	require.NoError(t, err)

	assert.Equal(t, "dromic", res.Name)
	require.Len(t, res.Rows, 5)
	require.Len(t, res.Paths, 5)

	assert.Equal(t, gazetteer.LevelProvince, res.Rows[4].Level)
	assert.Equal(t, gazettest.Legazpi, res.Paths[2].ADM3)
	assert.Equal(t, gazettest.Albay, res.Paths[3].ADM2)
	assert.Equal(t, gazettest.Bicol, res.Paths[4].ADM1)

	assert.InDelta(t, 1.0, res.Summary.Overall.MatchRate, 1e-9)
	assert.Equal(t, 1, res.Summary.Anomalies[detect.AnomalyUndershoot])
}

func TestProcess_Cancelled(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Process(ctx, Input{Name: "t", Rows: bicolTable()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_EmptyTable(t *testing.T) {
	e := newEngine(t, DefaultOptions())

	res, err := e.Process(context.Background(), Input{Name: "empty"})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Summary.Levels)
}

func TestProcessBatch(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxConcurrentTables = 2
	e := newEngine(t, opts)

	var inputs []Input
	for i := 0; i < 7; i++ {
		inputs = append(inputs, Input{Name: fmt.Sprintf("table-%d", i), Rows: bicolTable()})
	}

	results, err := e.ProcessBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, len(inputs))

	first, err := e.Process(context.Background(), inputs[0])
	require.NoError(t, err)
	for i, res := range results {
		assert.Equal(t, inputs[i].Name, res.Name)
		assert.Equal(t, first.Rows, res.Rows)
	}
}

func TestProcessBatch_Cancelled(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ProcessBatch(ctx, []Input{{Name: "a", Rows: bicolTable()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: batch")
}

func TestProcessBatch_Empty(t *testing.T) {
	e := newEngine(t, DefaultOptions())
	results, err := e.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNew_AppliesPolicyHUC(t *testing.T) {
	e := newEngine(t, DefaultOptions())

	leveled := e.Detect(rows(
		detect.RawRow{Text: "REGION VIII", Value: v(20)},
		detect.RawRow{Text: "Leyte", Value: v(5)},
		detect.RawRow{Text: "San Jose", Value: v(5)},
		detect.RawRow{Text: "Ormoc City", Value: v(15)},
	))
	require.Len(t, leveled, 4)
	assert.True(t, leveled[3].HUC)
	assert.Empty(t, leveled[1].Anomalies)
}

func TestNew_ClampsConcurrency(t *testing.T) {
	e := New(gazettest.New(t), nil, Options{Match: resolve.DefaultConfig()})
	assert.Equal(t, 1, e.opts.MaxConcurrentTables)
	assert.Same(t, e.Gazetteer(), e.g)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Reference.Path = filepath.Join(dir, "pcodes.csv")
	cfg.Reference.Format = "auto"
	cfg.Detect.AbsTolerance = 0.5
	cfg.Match.Threshold = 80
	cfg.Match.AmbiguityDelta = 1
	cfg.Batch.MaxConcurrentTables = 2
	return cfg
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pcodes.csv", gazettest.LongCSV())
	hucPath := writeFile(t, dir, "huc.csv", "city_first,city_last,pcode\nCity of Cebu,Cebu City,PH072217\n")
	policyPath := writeFile(t, dir, "policy.yaml", `
policy:
  entries:
    - name: Sorsogon
      level: province
      code: PH0562
      reason: missing from reference
`)

	cfg := testConfig(dir)
	cfg.Reference.HUCPath = hucPath
	cfg.Policy.Path = policyPath
	cfg.Match.Similarity = "blended"

	e, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 32, e.Gazetteer().Len())
	assert.Equal(t, 1, e.policy.Len())
	assert.Equal(t, []string{"GRAND TOTAL", "TOTAL"}, e.opts.Detect.TotalMarkers)

	res, err := e.Process(context.Background(), Input{Name: "t", Rows: rows(
		detect.RawRow{Text: "REGION VII", Value: v(100)},
		detect.RawRow{Text: "Cebu City", Value: v(100)},
		detect.RawRow{Text: "Sorsogon", Value: v(10)},
	)})
	require.NoError(t, err)
	assert.True(t, res.Rows[1].HUC)
	assert.Equal(t, gazettest.CebuCity, res.Rows[1].Entity.Code)
	assert.Equal(t, resolve.OutcomeOverridden, res.Rows[2].Outcome)
	assert.Equal(t, "PH0562", res.Rows[2].Entity.Code)
}

func TestFromConfig_DefaultPolicy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pcodes.csv", gazettest.LongCSV())

	e, err := FromConfig(context.Background(), testConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, policy.Default().Len(), e.policy.Len())
}

func TestFromConfig_MalformedReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pcodes.csv", "code,name\nPH,Philippines\n")

	_, err := FromConfig(context.Background(), testConfig(dir))
	require.Error(t, err)
	assert.True(t, gazetteer.IsMalformedReference(err))
}

func TestFromConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pcodes.csv", gazettest.LongCSV())

	tests := map[string]func(*config.Config){
		"similarity": func(c *config.Config) { c.Match.Similarity = "soundex" },
		"huc":        func(c *config.Config) { c.Reference.HUCPath = filepath.Join(dir, "missing.csv") },
		"policy":     func(c *config.Config) { c.Policy.Path = filepath.Join(dir, "missing.yaml") },
		"reference":  func(c *config.Config) { c.Reference.Path = filepath.Join(dir, "missing.csv") },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(dir)
			mutate(cfg)
			_, err := FromConfig(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "engine:")
			assert.False(t, gazetteer.IsMalformedReference(err))
		})
	}
}
