package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/gazetteer/gazettest"
	"github.com/reliefmap/pcoder/internal/policy"
	"github.com/reliefmap/pcoder/internal/resolve"
	"github.com/reliefmap/pcoder/internal/tabular"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func texts(rows []detect.RawRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text
	}
	return out
}

func values(rows []detect.RawRow) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		if r.Value != nil {
			out[i] = *r.Value
		}
	}
	return out
}

func dromicTable() *tabular.Table {
	return &tabular.Table{
		Name:   "affected",
		Header: []string{"Region / Province / Municipality", "Barangays", "Families", "Persons"},
		Rows: [][]string{
			{"GRAND TOTAL", "3", "1,300", "5,000"},
			{"None", "", "", ""},
			{"REGION V", "-", "1,300", "5,000"},
			{"", "", "", ""},
			{"Albay", "2", "500", "2,000"},
			{"PLGU", "-", "300", "900"},
			{"Legazpi\rCity", "1", "200", "1,100"},
		},
	}
}

func TestRows_DefaultColumns(t *testing.T) {
	out, err := Rows(dromicTable(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"GRAND TOTAL", "REGION V", "Albay", "Provincial LGU", "Legazpi City"}, texts(out))
	assert.Equal(t, []any{1300.0, 1300.0, 500.0, 300.0, 200.0}, values(out))
	for i, r := range out {
		assert.Equal(t, i, r.Seq)
		assert.Equal(t, gazetteer.LevelUnknown, r.Hint)
	}
}

func TestRows_ExplicitColumns(t *testing.T) {
	out, err := Rows(dromicTable(), Options{LabelColumn: "region / province / municipality", ValueColumn: "Barangays"})
	require.NoError(t, err)

	assert.Equal(t, []any{3.0, 0.0, 2.0, 0.0, 1.0}, values(out))
}

func TestRows_MissingColumns(t *testing.T) {
	_, err := Rows(dromicTable(), Options{LabelColumn: "Location"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `label column "Location" not found`)

	_, err = Rows(dromicTable(), Options{ValueColumn: "Households"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value column "Households" not found`)
}

func TestRows_NoNumericColumn(t *testing.T) {
	tbl := &tabular.Table{
		Header: []string{"Location", "Remarks"},
		Rows:   [][]string{{"Albay", "ok"}, {"Daraga", "-"}},
	}
	out, err := Rows(tbl, Options{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Value)
	assert.Nil(t, out[1].Value)
}

func TestRows_MergedHeader(t *testing.T) {
	tbl := &tabular.Table{
		Header: []string{"Location", "Number of Affected", "", ""},
		Rows: [][]string{
			{"", "Barangays", "Families", "Persons"},
			{"Albay", "2", "500", "2,000"},
		},
	}
	out, err := Rows(tbl, Options{HeaderRows: 2, ValueColumn: "Number of Affected_Persons"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2000.0, *out[0].Value)
}

func TestMergeHeaderRows(t *testing.T) {
	tbl := &tabular.Table{
		Header: []string{"Location", "Number of Affected", "None", ""},
		Rows:   [][]string{{"", "Barangays", "Families", "Persons"}, {"x"}},
	}
	got := mergeHeaderRows(tbl, 2)
	assert.Equal(t, []string{
		"Location",
		"Number of Affected_Barangays",
		"Number of Affected_Families",
		"Number of Affected_Persons",
	}, got.Header)
	assert.Equal(t, [][]string{{"x"}}, got.Rows)

	// More header rows than the table has.
	got = mergeHeaderRows(&tabular.Table{Header: []string{"A"}}, 3)
	assert.Equal(t, []string{"A"}, got.Header)
	assert.Empty(t, got.Rows)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234", 1234, true},
		{" 12 345 ", 12345, true},
		{"-", 0, true},
		{"–", 0, true},
		{"0", 0, true},
		{"3.5", 3.5, true},
		{"-7", -7, true},
		{"", 0, false},
		{"nan", 0, false},
		{"None", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "Provincial LGU", CleanLabel(" PLGU "))
	assert.Equal(t, "San Jose", CleanLabel("San\r\nJose"))
	assert.Equal(t, "PLGU Albay", CleanLabel("PLGU Albay"))
}

func hierarchyTable() *tabular.Table {
	return &tabular.Table{
		Name:   "ndrrmc",
		Header: []string{"Region", "Province", "City/Municipality", "Barangay", "Families"},
		Rows: [][]string{
			{"Region V", "Albay", "Daraga", "Alcala", "10"},
			{"Region V", "Albay", "Daraga", "Bagumbayan", "5"},
			{"Region V", "Albay", "Legazpi City", "No breakdown", "7"},
			{"None", "None", "None", "None", "None"},
			{"Region VII", "Cebu City", "No breakdown", "", "4"},
		},
	}
}

func hierarchyOptions() Options {
	return Options{LevelColumns: map[gazetteer.Level]string{
		gazetteer.LevelRegion:       "Region",
		gazetteer.LevelProvince:     "Province",
		gazetteer.LevelMunicipality: "City/Municipality",
		gazetteer.LevelBarangay:     "Barangay",
	}}
}

func TestRows_ColumnHierarchy(t *testing.T) {
	out, err := Rows(hierarchyTable(), hierarchyOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Region V", "Albay", "Daraga", "Alcala", "Bagumbayan", "Legazpi City", "Region VII", "Cebu City",
	}, texts(out))
	assert.Equal(t, []any{22.0, 22.0, 15.0, 10.0, 5.0, 7.0, 4.0, 4.0}, values(out))

	hints := make([]gazetteer.Level, len(out))
	for i, r := range out {
		hints[i] = r.Hint
		assert.Equal(t, i, r.Seq)
	}
	R, P, M, B := gazetteer.LevelRegion, gazetteer.LevelProvince, gazetteer.LevelMunicipality, gazetteer.LevelBarangay
	assert.Equal(t, []gazetteer.Level{R, P, M, B, B, M, R, P}, hints)

	cfg := detect.DefaultConfig()
	cfg.HUC = gazettest.HUCs()
	leveled := detect.New(cfg).Detect(out)
	assert.Empty(t, detect.CountAnomalies(leveled))
	assert.True(t, leveled[7].HUC)
	assert.Equal(t, 2, leveled[3].ParentSeq)
	assert.Equal(t, 1, leveled[5].ParentSeq)
}

func TestRows_ColumnHierarchyHUCResolves(t *testing.T) {
	tbl := &tabular.Table{
		Header: []string{"Region", "Province", "City/Municipality", "Barangay", "Families"},
		Rows:   [][]string{{"Region VII", "Cebu City", "Cebu City", "Lahug", "7"}},
	}
	out, err := Rows(tbl, hierarchyOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"Region VII", "Cebu City", "Cebu City", "Lahug"}, texts(out))

	p := policy.Default()
	cfg := detect.DefaultConfig()
	cfg.HUC = p.ApplyHUC(gazettest.HUCs())
	leveled := detect.New(cfg).Detect(out)
	resolved := resolve.New(gazettest.New(t), p, resolve.DefaultConfig()).Resolve(leveled)

	for _, r := range resolved[1:3] {
		assert.Equal(t, resolve.OutcomeMatched, r.Outcome, r.Text)
		require.NotNil(t, r.Entity, r.Text)
		assert.Equal(t, gazettest.CebuCity, r.Entity.Code, r.Text)
	}
	require.NotNil(t, resolved[3].Entity)
	assert.Equal(t, gazettest.CebuCityLahug, resolved[3].Entity.Code)

	paths := resolve.Fill(resolved)
	for i := 1; i < len(paths); i++ {
		assert.Equal(t, gazettest.CentralVisayas, paths[i].ADM1, resolved[i].Text)
		assert.Equal(t, gazettest.CebuCity, paths[i].ADM2, resolved[i].Text)
		assert.Equal(t, gazettest.CebuCity, paths[i].ADM3, resolved[i].Text)
	}
	assert.Equal(t, gazettest.CebuCityLahug, paths[3].ADM4)
}

func TestRows_ColumnHierarchyMissingColumn(t *testing.T) {
	opts := hierarchyOptions()
	opts.LevelColumns[gazetteer.LevelBarangay] = "Brgy"

	_, err := Rows(hierarchyTable(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `barangay column "Brgy" not found`)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitrep.csv")
	require.NoError(t, os.WriteFile(path, []byte("Location,Families\nREGION V,500\nAlbay,500\n"), 0o644))

	in, err := Load(context.Background(), path, tabular.Options{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "sitrep", in.Name)
	assert.Equal(t, []string{"REGION V", "Albay"}, texts(in.Rows))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.csv"), tabular.Options{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: read")
}
