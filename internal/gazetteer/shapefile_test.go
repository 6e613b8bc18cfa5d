package gazetteer_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmap/pcoder/internal/gazetteer"
)

type shpRecord struct {
	attrs []string
	box   [4]float64 // minX, minY, maxX, maxY
}

func writeShapefile(t *testing.T, path string, fields []string, records []shpRecord) {
	t.Helper()
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shp.StringField(f, 40)
	}
	w.SetFields(shpFields)

	for _, r := range records {
		b := r.box
		ring := []shp.Point{{X: b[0], Y: b[1]}, {X: b[2], Y: b[1]}, {X: b[2], Y: b[3]}, {X: b[0], Y: b[3]}, {X: b[0], Y: b[1]}}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
		n := w.Write(&poly)
		for j, v := range r.attrs {
			w.WriteAttribute(int(n), j, v)
		}
	}
	w.Close()

	// go-shp v0.1.1 writes the attribute table as "<base>dbf".
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func TestReadShapefiles_Directory(t *testing.T) {
	dir := t.TempDir()
	writeShapefile(t, filepath.Join(dir, "phl_admbnda_adm1.shp"),
		[]string{"ADM1_EN", "ADM1_PCODE", "ADM0_PCODE"},
		[]shpRecord{{attrs: []string{"Region V", "PH05", "PH"}, box: [4]float64{122.0, 12.0, 124.5, 14.5}}},
	)
	writeShapefile(t, filepath.Join(dir, "phl_admbnda_adm2.shp"),
		[]string{"ADM2_EN", "ADM2_PCODE", "ADM1_PCODE"},
		[]shpRecord{
			{attrs: []string{"Albay", "PH0505", "PH05"}, box: [4]float64{123.5, 13.0, 124.0, 13.5}},
			{attrs: []string{"Camarines Sur", "PH0517", "PH05"}, box: [4]float64{122.5, 13.2, 123.9, 14.1}},
		},
	)

	entities, err := gazetteer.ReadShapefiles(dir)
	require.NoError(t, err)
	require.Len(t, entities, 4)

	g, err := gazetteer.New(entities)
	require.NoError(t, err)
	assert.Equal(t, gazetteer.DefaultCountryCode, g.Country().Code)

	albay, ok := g.Get(gazetteer.LevelProvince, "PH0505")
	require.True(t, ok)
	assert.Equal(t, "PH05", albay.ParentCode)
	require.NotNil(t, albay.Centroid)
	assert.InDelta(t, 123.75, albay.Centroid.Lon, 1e-9)
	assert.InDelta(t, 13.25, albay.Centroid.Lat, 1e-9)
}

func TestReadShapefiles_NoPcodeField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.shp")
	writeShapefile(t, path, []string{"NAME"}, []shpRecord{{attrs: []string{"x"}, box: [4]float64{0, 0, 1, 1}}})

	_, err := gazetteer.ReadShapefiles(path)
	require.Error(t, err)
	assert.True(t, gazetteer.IsMalformedReference(err))
}

func TestReadShapefiles_EmptyDirectory(t *testing.T) {
	_, err := gazetteer.ReadShapefiles(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp file")
}
