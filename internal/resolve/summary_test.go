package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefmap/pcoder/internal/detect"
	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/gazetteer/gazettest"
)

func TestSummarize(t *testing.T) {
	out := detectAndResolve(t,
		detect.RawRow{Text: "REGION V", Value: v(1300)},
		detect.RawRow{Text: "Albay", Value: v(500)},
		detect.RawRow{Text: "Legaspi City", Value: v(300)},
		detect.RawRow{Text: "Xyzzy", Value: v(100)},
		detect.RawRow{Text: ""},
	)
	require.Len(t, out, 5)

	sum := Summarize(out)
	assert.Equal(t, 1, sum.Skipped)

	muni := sum.Level(gazetteer.LevelMunicipality)
	assert.Equal(t, 2, muni.Total)
	assert.Equal(t, 1, muni.Matched)
	assert.Equal(t, 1, muni.Unmatched)
	assert.InDelta(t, 0.5, muni.MatchRate, 1e-9)
	assert.InDelta(t, 86.0, muni.MeanScore, 1e-9)

	prov := sum.Level(gazetteer.LevelProvince)
	assert.Equal(t, 1, prov.Total)
	assert.InDelta(t, 1.0, prov.MatchRate, 1e-9)

	assert.Equal(t, 0, sum.Level(gazetteer.LevelBarangay).Total)
	assert.Equal(t, 4, sum.Overall.Total)
	assert.Equal(t, 3, sum.Overall.Matched)
	assert.Equal(t, 1, sum.Anomalies[detect.AnomalyUndershoot])

	levels := make([]gazetteer.Level, len(sum.Levels))
	for i, l := range sum.Levels {
		levels[i] = l.Level
	}
	assert.Equal(t, []gazetteer.Level{gazetteer.LevelRegion, gazetteer.LevelProvince, gazetteer.LevelMunicipality}, levels)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil)
	assert.Empty(t, sum.Levels)
	assert.Equal(t, 0, sum.Overall.Total)
	assert.Zero(t, sum.Overall.MatchRate)
	assert.Nil(t, sum.Anomalies)
}

func TestSummarize_OverriddenCountsAsResolved(t *testing.T) {
	out := newMatcher(t).Resolve(leveled(
		lr{text: "REGION VI", level: gazetteer.LevelRegion, parent: -1},
		lr{text: "Negros Occidental", level: gazetteer.LevelProvince, parent: -1},
	))
	prov := Summarize(out).Level(gazetteer.LevelProvince)
	assert.Equal(t, 1, prov.Overridden)
	assert.Equal(t, 0, prov.Matched)
	assert.InDelta(t, 1.0, prov.MatchRate, 1e-9)
	assert.InDelta(t, 100.0, prov.MeanScore, 1e-9)
	assert.Equal(t, gazettest.NegrosOccidental, entityCode(out[1]))
}
