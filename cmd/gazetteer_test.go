//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reliefmap/pcoder/internal/gazetteer"
	"github.com/reliefmap/pcoder/internal/gazetteer/gazettest"
)

func TestFormatLevelCounts(t *testing.T) {
	g := gazettest.New(t)

	var buf bytes.Buffer
	formatLevelCounts(&buf, g)

	output := buf.String()
	assert.Contains(t, output, "country:")
	assert.Contains(t, output, "barangay:")
	assert.Regexp(t, `Total:\s+32`, output)
}

func TestFormatCandidates(t *testing.T) {
	g := gazettest.New(t)
	cands := g.Lookup("Cebu City", gazetteer.LevelMunicipality, "")

	var buf bytes.Buffer
	formatCandidates(&buf, cands)

	output := buf.String()
	assert.Contains(t, output, "SCORE")
	assert.Contains(t, output, gazettest.CebuCity)
	assert.Contains(t, output, gazettest.CentralVisayas)
}
