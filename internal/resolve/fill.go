package resolve

import "github.com/reliefmap/pcoder/internal/gazetteer"

// Fill returns every row's path with missing ancestor codes taken from the
// rows around it. Codes flow down from the previous row of the same scope;
// a region header without a code takes the region of the row below it.
// Rows are not modified.
func Fill(rows []ResolvedRow) []Path {
	paths := make([]Path, len(rows))
	var last Path
	for i, r := range rows {
		p := r.Path
		switch r.Level {
		case gazetteer.LevelCountry:
			last = Path{ADM0: p.ADM0}
		case gazetteer.LevelRegion:
			p.ADM0 = orElse(p.ADM0, last.ADM0)
			last = Path{ADM0: p.ADM0, ADM1: p.ADM1}
		case gazetteer.LevelProvince:
			p.ADM0 = orElse(p.ADM0, last.ADM0)
			p.ADM1 = orElse(p.ADM1, last.ADM1)
			last = Path{ADM0: p.ADM0, ADM1: p.ADM1, ADM2: p.ADM2}
		case gazetteer.LevelMunicipality:
			p.ADM0 = orElse(p.ADM0, last.ADM0)
			p.ADM1 = orElse(p.ADM1, last.ADM1)
			if r.HUC {
				p.ADM2 = orElse(p.ADM2, p.ADM3)
				last.ADM2 = p.ADM2
			} else {
				p.ADM2 = orElse(p.ADM2, last.ADM2)
			}
			last.ADM3 = p.ADM3
		case gazetteer.LevelBarangay:
			p.ADM0 = orElse(p.ADM0, last.ADM0)
			p.ADM1 = orElse(p.ADM1, last.ADM1)
			p.ADM2 = orElse(p.ADM2, last.ADM2)
			p.ADM3 = orElse(p.ADM3, last.ADM3)
		}
		paths[i] = p
	}

	for i := len(rows) - 2; i >= 0; i-- {
		if rows[i].Level == gazetteer.LevelRegion && paths[i].ADM1 == "" {
			paths[i].ADM1 = paths[i+1].ADM1
		}
	}
	return paths
}

func orElse(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
