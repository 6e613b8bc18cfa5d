package gazetteer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reliefmap/pcoder/internal/tabular"
)

// Reference formats accepted by Load.
const (
	FormatAuto      = "auto"
	FormatLong      = "long"
	FormatWide      = "wide"
	FormatShapefile = "shapefile"
)

// Default country used when wide reference data carries no ADM0 columns.
const (
	DefaultCountryCode = "PH"
	DefaultCountryName = "Philippines"
)

// LoadOptions configures Load.
type LoadOptions struct {
	Format string // auto, long, wide or shapefile
	Sheet  string // xlsx sheet; empty selects the first
	HUC    *HUCTable
}

// Load reads reference data from path and builds a Gazetteer. CSV and XLSX
// files may use the long or the wide layout; with FormatAuto the layout is
// picked from the header. A directory or .shp path selects shapefiles.
func Load(ctx context.Context, path string, opts LoadOptions, gopts ...Option) (*Gazetteer, error) {
	log := zap.L().With(zap.String("component", "gazetteer.loader"))

	entities, err := LoadEntities(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	if opts.HUC.Len() > 0 {
		entities = MarkHUCs(entities, opts.HUC)
	}

	g, err := New(entities, gopts...)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: build from %s", path)
	}

	log.Info("reference loaded",
		zap.String("path", path),
		zap.Int("entities", g.Len()),
		zap.Int("provinces", g.CountByLevel()[LevelProvince]),
		zap.Int("municipalities", g.CountByLevel()[LevelMunicipality]),
	)
	return g, nil
}

// LoadEntities reads the raw entity list without building an index.
func LoadEntities(ctx context.Context, path string, opts LoadOptions) ([]Entity, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = FormatAuto
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: stat %s", path)
	}
	if format == FormatShapefile || info.IsDir() || strings.EqualFold(filepath.Ext(path), ".shp") {
		return ReadShapefiles(path)
	}

	t, err := tabular.ReadFile(ctx, path, tabular.Options{Sheet: opts.Sheet})
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: read reference table")
	}

	switch format {
	case FormatLong:
		return FromLongTable(t)
	case FormatWide:
		return FromWideTable(t)
	case FormatAuto:
		if t.Column("code") >= 0 && t.Column("level") >= 0 {
			return FromLongTable(t)
		}
		return FromWideTable(t)
	default:
		return nil, eris.Errorf("gazetteer: unknown reference format %q", opts.Format)
	}
}

// FromLongTable reads one entity per row from code, name, level and
// parent_code columns, with an optional is_huc column.
func FromLongTable(t *tabular.Table) ([]Entity, error) {
	codeIdx, nameIdx, levelIdx := t.Column("code"), t.Column("name"), t.Column("level")
	parentIdx, hucIdx := t.Column("parent_code"), t.Column("is_huc")
	for _, req := range []struct {
		col string
		idx int
	}{{"code", codeIdx}, {"name", nameIdx}, {"level", levelIdx}} {
		if req.idx < 0 {
			return nil, malformed(req.col, "missing required column")
		}
	}

	entities := make([]Entity, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		level, err := ParseLevel(tabular.Cell(row, levelIdx))
		if err != nil {
			return nil, malformed(tabular.Cell(row, codeIdx), "row %d: unknown level %q", i+1, tabular.Cell(row, levelIdx))
		}
		entities = append(entities, Entity{
			Code:       tabular.Cell(row, codeIdx),
			Name:       tabular.Cell(row, nameIdx),
			Level:      level,
			ParentCode: tabular.Cell(row, parentIdx),
			IsHUC:      parseBool(tabular.Cell(row, hucIdx)),
		})
	}
	return entities, nil
}

// FromWideTable reads one leaf per row with ADMn_PCODE (or ADMn_new) and
// ADMn_EN columns. Shared ancestors are de-duplicated; an ancestor whose
// name or parent differs between rows is malformed.
func FromWideTable(t *tabular.Table) ([]Entity, error) {
	type admCols struct {
		level      Level
		code, name int
	}

	var cols []admCols
	for _, level := range Levels {
		n := level.ADM()
		code := t.Column(fmt.Sprintf("ADM%d_PCODE", n))
		if code < 0 {
			code = t.Column(fmt.Sprintf("ADM%d_new", n))
		}
		name := t.Column(fmt.Sprintf("ADM%d_EN", n))
		switch {
		case code < 0 && name < 0:
			continue
		case code < 0:
			return nil, malformed(fmt.Sprintf("ADM%d_PCODE", n), "missing required column")
		case name < 0:
			return nil, malformed(fmt.Sprintf("ADM%d_EN", n), "missing required column")
		}
		cols = append(cols, admCols{level: level, code: code, name: name})
	}
	if len(cols) == 0 {
		return nil, malformed("ADM1_PCODE", "missing required column")
	}
	hucIdx := t.Column("is_huc")

	seen := make(map[entityKey]int)
	var entities []Entity
	add := func(e Entity) error {
		key := entityKey{level: e.Level, code: e.Code}
		if j, ok := seen[key]; ok {
			prev := entities[j]
			if prev.ParentCode != e.ParentCode {
				return malformed(e.Code, "%s listed under parents %s and %s", e.Level, prev.ParentCode, e.ParentCode)
			}
			if e.IsHUC {
				entities[j].IsHUC = true
			}
			return nil
		}
		seen[key] = len(entities)
		entities = append(entities, e)
		return nil
	}

	if cols[0].level != LevelCountry {
		_ = add(Entity{Code: DefaultCountryCode, Name: DefaultCountryName, Level: LevelCountry})
	}

	for _, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		parent := ""
		if cols[0].level != LevelCountry {
			parent = DefaultCountryCode
		}
		for _, c := range cols {
			code := tabular.Cell(row, c.code)
			if code == "" {
				break
			}
			e := Entity{
				Code:       code,
				Name:       tabular.Cell(row, c.name),
				Level:      c.level,
				ParentCode: parent,
			}
			if c.level == LevelMunicipality {
				e.IsHUC = parseBool(tabular.Cell(row, hucIdx))
			}
			if err := add(e); err != nil {
				return nil, err
			}
			parent = code
		}
	}
	return entities, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
