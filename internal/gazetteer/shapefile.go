package gazetteer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ReadShapefiles loads administrative boundary shapefiles (one file per
// level, HDX/PSA layout with ADMn_PCODE and ADMn_EN attributes). path may be
// a single .shp file or a directory holding several. Each entity's Centroid
// is the centre of its bounding box.
func ReadShapefiles(path string) ([]Entity, error) {
	files, err := shapefilePaths(path)
	if err != nil {
		return nil, err
	}

	var entities []Entity
	hasCountry := false
	for _, f := range files {
		es, err := readShapefile(f)
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			if e.Level == LevelCountry {
				hasCountry = true
			}
		}
		entities = append(entities, es...)
	}
	if !hasCountry && len(entities) > 0 {
		entities = append(entities, Entity{Code: DefaultCountryCode, Name: DefaultCountryName, Level: LevelCountry})
	}
	return entities, nil
}

func shapefilePaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: stat %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.shp"))
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: glob shapefiles")
	}
	if len(matches) == 0 {
		return nil, eris.Errorf("gazetteer: no .shp file found in %s", path)
	}
	sort.Strings(matches)
	return matches, nil
}

func readShapefile(path string) ([]Entity, error) {
	log := zap.L().With(zap.String("component", "gazetteer.shapefile"))

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// The deepest ADMn_PCODE attribute decides the file's level.
	level := LevelUnknown
	for i := len(Levels) - 1; i >= 0; i-- {
		if fieldIndex(reader, fmt.Sprintf("ADM%d_PCODE", Levels[i].ADM())) >= 0 {
			level = Levels[i]
			break
		}
	}
	if level == LevelUnknown {
		return nil, malformed(filepath.Base(path), "no ADMn_PCODE attribute")
	}

	n := level.ADM()
	codeIdx := fieldIndex(reader, fmt.Sprintf("ADM%d_PCODE", n))
	nameIdx := fieldIndex(reader, fmt.Sprintf("ADM%d_EN", n))
	if nameIdx < 0 {
		return nil, malformed(fmt.Sprintf("ADM%d_EN", n), "missing required attribute in %s", filepath.Base(path))
	}
	parentIdx := -1
	if level != LevelCountry {
		parentIdx = fieldIndex(reader, fmt.Sprintf("ADM%d_PCODE", n-1))
	}

	var out []Entity
	for reader.Next() {
		_, shape := reader.Shape()
		code := attribute(reader, codeIdx)
		if code == "" {
			continue
		}
		e := Entity{
			Code:     code,
			Name:     attribute(reader, nameIdx),
			Level:    level,
			Centroid: centroid(shape),
		}
		switch {
		case parentIdx >= 0:
			e.ParentCode = attribute(reader, parentIdx)
		case level == LevelRegion:
			e.ParentCode = DefaultCountryCode
		}
		out = append(out, e)
	}

	log.Debug("shapefile read", zap.String("path", path), zap.String("level", level.String()), zap.Int("entities", len(out)))
	return out, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

func attribute(reader *shp.Reader, i int) string {
	return strings.Trim(reader.Attribute(i), " \x00")
}

func centroid(s shp.Shape) *Point {
	switch shape := s.(type) {
	case nil:
		return nil
	case *shp.Point:
		return &Point{Lon: shape.X, Lat: shape.Y}
	case *shp.Polygon:
		if mp := polygonToMultiPolygon(shape); mp != nil {
			b := mp.Bounds()
			return &Point{Lon: (b.Min(0) + b.Max(0)) / 2, Lat: (b.Min(1) + b.Max(1)) / 2}
		}
		return nil
	default:
		box := s.BBox()
		return &Point{Lon: (box.MinX + box.MaxX) / 2, Lat: (box.MinY + box.MaxY) / 2}
	}
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon,
// skipping rings go-geom rejects.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
