package geometry

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Feature is one polygon record read from a shapefile.
type Feature struct {
	Index      int               `json:"index"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Points     []Point           `json:"-"`
}

// ReadShapefile returns the outer ring of the first part of every polygon
// record in the shapefile at path. Attribute values are trimmed; records of
// other shape types are skipped.
func ReadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var (
		features []Feature
		skipped  int
	)
	for reader.Next() {
		idx, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}

		features = append(features, Feature{
			Index:      idx,
			Attributes: attrs,
			Points:     outerRing(poly),
		})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "geometry: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().Debug("geometry: skipped non-polygon shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// outerRing returns the first part of p without its closing point. X is
// longitude and Y latitude.
func outerRing(p *shp.Polygon) []Point {
	end := int32(len(p.Points))
	if p.NumParts > 1 {
		end = p.Parts[1]
	}
	start := p.Parts[0]

	points := make([]Point, 0, end-start)
	for j := start; j < end; j++ {
		points = append(points, Point{Lat: p.Points[j].Y, Lng: p.Points[j].X})
	}
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	return points
}
