package geometry

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// DecodeBoundary parses a GeoJSON geometry. Empty input and JSON null
// decode to a nil geometry.
func DecodeBoundary(raw json.RawMessage) (geom.T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "geometry: decode boundary")
	}
	return g, nil
}

// BoundaryPoints returns the outer ring of a Polygon, or the outer ring of
// the first polygon of a MultiPolygon. Other geometry types yield nil.
func BoundaryPoints(g geom.T) []Point {
	var ring *geom.LinearRing
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() > 0 {
			ring = t.LinearRing(0)
		}
	case *geom.MultiPolygon:
		if t.NumPolygons() > 0 && t.Polygon(0).NumLinearRings() > 0 {
			ring = t.Polygon(0).LinearRing(0)
		}
	}
	if ring == nil {
		return nil
	}

	points := make([]Point, 0, ring.NumCoords())
	for i := 0; i < ring.NumCoords(); i++ {
		c := ring.Coord(i)
		points = append(points, Point{Lat: c.Y(), Lng: c.X()})
	}
	return points
}

// MeasureBoundary measures a GeoJSON Polygon or MultiPolygon outer ring as
// a POLY shape. It returns nil when the boundary has two points or fewer.
func MeasureBoundary(raw json.RawMessage) (*Result, error) {
	g, err := DecodeBoundary(raw)
	if err != nil || g == nil {
		return nil, err
	}
	points := BoundaryPoints(g)
	// GeoJSON rings repeat the first coordinate; Measure closes POLY itself.
	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	if len(points) <= 2 {
		return nil, nil
	}
	return Measure(points, ModePoly)
}
