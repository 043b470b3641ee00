package geometry

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

var (
	// ErrTooFewPoints is returned when the point set cannot describe a shape.
	ErrTooFewPoints = eris.New("geometry: too few points")
	// ErrMalformedRing is returned when a closed ring cannot be measured.
	ErrMalformedRing = eris.New("geometry: malformed ring")
)

// Compute measures points under mode and returns nil when no measurement is
// available. Use Measure to get the reason.
func Compute(points []Point, mode Mode) *Result {
	res, err := Measure(points, mode)
	if err != nil {
		zap.L().Debug("geometry: no measurement",
			zap.String("mode", string(mode)),
			zap.Int("points", len(points)),
			zap.Error(err),
		)
		return nil
	}
	return res
}

// Measure computes area, perimeter and, for RECT3 and FOUR, length and
// width. Point sets that do not close into a ring under mode are measured
// as an open path.
func Measure(points []Point, mode Mode) (*Result, error) {
	if len(points) < 2 {
		return nil, ErrTooFewPoints
	}

	var (
		ring   []Point
		second Point
	)
	switch mode {
	case ModePoly:
		if len(points) >= 3 {
			ring = closeRing(points)
		}
	case ModeFour:
		if len(points) == 4 {
			ring = closeRing(points)
			second = points[2]
		}
	case ModeRect3:
		switch {
		case len(points) < 3:
			return nil, eris.Wrap(ErrTooFewPoints, "geometry: RECT3 needs three corners")
		case len(points) == 3:
			ring, second = rect3Ring(points[0], points[1], points[2])
		}
	default:
		return nil, eris.Errorf("geometry: unknown mode %q", mode)
	}

	if len(ring) < 4 {
		return openPath(points), nil
	}

	if err := validateRing(ring); err != nil {
		return nil, err
	}

	area := RingArea(ring)
	perimeter := PathLength(ring)
	res := &Result{
		AreaSqm:     ptr(area),
		AreaSqft:    ptr(area * SqftPerSqm),
		PerimeterM:  perimeter,
		PerimeterFt: perimeter * FtPerM,
		Points:      ring,
	}

	if mode == ModeRect3 || mode == ModeFour {
		d1 := Distance(ring[0], ring[1])
		d2 := Distance(ring[1], second)
		if length := math.Max(d1, d2); length > 0 {
			res.LengthM = ptr(length)
			res.LengthFt = ptr(length * FtPerM)
		}
		if width := math.Min(d1, d2); width > 0 {
			res.WidthM = ptr(width)
			res.WidthFt = ptr(width * FtPerM)
		}
	}

	return res, nil
}

func closeRing(points []Point) []Point {
	ring := make([]Point, 0, len(points)+1)
	ring = append(ring, points...)
	return append(ring, points[0])
}

func openPath(points []Point) *Result {
	length := PathLength(points)
	return &Result{
		PerimeterM:  length,
		PerimeterFt: length * FtPerM,
		LengthM:     ptr(length),
		LengthFt:    ptr(length * FtPerM),
	}
}

// validateRing builds the ring as a go-geom polygon and checks it is
// closed and finite.
func validateRing(ring []Point) error {
	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
			return eris.Wrapf(ErrMalformedRing, "geometry: non-finite coordinate %v", p)
		}
		flat = append(flat, p.Lng, p.Lat)
	}

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	lr := poly.LinearRing(0)
	if lr.NumCoords() < 4 {
		return eris.Wrap(ErrMalformedRing, "geometry: ring has fewer than four coordinates")
	}
	if !lr.Coord(0).Equal(geom.XY, lr.Coord(lr.NumCoords()-1)) {
		return eris.Wrap(ErrMalformedRing, "geometry: ring is not closed")
	}
	return nil
}
