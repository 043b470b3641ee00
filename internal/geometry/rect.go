package geometry

// CompleteRectangle infers the fourth corner of a parallelogram from three
// consecutive corners: p4 = p2 + (p3 - p1). The arithmetic is done directly
// in degree space, so it is only accurate for small extents away from the
// poles.
func CompleteRectangle(p1, p2, p3 Point) Point {
	return Point{
		Lat: p2.Lat + (p3.Lat - p1.Lat),
		Lng: p2.Lng + (p3.Lng - p1.Lng),
	}
}

// rect3Ring orders the completed corners as p1, p2, p4, p3 so the
// quadrilateral does not self-intersect.
func rect3Ring(p1, p2, p3 Point) (ring []Point, p4 Point) {
	p4 = CompleteRectangle(p1, p2, p3)
	return []Point{p1, p2, p4, p3, p1}, p4
}
