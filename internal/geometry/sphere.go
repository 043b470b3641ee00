package geometry

import "math"

// EarthRadius is the mean Earth radius in meters used for all distance
// and area calculations.
const EarthRadius = 6371008.8

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Pow(math.Sin(dLng/2), 2)*math.Cos(lat1)*math.Cos(lat2)
	return 2 * EarthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLength sums the great-circle distances between consecutive points.
func PathLength(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// RingArea returns the absolute spherical area in square meters of a
// closed ring (first point repeated at the end), using the
// Chamberlain-Duquette approximation.
func RingArea(ring []Point) float64 {
	n := len(ring) - 1
	if n <= 2 {
		return 0
	}

	var total float64
	for i := 0; i < n; i++ {
		lower := ring[i]
		middle := ring[(i+1)%n]
		upper := ring[(i+2)%n]
		total += (radians(upper.Lng) - radians(lower.Lng)) * math.Sin(radians(middle.Lat))
	}
	return math.Abs(total * EarthRadius * EarthRadius / 2)
}
