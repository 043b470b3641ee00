// Package geometry measures small survey shapes drawn on a map: area,
// perimeter and rectangle length/width from an ordered set of WGS84 points.
package geometry

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Unit conversion constants.
const (
	SqftPerSqm = 10.7639
	FtPerM     = 3.28084
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Mode selects how a point sequence is closed into a ring.
type Mode string

// Measurement modes.
const (
	// ModeRect3 takes three corners and infers the fourth.
	ModeRect3 Mode = "RECT3"
	// ModeFour takes four corners of a quadrilateral.
	ModeFour Mode = "FOUR"
	// ModePoly takes three or more vertices of an arbitrary polygon.
	ModePoly Mode = "POLY"
)

// ParseMode converts a mode name (case-insensitive) to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeRect3:
		return ModeRect3, nil
	case ModeFour:
		return ModeFour, nil
	case ModePoly:
		return ModePoly, nil
	default:
		return "", eris.Errorf("geometry: unknown mode %q", s)
	}
}

// Result holds the measurements of one point set. Area is set only when a
// closed ring was formed; length and width only for RECT3 and FOUR.
type Result struct {
	AreaSqm     *float64 `json:"area_sqm,omitempty"`
	AreaSqft    *float64 `json:"area_sqft,omitempty"`
	PerimeterM  float64  `json:"perimeter_m"`
	PerimeterFt float64  `json:"perimeter_ft"`
	LengthM     *float64 `json:"length_m,omitempty"`
	LengthFt    *float64 `json:"length_ft,omitempty"`
	WidthM      *float64 `json:"width_m,omitempty"`
	WidthFt     *float64 `json:"width_ft,omitempty"`
	Points      []Point  `json:"points,omitempty"`
}

func ptr(v float64) *float64 { return &v }
