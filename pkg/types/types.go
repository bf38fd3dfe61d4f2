package types

import (
	"image"
	"strings"
)

// Kind is the geometric kind of an annotation shape
type Kind int

const (
	Polyline Kind = iota
	Polygon
)

func (k Kind) String() string {
	if k == Polygon {
		return "polygon"
	}
	return "polyline"
}

// ParseKind maps a spec "type" value to a Kind. The match is case-insensitive.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "polygon":
		return Polygon, true
	case "polyline":
		return Polyline, true
	}
	return Polyline, false
}

// Unit is the coordinate system a shape's points are expressed in
type Unit int

const (
	Normalized Unit = iota // fraction of the image dimension, 0..1
	Percent                // percentage of the image dimension, 0..100
	Pixel                  // raw pixel coordinates
)

func (u Unit) String() string {
	switch u {
	case Percent:
		return "pct"
	case Pixel:
		return "px"
	default:
		return "norm"
	}
}

// ParseUnit maps a spec "unit" value to a Unit. Unknown values report false.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "norm", "normalized":
		return Normalized, true
	case "pct", "percent":
		return Percent, true
	case "px", "pixel", "pixels":
		return Pixel, true
	}
	return Normalized, false
}

// RawPoint is a point as submitted by the client, in the shape's unit.
// A nil component means the entry was missing or not numeric.
type RawPoint struct {
	X *float64
	Y *float64
}

// Pt builds a fully populated RawPoint.
func Pt(x, y float64) RawPoint {
	return RawPoint{X: &x, Y: &y}
}

// Shape is the canonical annotation record produced by the normalizer
type Shape struct {
	Kind   Kind
	Label  string
	Unit   Unit
	Closed bool
	Points []RawPoint
	// Box marks axis-aligned rectangles (legacy bounding boxes and the
	// synthesized fallback). Boxes skip the minimum point count and smoothing.
	Box bool
}

// PixelShape is a shape resolved to image pixel coordinates, ready to draw.
// Closed shapes carry a closed ring (first point repeated at the end).
type PixelShape struct {
	Kind   Kind
	Label  string
	Closed bool
	Box    bool
	Points []image.Point
	// Mapped is the number of points that survived coordinate mapping,
	// before any ring closure
	Mapped int
}

// Style controls how shapes are drawn for one request
type Style struct {
	StrokeWidth int
	Smooth      bool
	SmoothIters int
	FillAlpha   int
}

// DefaultStyle returns the style used when the spec carries none
func DefaultStyle() Style {
	return Style{
		StrokeWidth: 10,
		Smooth:      true,
		SmoothIters: 3,
		FillAlpha:   70,
	}
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the defect located by a vision model
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// LocateResult contains the complete answer of the vision model
type LocateResult struct {
	Primary     Primary `json:"primary"`
	Description string  `json:"description"`
}
