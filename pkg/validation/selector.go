package validation

import (
	"image"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

// FallbackKind reports which fallback, if any, produced the drawn shapes
type FallbackKind string

const (
	FallbackNone      FallbackKind = "none"
	FallbackCandidate FallbackKind = "candidate"
	FallbackDefault   FallbackKind = "default"
)

// Selection is the final list of shapes to draw
type Selection struct {
	Shapes []types.PixelShape
	Kind   FallbackKind
}

// Selector picks what to draw once validation is done
type Selector struct {
	config Config
}

// NewSelector creates a Selector
func NewSelector(config Config) *Selector {
	return &Selector{config: config}
}

// Select returns the accepted shapes unchanged when there are any. Otherwise
// it picks the most central candidate (larger bounding box wins ties, then
// input order) or synthesizes the default inset rectangle.
func (s *Selector) Select(out Outcome, w, h int) Selection {
	if len(out.Accepted) > 0 {
		return Selection{Shapes: out.Accepted, Kind: FallbackNone}
	}

	if len(out.Candidates) > 0 {
		best := out.Candidates[0]
		bestDist, bestArea := score(best, w, h)
		for _, c := range out.Candidates[1:] {
			d, a := score(c, w, h)
			if d < bestDist || (d == bestDist && a > bestArea) {
				best, bestDist, bestArea = c, d, a
			}
		}

		shape := best.Shape
		if shape.Closed {
			shape.Points = geometry.Close(shape.Points)
		}
		if shape.Label == "" {
			shape.Label = s.config.DefaultLabel
		}
		return Selection{Shapes: []types.PixelShape{shape}, Kind: FallbackCandidate}
	}

	return Selection{Shapes: []types.PixelShape{s.DefaultShape(w, h)}, Kind: FallbackDefault}
}

// DefaultShape is the inset rectangle drawn when nothing usable was submitted
func (s *Selector) DefaultShape(w, h int) types.PixelShape {
	short := w
	if h < short {
		short = h
	}
	m := int(s.config.FallbackInset * float64(short))
	x0, y0 := clamp(m, w-1), clamp(m, h-1)
	x1, y1 := clamp(w-m, w-1), clamp(h-m, h-1)

	pts := []image.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	return types.PixelShape{
		Kind:   types.Polygon,
		Label:  s.config.DefaultLabel,
		Closed: true,
		Box:    true,
		Points: geometry.Close(pts),
		Mapped: len(pts),
	}
}

// score is the squared distance of the bbox center from the image center,
// and the bbox area
func score(c Candidate, w, h int) (float64, int) {
	cx, cy := c.Center()
	dx := cx - float64(w)/2
	dy := cy - float64(h)/2
	return dx*dx + dy*dy, c.Area()
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
