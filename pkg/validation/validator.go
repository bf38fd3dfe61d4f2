package validation

import (
	"fmt"
	"image"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/spec"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Rejection reasons
const (
	ReasonTooFewPoints = "too_few_points"
	ReasonAreaCeiling  = "area_ceiling"
)

// Config holds validation thresholds
type Config struct {
	MinPolygonPoints  int
	MinPolylinePoints int
	// AreaCeiling is the largest polygon area allowed, as a fraction of the
	// image area
	AreaCeiling float64
	// FallbackInset is the default rectangle margin, as a fraction of the
	// shorter image side
	FallbackInset float64
	DefaultLabel  string
	Policy        spec.Policy
}

// DefaultConfig returns the strict thresholds with graceful fallback
func DefaultConfig() Config {
	return Config{
		MinPolygonPoints:  6,
		MinPolylinePoints: 4,
		AreaCeiling:       0.6,
		FallbackInset:     0.15,
		DefaultLabel:      "Issue",
		Policy:            spec.Permissive,
	}
}

// Candidate is a shape that mapped to enough points to be drawn as a
// fallback, whether or not it passed validation
type Candidate struct {
	Shape  types.PixelShape
	Bounds image.Rectangle
	Index  int
}

// Center returns the bounding box center
func (c Candidate) Center() (float64, float64) {
	return float64(c.Bounds.Min.X+c.Bounds.Max.X) / 2, float64(c.Bounds.Min.Y+c.Bounds.Max.Y) / 2
}

// Area returns the bounding box area
func (c Candidate) Area() int {
	return c.Bounds.Dx() * c.Bounds.Dy()
}

// Rejection records why a shape was not drawn
type Rejection struct {
	Index  int
	Label  string
	Reason string
}

// Outcome is the result of validating all shapes of a request
type Outcome struct {
	Accepted      []types.PixelShape
	Candidates    []Candidate
	Rejections    []Rejection
	SkippedPoints int
}

// Validator maps shapes to pixel space and applies the geometry rules
type Validator struct {
	config Config
}

// NewValidator creates a Validator
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// Validate checks every shape against a w×h image. Under the strict policy a
// shape with too few points fails the whole request with spec.ErrBadRequest.
func (v *Validator) Validate(shapes []types.Shape, w, h int) (Outcome, error) {
	var out Outcome
	ceiling := v.config.AreaCeiling * float64(w) * float64(h)

	for i, s := range shapes {
		pts, skipped := geometry.MapPoints(s.Points, s.Unit, w, h)
		out.SkippedPoints += skipped

		if len(pts) < 2 {
			if v.config.Policy == spec.Strict && !s.Box {
				return Outcome{}, fmt.Errorf("%w: shape %d has insufficient valid points (%d)", spec.ErrBadRequest, i, len(pts))
			}
			out.Rejections = append(out.Rejections, Rejection{Index: i, Label: s.Label, Reason: ReasonTooFewPoints})
			continue
		}

		ps := types.PixelShape{
			Kind:   s.Kind,
			Label:  s.Label,
			Closed: s.Closed || s.Kind == types.Polygon,
			Box:    s.Box,
			Points: pts,
			Mapped: len(pts),
		}
		out.Candidates = append(out.Candidates, Candidate{Shape: ps, Bounds: geometry.Bounds(pts), Index: i})

		if !s.Box && len(pts) < v.minPoints(s.Kind) {
			if v.config.Policy == spec.Strict {
				return Outcome{}, fmt.Errorf("%w: shape %d has insufficient valid points (%d, need %d)",
					spec.ErrBadRequest, i, len(pts), v.minPoints(s.Kind))
			}
			out.Rejections = append(out.Rejections, Rejection{Index: i, Label: s.Label, Reason: ReasonTooFewPoints})
			continue
		}

		if ps.Closed {
			ps.Points = geometry.Close(pts)
		}

		if ps.Kind == types.Polygon && float64(geometry.Area(ps.Points)) > ceiling {
			out.Rejections = append(out.Rejections, Rejection{Index: i, Label: s.Label, Reason: ReasonAreaCeiling})
			continue
		}

		out.Accepted = append(out.Accepted, ps)
	}
	return out, nil
}

func (v *Validator) minPoints(k types.Kind) int {
	if k == types.Polygon {
		return v.config.MinPolygonPoints
	}
	return v.config.MinPolylinePoints
}
