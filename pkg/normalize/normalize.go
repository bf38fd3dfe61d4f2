package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/menta2k/image-annotator/pkg/spec"
	"github.com/menta2k/image-annotator/pkg/types"
)

// MaxStrokeWidth caps the stroke width a spec may request
const MaxStrokeWidth = 256

// Config holds the normalizer limits
type Config struct {
	MaxShapes    int
	MaxLabelLen  int
	Policy       spec.Policy
	DefaultStyle types.Style
}

// DefaultConfig returns the limits used by the service
func DefaultConfig() Config {
	return Config{
		MaxShapes:    3,
		MaxLabelLen:  40,
		Policy:       spec.Permissive,
		DefaultStyle: types.DefaultStyle(),
	}
}

// Normalized is the canonical form of a parsed spec
type Normalized struct {
	Shapes []types.Shape
	Style  types.Style
	// Caption is the free-text problem description, drawn in a corner
	Caption string
	// DroppedShapes counts shapes discarded for an unknown type, an
	// incomplete bounding box, or exceeding MaxShapes
	DroppedShapes int
}

// Normalizer converts parsed documents into canonical shapes
type Normalizer struct {
	config Config
}

// New creates a Normalizer
func New(config Config) *Normalizer {
	return &Normalizer{config: config}
}

// Normalize resolves the document variant into at most MaxShapes shapes, in
// input order, and derives the request style.
func (n *Normalizer) Normalize(res spec.Result) (Normalized, error) {
	out := Normalized{Style: n.style(res.Style)}

	var shapes []types.Shape
	switch doc := res.Doc.(type) {
	case spec.PreferredShapeList:
		for i, raw := range doc.Shapes {
			shape, ok, err := n.shape(raw)
			if err != nil {
				return Normalized{}, fmt.Errorf("shape %d: %w", i, err)
			}
			if !ok {
				out.DroppedShapes++
				continue
			}
			shapes = append(shapes, shape)
		}
	case spec.LegacySingleShape:
		shape, ok, err := n.shape(doc.Shape)
		if err != nil {
			return Normalized{}, err
		}
		if ok {
			shapes = append(shapes, shape)
		} else {
			out.DroppedShapes++
		}
	case spec.FreeText:
		out.Caption = strings.TrimSpace(doc.Problem)
		for _, box := range doc.Annotations {
			shape, ok := n.box(box)
			if !ok {
				out.DroppedShapes++
				continue
			}
			shapes = append(shapes, shape)
		}
	case spec.Empty, nil:
	default:
		return Normalized{}, fmt.Errorf("unsupported document %T", doc)
	}

	limit := n.config.MaxShapes
	if limit > 0 && len(shapes) > limit {
		out.DroppedShapes += len(shapes) - limit
		shapes = shapes[:limit]
	}
	out.Shapes = shapes
	return out, nil
}

func (n *Normalizer) shape(raw spec.RawShape) (types.Shape, bool, error) {
	kind := types.Polyline
	if raw.Type != "" {
		k, ok := types.ParseKind(raw.Type)
		if !ok {
			if n.config.Policy == spec.Strict {
				return types.Shape{}, false, fmt.Errorf("%w: unsupported shape type %q", spec.ErrBadRequest, raw.Type)
			}
			return types.Shape{}, false, nil
		}
		kind = k
	}

	unit, _ := types.ParseUnit(raw.Unit)
	points := make([]types.RawPoint, len(raw.Points))
	copy(points, raw.Points)

	return types.Shape{
		Kind:   kind,
		Label:  CleanLabel(raw.Label, n.config.MaxLabelLen),
		Unit:   unit,
		Closed: kind == types.Polygon || raw.Closed,
		Points: points,
	}, true, nil
}

// box lifts a legacy bounding box into a closed rectangle polygon. Percent
// is the default unit for this schema.
func (n *Normalizer) box(b spec.RawBox) (types.Shape, bool) {
	if b.X == nil || b.Y == nil || b.W == nil || b.H == nil {
		return types.Shape{}, false
	}
	unit := types.Percent
	if b.Unit != "" {
		if u, ok := types.ParseUnit(b.Unit); ok {
			unit = u
		}
	}
	x, y, w, h := *b.X, *b.Y, *b.W, *b.H
	return types.Shape{
		Kind:   types.Polygon,
		Label:  CleanLabel(b.Text, n.config.MaxLabelLen),
		Unit:   unit,
		Closed: true,
		Box:    true,
		Points: []types.RawPoint{
			types.Pt(x, y),
			types.Pt(x+w, y),
			types.Pt(x+w, y+h),
			types.Pt(x, y+h),
		},
	}, true
}

func (n *Normalizer) style(raw spec.RawStyle) types.Style {
	st := n.config.DefaultStyle
	if raw.StrokeWidth != nil {
		st.StrokeWidth = toInt(*raw.StrokeWidth)
	}
	if raw.Smooth != nil {
		st.Smooth = *raw.Smooth
	}
	if raw.SmoothIters != nil {
		st.SmoothIters = toInt(*raw.SmoothIters)
	}
	if raw.FillAlpha != nil {
		st.FillAlpha = toInt(*raw.FillAlpha)
	}
	return ClampStyle(st)
}

// ClampStyle forces every style field into its legal range
func ClampStyle(st types.Style) types.Style {
	st.StrokeWidth = clamp(st.StrokeWidth, 2, MaxStrokeWidth)
	st.SmoothIters = clamp(st.SmoothIters, 0, 6)
	st.FillAlpha = clamp(st.FillAlpha, 0, 255)
	return st
}

// CleanLabel trims, NFC-normalizes and truncates a label to limit runes
func CleanLabel(label string, limit int) string {
	label = norm.NFC.String(strings.TrimSpace(label))
	if limit <= 0 || utf8.RuneCountInString(label) <= limit {
		return label
	}
	return string([]rune(label)[:limit])
}

func toInt(f float64) int {
	if f > 1<<20 {
		return 1 << 20
	}
	if f < -(1 << 20) {
		return -(1 << 20)
	}
	return int(f)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
