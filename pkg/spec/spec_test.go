package spec

import (
	"errors"
	"testing"
)

func TestParseEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		res, err := Parse(text, Permissive)
		if err != nil {
			t.Fatalf("Permissive parse of %q returned error: %v", text, err)
		}
		if _, ok := res.Doc.(Empty); !ok {
			t.Errorf("Expected Empty for %q, got %T", text, res.Doc)
		}
	}

	if _, err := Parse("", Strict); !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for empty strict spec, got %v", err)
	}
}

func TestParseFreeTextFallback(t *testing.T) {
	res, err := Parse("scratch on the left door", Permissive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ft, ok := res.Doc.(FreeText)
	if !ok {
		t.Fatalf("Expected FreeText, got %T", res.Doc)
	}
	if ft.Problem != "scratch on the left door" {
		t.Errorf("Expected problem text to be kept, got %q", ft.Problem)
	}
	if len(ft.Annotations) != 0 {
		t.Errorf("Expected no annotations, got %d", len(ft.Annotations))
	}

	if _, err := Parse("{not json", Strict); !errors.Is(err, ErrBadRequest) {
		t.Errorf("Expected ErrBadRequest for invalid JSON in strict mode, got %v", err)
	}
}

func TestParseNonObject(t *testing.T) {
	for _, text := range []string{"[1,2,3]", "42", `"text"`, "null"} {
		res, err := Parse(text, Permissive)
		if err != nil {
			t.Fatalf("Unexpected error for %q: %v", text, err)
		}
		if _, ok := res.Doc.(Empty); !ok {
			t.Errorf("Expected Empty for %q, got %T", text, res.Doc)
		}
		if _, err := Parse(text, Strict); !errors.Is(err, ErrBadRequest) {
			t.Errorf("Expected ErrBadRequest for %q in strict mode, got %v", text, err)
		}
	}
}

func TestParsePreferredShapeList(t *testing.T) {
	text := `{
		"polylines": [
			{"type": "polygon", "label": "dent", "unit": "pct",
			 "points": [{"x": 10, "y": "20"}, {"x": "abc", "y": 5}, 7, {"x": 30, "y": 40}]},
			"not-a-shape",
			{"type": "polyline", "closed": true, "points": []}
		],
		"style": {"stroke_width": 6, "smooth": false, "smooth_iters": "2", "fill_alpha": 120}
	}`
	res, err := Parse(text, Strict)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	list, ok := res.Doc.(PreferredShapeList)
	if !ok {
		t.Fatalf("Expected PreferredShapeList, got %T", res.Doc)
	}
	if len(list.Shapes) != 2 {
		t.Fatalf("Expected 2 shapes (non-object skipped), got %d", len(list.Shapes))
	}

	first := list.Shapes[0]
	if first.Type != "polygon" || first.Label != "dent" || first.Unit != "pct" {
		t.Errorf("Unexpected shape fields: %+v", first)
	}
	if len(first.Points) != 4 {
		t.Fatalf("Expected 4 raw points, got %d", len(first.Points))
	}
	if first.Points[0].X == nil || *first.Points[0].X != 10 || first.Points[0].Y == nil || *first.Points[0].Y != 20 {
		t.Errorf("Expected numeric string to coerce, got %+v", first.Points[0])
	}
	if first.Points[1].X != nil || first.Points[1].Y == nil {
		t.Errorf("Expected non-numeric x to be nil, got %+v", first.Points[1])
	}
	if first.Points[2].X != nil || first.Points[2].Y != nil {
		t.Errorf("Expected non-object point to be empty, got %+v", first.Points[2])
	}
	if !list.Shapes[1].Closed {
		t.Error("Expected closed flag to be parsed")
	}

	st := res.Style
	if st.StrokeWidth == nil || *st.StrokeWidth != 6 {
		t.Errorf("Expected stroke width 6, got %v", st.StrokeWidth)
	}
	if st.Smooth == nil || *st.Smooth {
		t.Errorf("Expected smooth=false, got %v", st.Smooth)
	}
	if st.SmoothIters != nil {
		t.Error("Expected string smooth_iters to be ignored")
	}
	if st.FillAlpha == nil || *st.FillAlpha != 120 {
		t.Errorf("Expected fill alpha 120, got %v", st.FillAlpha)
	}
}

func TestParsePolylinesNotArray(t *testing.T) {
	res, err := Parse(`{"polylines": "oops"}`, Permissive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	list, ok := res.Doc.(PreferredShapeList)
	if !ok {
		t.Fatalf("Expected PreferredShapeList, got %T", res.Doc)
	}
	if len(list.Shapes) != 0 {
		t.Errorf("Expected empty list, got %d shapes", len(list.Shapes))
	}
}

func TestParseLegacySingleShape(t *testing.T) {
	res, err := Parse(`{"type": "Polygon", "label": "rust", "points": [{"x": 0.1, "y": 0.2}]}`, Permissive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	single, ok := res.Doc.(LegacySingleShape)
	if !ok {
		t.Fatalf("Expected LegacySingleShape, got %T", res.Doc)
	}
	if single.Shape.Type != "Polygon" || single.Shape.Label != "rust" {
		t.Errorf("Unexpected shape: %+v", single.Shape)
	}
	if len(single.Shape.Points) != 1 {
		t.Errorf("Expected 1 point, got %d", len(single.Shape.Points))
	}
}

func TestParseLegacyAnnotations(t *testing.T) {
	text := `{"problem": "broken seal", "annotations": [{"x": 10, "y": 20, "w": 30, "h": 40, "text": "seal"}, {"x": 1, "y": 2, "w": 3, "h": 4, "unit": "px"}]}`
	res, err := Parse(text, Permissive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ft, ok := res.Doc.(FreeText)
	if !ok {
		t.Fatalf("Expected FreeText, got %T", res.Doc)
	}
	if ft.Problem != "broken seal" {
		t.Errorf("Expected problem 'broken seal', got %q", ft.Problem)
	}
	if len(ft.Annotations) != 2 {
		t.Fatalf("Expected 2 annotations, got %d", len(ft.Annotations))
	}
	if ft.Annotations[0].Text != "seal" || *ft.Annotations[0].W != 30 {
		t.Errorf("Unexpected first annotation: %+v", ft.Annotations[0])
	}
	if ft.Annotations[1].Unit != "px" {
		t.Errorf("Expected unit px, got %q", ft.Annotations[1].Unit)
	}
}

func TestParseUnknownObject(t *testing.T) {
	res, err := Parse(`{"hello": "world"}`, Strict)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := res.Doc.(Empty); !ok {
		t.Errorf("Expected Empty, got %T", res.Doc)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Permissive, false},
		{"permissive", Permissive, false},
		{"STRICT", Strict, false},
		{"sometimes", Permissive, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
