// Package spec turns raw annotation spec text into a typed Document.
//
// Four document shapes are recognized, each with its own variant:
//
//	{"polylines": [...], "style": {...}}          PreferredShapeList
//	{"type": "polygon", "points": [...]}          LegacySingleShape
//	{"problem": "...", "annotations": [...]}      FreeText (also any non-JSON text)
//	"" / non-object JSON / unknown object         Empty
//
// Parsing happens once per request; downstream code switches on the variant
// instead of probing untyped maps.
package spec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-annotator/pkg/types"
)

// ErrBadRequest is returned by strict parsing when the spec cannot be used
var ErrBadRequest = errors.New("bad request")

// Policy selects how malformed input is handled
type Policy int

const (
	// Permissive degrades malformed input to an empty or free-text document
	Permissive Policy = iota
	// Strict rejects unparsable or non-object input with ErrBadRequest
	Strict
)

// ParsePolicy maps a config value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive", "lenient":
		return Permissive, nil
	case "strict":
		return Strict, nil
	}
	return Permissive, fmt.Errorf("unknown error policy %q", s)
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "permissive"
}

// Document is the typed parse result. It is one of PreferredShapeList,
// LegacySingleShape, FreeText or Empty.
type Document interface {
	isDocument()
}

// PreferredShapeList holds the shapes of the current multi-shape schema
type PreferredShapeList struct {
	Shapes []RawShape
}

// LegacySingleShape holds a shape described directly at the document root
type LegacySingleShape struct {
	Shape RawShape
}

// FreeText holds a problem description and optional legacy bounding boxes
type FreeText struct {
	Problem     string
	Annotations []RawBox
}

// Empty means there is nothing to draw
type Empty struct{}

func (PreferredShapeList) isDocument() {}
func (LegacySingleShape) isDocument()  {}
func (FreeText) isDocument()           {}
func (Empty) isDocument()              {}

// RawShape is one shape object as found in the spec. Type, Unit and Label
// are empty when absent or not strings.
type RawShape struct {
	Type   string
	Label  string
	Unit   string
	Closed bool
	Points []types.RawPoint
}

// RawBox is one entry of the legacy bounding-box schema
type RawBox struct {
	X, Y, W, H *float64
	Text       string
	Unit       string
}

// RawStyle holds the style fields that were present with the right type
type RawStyle struct {
	StrokeWidth *float64
	Smooth      *bool
	SmoothIters *float64
	FillAlpha   *float64
}

// Result is what Parse produces
type Result struct {
	Doc   Document
	Style RawStyle
}

// Parse parses spec text under the given policy. Permissive parsing never
// fails.
func Parse(text string, policy Policy) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		if policy == Strict {
			return Result{}, fmt.Errorf("%w: spec is empty", ErrBadRequest)
		}
		return Result{Doc: Empty{}}, nil
	}

	var raw any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		if policy == Strict {
			return Result{}, fmt.Errorf("%w: spec is not valid JSON: %v", ErrBadRequest, err)
		}
		return Result{Doc: FreeText{Problem: trimmed}}, nil
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		if policy == Strict {
			return Result{}, fmt.Errorf("%w: spec must be a JSON object", ErrBadRequest)
		}
		return Result{Doc: Empty{}}, nil
	}

	return Result{Doc: classify(obj), Style: parseStyle(obj["style"])}, nil
}

func classify(obj map[string]any) Document {
	if v, ok := obj["polylines"]; ok {
		list := PreferredShapeList{}
		arr, _ := v.([]any)
		for _, el := range arr {
			if m, ok := el.(map[string]any); ok {
				list.Shapes = append(list.Shapes, parseShape(m))
			}
		}
		return list
	}

	_, hasType := obj["type"]
	_, hasPoints := obj["points"]
	if hasType && hasPoints {
		return LegacySingleShape{Shape: parseShape(obj)}
	}

	_, hasProblem := obj["problem"]
	_, hasAnnotations := obj["annotations"]
	if hasProblem || hasAnnotations {
		ft := FreeText{Problem: stringField(obj, "problem")}
		arr, _ := obj["annotations"].([]any)
		for _, el := range arr {
			if m, ok := el.(map[string]any); ok {
				ft.Annotations = append(ft.Annotations, RawBox{
					X:    number(m["x"]),
					Y:    number(m["y"]),
					W:    number(m["w"]),
					H:    number(m["h"]),
					Text: stringField(m, "text"),
					Unit: stringField(m, "unit"),
				})
			}
		}
		return ft
	}

	return Empty{}
}

func parseShape(m map[string]any) RawShape {
	s := RawShape{
		Type:  stringField(m, "type"),
		Label: stringField(m, "label"),
		Unit:  stringField(m, "unit"),
	}
	if closed, ok := m["closed"].(bool); ok {
		s.Closed = closed
	}
	arr, _ := m["points"].([]any)
	for _, el := range arr {
		s.Points = append(s.Points, parsePoint(el))
	}
	return s
}

// parsePoint keeps non-object entries as an all-nil point so the coordinate
// mapper can count them as skipped.
func parsePoint(v any) types.RawPoint {
	m, ok := v.(map[string]any)
	if !ok {
		return types.RawPoint{}
	}
	return types.RawPoint{X: number(m["x"]), Y: number(m["y"])}
}

func parseStyle(v any) RawStyle {
	m, ok := v.(map[string]any)
	if !ok {
		return RawStyle{}
	}
	var st RawStyle
	if f, ok := m["stroke_width"].(float64); ok {
		st.StrokeWidth = &f
	}
	if b, ok := m["smooth"].(bool); ok {
		st.Smooth = &b
	}
	if f, ok := m["smooth_iters"].(float64); ok {
		st.SmoothIters = &f
	}
	if f, ok := m["fill_alpha"].(float64); ok {
		st.FillAlpha = &f
	}
	return st
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// number coerces JSON numbers and numeric strings. Anything else, including
// NaN and infinities, yields nil.
func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
