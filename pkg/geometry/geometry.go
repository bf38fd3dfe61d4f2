// Package geometry holds the pixel-space math of the annotation pipeline:
// unit conversion, ring closure, bounding boxes, shoelace area and Chaikin
// smoothing.
package geometry

import (
	"image"

	"github.com/menta2k/image-annotator/pkg/types"
)

// MaxSmoothIters bounds the number of Chaikin iterations
const MaxSmoothIters = 6

// MapPoints converts raw points in the given unit to pixel coordinates of a
// w×h image. Points with a missing component are skipped and counted.
// Every resulting coordinate is clamped to [0, dim-1].
func MapPoints(points []types.RawPoint, unit types.Unit, w, h int) ([]image.Point, int) {
	out := make([]image.Point, 0, len(points))
	skipped := 0
	for _, p := range points {
		if p.X == nil || p.Y == nil {
			skipped++
			continue
		}
		out = append(out, image.Point{
			X: mapComponent(*p.X, unit, w),
			Y: mapComponent(*p.Y, unit, h),
		})
	}
	return out, skipped
}

func mapComponent(v float64, unit types.Unit, dim int) int {
	var px float64
	switch unit {
	case types.Percent:
		px = v / 100 * float64(dim)
	case types.Pixel:
		px = v
	default:
		px = clampFloat(v, 0, 1) * float64(dim)
	}
	return clampInt(truncate(px), 0, dim-1)
}

// truncate converts toward zero without overflowing on absurd inputs
func truncate(v float64) int {
	const limit = 1 << 30
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return int(v)
}

// Close returns pts with the first point appended when the ring is open.
// The input slice is never modified.
func Close(pts []image.Point) []image.Point {
	if len(pts) == 0 || pts[0] == pts[len(pts)-1] {
		return pts
	}
	out := make([]image.Point, len(pts), len(pts)+1)
	copy(out, pts)
	return append(out, pts[0])
}

// Area computes the polygon area with the shoelace formula over the closed
// ring. Cross products are accumulated in int64.
func Area(pts []image.Point) int64 {
	ring := Close(pts)
	if len(ring) < 4 {
		return 0
	}
	var sum int64
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		sum += int64(a.X)*int64(b.Y) - int64(b.X)*int64(a.Y)
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

// Bounds returns the bounding rectangle of pts. Max is inclusive of the
// extreme points plus one, matching image.Rectangle semantics.
func Bounds(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// Smooth applies Chaikin corner cutting. New points are integer-truncated.
// Open sequences keep their original endpoints; closed sequences are closed
// before the first iteration and again after each one.
func Smooth(pts []image.Point, iters int, closed bool) []image.Point {
	if iters > MaxSmoothIters {
		iters = MaxSmoothIters
	}
	if iters <= 0 || len(pts) < 3 {
		return pts
	}

	cur := pts
	if closed {
		cur = Close(pts)
	}
	for i := 0; i < iters; i++ {
		next := make([]image.Point, 0, 2*len(cur)+2)
		if !closed {
			next = append(next, cur[0])
		}
		for j := 0; j < len(cur)-1; j++ {
			p0, p1 := cur[j], cur[j+1]
			next = append(next, cut(p0, p1, 0.75), cut(p0, p1, 0.25))
		}
		if closed {
			next = Close(next)
		} else {
			next = append(next, cur[len(cur)-1])
		}
		cur = next
	}
	return cur
}

// cut returns w·p0 + (1-w)·p1 truncated to integers
func cut(p0, p1 image.Point, w float64) image.Point {
	return image.Point{
		X: int(w*float64(p0.X) + (1-w)*float64(p1.X)),
		Y: int(w*float64(p0.Y) + (1-w)*float64(p1.Y)),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
