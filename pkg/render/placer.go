package render

import "image"

// LabelPlacer positions label boxes for one render. It remembers what it
// has placed so later labels can avoid earlier ones.
type LabelPlacer struct {
	bounds image.Rectangle
	placed []image.Rectangle
}

// NewLabelPlacer creates a placer for an image of the given size
func NewLabelPlacer(w, h int) *LabelPlacer {
	return &LabelPlacer{bounds: image.Rect(0, 0, w, h)}
}

// Place returns the rectangle for a label of the given size attached to a
// shape's bounding box. The preferred slot is directly above the box's
// top-left corner, or directly below when above would leave the image.
// A slot that overlaps an earlier label is swapped for the other one when
// that one is free. The result is always clamped inside the image.
func (lp *LabelPlacer) Place(anchor image.Rectangle, size image.Point) image.Rectangle {
	above := image.Rectangle{Min: image.Pt(anchor.Min.X, anchor.Min.Y-size.Y), Max: image.Pt(anchor.Min.X+size.X, anchor.Min.Y)}
	below := image.Rectangle{Min: image.Pt(anchor.Min.X, anchor.Max.Y), Max: image.Pt(anchor.Min.X+size.X, anchor.Max.Y+size.Y)}

	slot, other := above, below
	if above.Min.Y < 0 {
		slot, other = below, above
	}
	if lp.collides(slot) && other.Min.Y >= 0 && !lp.collides(other) {
		slot = other
	}

	slot = lp.clamp(slot)
	lp.placed = append(lp.placed, slot)
	return slot
}

// PlaceCorner reserves a box in the bottom-left corner
func (lp *LabelPlacer) PlaceCorner(size image.Point) image.Rectangle {
	r := image.Rectangle{
		Min: image.Pt(lp.bounds.Min.X, lp.bounds.Max.Y-size.Y),
		Max: image.Pt(lp.bounds.Min.X+size.X, lp.bounds.Max.Y),
	}
	r = lp.clamp(r)
	lp.placed = append(lp.placed, r)
	return r
}

func (lp *LabelPlacer) collides(r image.Rectangle) bool {
	for _, p := range lp.placed {
		if r.Overlaps(p) {
			return true
		}
	}
	return false
}

func (lp *LabelPlacer) clamp(r image.Rectangle) image.Rectangle {
	dx, dy := 0, 0
	if r.Max.X > lp.bounds.Max.X {
		dx = lp.bounds.Max.X - r.Max.X
	}
	if r.Min.X+dx < lp.bounds.Min.X {
		dx = lp.bounds.Min.X - r.Min.X
	}
	if r.Max.Y > lp.bounds.Max.Y {
		dy = lp.bounds.Max.Y - r.Max.Y
	}
	if r.Min.Y+dy < lp.bounds.Min.Y {
		dy = lp.bounds.Min.Y - r.Min.Y
	}
	return r.Add(image.Pt(dx, dy))
}
