// Package render draws pixel-space shapes onto an image in three layers:
// translucent polygon fill, stroke, and labels.
package render

import (
	"image"
	"image/color"
	"math"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype/raster"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Config holds drawing parameters that do not vary per request
type Config struct {
	FontPath       string
	FontSize       float64
	LabelPadding   int
	MaxLabelLen    int
	CaptionMaxLen  int
	StrokeColor    color.NRGBA
	LabelTextColor color.NRGBA
}

// DefaultConfig returns the service's drawing defaults
func DefaultConfig() Config {
	return Config{
		FontSize:       16,
		LabelPadding:   4,
		MaxLabelLen:    40,
		CaptionMaxLen:  120,
		StrokeColor:    color.NRGBA{0xE5, 0x39, 0x35, 0xFF},
		LabelTextColor: color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF},
	}
}

// Compositor renders annotation layers onto source images
type Compositor struct {
	config Config
	fonts  *FontCache
}

// NewCompositor creates a Compositor with its own font cache
func NewCompositor(config Config) *Compositor {
	return &Compositor{config: config, fonts: NewFontCache(config.FontPath, config.FontSize)}
}

// Fonts exposes the compositor's font cache
func (c *Compositor) Fonts() *FontCache {
	return c.fonts
}

// Compose draws shapes and the optional caption over a copy of src. Layers
// are built separately and composited fill, then stroke, then labels.
func (c *Compositor) Compose(src image.Image, shapes []types.PixelShape, style types.Style, caption string) *image.NRGBA {
	out := imaging.Clone(src)
	b := out.Bounds()
	w, h := b.Dx(), b.Dy()

	fill := image.NewRGBA(b)
	stroke := image.NewRGBA(b)
	labels := image.NewRGBA(b)

	fillColor := c.config.StrokeColor
	fillColor.A = uint8(style.FillAlpha)

	for _, s := range shapes {
		if s.Kind == types.Polygon && len(s.Points) >= 3 {
			fillPolygon(fill, s.Points, fillColor)
		}
		strokePath(stroke, s.Points, s.Closed, style.StrokeWidth, c.config.StrokeColor)
	}

	face := c.fonts.NewFace()
	defer face.Close()

	placer := NewLabelPlacer(w, h)
	for _, s := range shapes {
		if s.Label == "" || len(s.Points) == 0 {
			continue
		}
		text := truncate(s.Label, c.config.MaxLabelLen)
		size := c.labelSize(face, text)
		box := placer.Place(geometry.Bounds(s.Points), size)
		c.drawLabel(labels, face, box, text)
	}

	if caption != "" {
		text := c.fitCaption(face, truncate(caption, c.config.CaptionMaxLen), w)
		box := placer.PlaceCorner(c.labelSize(face, text))
		c.drawLabel(labels, face, box, text)
	}

	for _, layer := range []*image.RGBA{fill, stroke, labels} {
		draw.Draw(out, b, layer, b.Min, draw.Over)
	}
	return out
}

// fillPolygon rasterizes a closed ring with the nonzero rule
func fillPolygon(dst *image.RGBA, pts []image.Point, c color.NRGBA) {
	b := dst.Bounds()
	r := raster.NewRasterizer(b.Dx(), b.Dy())
	r.UseNonZeroWinding = true
	r.AddPath(toPath(pts, true))
	painter := raster.NewRGBAPainter(dst)
	painter.SetColor(c)
	r.Rasterize(painter)
}

// strokePath draws a butt-capped, bevel-joined line and stamps a disc of the
// same width at every vertex, which reads as round joins and caps.
func strokePath(dst *image.RGBA, pts []image.Point, closed bool, width int, c color.NRGBA) {
	if len(pts) == 0 {
		return
	}
	b := dst.Bounds()
	r := raster.NewRasterizer(b.Dx(), b.Dy())
	r.UseNonZeroWinding = true

	if len(pts) >= 2 {
		r.AddStroke(toPath(pts, closed), fixed.I(width), raster.ButtCapper, raster.BevelJoiner)
	}
	radius := float64(width) / 2
	for _, p := range pts {
		r.AddPath(discPath(p, radius))
	}

	painter := raster.NewRGBAPainter(dst)
	painter.SetColor(c)
	r.Rasterize(painter)
}

// toPath converts pixel points to a raster path, dropping repeated points
// that would produce zero-length segments
func toPath(pts []image.Point, closed bool) raster.Path {
	var path raster.Path
	prev := pts[0]
	path.Start(center(prev))
	for _, p := range pts[1:] {
		if p == prev {
			continue
		}
		path.Add1(center(p))
		prev = p
	}
	if closed && prev != pts[0] {
		path.Add1(center(pts[0]))
	}
	return path
}

func discPath(p image.Point, radius float64) raster.Path {
	const segments = 24
	cx, cy := float64(p.X)+0.5, float64(p.Y)+0.5
	var path raster.Path
	for i := 0; i <= segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		pt := fixed.Point26_6{
			X: fixed.Int26_6((cx + radius*math.Cos(a)) * 64),
			Y: fixed.Int26_6((cy + radius*math.Sin(a)) * 64),
		}
		if i == 0 {
			path.Start(pt)
		} else {
			path.Add1(pt)
		}
	}
	return path
}

// center maps a pixel to its center in 26.6 fixed point
func center(p image.Point) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.I(p.X) + 32, Y: fixed.I(p.Y) + 32}
}

func (c *Compositor) labelSize(face font.Face, text string) image.Point {
	m := face.Metrics()
	pad := c.config.LabelPadding
	return image.Pt(
		font.MeasureString(face, text).Ceil()+2*pad,
		m.Ascent.Ceil()+m.Descent.Ceil()+2*pad,
	)
}

func (c *Compositor) drawLabel(dst *image.RGBA, face font.Face, box image.Rectangle, text string) {
	bg := c.config.StrokeColor
	bg.A = 0xFF
	draw.Draw(dst, box, image.NewUniform(bg), image.Point{}, draw.Src)

	pad := c.config.LabelPadding
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c.config.LabelTextColor),
		Face: face,
		Dot:  fixed.P(box.Min.X+pad, box.Min.Y+pad+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

// fitCaption drops trailing runes until the caption box fits the width
func (c *Compositor) fitCaption(face font.Face, text string, width int) string {
	avail := width - 2*c.config.LabelPadding
	for utf8.RuneCountInString(text) > 1 && font.MeasureString(face, text).Ceil() > avail {
		runes := []rune(text)
		text = string(runes[:len(runes)-1])
	}
	return text
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
