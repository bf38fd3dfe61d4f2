package render

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontCache loads the label font once and hands out per-render faces.
// The parsed font is shared read-only; faces carry glyph caches and are
// never shared between renders.
type FontCache struct {
	path string
	size float64

	once   sync.Once
	font   *opentype.Font
	source string
	err    error
}

// NewFontCache creates a cache for the TTF/OTF at path. An empty path uses
// the embedded Go Regular font.
func NewFontCache(path string, size float64) *FontCache {
	if size <= 0 {
		size = 16
	}
	return &FontCache{path: path, size: size}
}

func (fc *FontCache) load() {
	fc.once.Do(func() {
		if fc.path != "" {
			data, err := os.ReadFile(fc.path)
			if err == nil {
				var f *opentype.Font
				if f, err = opentype.Parse(data); err == nil {
					fc.font, fc.source = f, fc.path
					return
				}
			}
			fc.err = fmt.Errorf("failed to load font %s: %w", fc.path, err)
		}

		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fc.err = fmt.Errorf("failed to parse embedded font: %w", err)
			fc.source = "basicfont"
			return
		}
		fc.font, fc.source = f, "goregular"
	})
}

// Source names the font in use: the configured path, "goregular" or
// "basicfont"
func (fc *FontCache) Source() string {
	fc.load()
	return fc.source
}

// Err reports why the configured font could not be used, if it could not
func (fc *FontCache) Err() error {
	fc.load()
	return fc.err
}

// NewFace returns a fresh face. The caller must Close it.
func (fc *FontCache) NewFace() font.Face {
	fc.load()
	if fc.font == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(fc.font, &opentype.FaceOptions{
		Size:    fc.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}
