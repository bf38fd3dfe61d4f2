package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/menta2k/image-annotator/pkg/processing"
)

// ErrInvalidImage marks uploads that cannot be annotated: undecodable,
// unsupported format, or outside the size limits
var ErrInvalidImage = errors.New("invalid image")

// ImageAnalyzer decodes and vets images before they enter the pipeline
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels bounds width×height; 0 disables the check
	MaxPixels int
}

// DefaultConfig returns the accepted upload formats and limits
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
		MinImageSize:     1,
		MaxPixels:        40_000_000,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decode decodes raw upload bytes and validates the result
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, ImageInfo, error) {
	if len(data) == 0 {
		return nil, ImageInfo{}, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if err := a.checkDimensions(data); err != nil {
		return nil, ImageInfo{}, err
	}

	img, format, err := processing.DecodeImage(data)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("%w: failed to decode image: %v", ErrInvalidImage, err)
	}
	if !a.isFormatSupported(format) {
		return nil, ImageInfo{}, fmt.Errorf("%w: unsupported image format: %s", ErrInvalidImage, format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, ImageInfo{}, err
	}

	info := a.GetImageInfo(img)
	info.Format = format
	return img, info, nil
}

// LoadImage loads and validates an image file
func (a *ImageAnalyzer) LoadImage(filepath string) (image.Image, ImageInfo, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to open image file: %w", err)
	}
	return a.Decode(data)
}

// LoadImageFromReader loads and validates an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, ImageInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to read image: %w", err)
	}
	return a.Decode(data)
}

// checkDimensions rejects oversized images from their header, before the
// pixel buffer is allocated. Headers the standard decoders cannot read are
// left to the full decode.
func (a *ImageAnalyzer) checkDimensions(data []byte) error {
	if a.config.MaxPixels <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	if cfg.Width*cfg.Height > a.config.MaxPixels {
		return fmt.Errorf("%w: image too large: %dx%d (maximum: %d pixels)",
			ErrInvalidImage, cfg.Width, cfg.Height, a.config.MaxPixels)
	}
	return nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
	Format      string
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	if len(a.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) || (strings.EqualFold(supported, "jpg") && strings.EqualFold(format, "jpeg")) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets the size requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize || bounds.Empty() {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			ErrInvalidImage, bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	if a.config.MaxPixels > 0 && bounds.Dx()*bounds.Dy() > a.config.MaxPixels {
		return fmt.Errorf("%w: image too large: %dx%d (maximum: %d pixels)",
			ErrInvalidImage, bounds.Dx(), bounds.Dy(), a.config.MaxPixels)
	}
	return nil
}
