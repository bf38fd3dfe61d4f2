// Package imageannotator draws structured annotations onto images.
//
// A JSON spec describes what to draw. Three shapes of spec are accepted:
//
//	{"polylines": [{"type": "polygon", "label": "Crack", "points": [{"x": 0.2, "y": 0.3}, ...]}]}
//	{"type": "polyline", "label": "Scratch", "points": [...]}
//	{"problem": "Water stain on the ceiling", "annotations": [{"x": 10, "y": 20, "w": 30, "h": 15}]}
//
// Coordinates are normalized ("norm", the default), percentages ("pct") or
// pixels ("px"). Shapes are validated against the image, smoothed and drawn
// as translucent fills, thick strokes and labels. When nothing usable is
// left, the most central candidate or a default rectangle is drawn instead,
// so a well-formed image always yields an annotated image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		imageannotator "github.com/menta2k/image-annotator"
//	)
//
//	func main() {
//		annotator := imageannotator.New()
//
//		img, err := annotator.LoadImage("kitchen.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := annotator.Annotate(img, `{"problem": "Leak under the sink"}`)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := annotator.SaveImage(result.Image, "kitchen_annotated.png"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Spec (pkg/spec): tolerant parsing of the JSON spec into a document
//  2. Normalize (pkg/normalize): shape caps, defaults and label cleanup
//  3. Validation (pkg/validation): pixel mapping, point and area rules, fallback
//  4. Render (pkg/render): fills, strokes, labels and caption
//  5. Processing (pkg/processing): the pipeline plus image codecs
//
// A vision model can optionally turn a free-text problem into a box; see
// pkg/detection.
package imageannotator

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/menta2k/image-annotator/pkg/analyzer"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/spec"
)

// Version of the image annotator library
const Version = "1.0.0"

// DefaultQuality is used when saving lossy formats
const DefaultQuality = 92

// ImageAnnotator provides a high-level interface over decoding and the
// annotation pipeline. It is safe for concurrent use.
type ImageAnnotator struct {
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
}

// New creates a new ImageAnnotator with default configuration
func New() *ImageAnnotator {
	return &ImageAnnotator{
		analyzer:  analyzer.New(),
		processor: processing.NewProcessor(),
	}
}

// NewWithConfig creates a new ImageAnnotator with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, processingConfig processing.Config) *ImageAnnotator {
	return &ImageAnnotator{
		analyzer:  analyzer.NewWithConfig(analyzerConfig),
		processor: processing.NewProcessorWithConfig(processingConfig),
	}
}

// AnnotationResult is an annotated image with its input's description and
// a report of what was drawn
type AnnotationResult struct {
	Info   analyzer.ImageInfo `json:"info"`
	Image  *image.NRGBA       `json:"-"`
	Report processing.Report  `json:"report"`
}

// Processor exposes the underlying pipeline
func (ia *ImageAnnotator) Processor() *processing.Processor {
	return ia.processor
}

// LoadImage loads an image from a file path or an http(s) URL
func (ia *ImageAnnotator) LoadImage(source string) (image.Image, error) {
	img, err := ia.processor.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	if err := ia.analyzer.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// LoadImageFromReader loads an image from an io.Reader
func (ia *ImageAnnotator) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, _, err := ia.analyzer.LoadImageFromReader(reader)
	return img, err
}

// SaveImage saves an image in the format implied by the path's extension
func (ia *ImageAnnotator) SaveImage(img image.Image, path string) error {
	return ia.processor.SaveImage(img, path, DefaultQuality, false)
}

// Annotate draws specText over img
func (ia *ImageAnnotator) Annotate(img image.Image, specText string) (AnnotationResult, error) {
	parsed, err := spec.Parse(specText, ia.processor.Config().Policy)
	if err != nil {
		return AnnotationResult{}, err
	}
	return ia.AnnotateDocument(img, parsed)
}

// AnnotateDocument draws an already parsed spec over img
func (ia *ImageAnnotator) AnnotateDocument(img image.Image, doc spec.Result) (AnnotationResult, error) {
	res, err := ia.processor.RenderDocument(img, doc)
	if err != nil {
		return AnnotationResult{}, err
	}
	return AnnotationResult{
		Info:   ia.analyzer.GetImageInfo(img),
		Image:  res.Image,
		Report: res.Report,
	}, nil
}

// AnnotateBytes decodes an encoded image, draws specText over it and returns
// the result as PNG
func (ia *ImageAnnotator) AnnotateBytes(data []byte, specText string) ([]byte, processing.Report, error) {
	img, _, err := ia.analyzer.Decode(data)
	if err != nil {
		return nil, processing.Report{}, err
	}

	res, err := ia.Annotate(img, specText)
	if err != nil {
		return nil, processing.Report{}, err
	}

	var buf bytes.Buffer
	if err := processing.EncodePNG(&buf, res.Image); err != nil {
		return nil, processing.Report{}, fmt.Errorf("failed to encode output: %w", err)
	}
	return buf.Bytes(), res.Report, nil
}

// AnnotateFile is a convenience function that loads, annotates and saves an image
func (ia *ImageAnnotator) AnnotateFile(inputPath, specText, outputPath string) (AnnotationResult, error) {
	img, err := ia.LoadImage(inputPath)
	if err != nil {
		return AnnotationResult{}, fmt.Errorf("failed to load image: %w", err)
	}

	res, err := ia.Annotate(img, specText)
	if err != nil {
		return AnnotationResult{}, fmt.Errorf("annotation failed: %w", err)
	}

	if err := ia.SaveImage(res.Image, outputPath); err != nil {
		return AnnotationResult{}, fmt.Errorf("failed to save %s: %w", outputPath, err)
	}
	return res, nil
}

// GetImageInfo returns basic information about an image
func (ia *ImageAnnotator) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return ia.analyzer.GetImageInfo(img)
}

// ValidateImage checks if an image meets requirements
func (ia *ImageAnnotator) ValidateImage(img image.Image) error {
	return ia.analyzer.ValidateImage(img)
}

var defaultAnnotator = sync.OnceValue(New)

// Render draws specText over img with the default configuration. It never
// fails for a usable image: malformed specs fall back to a default overlay.
func Render(img image.Image, specText string) (*image.NRGBA, error) {
	res, err := defaultAnnotator().Annotate(img, specText)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
