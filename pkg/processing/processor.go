package processing

import (
	"fmt"
	"image"

	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/normalize"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/spec"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/validation"
)

// Config is the complete pipeline configuration
type Config struct {
	Policy     spec.Policy
	Normalize  normalize.Config
	Validation validation.Config
	Render     render.Config
}

// DefaultConfig returns the pipeline defaults: strict geometry thresholds,
// permissive parsing and the default-rectangle fallback
func DefaultConfig() Config {
	return Config{
		Policy:     spec.Permissive,
		Normalize:  normalize.DefaultConfig(),
		Validation: validation.DefaultConfig(),
		Render:     render.DefaultConfig(),
	}
}

// Report describes what the pipeline did with a spec
type Report struct {
	Shapes        int
	DroppedShapes int
	SkippedPoints int
	Rejections    []validation.Rejection
	Fallback      validation.FallbackKind
	Caption       string
}

// Result is a rendered image with its report
type Result struct {
	Image  *image.NRGBA
	Report Report
}

// Processor runs the annotation pipeline. It is safe for concurrent use;
// the only shared state is the compositor's font cache.
type Processor struct {
	config     Config
	normalizer *normalize.Normalizer
	validator  *validation.Validator
	selector   *validation.Selector
	compositor *render.Compositor
}

// NewProcessor creates a processor with the default configuration
func NewProcessor() *Processor {
	return NewProcessorWithConfig(DefaultConfig())
}

// NewProcessorWithConfig creates a processor. The top-level policy is
// applied to every stage.
func NewProcessorWithConfig(config Config) *Processor {
	config.Normalize.Policy = config.Policy
	config.Validation.Policy = config.Policy
	return &Processor{
		config:     config,
		normalizer: normalize.New(config.Normalize),
		validator:  validation.NewValidator(config.Validation),
		selector:   validation.NewSelector(config.Validation),
		compositor: render.NewCompositor(config.Render),
	}
}

// Config returns the effective configuration
func (p *Processor) Config() Config {
	return p.config
}

// Fonts exposes the font cache used for labels
func (p *Processor) Fonts() *render.FontCache {
	return p.compositor.Fonts()
}

// Render parses specText and draws it over img
func (p *Processor) Render(img image.Image, specText string) (*Result, error) {
	res, err := spec.Parse(specText, p.config.Policy)
	if err != nil {
		return nil, err
	}
	return p.RenderDocument(img, res)
}

// RenderDocument draws an already parsed spec over img
func (p *Processor) RenderDocument(img image.Image, res spec.Result) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("image is nil")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("image has no pixels: %dx%d", w, h)
	}

	normalized, err := p.normalizer.Normalize(res)
	if err != nil {
		return nil, err
	}

	outcome, err := p.validator.Validate(normalized.Shapes, w, h)
	if err != nil {
		return nil, err
	}
	selection := p.selector.Select(outcome, w, h)

	style := normalized.Style
	shapes := make([]types.PixelShape, len(selection.Shapes))
	for i, s := range selection.Shapes {
		if style.Smooth && !s.Box && s.Mapped >= 4 {
			s.Points = geometry.Smooth(s.Points, style.SmoothIters, s.Closed)
		}
		shapes[i] = s
	}

	out := p.compositor.Compose(img, shapes, style, normalized.Caption)
	return &Result{
		Image: out,
		Report: Report{
			Shapes:        len(shapes),
			DroppedShapes: normalized.DroppedShapes,
			SkippedPoints: outcome.SkippedPoints,
			Rejections:    outcome.Rejections,
			Fallback:      selection.Kind,
			Caption:       normalized.Caption,
		},
	}, nil
}
