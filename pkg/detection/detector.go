package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/spec"
	"github.com/menta2k/image-annotator/pkg/types"
)

// ErrNoDefect is returned when the model could not locate the described problem
var ErrNoDefect = errors.New("no defect located")

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// LocatePrompt asks for the region matching a problem description. The
// problem text is appended after it.
const LocatePrompt = `You are an inspection assistant. Find the region of the image that shows the problem described below.

Return JSON only:
{
  "primary": {
    "label": "short name of the problem (max 4 words)",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (max 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the problem area.
- If the problem is not visible, return "label":"none" with confidence 0.0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.

Problem:`

// Detector locates described defects using a vision model
type Detector struct {
	client        client.VisionClient
	minConfidence float64
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client, minConfidence: 0.2}
}

// SetMinConfidence changes the confidence below which results are discarded
func (d *Detector) SetMinConfidence(v float64) {
	d.minConfidence = v
}

// LocateDefect asks the model where the described problem is. The returned
// box is normalized and lies inside the image.
func (d *Detector) LocateDefect(ctx context.Context, model, imageB64, problem string) (*types.LocateResult, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, fmt.Errorf("%w: empty problem description", ErrNoDefect)
	}

	result, err := d.client.Locate(ctx, model, LocatePrompt+"\n"+problem, imageB64)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(result.Primary.Label)
	if label == "" || strings.EqualFold(label, "none") {
		return nil, ErrNoDefect
	}
	if result.Primary.Confidence < d.minConfidence {
		return nil, fmt.Errorf("%w: confidence %.2f below %.2f", ErrNoDefect, result.Primary.Confidence, d.minConfidence)
	}

	result.Primary.Label = label
	result.Primary.Box = normalizeBox(result.Primary.Box)
	if result.Primary.Box.W <= 0 || result.Primary.Box.H <= 0 {
		return nil, fmt.Errorf("%w: empty box", ErrNoDefect)
	}
	return result, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// ToAnnotation converts a located defect into a legacy percent box
func ToAnnotation(r *types.LocateResult) spec.RawBox {
	pct := func(v float64) *float64 {
		v *= 100
		return &v
	}
	b := r.Primary.Box
	return spec.RawBox{
		X:    pct(b.X),
		Y:    pct(b.Y),
		W:    pct(b.W),
		H:    pct(b.H),
		Text: r.Primary.Label,
		Unit: "pct",
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside [0,1]. Boxes that look like percentages
// are scaled down first.
func normalizeBox(b types.Box) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = types.Box{X: b.X / 100, Y: b.Y / 100, W: b.W / 100, H: b.H / 100}
	}
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
