package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/llamacpp"
	"github.com/menta2k/image-annotator/pkg/ollama"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/spec"
)

// Locator turns a free-text problem into a box by asking a vision model
type Locator struct {
	Detector    *detection.Detector
	Model       string
	Timeout     time.Duration
	SendSize    int
	SendQuality int
}

// NewVisionClient creates the client for the configured backend. The API key
// is only sent by the OpenAI-compatible backends.
func NewVisionClient(backend, url, apiKey string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp", "openai":
		c, err := llamacpp.NewClientWithKey(url, apiKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", backend)
	}
}

// NewLocator returns nil when the locator is disabled
func NewLocator(cfg config.LocatorConfig) (*Locator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	vc, err := NewVisionClient(cfg.Backend, cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return NewLocatorWithClient(vc, cfg), nil
}

// NewLocatorWithClient builds a locator around an existing client
func NewLocatorWithClient(vc client.VisionClient, cfg config.LocatorConfig) *Locator {
	d := detection.NewDetector(vc)
	d.SetMinConfidence(cfg.MinConfidence)
	return &Locator{
		Detector:    d,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		SendSize:    cfg.SendSize,
		SendQuality: cfg.SendQuality,
	}
}

// Annotate adds a located box to a free-text document that has a problem but
// no boxes. Any failure leaves the document unchanged.
func (l *Locator) Annotate(ctx context.Context, p *processing.Processor, img image.Image, res spec.Result, log *logrus.Entry) spec.Result {
	ft, ok := res.Doc.(spec.FreeText)
	if !ok || len(ft.Annotations) > 0 || strings.TrimSpace(ft.Problem) == "" {
		return res
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	b64, err := p.PrepareImageForModel(img, "jpg", l.SendSize, l.SendQuality)
	if err != nil {
		log.WithError(err).Warn("failed to prepare image for locator")
		return res
	}

	located, err := l.Detector.LocateDefect(ctx, l.Model, b64, ft.Problem)
	if err != nil {
		if errors.Is(err, detection.ErrNoDefect) {
			log.WithError(err).Info("locator found nothing")
		} else {
			log.WithError(err).Warn("locator failed")
		}
		return res
	}

	log.WithFields(logrus.Fields{
		"label":      located.Primary.Label,
		"confidence": located.Primary.Confidence,
	}).Debug("locator found defect")

	ft.Annotations = []spec.RawBox{detection.ToAnnotation(located)}
	res.Doc = ft
	return res
}
