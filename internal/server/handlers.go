package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/spec"
)

// errorResponse is the JSON body of every non-image reply
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Index describes the service
func (s *Server) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "image-annotator",
		"version": s.version,
		"policy":  s.processor.Config().Policy.String(),
		"locator": s.locator != nil,
		"routes":  []string{"GET /health", "POST /render"},
	})
}

// Render draws the multipart "spec" field over the multipart "image" file and
// replies with a PNG
func (s *Server) Render(c *gin.Context) {
	log := requestLog(c)
	limit := s.cfg.Server.MaxUploadBytes

	if c.Request.ContentLength > limit {
		abort(c, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Sprintf("request body exceeds %d bytes", limit))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	data, err := readImagePart(c)
	if err != nil {
		if tooLarge(err) {
			abort(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("request body exceeds %d bytes", limit))
			return
		}
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	img, info, err := s.analyzer.Decode(data)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	specText, err := readSpecPart(c)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	parsed, err := spec.Parse(specText, s.processor.Config().Policy)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_spec", err.Error())
		return
	}

	if s.locator != nil {
		parsed = s.locator.Annotate(c.Request.Context(), s.processor, img, parsed, log)
	}

	result, err := s.processor.RenderDocument(img, parsed)
	if err != nil {
		if errors.Is(err, spec.ErrBadRequest) {
			abort(c, http.StatusBadRequest, "invalid_spec", err.Error())
			return
		}
		log.WithError(err).Error("render failed")
		abort(c, http.StatusInternalServerError, "render_failed", "failed to render annotations")
		return
	}

	var buf bytes.Buffer
	if err := processing.EncodePNG(&buf, result.Image); err != nil {
		log.WithError(err).Error("png encoding failed")
		abort(c, http.StatusInternalServerError, "encode_failed", "failed to encode output image")
		return
	}

	logReport(log, info.Format, info.Width, info.Height, result.Report)

	c.Header(HeaderShapes, strconv.Itoa(result.Report.Shapes))
	c.Header(HeaderFallback, string(result.Report.Fallback))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func readImagePart(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		if tooLarge(err) {
			return nil, err
		}
		return nil, fmt.Errorf("missing image file: %w", err)
	}
	return readFileHeader(fh)
}

// readSpecPart accepts the spec as a plain form field or as an uploaded file.
// A missing spec is an empty one.
func readSpecPart(c *gin.Context) (string, error) {
	if v, ok := c.GetPostForm("spec"); ok {
		return v, nil
	}
	fh, err := c.FormFile("spec")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	data, err := readFileHeader(fh)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: message})
}

func logReport(log *logrus.Entry, format string, w, h int, r processing.Report) {
	entry := log.WithFields(logrus.Fields{
		"format":         format,
		"width":          w,
		"height":         h,
		"shapes":         r.Shapes,
		"dropped_shapes": r.DroppedShapes,
		"skipped_points": r.SkippedPoints,
		"fallback":       r.Fallback,
	})
	for _, rej := range r.Rejections {
		log.WithFields(logrus.Fields{
			"index":  rej.Index,
			"label":  rej.Label,
			"reason": rej.Reason,
		}).Debug("shape rejected")
	}
	entry.Info("annotations rendered")
}
