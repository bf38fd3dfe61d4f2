package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/logger"
	"github.com/menta2k/image-annotator/pkg/types"
)

const polygonSpec = `{"polylines": [{"type": "polygon", "label": "Crack", "points": [
	{"x": 0.2, "y": 0.2}, {"x": 0.4, "y": 0.2}, {"x": 0.5, "y": 0.3},
	{"x": 0.4, "y": 0.4}, {"x": 0.2, "y": 0.4}, {"x": 0.1, "y": 0.3}]}]}`

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitWithOutput("error", "text", io.Discard)
	os.Exit(m.Run())
}

type fakeVision struct {
	result *types.LocateResult
	err    error
	calls  int
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "an image", f.err
}

func (f *fakeVision) Locate(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error) {
	f.calls++
	return f.result, f.err
}

func createTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with an optional image file and spec field
func multipartBody(t *testing.T, imageData []byte, specText *string, specAsFile bool) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if imageData != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(imageData)
	}
	if specText != nil {
		if specAsFile {
			fw, err := mw.CreateFormFile("spec", "spec.json")
			if err != nil {
				t.Fatal(err)
			}
			fw.Write([]byte(*specText))
		} else {
			mw.WriteField("spec", *specText)
		}
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func newTestServer(t *testing.T, modify func(*config.Config), opts ...Option) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	if modify != nil {
		modify(cfg)
	}
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s.Router()
}

func postRender(router *gin.Engine, body *bytes.Buffer, contentType string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/render", body)
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected JSON error body, got %q", rec.Body.String())
	}
	return resp
}

func TestHealth(t *testing.T) {
	router := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestIndex(t *testing.T) {
	router := newTestServer(t, nil, WithVersion("1.2.3"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON, got %q", rec.Body.String())
	}
	if body["version"] != "1.2.3" || body["policy"] != "permissive" {
		t.Errorf("Unexpected index body %v", body)
	}
}

func TestRenderPolygon(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, createTestPNG(t, 400, 300), strPtr(polygonSpec), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if rec.Header().Get(HeaderShapes) != "1" {
		t.Errorf("Expected 1 shape, got %q", rec.Header().Get(HeaderShapes))
	}
	if rec.Header().Get(HeaderFallback) != "none" {
		t.Errorf("Expected no fallback, got %q", rec.Header().Get(HeaderFallback))
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("Expected a generated request id")
	}

	out, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Response is not a PNG: %v", err)
	}
	if out.Bounds().Dx() != 400 || out.Bounds().Dy() != 300 {
		t.Errorf("Expected 400x300 output, got %v", out.Bounds())
	}
}

func TestRenderSpecAsFile(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, createTestPNG(t, 400, 300), strPtr(polygonSpec), true)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(HeaderFallback) != "none" {
		t.Errorf("Expected no fallback, got %q", rec.Header().Get(HeaderFallback))
	}
}

func TestRenderMissingSpecUsesDefault(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, createTestPNG(t, 200, 200), nil, false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderFallback) != "default" {
		t.Errorf("Expected default fallback, got %q", rec.Header().Get(HeaderFallback))
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, createTestPNG(t, 50, 50), strPtr("{}"), false)
	rec := postRender(router, body, ct, map[string]string{HeaderRequestID: "abc-123"})

	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("Expected echoed request id, got %q", got)
	}
}

func TestRenderInvalidImage(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, []byte("definitely not an image"), strPtr(polygonSpec), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_image" {
		t.Errorf("Expected invalid_image, got %q", resp.Error)
	}
}

func TestRenderMissingImage(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, nil, strPtr(polygonSpec), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_request" {
		t.Errorf("Expected invalid_request, got %q", resp.Error)
	}
}

func TestRenderTooLarge(t *testing.T) {
	router := newTestServer(t, func(c *config.Config) { c.Server.MaxUploadBytes = 1024 })
	body, ct := multipartBody(t, createTestPNG(t, 300, 300), strPtr(polygonSpec), false)
	if body.Len() <= 1024 {
		body.Write(bytes.Repeat([]byte{' '}, 2048))
	}
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", rec.Code)
	}
}

func TestStrictPolicyRejectsBadSpec(t *testing.T) {
	router := newTestServer(t, func(c *config.Config) { c.Pipeline.ErrorPolicy = "strict" })
	body, ct := multipartBody(t, createTestPNG(t, 100, 100), strPtr("not json"), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_spec" {
		t.Errorf("Expected invalid_spec, got %q", resp.Error)
	}
}

func TestStrictPolicyRejectsShortPolygon(t *testing.T) {
	router := newTestServer(t, func(c *config.Config) { c.Pipeline.ErrorPolicy = "strict" })
	short := `{"polylines": [{"type": "polygon", "points": [{"x": 0.1, "y": 0.1}, {"x": 0.2, "y": 0.1}, {"x": 0.2, "y": 0.2}]}]}`
	body, ct := multipartBody(t, createTestPNG(t, 100, 100), strPtr(short), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestPermissivePolicyAcceptsBadSpec(t *testing.T) {
	router := newTestServer(t, nil)
	body, ct := multipartBody(t, createTestPNG(t, 100, 100), strPtr("not json"), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderFallback) != "default" {
		t.Errorf("Expected default fallback, got %q", rec.Header().Get(HeaderFallback))
	}
}

func TestLocatorAddsBox(t *testing.T) {
	fake := &fakeVision{result: &types.LocateResult{
		Primary: types.Primary{Label: "leak", Confidence: 0.9, Box: types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}},
	}}
	lc := config.Default().Locator
	lc.Model = "test-model"
	router := newTestServer(t, nil, WithLocator(NewLocatorWithClient(fake, lc)))

	body, ct := multipartBody(t, createTestPNG(t, 400, 300), strPtr(`{"problem": "water leak under the sink"}`), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if fake.calls != 1 {
		t.Errorf("Expected one locator call, got %d", fake.calls)
	}
	if rec.Header().Get(HeaderFallback) != "none" {
		t.Errorf("Expected located box to be drawn, got fallback %q", rec.Header().Get(HeaderFallback))
	}
}

func TestLocatorFailureFallsBack(t *testing.T) {
	fake := &fakeVision{err: errors.New("model offline")}
	router := newTestServer(t, nil, WithLocator(NewLocatorWithClient(fake, config.Default().Locator)))

	body, ct := multipartBody(t, createTestPNG(t, 400, 300), strPtr(`{"problem": "water leak"}`), false)
	rec := postRender(router, body, ct, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderFallback) != "default" {
		t.Errorf("Expected default fallback, got %q", rec.Header().Get(HeaderFallback))
	}
}

func TestLocatorSkipsShapeSpecs(t *testing.T) {
	fake := &fakeVision{}
	router := newTestServer(t, nil, WithLocator(NewLocatorWithClient(fake, config.Default().Locator)))

	body, ct := multipartBody(t, createTestPNG(t, 400, 300), strPtr(polygonSpec), false)
	postRender(router, body, ct, nil)

	if fake.calls != 0 {
		t.Errorf("Locator should not run for shape specs, got %d calls", fake.calls)
	}
}

func TestNewVisionClient(t *testing.T) {
	if _, err := NewVisionClient("ollama", "http://localhost:11434", ""); err != nil {
		t.Errorf("Expected ollama client, got %v", err)
	}
	if _, err := NewVisionClient("llamacpp", "", ""); err != nil {
		t.Errorf("Expected llamacpp client, got %v", err)
	}
	if _, err := NewVisionClient("openai", "https://api.example.com/v1", "sk-test"); err != nil {
		t.Errorf("Expected openai client, got %v", err)
	}
	if _, err := NewVisionClient("other", "", ""); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestNewLocatorDisabled(t *testing.T) {
	l, err := NewLocator(config.Default().Locator)
	if err != nil || l != nil {
		t.Errorf("Expected nil locator when disabled, got %v, %v", l, err)
	}
}
