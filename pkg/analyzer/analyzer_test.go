package analyzer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if analyzer.config.MinImageSize != 1 {
		t.Errorf("Expected default min size 1, got %d", analyzer.config.MinImageSize)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
		MaxPixels:        1000,
	}

	analyzer := NewWithConfig(cfg)
	if analyzer == nil {
		t.Fatal("NewWithConfig() returned nil")
	}

	if analyzer.config.MinImageSize != 200 {
		t.Errorf("Expected min size 200, got %d", analyzer.config.MinImageSize)
	}

	if analyzer.config.MaxPixels != 1000 {
		t.Errorf("Expected max pixels 1000, got %d", analyzer.config.MaxPixels)
	}
}

func TestDecode(t *testing.T) {
	analyzer := New()

	img, info, err := analyzer.Decode(encodePNG(t, createTestImage(400, 300)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img == nil {
		t.Fatal("Decode returned nil image")
	}
	if info.Format != "png" {
		t.Errorf("Expected format png, got %s", info.Format)
	}
	if info.Width != 400 || info.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", info.Width, info.Height)
	}
}

func TestDecodeRejects(t *testing.T) {
	analyzer := NewWithConfig(Config{
		SupportedFormats: []string{"png", "jpg"},
		MinImageSize:     10,
		MaxPixels:        100 * 100,
	})

	var gifBuf bytes.Buffer
	if err := gif.Encode(&gifBuf, createTestImage(20, 20), nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not an image")},
		{"unsupported format", gifBuf.Bytes()},
		{"too small", encodePNG(t, createTestImage(5, 50))},
		{"too large", encodePNG(t, createTestImage(200, 100))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := analyzer.Decode(tt.data); !errors.Is(err, ErrInvalidImage) {
				t.Errorf("Expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

func TestDecodeJPEGAlias(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"jpg"}, MinImageSize: 1})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(40, 40), nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	if _, info, err := analyzer.Decode(buf.Bytes()); err != nil {
		t.Errorf("Expected jpg to accept jpeg uploads: %v", err)
	} else if info.Format != "jpeg" {
		t.Errorf("Expected format jpeg, got %s", info.Format)
	}
}

func TestLoadImageFromReader(t *testing.T) {
	analyzer := New()
	_, info, err := analyzer.LoadImageFromReader(bytes.NewReader(encodePNG(t, createTestImage(64, 32))))
	if err != nil {
		t.Fatalf("LoadImageFromReader failed: %v", err)
	}
	if info.Area != 64*32 {
		t.Errorf("Expected area %d, got %d", 64*32, info.Area)
	}
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestValidateImage(t *testing.T) {
	analyzer := NewWithConfig(Config{MinImageSize: 100})

	// Valid image
	validImg := createTestImage(200, 200)
	if err := analyzer.ValidateImage(validImg); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	// Invalid image (too small)
	invalidImg := createTestImage(50, 50)
	if err := analyzer.ValidateImage(invalidImg); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Small image should fail validation with ErrInvalidImage, got %v", err)
	}
}

func TestIsFormatSupported(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"jpg", "jpeg", "png"}})

	supportedFormats := []string{"jpg", "jpeg", "png", "JPG", "JPEG", "PNG"}
	for _, format := range supportedFormats {
		if !analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should be supported", format)
		}
	}

	unsupportedFormats := []string{"gif", "bmp", "tiff"}
	for _, format := range unsupportedFormats {
		if analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should not be supported", format)
		}
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}

func BenchmarkValidateImage(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.ValidateImage(img)
	}
}
