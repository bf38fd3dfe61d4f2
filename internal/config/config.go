package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/menta2k/image-annotator/pkg/analyzer"
	"github.com/menta2k/image-annotator/pkg/normalize"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/render"
	"github.com/menta2k/image-annotator/pkg/spec"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/validation"
)

// EnvPrefix prefixes every environment override, e.g. ANNOTATOR_SERVER_PORT
const EnvPrefix = "ANNOTATOR"

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Style    StyleConfig    `mapstructure:"style"`
	Render   RenderConfig   `mapstructure:"render"`
	Image    ImageConfig    `mapstructure:"image"`
	Locator  LocatorConfig  `mapstructure:"locator"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PipelineConfig holds the shape limits and the error policy
type PipelineConfig struct {
	MaxShapes         int     `mapstructure:"max_shapes"`
	MinPolygonPoints  int     `mapstructure:"min_polygon_points"`
	MinPolylinePoints int     `mapstructure:"min_polyline_points"`
	AreaCeiling       float64 `mapstructure:"area_ceiling"`
	FallbackInset     float64 `mapstructure:"fallback_inset"`
	DefaultLabel      string  `mapstructure:"default_label"`
	MaxLabelLen       int     `mapstructure:"max_label_len"`
	ErrorPolicy       string  `mapstructure:"error_policy"`
}

// StyleConfig is the style used for fields a spec leaves out
type StyleConfig struct {
	StrokeWidth int  `mapstructure:"stroke_width"`
	Smooth      bool `mapstructure:"smooth"`
	SmoothIters int  `mapstructure:"smooth_iters"`
	FillAlpha   int  `mapstructure:"fill_alpha"`
}

type RenderConfig struct {
	FontPath       string  `mapstructure:"font_path"`
	FontSize       float64 `mapstructure:"font_size"`
	LabelPadding   int     `mapstructure:"label_padding"`
	StrokeColor    string  `mapstructure:"stroke_color"`
	LabelTextColor string  `mapstructure:"label_text_color"`
	CaptionMaxLen  int     `mapstructure:"caption_max_len"`
}

type ImageConfig struct {
	MinImageSize     int      `mapstructure:"min_image_size"`
	MaxPixels        int      `mapstructure:"max_pixels"`
	SupportedFormats []string `mapstructure:"supported_formats"`
}

// LocatorConfig configures the optional vision model that finds the defect
// described by a free-text spec
type LocatorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"`
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	SendSize      int           `mapstructure:"send_size"`
	SendQuality   int           `mapstructure:"send_quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxUploadBytes:  25 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-Annotation-Shapes", "X-Annotation-Fallback"},
			MaxAge:         600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Pipeline: PipelineConfig{
			MaxShapes:         3,
			MinPolygonPoints:  6,
			MinPolylinePoints: 4,
			AreaCeiling:       0.6,
			FallbackInset:     0.15,
			DefaultLabel:      "Issue",
			MaxLabelLen:       40,
			ErrorPolicy:       "permissive",
		},
		Style: StyleConfig{
			StrokeWidth: 10,
			Smooth:      true,
			SmoothIters: 3,
			FillAlpha:   70,
		},
		Render: RenderConfig{
			FontSize:       16,
			LabelPadding:   4,
			StrokeColor:    "#e53935",
			LabelTextColor: "#ffffff",
			CaptionMaxLen:  120,
		},
		Image: ImageConfig{
			MinImageSize:     1,
			MaxPixels:        40_000_000,
			SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
		},
		Locator: LocatorConfig{
			Enabled:       false,
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "qwen2.5vl:7b",
			Timeout:       60 * time.Second,
			MinConfidence: 0.2,
			SendSize:      1024,
			SendQuality:   85,
		},
	}
}

// Load reads the YAML file at path (optional) and ANNOTATOR_* environment
// variables over the defaults, then validates the result
func Load(path string) (*Config, error) {
	v := viper.New()
	bind(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	bind(v, c)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// bind registers every key with its value in c as the default, which also
// makes each key visible to AutomaticEnv
func bind(v *viper.Viper, c *Config) {
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.mode", c.Server.Mode)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_header_bytes", c.Server.MaxHeaderBytes)
	v.SetDefault("server.max_upload_bytes", c.Server.MaxUploadBytes)

	v.SetDefault("cors.allowed_origins", c.CORS.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", c.CORS.AllowedMethods)
	v.SetDefault("cors.allowed_headers", c.CORS.AllowedHeaders)
	v.SetDefault("cors.exposed_headers", c.CORS.ExposedHeaders)
	v.SetDefault("cors.allow_credentials", c.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", c.CORS.MaxAge)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)

	v.SetDefault("pipeline.max_shapes", c.Pipeline.MaxShapes)
	v.SetDefault("pipeline.min_polygon_points", c.Pipeline.MinPolygonPoints)
	v.SetDefault("pipeline.min_polyline_points", c.Pipeline.MinPolylinePoints)
	v.SetDefault("pipeline.area_ceiling", c.Pipeline.AreaCeiling)
	v.SetDefault("pipeline.fallback_inset", c.Pipeline.FallbackInset)
	v.SetDefault("pipeline.default_label", c.Pipeline.DefaultLabel)
	v.SetDefault("pipeline.max_label_len", c.Pipeline.MaxLabelLen)
	v.SetDefault("pipeline.error_policy", c.Pipeline.ErrorPolicy)

	v.SetDefault("style.stroke_width", c.Style.StrokeWidth)
	v.SetDefault("style.smooth", c.Style.Smooth)
	v.SetDefault("style.smooth_iters", c.Style.SmoothIters)
	v.SetDefault("style.fill_alpha", c.Style.FillAlpha)

	v.SetDefault("render.font_path", c.Render.FontPath)
	v.SetDefault("render.font_size", c.Render.FontSize)
	v.SetDefault("render.label_padding", c.Render.LabelPadding)
	v.SetDefault("render.stroke_color", c.Render.StrokeColor)
	v.SetDefault("render.label_text_color", c.Render.LabelTextColor)
	v.SetDefault("render.caption_max_len", c.Render.CaptionMaxLen)

	v.SetDefault("image.min_image_size", c.Image.MinImageSize)
	v.SetDefault("image.max_pixels", c.Image.MaxPixels)
	v.SetDefault("image.supported_formats", c.Image.SupportedFormats)

	v.SetDefault("locator.enabled", c.Locator.Enabled)
	v.SetDefault("locator.backend", c.Locator.Backend)
	v.SetDefault("locator.url", c.Locator.URL)
	v.SetDefault("locator.api_key", c.Locator.APIKey)
	v.SetDefault("locator.model", c.Locator.Model)
	v.SetDefault("locator.timeout", c.Locator.Timeout)
	v.SetDefault("locator.min_confidence", c.Locator.MinConfidence)
	v.SetDefault("locator.send_size", c.Locator.SendSize)
	v.SetDefault("locator.send_quality", c.Locator.SendQuality)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if c.Pipeline.MaxShapes < 1 {
		return fmt.Errorf("pipeline.max_shapes must be positive")
	}

	if c.Pipeline.MinPolygonPoints < 3 {
		return fmt.Errorf("pipeline.min_polygon_points must be at least 3")
	}

	if c.Pipeline.MinPolylinePoints < 2 {
		return fmt.Errorf("pipeline.min_polyline_points must be at least 2")
	}

	if c.Pipeline.AreaCeiling <= 0 || c.Pipeline.AreaCeiling > 1 {
		return fmt.Errorf("pipeline.area_ceiling must be in (0, 1]")
	}

	if c.Pipeline.FallbackInset < 0 || c.Pipeline.FallbackInset >= 0.5 {
		return fmt.Errorf("pipeline.fallback_inset must be in [0, 0.5)")
	}

	if _, err := spec.ParsePolicy(c.Pipeline.ErrorPolicy); err != nil {
		return fmt.Errorf("pipeline.error_policy: %w", err)
	}

	if c.Style.StrokeWidth < 2 {
		return fmt.Errorf("style.stroke_width must be at least 2")
	}

	if c.Style.SmoothIters < 0 || c.Style.SmoothIters > 6 {
		return fmt.Errorf("style.smooth_iters must be between 0 and 6")
	}

	if c.Style.FillAlpha < 0 || c.Style.FillAlpha > 255 {
		return fmt.Errorf("style.fill_alpha must be between 0 and 255")
	}

	if c.Render.FontSize <= 0 {
		return fmt.Errorf("render.font_size must be positive")
	}

	if _, err := render.ParseColor(c.Render.StrokeColor); err != nil {
		return fmt.Errorf("render.stroke_color: %w", err)
	}

	if _, err := render.ParseColor(c.Render.LabelTextColor); err != nil {
		return fmt.Errorf("render.label_text_color: %w", err)
	}

	if c.Image.MinImageSize < 1 {
		return fmt.Errorf("image.min_image_size must be positive")
	}

	if c.Locator.Enabled {
		switch c.Locator.Backend {
		case "ollama", "llamacpp", "openai":
		default:
			return fmt.Errorf("locator.backend must be ollama, llamacpp or openai, got %q", c.Locator.Backend)
		}
		if c.Locator.Model == "" {
			return fmt.Errorf("locator.model is required when the locator is enabled")
		}
		if c.Locator.SendQuality < 1 || c.Locator.SendQuality > 100 {
			return fmt.Errorf("locator.send_quality must be between 1 and 100")
		}
	}

	return nil
}

// ToProcessingConfig converts the file configuration into the pipeline's
func (c *Config) ToProcessingConfig() (processing.Config, error) {
	policy, err := spec.ParsePolicy(c.Pipeline.ErrorPolicy)
	if err != nil {
		return processing.Config{}, err
	}
	stroke, err := render.ParseColor(c.Render.StrokeColor)
	if err != nil {
		return processing.Config{}, err
	}
	text, err := render.ParseColor(c.Render.LabelTextColor)
	if err != nil {
		return processing.Config{}, err
	}

	return processing.Config{
		Policy: policy,
		Normalize: normalize.Config{
			MaxShapes:   c.Pipeline.MaxShapes,
			MaxLabelLen: c.Pipeline.MaxLabelLen,
			DefaultStyle: types.Style{
				StrokeWidth: c.Style.StrokeWidth,
				Smooth:      c.Style.Smooth,
				SmoothIters: c.Style.SmoothIters,
				FillAlpha:   c.Style.FillAlpha,
			},
		},
		Validation: validation.Config{
			MinPolygonPoints:  c.Pipeline.MinPolygonPoints,
			MinPolylinePoints: c.Pipeline.MinPolylinePoints,
			AreaCeiling:       c.Pipeline.AreaCeiling,
			FallbackInset:     c.Pipeline.FallbackInset,
			DefaultLabel:      normalize.CleanLabel(c.Pipeline.DefaultLabel, c.Pipeline.MaxLabelLen),
		},
		Render: render.Config{
			FontPath:       c.Render.FontPath,
			FontSize:       c.Render.FontSize,
			LabelPadding:   c.Render.LabelPadding,
			MaxLabelLen:    c.Pipeline.MaxLabelLen,
			CaptionMaxLen:  c.Render.CaptionMaxLen,
			StrokeColor:    stroke,
			LabelTextColor: text,
		},
	}, nil
}

// ToAnalyzerConfig converts the image limits for the upload analyzer
func (c *Config) ToAnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		SupportedFormats: c.Image.SupportedFormats,
		MinImageSize:     c.Image.MinImageSize,
		MaxPixels:        c.Image.MaxPixels,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-annotator", "config.yaml")
}
