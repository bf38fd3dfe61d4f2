// Package server exposes the annotation pipeline over HTTP.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/pkg/analyzer"
	"github.com/menta2k/image-annotator/pkg/processing"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderShapes    = "X-Annotation-Shapes"
	HeaderFallback  = "X-Annotation-Fallback"
)

// Server holds the handlers' shared, read-only state. The processor is safe
// for concurrent use so one instance serves every request.
type Server struct {
	cfg       *config.Config
	processor *processing.Processor
	analyzer  *analyzer.ImageAnalyzer
	locator   *Locator
	version   string
}

// Option customizes a Server
type Option func(*Server)

// WithLocator enables defect location for free-text specs
func WithLocator(l *Locator) Option {
	return func(s *Server) { s.locator = l }
}

// WithVersion sets the version reported by the index route
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server from cfg
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	pc, err := cfg.ToProcessingConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		processor: processing.NewProcessorWithConfig(pc),
		analyzer:  analyzer.NewWithConfig(cfg.ToAnalyzerConfig()),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Processor returns the shared pipeline
func (s *Server) Processor() *processing.Processor {
	return s.processor
}

// Router builds the gin engine with middleware and routes
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(AccessLog())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowedOrigins,
		AllowMethods:     s.cfg.CORS.AllowedMethods,
		AllowHeaders:     s.cfg.CORS.AllowedHeaders,
		ExposeHeaders:    s.cfg.CORS.ExposedHeaders,
		AllowCredentials: s.cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", s.Index)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})
	router.POST("/render", s.Render)

	return router
}

// HTTPServer wraps the router with the configured limits
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:           fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:        s.Router(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}
}

// SetMode maps the configured mode onto gin's global mode
func SetMode(mode string) {
	switch mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
}
