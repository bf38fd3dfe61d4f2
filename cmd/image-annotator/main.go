package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	imageannotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/logger"
	"github.com/menta2k/image-annotator/internal/server"
	"github.com/menta2k/image-annotator/internal/utils"
)

const usage = `usage: %s <command> [flags]

commands:
  serve     run the HTTP annotation service
  render    annotate an image (or a directory of images) from a spec
  probe     check that the configured vision model can see an image
  config    write a default configuration file
  version   print the version

run '%s <command> -h' for the flags of a command
`

func main() {
	name := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, name, name)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "render":
		err = runRender(os.Args[2:])
	case "probe":
		err = runProbe(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version":
		fmt.Println(imageannotator.GetVersion())
	case "help", "-h", "--help":
		fmt.Printf(usage, name, name)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprintf(os.Stderr, usage, name, name)
		os.Exit(2)
	}

	if err != nil {
		logger.Fatalf("%s: %v", os.Args[1], err)
	}
}

// loadConfig reads path, or the per-user config file when path is empty and
// that file exists
func loadConfig(path string) (*config.Config, error) {
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	if path != "" {
		logger.Debugf("loaded config from %s", path)
	}
	return cfg, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (YAML)")
	port := fs.Int("port", 0, "listen port, overrides the config")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	server.SetMode(cfg.Server.Mode)

	opts := []server.Option{server.WithVersion(imageannotator.Version)}
	locator, err := server.NewLocator(cfg.Locator)
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}
	if locator != nil {
		logger.Infof("locator enabled: %s model %s at %s", cfg.Locator.Backend, cfg.Locator.Model, cfg.Locator.URL)
		opts = append(opts, server.WithLocator(locator))
	}

	srv, err := server.New(cfg, opts...)
	if err != nil {
		return err
	}

	fonts := srv.Processor().Fonts()
	if fonts.Err() != nil {
		logger.Warnf("label font: %v, using %s", fonts.Err(), fonts.Source())
	} else {
		logger.Infof("label font: %s", fonts.Source())
	}

	httpServer := srv.HTTPServer()
	go func() {
		logger.Infof("server listening on port %d (policy %s)", cfg.Server.Port, cfg.Pipeline.ErrorPolicy)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
		return httpServer.Close()
	}
	logger.Info("server stopped")
	return nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("out", config.GetConfigPath(), "where to write the configuration")
	force := fs.Bool("force", false, "overwrite an existing file")
	fs.Parse(args)

	if utils.FileExists(*out) && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *out)
	}
	if err := config.Default().SaveToFile(*out); err != nil {
		return err
	}
	fmt.Printf("wrote default configuration to %s\n", *out)
	return nil
}
