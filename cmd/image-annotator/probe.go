package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"

	imageannotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/server"
	"github.com/menta2k/image-annotator/pkg/detection"
)

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (YAML)")
	in := fs.String("in", "", "input image path or URL")
	backend := fs.String("backend", "", "ollama, llamacpp or openai, overrides the config")
	url := fs.String("url", "", "server URL, overrides the config")
	model := fs.String("model", "", "model name, overrides the config")
	problem := fs.String("problem", "", "also try to locate this problem")
	fs.Parse(args)

	if *in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	lc := cfg.Locator
	lc.Enabled = true
	if *backend != "" {
		lc.Backend = *backend
	}
	if *url != "" {
		lc.URL = *url
	}
	if *model != "" {
		lc.Model = *model
	}

	locator, err := server.NewLocator(lc)
	if err != nil {
		return err
	}

	annotator := imageannotator.New()
	img, err := annotator.LoadImage(*in)
	if err != nil {
		return err
	}
	b64, err := annotator.Processor().PrepareImageForModel(img, "jpg", lc.SendSize, lc.SendQuality)
	if err != nil {
		return err
	}

	timeout := lc.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply, err := locator.Detector.TestVision(ctx, lc.Model, b64)
	if err != nil {
		return fmt.Errorf("vision test failed: %w", err)
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s / %s", lc.Backend, lc.Model)))
	fmt.Println(reply)

	if *problem == "" {
		return nil
	}

	located, err := locator.Detector.LocateDefect(ctx, lc.Model, b64, *problem)
	if errors.Is(err, detection.ErrNoDefect) {
		fmt.Println(warnStyle.Render("problem not located: " + err.Error()))
		return nil
	}
	if err != nil {
		return err
	}
	data, _ := json.MarshalIndent(located, "", "  ")
	fmt.Println(string(data))
	return nil
}
