package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	imageannotator "github.com/menta2k/image-annotator"
	"github.com/menta2k/image-annotator/internal/logger"
	"github.com/menta2k/image-annotator/internal/server"
	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/spec"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E53935"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#43A047"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FB8C00"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E53935"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type renderJob struct {
	in, out string
}

type renderRow struct {
	job      renderJob
	width    int
	height   int
	size     int64
	shapes   int
	fallback string
	rejected int
	caption  string
	err      error
}

type renderOptions struct {
	quality  int
	lossless bool
	locator  *server.Locator
	specText string
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (YAML)")
	in := fs.String("in", "", "input image path or URL")
	specSrc := fs.String("spec", "", "spec file, inline JSON, or - for stdin (empty draws the default box)")
	out := fs.String("out", "", "output file, defaults to <name>_annotated.<format>")
	format := fs.String("format", "png", "output format for generated names: png|jpg|webp")
	quality := fs.Int("quality", imageannotator.DefaultQuality, "JPEG/WebP quality (1-100)")
	lossless := fs.Bool("lossless", false, "WebP lossless mode")
	policy := fs.String("policy", "", "error policy, overrides the config: permissive|strict")
	locate := fs.Bool("locate", false, "ask the configured vision model to box free-text problems")
	fs.Parse(args)

	if *in == "" {
		fs.Usage()
		return errors.New("-in is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *policy != "" {
		cfg.Pipeline.ErrorPolicy = *policy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	pc, err := cfg.ToProcessingConfig()
	if err != nil {
		return err
	}
	annotator := imageannotator.NewWithConfig(cfg.ToAnalyzerConfig(), pc)

	opts := renderOptions{quality: *quality, lossless: *lossless}
	if opts.specText, err = utils.ReadSpec(*specSrc, os.Stdin); err != nil {
		return err
	}
	if *locate {
		lc := cfg.Locator
		lc.Enabled = true
		if opts.locator, err = server.NewLocator(lc); err != nil {
			return fmt.Errorf("failed to create locator: %w", err)
		}
	}

	job, err := planJob(*in, *out, *format)
	if err != nil {
		return err
	}

	row := renderOne(annotator, job, opts)
	fmt.Println(summary(row))
	return row.err
}

// planJob resolves the output path for a single input
func planJob(in, out, format string) (renderJob, error) {
	if utils.DirExists(in) {
		return renderJob{}, fmt.Errorf("%s is a directory; render takes one image", in)
	}
	if !strings.Contains(in, "://") && !utils.IsImageFile(in) {
		logger.Warnf("%s has no image extension, decoding anyway", in)
	}
	if out == "" {
		out = utils.AnnotatedFilename(in, ".", format)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return renderJob{}, err
		}
	}
	return renderJob{in: in, out: out}, nil
}

func renderOne(annotator *imageannotator.ImageAnnotator, job renderJob, opts renderOptions) renderRow {
	row := renderRow{job: job}

	img, err := annotator.LoadImage(job.in)
	if err != nil {
		row.err = err
		return row
	}

	parsed, err := spec.Parse(opts.specText, annotator.Processor().Config().Policy)
	if err != nil {
		row.err = err
		return row
	}
	if opts.locator != nil {
		log := logger.WithFields(logrus.Fields{"input": job.in})
		parsed = opts.locator.Annotate(context.Background(), annotator.Processor(), img, parsed, log)
	}

	res, err := annotator.AnnotateDocument(img, parsed)
	if err != nil {
		row.err = err
		return row
	}
	if err := annotator.Processor().SaveImage(res.Image, job.out, opts.quality, opts.lossless); err != nil {
		row.err = fmt.Errorf("failed to save %s: %w", job.out, err)
		return row
	}

	row.width, row.height = res.Info.Width, res.Info.Height
	row.shapes = res.Report.Shapes
	row.fallback = string(res.Report.Fallback)
	row.rejected = len(res.Report.Rejections)
	row.caption = res.Report.Caption
	if st, err := os.Stat(job.out); err == nil {
		row.size = st.Size()
	}
	return row
}

func summary(r renderRow) string {
	if r.err != nil {
		return boxStyle.Render(failStyle.Render("✗ "+r.job.in) + "\n" + dimStyle.Render(r.err.Error()))
	}

	status := okStyle.Render("✓ annotated")
	if r.fallback != "none" {
		status = warnStyle.Render("! annotated with " + r.fallback + " fallback")
	}
	lines := []string{
		titleStyle.Render(r.job.in) + " → " + r.job.out,
		status,
		dimStyle.Render(fmt.Sprintf("%dx%d  shapes=%d  rejected=%d  %s",
			r.width, r.height, r.shapes, r.rejected, utils.FormatFileSize(r.size))),
	}
	if r.caption != "" {
		lines = append(lines, dimStyle.Render("caption: "+r.caption))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
