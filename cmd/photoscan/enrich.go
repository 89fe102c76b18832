package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/photoscan"
	"github.com/poiesic/photoscan/pipeline"
	"github.com/poiesic/photoscan/progress"
)

func enrichCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "Number of photos processed at once",
			Value:   pipeline.DefaultConcurrency,
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Describe every photo again, even when it already has a description",
		},
		&cli.BoolFlag{
			Name:  "regenerate-generic",
			Usage: "Describe again photos whose description starts with \"The image\" or similar",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "extensions",
			Usage: extensionsUsage(),
			Value: "jpg,jpeg",
		},
		&cli.BoolFlag{
			Name:  "embed-preview",
			Usage: "Embed a thumbnail and the source dimensions in each described photo",
		},
		&cli.DurationFlag{
			Name:  "progress-interval",
			Usage: "How often to print progress (0 disables it)",
			Value: time.Second,
		},
	}
	return &cli.Command{
		Name:      "enrich",
		Usage:     "Describe and index every photo below a directory",
		ArgsUsage: "<root>",
		Action:    enrichAction,
		Flags:     append(flags, backendFlags()...),
	}
}

func enrichAction(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		return fmt.Errorf("library root is required")
	}
	if c.NArg() > 1 {
		return fmt.Errorf("unexpected arguments after %s: %s", root, strings.Join(c.Args().Tail(), " "))
	}
	if c.Int("concurrency") <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}

	cfg, err := libraryConfig(c)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)
	cfg.Logger = logger

	lib, err := photoscan.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	run := photoscan.RunConfig{
		Extensions:        splitList(c.String("extensions")),
		Force:             c.Bool("force"),
		RegenerateGeneric: c.Bool("regenerate-generic"),
		Concurrency:       c.Int("concurrency"),
		EmbedPreview:      c.Bool("embed-preview"),
	}
	p, err := lib.NewPipeline(root, run)
	if err != nil {
		return err
	}
	defer p.Release()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.ErrWriter, "Library: %s\n", root)
	fmt.Fprintf(c.App.ErrWriter, "Index: %s (%s)\n", cfg.Index, cfg.Collection)
	fmt.Fprintf(c.App.ErrWriter, "Vision model: %s\n", visionModel(cfg))
	fmt.Fprintf(c.App.ErrWriter, "Run: %s\n", runID)
	fmt.Fprintln(c.App.ErrWriter)

	summary, err := runWithProgress(ctx, p, c.App.ErrWriter, c.Duration("progress-interval"))
	progress.PrintSummary(c.App.Writer, summary)
	if err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}
	return nil
}

// runWithProgress runs p while a reporter redraws the progress line.
func runWithProgress(ctx context.Context, p *pipeline.Pipeline, w io.Writer, interval time.Duration) (*pipeline.Summary, error) {
	if interval <= 0 {
		return p.Run(ctx)
	}

	reporter := progress.NewReporter(w, p.Snapshot, interval)
	reportCtx, stopReporting := context.WithCancel(ctx)
	defer stopReporting()

	var summary *pipeline.Summary
	g, gctx := errgroup.WithContext(reportCtx)
	g.Go(func() error {
		return reporter.Run(gctx)
	})
	g.Go(func() error {
		defer stopReporting()
		var err error
		summary, err = p.Run(ctx)
		return err
	})
	err := g.Wait()
	reporter.Finish()
	return summary, err
}

func visionModel(cfg photoscan.Config) string {
	if strings.EqualFold(cfg.Provider, photoscan.ProviderVertex) {
		return cfg.Vertex.Model
	}
	return cfg.AI.VisionModel
}
