package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docvec/internal/config"
	"github.com/Aman-CERP/docvec/internal/embed"
	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/index"
	"github.com/Aman-CERP/docvec/internal/metrics"
	"github.com/Aman-CERP/docvec/internal/output"
	"github.com/Aman-CERP/docvec/internal/publish"
	"github.com/Aman-CERP/docvec/internal/ui"
)

// embedderInitTimeout bounds provider probing before the build starts.
const embedderInitTimeout = 15 * time.Second

type buildFlags struct {
	output          string
	glob            string
	chunkSize       int
	chunkOverlap    int
	provider        string
	model           string
	batchSize       int
	skipUnsupported bool
	noTUI           bool
	metricsFile     string
	publish         bool
}

func newBuildCmd() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:     "build [docs-dir]",
		Aliases: []string{"vectorize"},
		Short:   "Build a vector index from a directory of documents",
		Long: `Build loads every document under docs-dir that matches --glob, splits it
into chunks of --chunk-size characters with --chunk-overlap characters
shared between neighbours, embeds each chunk, and writes the index to
--output. An existing index at --output is replaced only after the new
one has been written completely.

Embedding providers:
  ollama   local Ollama server (default, model all-minilm)
  openai   OpenAI or a compatible API (DOCVEC_OPENAI_API_KEY)
  static   offline feature hashing, no model needed`,
		Example: `  # Vectorize ./docs into ./my_vector_db
  docvec build docs

  # Offline build with plain output
  docvec build docs --provider static --no-tui

  # Build, export metrics and upload to S3
  docvec build docs -o out --metrics-file metrics.prom --publish`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Paths.Docs = args[0]
			}
			if err := applyBuildFlags(cmd, cfg, flags); err != nil {
				return err
			}
			setupLogging(cfg)

			return runBuild(ctx, cmd, cfg, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", "", "Index directory to write (default: my_vector_db)")
	f.StringVar(&flags.glob, "glob", "", "Files to load, relative to docs-dir (default: **/*.*)")
	f.IntVar(&flags.chunkSize, "chunk-size", 0, "Maximum chunk length in characters (default: 500)")
	f.IntVar(&flags.chunkOverlap, "chunk-overlap", 0, "Characters shared between neighbouring chunks (default: 50)")
	f.StringVar(&flags.provider, "provider", "", "Embedding provider: ollama, openai or static")
	f.StringVar(&flags.model, "model", "", "Embedding model name")
	f.IntVar(&flags.batchSize, "batch-size", 0, "Chunks per embedding request (default: 32)")
	f.BoolVar(&flags.skipUnsupported, "skip-unsupported", false, "Skip binary or non-UTF-8 files instead of failing")
	f.BoolVar(&flags.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the build")
	f.BoolVar(&flags.publish, "publish", false, "Upload the index to publish.s3.bucket after saving")

	return cmd
}

// applyBuildFlags overlays explicitly set flags on cfg and re-validates.
func applyBuildFlags(cmd *cobra.Command, cfg *config.Config, flags buildFlags) error {
	changed := cmd.Flags().Changed
	if changed("output") {
		cfg.Paths.Output = flags.output
	}
	if changed("glob") {
		cfg.Paths.Glob = flags.glob
	}
	if changed("chunk-size") {
		cfg.Splitter.ChunkSize = flags.chunkSize
	}
	if changed("chunk-overlap") {
		cfg.Splitter.ChunkOverlap = flags.chunkOverlap
	}
	if changed("provider") {
		cfg.Embeddings.Provider = flags.provider
		if !changed("model") {
			// The configured model belongs to the configured provider.
			cfg.Embeddings.Model = ""
		}
	}
	if changed("model") {
		cfg.Embeddings.Model = flags.model
	}
	if changed("batch-size") {
		cfg.Embeddings.BatchSize = flags.batchSize
	}
	if changed("skip-unsupported") {
		cfg.Loader.SkipUnsupported = flags.skipUnsupported
	}
	if changed("metrics-file") {
		cfg.Metrics.File = flags.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return dverrors.ConfigError(err.Error(), nil)
	}
	return nil
}

func runBuild(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags buildFlags) error {
	out := output.New(cmd.OutOrStdout())
	rec := metrics.New()

	result, err := runPipeline(ctx, cmd, cfg, flags, rec)

	if cfg.Metrics.File != "" {
		if werr := rec.WriteTextfile(cfg.Metrics.File); werr != nil {
			slog.Warn("metrics_write_failed", slog.String("path", cfg.Metrics.File), slog.String("error", werr.Error()))
			out.Warningf("Failed to write metrics: %v", werr)
		} else if err == nil {
			out.Successf("Metrics written to %s", cfg.Metrics.File)
		}
	}
	if err != nil {
		return err
	}

	if flags.publish {
		return publishIndex(ctx, out, cfg, result)
	}
	return nil
}

// runPipeline creates the embedder and renderer and runs the build. The
// renderer is stopped before returning so later output does not interleave
// with it.
func runPipeline(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags buildFlags, rec *metrics.Recorder) (*index.RunnerResult, error) {
	timeout, err := time.ParseDuration(cfg.Embeddings.Timeout)
	if err != nil {
		return nil, dverrors.ConfigError(fmt.Sprintf("invalid embeddings.timeout %q", cfg.Embeddings.Timeout), err)
	}

	// No fallback between providers: an unreachable provider fails the build.
	embedCtx, embedCancel := context.WithTimeout(ctx, embedderInitTimeout)
	embedder, err := embed.NewEmbedder(embedCtx, embed.Options{
		Provider:      embed.ParseProvider(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		Timeout:       timeout,
		CacheSize:     cfg.Embeddings.CacheSize,
		DisableCache:  cfg.Embeddings.DisableCache,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
	})
	embedCancel()
	if err != nil {
		return nil, err
	}
	defer func() { _ = embedder.Close() }()

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(flags.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithDocsDir(cfg.Paths.Docs))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Embedder: embedder,
		Metrics:  rec,
	})
	if err != nil {
		return nil, err
	}

	result, err := runner.Run(ctx, index.RunnerConfig{
		DocsDir:   cfg.Paths.Docs,
		OutputDir: cfg.Paths.Output,
	})
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		slog.Error("index_failed",
			slog.String("code", dverrors.GetCode(err)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return result, nil
}

func publishIndex(ctx context.Context, out *output.Writer, cfg *config.Config, result *index.RunnerResult) error {
	s3cfg := cfg.Publish.S3
	publisher, err := publish.NewS3Publisher(ctx, publish.S3Config{
		Bucket:          s3cfg.Bucket,
		Prefix:          s3cfg.Prefix,
		Region:          s3cfg.Region,
		Endpoint:        s3cfg.Endpoint,
		AccessKeyID:     s3cfg.AccessKeyID,
		SecretAccessKey: s3cfg.SecretAccessKey,
	})
	if err != nil {
		return err
	}

	out.Statusf("📦", "Publishing %s...", cfg.Paths.Output)
	res, err := publisher.Publish(ctx, cfg.Paths.Output, result.Manifest)
	if err != nil {
		return err
	}
	out.Successf("Published %d files to %s", len(res.Keys), res.URI())
	return nil
}
