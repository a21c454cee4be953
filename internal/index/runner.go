// Package index runs the build pipeline: load, split, embed, index, save.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docvec/internal/chunk"
	"github.com/Aman-CERP/docvec/internal/config"
	"github.com/Aman-CERP/docvec/internal/embed"
	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/loader"
	"github.com/Aman-CERP/docvec/internal/metrics"
	"github.com/Aman-CERP/docvec/internal/store"
	"github.com/Aman-CERP/docvec/internal/ui"
	"github.com/Aman-CERP/docvec/pkg/version"
)

// Console messages emitted between stages.
const (
	MsgVectorizing = "Vectorizing chunks..."
	MsgVectorized  = "Vectorization complete!"
	MsgCreated     = "Vector DB created successfully!"
)

// RunnerConfig configures a build.
type RunnerConfig struct {
	// DocsDir is the directory of documents to load.
	DocsDir string

	// OutputDir is replaced with the new index.
	OutputDir string
}

// RunnerResult is the outcome of a build.
type RunnerResult struct {
	Documents int
	Chunks    int
	Vectors   int

	// Skipped counts files skipped as unsupported.
	Skipped int

	Manifest store.Manifest
	Duration time.Duration
	Stages   ui.StageTimings
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded configuration (required).
	Config *config.Config

	// Embedder turns chunk text into vectors (required).
	Embedder embed.Embedder

	// Metrics records build counters. Optional.
	Metrics *metrics.Recorder

	// Loader and Splitter default to ones built from Config.
	Loader   *loader.Loader
	Splitter *chunk.RecursiveSplitter
}

// Runner executes a build with progress reporting.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	embedder embed.Embedder
	metrics  *metrics.Recorder
	loader   *loader.Loader
	splitter *chunk.RecursiveSplitter
	writer   *store.Writer
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cfg := deps.Config

	ld := deps.Loader
	if ld == nil {
		var err error
		ld, err = loader.New(loader.Options{
			Glob:            cfg.Paths.Glob,
			Exclude:         cfg.Paths.Exclude,
			SkipUnsupported: cfg.Loader.SkipUnsupported,
			LoadHidden:      cfg.Loader.LoadHidden,
		})
		if err != nil {
			return nil, err
		}
	}

	splitter := deps.Splitter
	if splitter == nil {
		var err error
		splitter, err = chunk.NewRecursiveSplitter(chunk.Options{
			ChunkSize:    cfg.Splitter.ChunkSize,
			ChunkOverlap: cfg.Splitter.ChunkOverlap,
			Separators:   cfg.Splitter.Separators,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Runner{
		renderer: deps.Renderer,
		config:   cfg,
		embedder: deps.Embedder,
		metrics:  deps.Metrics,
		loader:   ld,
		splitter: splitter,
		writer: store.NewWriter(store.VectorStoreConfig{
			Metric:   cfg.Index.Metric,
			M:        cfg.Index.M,
			EfSearch: cfg.Index.EfSearch,
		}),
	}, nil
}

// Run loads every document under cfg.DocsDir, splits and embeds it, and
// replaces cfg.OutputDir with the resulting index. Any failure aborts the
// build and leaves the previous index in place.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	if cfg.DocsDir == "" {
		cfg.DocsDir = r.config.Paths.Docs
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = r.config.Paths.Output
	}

	result := &RunnerResult{}
	var stages ui.StageTimings

	slog.Info("index_started",
		slog.String("docs", cfg.DocsDir),
		slog.String("output", cfg.OutputDir),
		slog.String("model", r.embedder.ModelName()))

	// Stage 1: load
	stageStart := time.Now()
	docs, err := r.load(ctx, cfg.DocsDir, result)
	if err != nil {
		return nil, err
	}
	stages.Load = time.Since(stageStart)
	result.Documents = len(docs)

	// Stage 2: split
	stageStart = time.Now()
	chunks, err := r.split(ctx, docs)
	if err != nil {
		return nil, err
	}
	stages.Split = time.Since(stageStart)
	result.Chunks = len(chunks)

	// Stage 3: embed
	stageStart = time.Now()
	vectors, err := r.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	stages.Embed = time.Since(stageStart)

	// Stage 4: index
	stageStart = time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Total:   len(vectors),
		Message: fmt.Sprintf("Indexing %d vectors...", len(vectors)),
	})
	graph, err := r.writer.Build(ctx, vectors)
	if err != nil {
		return nil, err
	}
	defer func() { _ = graph.Close() }()
	stages.Index = time.Since(stageStart)

	// Stage 5: save
	stageStart = time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageSaving,
		Message: fmt.Sprintf("Saving to %s...", cfg.OutputDir),
	})
	manifest, err := r.writer.Persist(ctx, cfg.OutputDir, store.Snapshot{
		Chunks:   storedChunks(chunks),
		Graph:    graph,
		Manifest: r.manifest(cfg, len(docs)),
	})
	if err != nil {
		return nil, err
	}
	stages.Save = time.Since(stageStart)

	result.Vectors = manifest.Vectors
	result.Manifest = manifest
	result.Stages = stages
	result.Duration = time.Since(start)

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageComplete, Message: MsgCreated})
	r.record(result)

	r.renderer.Complete(ui.CompletionStats{
		Documents: result.Documents,
		Chunks:    result.Chunks,
		Vectors:   result.Vectors,
		OutputDir: cfg.OutputDir,
		BuildID:   manifest.BuildID,
		Duration:  result.Duration,
		Warnings:  result.Skipped,
		Stages:    stages,
		Embedder: ui.EmbedderInfo{
			Provider:   manifest.Provider,
			Model:      manifest.Model,
			Dimensions: manifest.Dimensions,
		},
		CacheHits: r.cacheHits(),
	})

	slog.Info("index_complete",
		slog.String("build_id", manifest.BuildID),
		slog.Int("documents", result.Documents),
		slog.Int("chunks", result.Chunks),
		slog.Int("vectors", result.Vectors),
		slog.Int("skipped", result.Skipped),
		slog.Int64("duration_load_ms", stages.Load.Milliseconds()),
		slog.Int64("duration_split_ms", stages.Split.Milliseconds()),
		slog.Int64("duration_embed_ms", stages.Embed.Milliseconds()),
		slog.Int64("duration_index_ms", stages.Index.Milliseconds()),
		slog.Int64("duration_save_ms", stages.Save.Milliseconds()),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()))

	return result, nil
}

func (r *Runner) load(ctx context.Context, docsDir string, result *RunnerResult) ([]loader.Document, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Message: fmt.Sprintf("Loading documents from %s...", docsDir),
	})

	docs, err := r.loader.Load(ctx, docsDir, func(rel string, err error) {
		result.Skipped++
		r.renderer.AddError(ui.ErrorEvent{File: rel, Err: err, IsWarn: true})
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, dverrors.New(dverrors.ErrCodeNoDocuments,
			fmt.Sprintf("no documents matched %q in %s", r.config.Paths.Glob, docsDir), nil).
			WithSuggestion("check --docs and --glob")
	}

	if r.metrics != nil {
		r.metrics.DocumentsLoaded(len(docs))
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Current: len(docs),
		Total:   len(docs),
		Message: fmt.Sprintf("%d documents loaded", len(docs)),
	})
	return docs, nil
}

func (r *Runner) split(ctx context.Context, docs []loader.Document) ([]chunk.Chunk, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSplitting, Total: len(docs)})

	chunks, err := r.splitter.SplitAll(ctx, docs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, dverrors.New(dverrors.ErrCodeNoChunks,
			fmt.Sprintf("%d documents produced no chunks", len(docs)), nil).
			WithSuggestion("the documents may be empty or whitespace only")
	}

	if r.metrics != nil {
		r.metrics.ChunksCreated(len(chunks))
	}
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageSplitting,
		Current: len(docs),
		Total:   len(docs),
		Message: fmt.Sprintf("%d chunks created", len(chunks)),
	})
	return chunks, nil
}

// embed vectorizes chunks in order, one batch at a time. Vector i belongs to
// chunk i.
func (r *Runner) embed(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	batchSize := r.config.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	provider := string(embed.ProviderOf(r.embedder))

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEmbedding,
		Total:   len(chunks),
		Message: MsgVectorizing,
	})

	vectors := make([][]float32, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			slog.Info("index_interrupted",
				slog.Int("embedded", len(vectors)),
				slog.Int("total", len(chunks)))
			return nil, err
		}

		batchEnd := min(batchStart+batchSize, len(chunks))
		texts := make([]string, 0, batchEnd-batchStart)
		for _, c := range chunks[batchStart:batchEnd] {
			texts = append(texts, c.Content)
		}

		batchStartTime := time.Now()
		batch, err := r.embedder.EmbedBatch(ctx, texts)
		if r.metrics != nil {
			r.metrics.EmbedBatch(provider, time.Since(batchStartTime), err)
		}
		if err != nil {
			return nil, embedError(ctx, batchStart, batchEnd, err)
		}
		if len(batch) != len(texts) {
			return nil, dverrors.New(dverrors.ErrCodeCountMismatch,
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(batch), len(texts)), nil)
		}
		vectors = append(vectors, batch...)

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageEmbedding,
			Current:     len(vectors),
			Total:       len(chunks),
			CurrentFile: chunks[batchEnd-1].Source,
		})
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEmbedding,
		Current: len(vectors),
		Total:   len(chunks),
		Message: MsgVectorized,
	})
	return vectors, nil
}

func embedError(ctx context.Context, from, to int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if dverrors.GetCode(err) != "" {
		return err
	}
	return dverrors.New(dverrors.ErrCodeEmbeddingFailed,
		fmt.Sprintf("failed to embed chunks %d-%d", from, to), err)
}

func (r *Runner) manifest(cfg RunnerConfig, documents int) store.Manifest {
	m := store.NewManifest()
	m.Provider = string(embed.ProviderOf(r.embedder))
	m.Model = r.embedder.ModelName()
	m.Documents = documents
	opts := r.splitter.Options()
	m.ChunkSize = opts.ChunkSize
	m.ChunkOverlap = opts.ChunkOverlap
	m.DocsPath = cfg.DocsDir
	m.DocvecVersion = version.Version
	return m
}

func (r *Runner) record(result *RunnerResult) {
	if r.metrics == nil {
		return
	}
	r.metrics.StageDuration("load", result.Stages.Load)
	r.metrics.StageDuration("split", result.Stages.Split)
	r.metrics.StageDuration("embed", result.Stages.Embed)
	r.metrics.StageDuration("index", result.Stages.Index)
	r.metrics.StageDuration("save", result.Stages.Save)
	r.metrics.IndexPersisted(result.Vectors, result.Manifest.CreatedAt)
}

func (r *Runner) cacheHits() int64 {
	if cached, ok := r.embedder.(*embed.CachedEmbedder); ok {
		return cached.Stats().Hits
	}
	return 0
}

// storedChunks converts chunks to docstore rows. Keys are assigned by the
// writer from slice position.
func storedChunks(chunks []chunk.Chunk) []store.StoredChunk {
	rows := make([]store.StoredChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = store.StoredChunk{
			ID:       c.ID,
			Source:   c.Source,
			Seq:      c.Seq,
			Content:  c.Content,
			Metadata: c.Metadata,
		}
	}
	return rows
}
