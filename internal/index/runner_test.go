package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docvec/internal/config"
	"github.com/Aman-CERP/docvec/internal/embed"
	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/metrics"
	"github.com/Aman-CERP/docvec/internal/store"
	"github.com/Aman-CERP/docvec/internal/ui"
)

// recordingRenderer captures everything the runner reports.
type recordingRenderer struct {
	mu       sync.Mutex
	events   []ui.ProgressEvent
	errors   []ui.ErrorEvent
	complete *ui.CompletionStats
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Stop() error                 { return nil }

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRenderer) AddError(e ui.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
}

func (r *recordingRenderer) Complete(s ui.CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = &s
}

func (r *recordingRenderer) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Message != "" {
			out = append(out, e.Message)
		}
	}
	return out
}

// failingEmbedder fails every batch with err.
type failingEmbedder struct {
	*embed.StaticEmbedder
	err error
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

// shortEmbedder drops the last vector of every batch.
type shortEmbedder struct {
	*embed.StaticEmbedder
}

func (s *shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.StaticEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	return vecs[:len(vecs)-1], nil
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Model = ""
	cfg.Embeddings.BatchSize = 2
	return cfg
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestRunner(t *testing.T, cfg *config.Config, e embed.Embedder, rec *metrics.Recorder) (*Runner, *recordingRenderer) {
	t.Helper()
	renderer := &recordingRenderer{}
	r, err := NewRunner(RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Embedder: e,
		Metrics:  rec,
	})
	require.NoError(t, err)
	return r, renderer
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	cfg := testConfig()
	e := embed.NewStaticEmbedder(64)

	tests := []struct {
		name string
		deps RunnerDependencies
		want string
	}{
		{"renderer", RunnerDependencies{Config: cfg, Embedder: e}, "renderer is required"},
		{"config", RunnerDependencies{Renderer: &recordingRenderer{}, Embedder: e}, "config is required"},
		{"embedder", RunnerDependencies{Renderer: &recordingRenderer{}, Config: cfg}, "embedder is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRunner(tc.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewRunner_InvalidSplitterOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Splitter.ChunkOverlap = cfg.Splitter.ChunkSize

	_, err := NewRunner(RunnerDependencies{
		Renderer: &recordingRenderer{},
		Config:   cfg,
		Embedder: embed.NewStaticEmbedder(64),
	})
	assert.Error(t, err)
}

// TS01: One 1000-character file becomes a searchable index
func TestRunner_Run_SingleDocument(t *testing.T) {
	// Given: a docs directory holding one 1000-character text file
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	out := filepath.Join(root, "my_vector_db")
	writeDoc(t, docs, "notes.txt", strings.Repeat("abcdefghi ", 100))

	rec := metrics.New()
	r, renderer := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), rec)

	// When: running the build
	result, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})
	require.NoError(t, err)

	// Then: the document was split into several chunks, each with a vector
	assert.Equal(t, 1, result.Documents)
	assert.GreaterOrEqual(t, result.Chunks, 2)
	assert.Equal(t, result.Chunks, result.Vectors)
	assert.Equal(t, "static", result.Manifest.Provider)
	assert.Equal(t, 64, result.Manifest.Dimensions)
	assert.Equal(t, 500, result.Manifest.ChunkSize)
	assert.Equal(t, docs, result.Manifest.DocsPath)

	// Then: the console messages arrive in pipeline order
	msgs := renderer.messages()
	assert.Contains(t, msgs, "1 documents loaded")
	assert.Contains(t, msgs, MsgVectorizing)
	assert.Contains(t, msgs, MsgVectorized)
	assert.Equal(t, MsgCreated, msgs[len(msgs)-1])

	// Then: the renderer got the summary
	require.NotNil(t, renderer.complete)
	assert.Equal(t, result.Vectors, renderer.complete.Vectors)
	assert.Equal(t, result.Manifest.BuildID, renderer.complete.BuildID)

	// Then: the index opens, verifies, and every chunk fits the size limit
	ix, err := store.Open(context.Background(), out)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()
	require.NoError(t, ix.Verify(context.Background()))
	for key := range uint64(result.Chunks) {
		c, err := ix.Docs.Get(context.Background(), key)
		require.NoError(t, err)
		assert.LessOrEqual(t, len([]rune(c.Content)), 500)
		assert.Equal(t, int(key), c.Seq)
	}

	// Then: metrics were recorded
	expected := `
# HELP docvec_documents_loaded_total Documents read by the loader
# TYPE docvec_documents_loaded_total counter
docvec_documents_loaded_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "docvec_documents_loaded_total"))
}

func TestRunner_Run_ReplacesPreviousIndex(t *testing.T) {
	// Given: an index built from two documents
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	out := filepath.Join(root, "out")
	writeDoc(t, docs, "a.md", "# Alpha\n\nFirst document.")
	writeDoc(t, docs, "sub/b.txt", "Second document.")

	r, _ := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)
	first, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Documents)

	// When: one document is removed and the build runs again
	require.NoError(t, os.Remove(filepath.Join(docs, "sub", "b.txt")))
	second, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})
	require.NoError(t, err)

	// Then: the output holds only the new build
	assert.NotEqual(t, first.Manifest.BuildID, second.Manifest.BuildID)
	ix, err := store.Open(context.Background(), out)
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()
	assert.Equal(t, second.Manifest.BuildID, ix.Manifest.BuildID)
	assert.Equal(t, 1, ix.Manifest.Documents)

	sources, err := ix.Docs.Sources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(docs, "a.md"), sources[0].Source)
}

func TestRunner_Run_DefaultsFromConfig(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	cfg.Paths.Docs = filepath.Join(root, "docs")
	cfg.Paths.Output = filepath.Join(root, "out")
	writeDoc(t, cfg.Paths.Docs, "a.txt", "hello world")

	r, _ := newTestRunner(t, cfg, embed.NewStaticEmbedder(64), nil)
	_, err := r.Run(context.Background(), RunnerConfig{})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(cfg.Paths.Output, store.ManifestFile))
}

func TestRunner_Run_NoDocumentsKeepsOldIndex(t *testing.T) {
	// Given: an existing index and an empty docs directory
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	out := filepath.Join(root, "out")
	writeDoc(t, docs, "a.txt", "hello world")

	r, _ := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)
	first, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(docs, "a.txt")))

	// When: building again
	_, err = r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})

	// Then: the build fails and the old index is untouched
	assert.Equal(t, dverrors.ErrCodeNoDocuments, dverrors.GetCode(err))
	m, err := store.ReadManifest(filepath.Join(out, store.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, first.Manifest.BuildID, m.BuildID)
}

func TestRunner_Run_WhitespaceOnlyDocuments(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	out := filepath.Join(root, "out")
	writeDoc(t, docs, "blank.txt", "   \n\n  ")

	r, _ := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)
	_, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})

	assert.Equal(t, dverrors.ErrCodeNoChunks, dverrors.GetCode(err))
	assert.NoDirExists(t, out)
}

func TestRunner_Run_SkipsUnsupported(t *testing.T) {
	// Given: a binary file next to a text file, with skipping enabled
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "a.txt", "hello world")
	writeDoc(t, docs, "logo.png", string([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01, 0xff, 0xfe}))

	cfg := testConfig()
	cfg.Loader.SkipUnsupported = true
	r, renderer := newTestRunner(t, cfg, embed.NewStaticEmbedder(64), nil)

	// When: building
	result, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})
	require.NoError(t, err)

	// Then: the binary file is reported as a warning
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, renderer.errors, 1)
	assert.True(t, renderer.errors[0].IsWarn)
	assert.Equal(t, "logo.png", renderer.errors[0].File)
	assert.Equal(t, 1, renderer.complete.Warnings)
}

func TestRunner_Run_IgnoresHiddenFiles(t *testing.T) {
	// Given: a text file next to a Finder .DS_Store and a hidden directory
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "notes.txt", "hello world")
	writeDoc(t, docs, ".DS_Store", string([]byte{'B', 'u', 'd', '1', 0x00, 0x00, 0x00, 0x01}))
	writeDoc(t, docs, ".cache/x.md", "# cached copy")
	r, renderer := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)

	// When: building with default loader settings
	result, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})

	// Then: the build succeeds with only the visible document
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, renderer.errors)
}

func TestRunner_Run_LoadHidden(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "notes.txt", "hello world")
	writeDoc(t, docs, ".cache/x.md", "# cached copy")

	cfg := testConfig()
	cfg.Loader.LoadHidden = true
	r, _ := newTestRunner(t, cfg, embed.NewStaticEmbedder(64), nil)

	result, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Documents)
}

func TestRunner_Run_EmbeddingFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error is wrapped", errors.New("connection refused"), dverrors.ErrCodeEmbeddingFailed},
		{"coded error keeps its code", dverrors.New(dverrors.ErrCodeNetworkTimeout, "timeout", nil), dverrors.ErrCodeNetworkTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			docs := filepath.Join(root, "docs")
			out := filepath.Join(root, "out")
			writeDoc(t, docs, "a.txt", "hello world")

			rec := metrics.New()
			e := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(64), err: tc.err}
			r, renderer := newTestRunner(t, testConfig(), e, rec)

			_, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})

			assert.Equal(t, tc.want, dverrors.GetCode(err))
			assert.NoDirExists(t, out)
			assert.Nil(t, renderer.complete)
			n, err := testutil.GatherAndCount(rec.Registry(), "docvec_embedding_batches_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestRunner_Run_VectorCountMismatch(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "a.txt", "hello world")

	r, _ := newTestRunner(t, testConfig(), &shortEmbedder{StaticEmbedder: embed.NewStaticEmbedder(64)}, nil)
	_, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})

	assert.Equal(t, dverrors.ErrCodeCountMismatch, dverrors.GetCode(err))
}

func TestRunner_Run_OutputLocked(t *testing.T) {
	// Given: another process holds the output lock
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	out := filepath.Join(root, "out")
	writeDoc(t, docs, "a.txt", "hello world")

	lock := store.NewFileLock(out)
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = lock.Unlock() }()

	// When: building
	r, _ := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)
	_, err = r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: out})

	// Then: the build is refused
	assert.Equal(t, dverrors.ErrCodeIndexLocked, dverrors.GetCode(err))
}

func TestRunner_Run_Cancelled(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "a.txt", "hello world")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, _ := newTestRunner(t, testConfig(), embed.NewStaticEmbedder(64), nil)
	_, err := r.Run(ctx, RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_Run_ReportsCacheHits(t *testing.T) {
	// Given: two documents with identical text and a cached embedder
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	writeDoc(t, docs, "a.txt", "same text")
	writeDoc(t, docs, "b.txt", "same text")

	cfg := testConfig()
	cfg.Embeddings.BatchSize = 1
	e := embed.NewCachedEmbedder(embed.NewStaticEmbedder(64), 16)
	r, renderer := newTestRunner(t, cfg, e, nil)

	// When: building
	_, err := r.Run(context.Background(), RunnerConfig{DocsDir: docs, OutputDir: filepath.Join(root, "out")})
	require.NoError(t, err)

	// Then: the second chunk came from the cache
	assert.Equal(t, int64(1), renderer.complete.CacheHits)
	assert.Equal(t, "static", renderer.complete.Embedder.Provider)
}
