package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// insertBatch is how many vectors go into the graph between cancellation
// checks.
const insertBatch = 256

// Snapshot is everything a build produced, ready to be written. Chunk i is
// stored under graph key i.
type Snapshot struct {
	Chunks   []StoredChunk
	Graph    *HNSWStore
	Manifest Manifest
}

// Writer builds and persists indexes with the given vector store settings.
type Writer struct {
	Config VectorStoreConfig
}

// NewWriter returns a Writer using cfg for the HNSW graph. Dimensions in cfg
// is ignored; it is taken from the vectors.
func NewWriter(cfg VectorStoreConfig) *Writer {
	return &Writer{Config: cfg}
}

// Build inserts vectors into a new in-memory graph under keys 0..n-1.
func (w *Writer) Build(ctx context.Context, vectors [][]float32) (*HNSWStore, error) {
	if len(vectors) == 0 {
		return nil, dverrors.New(dverrors.ErrCodeNoChunks, "no vectors to index", nil)
	}

	cfg := w.Config
	cfg.Dimensions = len(vectors[0])
	graph, err := NewHNSWStore(cfg)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(vectors); start += insertBatch {
		if err := ctx.Err(); err != nil {
			_ = graph.Close()
			return nil, err
		}
		end := min(start+insertBatch, len(vectors))
		keys := make([]uint64, 0, end-start)
		for i := start; i < end; i++ {
			keys = append(keys, uint64(i))
		}
		if err := graph.Add(ctx, keys, vectors[start:end]); err != nil {
			_ = graph.Close()
			if dverrors.GetCode(err) != "" {
				return nil, err
			}
			return nil, dverrors.Wrap(dverrors.ErrCodeIndexFailed, err)
		}
	}
	return graph, nil
}

// Persist writes snap into dir, replacing whatever index was there. The new
// index is written to a sibling staging directory and renamed into place, so
// a failed write leaves the previous index intact. The returned manifest has
// the final counts filled in.
func (w *Writer) Persist(ctx context.Context, dir string, snap Snapshot) (Manifest, error) {
	if snap.Graph == nil || len(snap.Chunks) == 0 {
		return Manifest{}, dverrors.New(dverrors.ErrCodeNoChunks, "nothing to persist", nil)
	}
	if n := snap.Graph.Count(); n != len(snap.Chunks) {
		return Manifest{}, dverrors.New(dverrors.ErrCodeCountMismatch,
			fmt.Sprintf("%d chunks but %d vectors", len(snap.Chunks), n), nil)
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return Manifest{}, dverrors.New(dverrors.ErrCodeIndexWrite, "invalid output path", err)
	}
	if err := checkReplaceable(dir); err != nil {
		return Manifest{}, err
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Manifest{}, writeError(fmt.Sprintf("failed to create %s", parent), err)
	}

	lock := NewFileLock(dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return Manifest{}, writeError("failed to lock output", err)
	}
	if !acquired {
		return Manifest{}, dverrors.New(dverrors.ErrCodeIndexLocked,
			fmt.Sprintf("another build is writing %s", dir), nil).
			WithDetail("lock", lock.Path()).
			WithSuggestion("wait for the other build to finish")
	}
	defer func() { _ = lock.Unlock() }()

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".staging-")
	if err != nil {
		return Manifest{}, writeError("failed to create staging directory", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	start := time.Now()
	manifest, err := writeAll(ctx, staging, snap)
	if err != nil {
		return Manifest{}, err
	}

	if err := swapDir(staging, dir); err != nil {
		return Manifest{}, err
	}
	committed = true

	slog.Info("index_persisted",
		slog.String("dir", dir),
		slog.String("build_id", manifest.BuildID),
		slog.Int("vectors", manifest.Vectors),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return manifest, nil
}

// writeAll writes the graph, docstore and manifest into staging.
func writeAll(ctx context.Context, staging string, snap Snapshot) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	if err := snap.Graph.Save(filepath.Join(staging, IndexFile)); err != nil {
		return Manifest{}, writeError("failed to save vector index", err)
	}

	rows := make([]StoredChunk, len(snap.Chunks))
	for i, c := range snap.Chunks {
		c.Key = uint64(i)
		rows[i] = c
	}
	docs, err := CreateDocStore(ctx, filepath.Join(staging, DocStoreFile))
	if err != nil {
		return Manifest{}, err
	}
	if err := docs.PutAll(ctx, rows); err != nil {
		_ = docs.Close()
		return Manifest{}, err
	}
	if err := docs.Close(); err != nil {
		return Manifest{}, writeError("failed to close docstore", err)
	}

	cfg := snap.Graph.Config()
	m := snap.Manifest
	if m.BuildID == "" {
		fresh := NewManifest()
		m.FormatVersion, m.BuildID, m.CreatedAt = fresh.FormatVersion, fresh.BuildID, fresh.CreatedAt
	}
	m.Dimensions = cfg.Dimensions
	m.Metric = cfg.Metric
	m.Chunks = len(rows)
	m.Vectors = snap.Graph.Count()
	if err := WriteManifest(filepath.Join(staging, ManifestFile), m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// checkReplaceable refuses to replace anything that is not a previous index:
// a regular file, or a non-empty directory without a manifest.
func checkReplaceable(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return writeError(fmt.Sprintf("cannot inspect %s", dir), err)
	}
	if !info.IsDir() {
		return dverrors.New(dverrors.ErrCodeIndexWrite,
			fmt.Sprintf("output %s exists and is not a directory", dir), nil)
	}

	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return writeError(fmt.Sprintf("cannot read %s", dir), err)
	}
	if len(entries) > 0 {
		return dverrors.New(dverrors.ErrCodeIndexWrite,
			fmt.Sprintf("output %s is not empty and does not hold a docvec index", dir), nil).
			WithSuggestion("choose another --output directory or remove it first")
	}
	return nil
}

// swapDir moves staging to dir. An existing dir is moved aside first and
// deleted only after the new one is in place.
func swapDir(staging, dir string) error {
	var old string
	if _, err := os.Stat(dir); err == nil {
		old = filepath.Join(filepath.Dir(dir), fmt.Sprintf(".%s.old-%d", filepath.Base(dir), time.Now().UnixNano()))
		if err := os.Rename(dir, old); err != nil {
			return writeError(fmt.Sprintf("failed to move old index %s aside", dir), err)
		}
	}

	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			if restoreErr := os.Rename(old, dir); restoreErr != nil {
				slog.Error("index_restore_failed",
					slog.String("dir", dir),
					slog.String("backup", old),
					slog.String("error", restoreErr.Error()))
			}
		}
		return writeError(fmt.Sprintf("failed to move new index into %s", dir), err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			slog.Warn("old_index_cleanup_failed", slog.String("path", old), slog.String("error", err.Error()))
		}
	}
	return nil
}

func writeError(msg string, err error) error {
	if dverrors.GetCode(err) != "" {
		return err
	}
	return dverrors.New(dverrors.ErrCodeIndexWrite, msg, err)
}

// Index is a persisted index opened for reading.
type Index struct {
	Dir      string
	Manifest Manifest
	Vectors  *HNSWStore
	Docs     *DocStore
}

// Hit is a search result joined with its chunk.
type Hit struct {
	Chunk *StoredChunk
	Score float32
}

// Open loads the manifest, graph and docstore from dir.
func Open(ctx context.Context, dir string) (*Index, error) {
	m, err := ReadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	vectors, err := NewHNSWStore(DefaultVectorStoreConfig(m.Dimensions))
	if err != nil {
		return nil, err
	}
	if err := vectors.Load(filepath.Join(dir, IndexFile)); err != nil {
		return nil, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to load vector index", err)
	}

	docs, err := OpenDocStore(ctx, filepath.Join(dir, DocStoreFile))
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}

	return &Index{Dir: dir, Manifest: m, Vectors: vectors, Docs: docs}, nil
}

// Verify checks that graph, docstore and manifest agree.
func (ix *Index) Verify(ctx context.Context) error {
	docs, err := ix.Docs.Count(ctx)
	if err != nil {
		return err
	}
	vecs := ix.Vectors.Count()
	cfg := ix.Vectors.Config()

	if vecs != docs || vecs != ix.Manifest.Vectors || docs != ix.Manifest.Chunks {
		return dverrors.New(dverrors.ErrCodeCountMismatch,
			fmt.Sprintf("index is inconsistent: %d vectors, %d chunks, manifest says %d/%d",
				vecs, docs, ix.Manifest.Vectors, ix.Manifest.Chunks), nil).
			WithSuggestion("rebuild the index with docvec build")
	}
	if cfg.Dimensions != ix.Manifest.Dimensions {
		return dverrors.New(dverrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("graph has %d dimensions, manifest says %d", cfg.Dimensions, ix.Manifest.Dimensions), nil)
	}
	return nil
}

// Search returns the k chunks nearest to query.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	results, err := ix.Vectors.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		c, err := ix.Docs.Get(ctx, r.Key)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Chunk: c, Score: r.Score})
	}
	return hits, nil
}

// Close releases the graph and the docstore.
func (ix *Index) Close() error {
	_ = ix.Vectors.Close()
	return ix.Docs.Close()
}
