package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// HNSWStore is an approximate nearest-neighbour index over uint64 keys,
// backed by the pure Go coder/hnsw graph.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	closed bool
}

// hnswMetadata is the gob sidecar written next to the exported graph.
type hnswMetadata struct {
	Config VectorStoreConfig
	Count  int
}

// NewHNSWStore creates a new HNSW-based vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph, err := newGraph(cfg)
	if err != nil {
		return nil, err
	}
	return &HNSWStore{graph: graph, config: cfg}, nil
}

func newGraph(cfg VectorStoreConfig) (*hnsw.Graph[uint64], error) {
	graph := hnsw.NewGraph[uint64]()

	switch cfg.Metric {
	case MetricCosine:
		graph.Distance = hnsw.CosineDistance
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		return nil, dverrors.ConfigError(fmt.Sprintf("unknown metric %q (use cos or l2)", cfg.Metric), nil)
	}

	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph, nil
}

// Add inserts vectors under the given keys. Keys must be new.
func (s *HNSWStore) Add(ctx context.Context, keys []uint64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return dverrors.New(dverrors.ErrCodeCountMismatch,
			fmt.Sprintf("keys and vectors length mismatch: %d vs %d", len(keys), len(vectors)), nil)
	}
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dverrors.InternalError("vector store is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return dimensionError(s.config.Dimensions, len(v))
		}
	}

	nodes := make([]hnsw.Node[uint64], 0, len(keys))
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, exists := s.graph.Lookup(key); exists {
			return dverrors.InternalError(fmt.Sprintf("duplicate vector key %d", key), nil)
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}
		nodes = append(nodes, hnsw.MakeNode(key, vec))
	}
	s.graph.Add(nodes...)

	return nil
}

// Search finds k nearest neighbors to query vector.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, dverrors.InternalError("vector store is closed", nil)
	}
	if len(query) != s.config.Dimensions {
		return nil, dimensionError(s.config.Dimensions, len(query))
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == MetricCosine {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			Key:      node.Key,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return results, nil
}

// Contains checks if key exists.
func (s *HNSWStore) Contains(key uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, ok := s.graph.Lookup(key)
	return ok
}

// Count returns number of vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return s.graph.Len()
}

// Config returns the store configuration.
func (s *HNSWStore) Config() VectorStoreConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Save writes the graph to path and its metadata to path+".meta".
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return dverrors.InternalError("vector store is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := s.graph.Export(w); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := s.saveMetadata(path + IndexMetaExt); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWStore) saveMetadata(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{Config: s.config, Count: s.graph.Len()}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close metadata file", slog.String("error", closeErr.Error()))
		}
		return fmt.Errorf("encode metadata: %w", err)
	}
	return file.Close()
}

// Load replaces the store's contents with the graph saved at path. The
// configuration stored in the metadata wins over the one the store was
// created with.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dverrors.InternalError("vector store is closed", nil)
	}

	meta, err := readMetadata(path + IndexMetaExt)
	if err != nil {
		return err
	}

	graph, err := newGraph(meta.Config)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	if graph.Len() != meta.Count {
		return fmt.Errorf("graph holds %d vectors, metadata says %d", graph.Len(), meta.Count)
	}

	s.graph = graph
	s.config = meta.Config
	return nil
}

func readMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata

	file, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

func dimensionError(expected, got int) error {
	return dverrors.New(dverrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector has %d dimensions, index expects %d", got, expected),
		ErrDimensionMismatch{Expected: expected, Got: got})
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// For cosine distance: score = 1 - distance/2 (distance ranges 0-2)
// For L2 distance: score = 1 / (1 + distance)
func distanceToScore(distance float32, metric string) float32 {
	if metric == MetricEuclidean {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
