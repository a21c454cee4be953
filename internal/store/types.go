// Package store persists a built index: the HNSW vector graph, the SQLite
// docstore that maps graph keys back to chunks, and a JSON manifest.
package store

import (
	"fmt"
	"time"
)

// File names inside an index directory.
const (
	IndexFile    = "index.hnsw"
	IndexMetaExt = ".meta"
	DocStoreFile = "docstore.db"
	ManifestFile = "manifest.json"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

// Metric names accepted by the vector store.
const (
	MetricCosine    = "cos"
	MetricEuclidean = "l2"
)

// StoredChunk is one docstore row. Key is the chunk's HNSW graph key.
type StoredChunk struct {
	Key      uint64
	ID       string
	Source   string
	Seq      int
	Content  string
	Metadata map[string]string
}

// SourceCount is the number of chunks stored for one source document.
type SourceCount struct {
	Source string
	Chunks int
}

// Manifest describes a persisted index.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	BuildID       string    `json:"build_id"`
	CreatedAt     time.Time `json:"created_at"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Dimensions    int       `json:"dimensions"`
	Metric        string    `json:"metric"`
	Documents     int       `json:"documents"`
	Chunks        int       `json:"chunks"`
	Vectors       int       `json:"vectors"`
	ChunkSize     int       `json:"chunk_size"`
	ChunkOverlap  int       `json:"chunk_overlap"`
	DocsPath      string    `json:"docs_path"`
	DocvecVersion string    `json:"docvec_version"`
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	Key      uint64
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (384 for all-MiniLM-L6-v2)
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     MetricCosine,
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
