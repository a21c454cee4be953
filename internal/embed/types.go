// Package embed turns chunk text into fixed-dimension vectors.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// Common embedding constants
const (
	// DefaultBatchSize is how many texts the runner sends per request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the default output size of the static embedder,
	// matching all-MiniLM-L6-v2.
	StaticDimensions = 384
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// errClosed is returned by every provider after Close.
var errClosed = dverrors.InternalError("embedder is closed", nil)

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// checkBatch verifies a provider answered with one vector of the expected
// size per input.
func checkBatch(texts int, vectors [][]float32, dims int) error {
	if len(vectors) != texts {
		return dverrors.New(dverrors.ErrCodeCountMismatch,
			fmt.Sprintf("embedding provider returned %d vectors for %d texts", len(vectors), texts), nil)
	}
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return dverrors.New(dverrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has %d dimensions, expected %d", i, len(v), dims), nil)
		}
	}
	return nil
}
