package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (magnitude(a) * magnitude(b))
}

func TestStaticEmbedder_DefaultDimensions(t *testing.T) {
	e := NewStaticEmbedder(0)

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static-384", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestStaticEmbedder_DeterministicAndNormalized(t *testing.T) {
	// Given: the same text embedded twice
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	// When: embedding
	a, err := e.Embed(ctx, "Deploying the service to production")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Deploying the service to production")
	require.NoError(t, err)

	// Then: identical unit vectors of the configured size
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, magnitude(a), 1e-5)
}

func TestStaticEmbedder_SimilarTextScoresHigher(t *testing.T) {
	e := NewStaticEmbedder(StaticDimensions)
	ctx := context.Background()

	query, _ := e.Embed(ctx, "how to rotate database credentials")
	near, _ := e.Embed(ctx, "Rotating credentials for the database every month")
	far, _ := e.Embed(ctx, "The quarterly marketing offsite is in Lisbon")

	assert.Greater(t, cosine(query, near), cosine(query, far))
}

func TestStaticEmbedder_BlankTextIsUnitVector(t *testing.T) {
	// Given: blank inputs of different shapes
	e := NewStaticEmbedder(16)
	ctx := context.Background()

	// When: embedding them
	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	spaces, err := e.Embed(ctx, "  \n\t")
	require.NoError(t, err)

	// Then: both get the same unit vector, so cosine distance stays defined
	assert.InDelta(t, 1.0, magnitude(empty), 1e-5)
	assert.Equal(t, empty, spaces)
}

func TestStaticEmbedder_PunctuationOnlyIsUnitVector(t *testing.T) {
	e := NewStaticEmbedder(16)

	v, err := e.Embed(context.Background(), "--- * ---")

	require.NoError(t, err)
	assert.InDelta(t, 1.0, magnitude(v), 1e-5)
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder(64)
	ctx := context.Background()
	texts := []string{"alpha", "beta gamma", "", "ünïcode text"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], text)
	}
}

func TestStaticEmbedder_Closed(t *testing.T) {
	e := NewStaticEmbedder(8)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_BatchHonorsCancellation(t *testing.T) {
	e := NewStaticEmbedder(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedBatch(ctx, []string{"x"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42", "café"}, tokenize("Hello, World! 42 café"))
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams([]rune("abcd"), 3))
	assert.Empty(t, extractNgrams([]rune("ab"), 3))
	assert.Equal(t, []string{"héj"}, extractNgrams(normalizeForNgrams("H-é-j"), 3))
}
