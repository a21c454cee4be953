package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed. Each embedding is
// [len(text), 1, 0] so order can be checked after normalization.
type fakeOllama struct {
	models     []string
	embedCalls atomic.Int64
	dropOne    bool
	delay      time.Duration
	status     int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		var resp OllamaModelListResponse
		for _, m := range f.models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)

	case "/api/embed":
		f.embedCalls.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			_ = json.NewEncoder(w).Encode(ollamaError{Error: "model crashed"})
			return
		}
		var req OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := OllamaEmbedResponse{Model: req.Model}
		for _, text := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{float64(len(text)), 1, 0})
		}
		if f.dropOne && len(resp.Embeddings) > 1 {
			resp.Embeddings = resp.Embeddings[1:]
		}
		_ = json.NewEncoder(w).Encode(resp)

	default:
		http.NotFound(w, r)
	}
}

func startOllama(t *testing.T, f *fakeOllama) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestOllamaEmbedder_ProbesDimensionsAndResolvesTag(t *testing.T) {
	// Given: a server with all-minilm:latest installed
	fake := &fakeOllama{models: []string{"nomic-embed-text:latest", "all-minilm:latest"}}
	host := startOllama(t, fake)

	// When: creating an embedder for the bare model name
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host + "/", Model: "all-minilm"})

	// Then: the tagged name is used and dimensions come from the probe
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	assert.Equal(t, "all-minilm:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, int64(1), fake.embedCalls.Load())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_ModelNotInstalled(t *testing.T) {
	host := startOllama(t, &fakeOllama{models: []string{"llama3:8b"}})

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host, Model: "all-minilm"})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeEmbeddingFailed, dverrors.GetCode(err))
	de, ok := dverrors.As(err)
	require.True(t, ok)
	assert.Contains(t, de.Suggestion, "ollama pull all-minilm")
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeNetworkUnavailable, dverrors.GetCode(err))
}

func TestOllamaEmbedder_EmbedBatchKeepsOrderAndNormalizes(t *testing.T) {
	// Given: a ready embedder
	host := startOllama(t, &fakeOllama{models: []string{"all-minilm:latest"}})
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host})
	require.NoError(t, err)

	// When: embedding texts of different lengths
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "abcd", "ab"})

	// Then: one unit vector per input, in input order
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, magnitude(v), 1e-6)
	}
	ratio := func(v []float32) float32 { return v[0] / v[1] }
	assert.InDelta(t, 1, ratio(vecs[0]), 1e-5)
	assert.InDelta(t, 4, ratio(vecs[1]), 1e-5)
	assert.InDelta(t, 2, ratio(vecs[2]), 1e-5)
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	host := startOllama(t, &fakeOllama{models: []string{"all-minilm"}, dropOne: true})
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeCountMismatch, dverrors.GetCode(err))
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	host := startOllama(t, &fakeOllama{})
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host, Dimensions: 384, SkipHealthCheck: true})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeDimensionMismatch, dverrors.GetCode(err))
}

func TestOllamaEmbedder_ServerErrorIsNotRetried(t *testing.T) {
	fake := &fakeOllama{status: http.StatusInternalServerError}
	host := startOllama(t, fake)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeEmbeddingFailed, dverrors.GetCode(err))
	assert.Contains(t, err.Error(), "model crashed")
	assert.Equal(t, int64(1), fake.embedCalls.Load())
}

func TestOllamaEmbedder_Timeout(t *testing.T) {
	host := startOllama(t, &fakeOllama{delay: 300 * time.Millisecond})
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: host, Dimensions: 3, Timeout: 20 * time.Millisecond, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"x"})

	require.Error(t, err)
	assert.Equal(t, dverrors.ErrCodeNetworkTimeout, dverrors.GetCode(err))
}

func TestOllamaEmbedder_ParentCancellationWins(t *testing.T) {
	host := startOllama(t, &fakeOllama{delay: 300 * time.Millisecond})
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: host, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.EmbedBatch(ctx, []string{"x"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaEmbedder_Closed(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{SkipHealthCheck: true, Dimensions: 3})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"x"})

	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
