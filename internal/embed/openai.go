package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// DefaultOpenAIModel is used when the openai provider is selected without a
// model.
const DefaultOpenAIModel = "text-embedding-3-small"

// openAIModelDims lists native output sizes for well-known models, used when
// no dimension is requested.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server (empty = api.openai.com).
	BaseURL string
	Model   string
	// Dimensions is sent as the requested output size when > 0.
	Dimensions int
	Timeout    time.Duration
	// SkipProbe trusts Dimensions instead of probing unknown models.
	SkipProbe bool
}

// OpenAIEmbedder calls the /embeddings endpoint through go-openai.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	request int // requested dimensions, 0 = model default
	dims    int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the client and settles the output dimension,
// probing the server when neither the config nor the model table knows it.
func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, dverrors.ConfigError("openai provider needs an API key", nil).
			WithSuggestion("set OPENAI_API_KEY or DOCVEC_OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	e := &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   openai.EmbeddingModel(cfg.Model),
		request: cfg.Dimensions,
		dims:    cfg.Dimensions,
		timeout: cfg.Timeout,
	}
	if e.dims == 0 {
		e.dims = openAIModelDims[cfg.Model]
	}
	if e.dims == 0 && !cfg.SkipProbe {
		vecs, err := e.create(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, err
		}
		e.dims = len(vecs[0])
	}

	slog.Debug("openai_embedder_ready",
		slog.String("base_url", clientCfg.BaseURL),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", e.dims))
	return e, nil
}

// Embed generates embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errClosed
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vecs, err := e.create(ctx, texts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := checkBatch(len(texts), vecs, e.dims); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (e *OpenAIEmbedder) create(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.request > 0 {
		req.Dimensions = e.request
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(reqCtx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, dverrors.New(dverrors.ErrCodeEmbeddingFailed, "empty embedding response", nil)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = normalizeVector(v)
	}

	slog.Debug("openai_embed_batch",
		slog.Int("texts", len(texts)),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return vecs, nil
}

// parseAPIError maps go-openai failures onto docvec error codes.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return dverrors.New(dverrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding API error %d: %s", reqErr.HTTPStatusCode, detail), err).
			WithDetail("status", fmt.Sprint(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return dverrors.New(dverrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message), err).
			WithDetail("status", fmt.Sprint(apiErr.HTTPStatusCode))
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return dverrors.New(dverrors.ErrCodeNetworkTimeout, "embedding request timed out", err)
	}
	return dverrors.New(dverrors.ErrCodeNetworkUnavailable, "embedding request failed", err)
}

// extractDetail pulls the "detail" field some compatible servers use.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

// Dimensions returns the embedding dimension
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string {
	return string(e.model)
}

// Available lists models as a cheap reachability check.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// Close marks the embedder closed; the client holds no resources of its own.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
