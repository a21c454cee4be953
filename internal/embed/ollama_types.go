package embed

import "time"

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is all-MiniLM-L6-v2 as published in the Ollama library.
	DefaultOllamaModel = "all-minilm"

	// OllamaConnectTimeout bounds the startup model check and probe.
	OllamaConnectTimeout = 30 * time.Second

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: all-minilm)
	Model string

	// Dimensions overrides auto-detection (0 = probe the model)
	Dimensions int

	// Timeout for a single embed request (default: 60s)
	Timeout time.Duration

	// ConnectTimeout for the startup check (default: 30s)
	ConnectTimeout time.Duration

	// SkipHealthCheck skips the model check and dimension probe (for testing)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		Timeout:        DefaultTimeout,
		ConnectTimeout: OllamaConnectTimeout,
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse is the Ollama /api/embed response
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the Ollama /api/tags response
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// ollamaError is the body Ollama sends with non-200 responses.
type ollamaError struct {
	Error string `json:"error"`
}
