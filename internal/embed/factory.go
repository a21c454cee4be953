package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses any OpenAI-compatible embeddings API
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses offline hash-based embeddings
	ProviderStatic ProviderType = "static"
)

// Options selects and configures a provider.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Timeout    time.Duration

	// CacheSize bounds the LRU cache. Zero, or DisableCache, skips the
	// wrapper.
	CacheSize    int
	DisableCache bool

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// NewEmbedder creates the configured provider, wrapped in an LRU cache unless
// CacheSize is zero or DisableCache is set. There is no fallback between providers: an unreachable provider is
// an error.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch opts.Provider {
	case ProviderOllama, "":
		cfg := DefaultOllamaConfig()
		if opts.OllamaHost != "" {
			cfg.Host = opts.OllamaHost
		}
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		cfg.Dimensions = opts.Dimensions
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		embedder, err = NewOllamaEmbedder(ctx, cfg)

	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(ctx, OpenAIConfig{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
		})

	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)

	default:
		return nil, dverrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", opts.Provider), nil).
			WithSuggestion("use one of: " + strings.Join(ValidProviders(), ", "))
	}
	if err != nil {
		return nil, err
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(ProviderOf(embedder))),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.Bool("cache", opts.cacheEnabled()))

	if opts.cacheEnabled() {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}

func (o Options) cacheEnabled() bool {
	return !o.DisableCache && o.CacheSize > 0
}

// ParseProvider converts a string to ProviderType. Unknown names are returned
// as-is so NewEmbedder can reject them.
func ParseProvider(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderOpenAI),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// ProviderOf reports which provider backs an embedder, looking through the
// cache wrapper. Unknown implementations report "".
func ProviderOf(e Embedder) ProviderType {
	if cached, ok := e.(*CachedEmbedder); ok {
		e = cached.Inner()
	}
	switch e.(type) {
	case *OllamaEmbedder:
		return ProviderOllama
	case *OpenAIEmbedder:
		return ProviderOpenAI
	case *StaticEmbedder:
		return ProviderStatic
	default:
		return ""
	}
}
