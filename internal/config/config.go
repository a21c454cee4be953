package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docvec/internal/logging"
)

// EnvPrefix is the prefix for environment variable overrides (DOCVEC_*).
const EnvPrefix = "DOCVEC"

// ProjectConfigName is the per-directory configuration file.
const ProjectConfigName = ".docvec.yaml"

// Config is the complete docvec configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Loader     LoaderConfig     `yaml:"loader" json:"loader"`
	Splitter   SplitterConfig   `yaml:"splitter" json:"splitter"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Publish    PublishConfig    `yaml:"publish" json:"publish"`
}

// PathsConfig locates the input documents and the output index.
type PathsConfig struct {
	// Docs is the directory of documents to vectorize.
	Docs string `yaml:"docs" json:"docs"`
	// Output is the directory the index is written to. It is replaced
	// wholesale on every build.
	Output string `yaml:"output" json:"output"`
	// Glob selects files relative to Docs. "**" spans directories.
	Glob string `yaml:"glob" json:"glob"`
	// Exclude patterns are matched with the same syntax as Glob.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// LoaderConfig tunes document loading.
type LoaderConfig struct {
	// SkipUnsupported skips binary or non-UTF-8 files with a warning
	// instead of failing the build.
	SkipUnsupported bool `yaml:"skip_unsupported" json:"skip_unsupported"`
	// LoadHidden includes files and directories whose names start with a
	// dot. They are skipped by default.
	LoadHidden bool `yaml:"load_hidden" json:"load_hidden"`
}

// SplitterConfig configures recursive character splitting. Sizes are in
// characters.
type SplitterConfig struct {
	ChunkSize    int      `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap" json:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty" json:"separators,omitempty"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "ollama", "openai" or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions is the requested vector size. 0 means the model default.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU capacity for repeated texts. Zero disables the
	// cache.
	CacheSize    int    `yaml:"cache_size" json:"cache_size"`
	DisableCache bool   `yaml:"disable_cache" json:"disable_cache"`
	Timeout      string `yaml:"timeout" json:"timeout"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	// OpenAIAPIKey only comes from the environment.
	OpenAIAPIKey string `yaml:"-" json:"-"`
}

// IndexConfig configures the HNSW graph.
type IndexConfig struct {
	// Metric is "cos" or "l2".
	Metric   string `yaml:"metric" json:"metric"`
	M        int    `yaml:"m" json:"m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// File receives the metrics in text exposition format after a build.
	// Empty disables the export.
	File string `yaml:"file" json:"file"`
}

// PublishConfig configures uploading a finished index.
type PublishConfig struct {
	S3 S3Config `yaml:"s3" json:"s3"`
}

// S3Config locates the bucket for published indexes. Endpoint is set for
// S3-compatible stores (MinIO, R2) and switches to path-style addressing.
type S3Config struct {
	Bucket   string `yaml:"bucket" json:"bucket"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	AccessKeyID     string `yaml:"-" json:"-"`
	SecretAccessKey string `yaml:"-" json:"-"`
}

// NewConfig returns a Config with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Docs:    "docs",
			Output:  "my_vector_db",
			Glob:    "**/*.*",
			Exclude: []string{"**/.git/**"},
		},
		Splitter: SplitterConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "all-minilm",
			BatchSize: 32,
			CacheSize: 10000,
			Timeout:   "60s",
		},
		Index: IndexConfig{
			Metric:   "cos",
			M:        16,
			EfSearch: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Publish: PublishConfig{
			S3: S3Config{Region: "us-east-1"},
		},
	}
}

// GetUserConfigPath returns the user-wide configuration file:
//   - $XDG_CONFIG_HOME/docvec/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/docvec/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docvec", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docvec", "config.yaml")
	}
	return filepath.Join(home, ".config", "docvec", "config.yaml")
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	configFile string
	skipEnv    bool
}

// WithConfigFile loads path instead of searching dir for .docvec.yaml.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithoutEnv ignores .env files and DOCVEC_* variables.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) {
		o.skipEnv = true
	}
}

// Load loads configuration for a build run from dir. Layers, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/docvec/config.yaml)
//  3. Project config (.docvec.yaml in dir, or the WithConfigFile path)
//  4. dir/.env (never overrides variables already set)
//  5. Environment variables (DOCVEC_*)
//
// CLI flags are applied by the caller on top of the result.
func Load(dir string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if o.configFile != "" {
		if !fileExists(o.configFile) {
			return nil, fmt.Errorf("config file not found: %s", o.configFile)
		}
		if err := cfg.loadYAML(o.configFile); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	if !o.skipEnv {
		if err := loadDotEnv(dir); err != nil {
			return nil, err
		}
		if err := cfg.applyEnvOverrides(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir loads .docvec.yaml or .docvec.yml from dir, if present.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{ProjectConfigName, ".docvec.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)

	// Zero and false values below are meaningful, so look at which keys
	// were actually written.
	var raw struct {
		Splitter   map[string]any `yaml:"splitter"`
		Loader     map[string]any `yaml:"loader"`
		Embeddings map[string]any `yaml:"embeddings"`
	}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if _, ok := raw.Splitter["chunk_overlap"]; ok {
			c.Splitter.ChunkOverlap = parsed.Splitter.ChunkOverlap
		}
		if _, ok := raw.Loader["skip_unsupported"]; ok {
			c.Loader.SkipUnsupported = parsed.Loader.SkipUnsupported
		}
		if _, ok := raw.Loader["load_hidden"]; ok {
			c.Loader.LoadHidden = parsed.Loader.LoadHidden
		}
		if _, ok := raw.Embeddings["cache_size"]; ok {
			c.Embeddings.CacheSize = parsed.Embeddings.CacheSize
		}
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.Docs != "" {
		c.Paths.Docs = other.Paths.Docs
	}
	if other.Paths.Output != "" {
		c.Paths.Output = other.Paths.Output
	}
	if other.Paths.Glob != "" {
		c.Paths.Glob = other.Paths.Glob
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = appendUnique(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Loader.SkipUnsupported {
		c.Loader.SkipUnsupported = true
	}
	if other.Loader.LoadHidden {
		c.Loader.LoadHidden = true
	}

	if other.Splitter.ChunkSize != 0 {
		c.Splitter.ChunkSize = other.Splitter.ChunkSize
	}
	if other.Splitter.ChunkOverlap != 0 {
		c.Splitter.ChunkOverlap = other.Splitter.ChunkOverlap
	}
	if len(other.Splitter.Separators) > 0 {
		c.Splitter.Separators = other.Splitter.Separators
	}

	e := other.Embeddings
	if e.Provider != "" {
		c.Embeddings.Provider = e.Provider
	}
	if e.Model != "" {
		c.Embeddings.Model = e.Model
	}
	if e.Dimensions != 0 {
		c.Embeddings.Dimensions = e.Dimensions
	}
	if e.BatchSize != 0 {
		c.Embeddings.BatchSize = e.BatchSize
	}
	if e.CacheSize != 0 {
		c.Embeddings.CacheSize = e.CacheSize
	}
	if e.DisableCache {
		c.Embeddings.DisableCache = true
	}
	if e.Timeout != "" {
		c.Embeddings.Timeout = e.Timeout
	}
	if e.OllamaHost != "" {
		c.Embeddings.OllamaHost = e.OllamaHost
	}
	if e.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = e.OpenAIBaseURL
	}

	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Metrics.File != "" {
		c.Metrics.File = other.Metrics.File
	}

	s3 := other.Publish.S3
	if s3.Bucket != "" {
		c.Publish.S3.Bucket = s3.Bucket
	}
	if s3.Prefix != "" {
		c.Publish.S3.Prefix = s3.Prefix
	}
	if s3.Region != "" {
		c.Publish.S3.Region = s3.Region
	}
	if s3.Endpoint != "" {
		c.Publish.S3.Endpoint = s3.Endpoint
	}
}

// envOverrides is populated by envconfig from DOCVEC_* variables. Pointer
// fields distinguish "unset" from an explicit zero.
type envOverrides struct {
	Docs            string `split_words:"true"`
	Output          string `split_words:"true"`
	Glob            string `split_words:"true"`
	SkipUnsupported *bool  `split_words:"true"`
	LoadHidden      *bool  `split_words:"true"`
	ChunkSize       *int   `split_words:"true"`
	ChunkOverlap    *int   `split_words:"true"`

	EmbeddingsProvider     string `split_words:"true"`
	EmbeddingsModel        string `split_words:"true"`
	EmbeddingsDimensions   *int   `split_words:"true"`
	EmbeddingsBatchSize    *int   `split_words:"true"`
	EmbeddingsCacheSize    *int   `split_words:"true"`
	EmbeddingsDisableCache *bool  `split_words:"true"`
	OllamaHost             string `split_words:"true"`

	// Tagged names fall back to the unprefixed variable, so the
	// conventional OPENAI_* variables work too.
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`

	LogLevel    string `split_words:"true"`
	MetricsFile string `split_words:"true"`

	S3Bucket          string `split_words:"true"`
	S3Prefix          string `split_words:"true"`
	S3Region          string `split_words:"true"`
	S3Endpoint        string `split_words:"true"`
	S3AccessKeyID     string `split_words:"true"`
	S3SecretAccessKey string `split_words:"true"`
}

// applyEnvOverrides applies DOCVEC_* environment variables.
func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read %s_* environment: %w", EnvPrefix, err)
	}

	setString(&c.Paths.Docs, env.Docs)
	setString(&c.Paths.Output, env.Output)
	setString(&c.Paths.Glob, env.Glob)
	if env.SkipUnsupported != nil {
		c.Loader.SkipUnsupported = *env.SkipUnsupported
	}
	if env.LoadHidden != nil {
		c.Loader.LoadHidden = *env.LoadHidden
	}
	if env.ChunkSize != nil {
		c.Splitter.ChunkSize = *env.ChunkSize
	}
	if env.ChunkOverlap != nil {
		c.Splitter.ChunkOverlap = *env.ChunkOverlap
	}

	setString(&c.Embeddings.Provider, env.EmbeddingsProvider)
	setString(&c.Embeddings.Model, env.EmbeddingsModel)
	if env.EmbeddingsDimensions != nil {
		c.Embeddings.Dimensions = *env.EmbeddingsDimensions
	}
	if env.EmbeddingsBatchSize != nil {
		c.Embeddings.BatchSize = *env.EmbeddingsBatchSize
	}
	if env.EmbeddingsCacheSize != nil {
		c.Embeddings.CacheSize = *env.EmbeddingsCacheSize
	}
	if env.EmbeddingsDisableCache != nil {
		c.Embeddings.DisableCache = *env.EmbeddingsDisableCache
	}
	setString(&c.Embeddings.OllamaHost, env.OllamaHost)
	setString(&c.Embeddings.OpenAIBaseURL, env.OpenAIBaseURL)
	setString(&c.Embeddings.OpenAIAPIKey, env.OpenAIAPIKey)

	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Metrics.File, env.MetricsFile)

	setString(&c.Publish.S3.Bucket, env.S3Bucket)
	setString(&c.Publish.S3.Prefix, env.S3Prefix)
	setString(&c.Publish.S3.Region, env.S3Region)
	setString(&c.Publish.S3.Endpoint, env.S3Endpoint)
	setString(&c.Publish.S3.AccessKeyID, env.S3AccessKeyID)
	setString(&c.Publish.S3.SecretAccessKey, env.S3SecretAccessKey)

	return nil
}

// loadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.Docs == "" {
		return fmt.Errorf("paths.docs must not be empty")
	}
	if c.Paths.Output == "" {
		return fmt.Errorf("paths.output must not be empty")
	}
	if c.Paths.Glob == "" {
		return fmt.Errorf("paths.glob must not be empty")
	}

	if c.Splitter.ChunkSize <= 0 {
		return fmt.Errorf("splitter.chunk_size must be positive, got %d", c.Splitter.ChunkSize)
	}
	if c.Splitter.ChunkOverlap < 0 {
		return fmt.Errorf("splitter.chunk_overlap must be non-negative, got %d", c.Splitter.ChunkOverlap)
	}
	if c.Splitter.ChunkOverlap > c.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap (%d) must not exceed chunk_size (%d)",
			c.Splitter.ChunkOverlap, c.Splitter.ChunkSize)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	switch strings.ToLower(c.Index.Metric) {
	case "cos", "l2":
	default:
		return fmt.Errorf("index.metric must be 'cos' or 'l2', got %q", c.Index.Metric)
	}
	if c.Index.M <= 0 || c.Index.EfSearch <= 0 {
		return fmt.Errorf("index.m and index.ef_search must be positive")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			dst = append(dst, v)
			seen[v] = true
		}
	}
	return dst
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
