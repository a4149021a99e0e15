// Package config provides configuration loading for ragguard.
//
// Configuration is layered: hardcoded defaults, an optional YAML file,
// an optional .env file, then process environment variables. The index
// credentials and the language-model key are required; their absence is
// reported as a ConfigurationError and is fatal at startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete ragguard configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Index         IndexConfig         `koanf:"index"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Bench         BenchConfig         `koanf:"bench"`
	Access        map[string][]string `koanf:"access"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// IndexConfig selects and configures the encrypted index backend.
type IndexConfig struct {
	Backend   string   `koanf:"backend"` // "cyborg" or "qdrant"
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	IndexKey  Secret   `koanf:"index_key"`
	IndexName string   `koanf:"index_name"`
	Timeout   Duration `koanf:"timeout"`
}

// QdrantConfig holds settings for the gRPC Qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // "fastembed" or "tei"
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig holds the answer-synthesis model configuration.
type LLMConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
}

// RetrievalConfig controls the query path.
type RetrievalConfig struct {
	OverFetch int `koanf:"over_fetch"`
}

// IngestConfig controls document chunking.
type IngestConfig struct {
	ChunkWords int `koanf:"chunk_words"`
}

// BenchConfig holds latency benchmark settings.
type BenchConfig struct {
	Workers          int     `koanf:"workers"`
	Repetitions      int     `koanf:"repetitions"`
	RequestsPerQuery int     `koanf:"requests_per_query"`
	TopK             int     `koanf:"top_k"`
	RatePerSecond    float64 `koanf:"rate_per_second"`
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	ServiceName     string `koanf:"service_name"`
}

// ConfigurationError reports a missing or invalid required setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration: %s is required", e.Key)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// MinOverFetch is the smallest accepted retrieval.over_fetch. Answers use
// about four fragments, and the over-fetch must exceed that.
const MinOverFetch = 5

// Backend names.
const (
	BackendCyborg = "cyborg"
	BackendQdrant = "qdrant"
)

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the settings every ragguard process needs: the index
// connection and its credentials. Missing values yield *ConfigurationError.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, &ConfigurationError{Key: "server.http_port", Reason: fmt.Sprintf("invalid port %d", c.Server.Port)})
	}

	switch c.Index.Backend {
	case BackendCyborg:
		if c.Index.BaseURL == "" {
			errs = append(errs, &ConfigurationError{Key: "index.base_url"})
		} else if u, err := url.Parse(c.Index.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ConfigurationError{Key: "index.base_url", Reason: "must be an absolute URL"})
		}
		if !c.Index.APIKey.IsSet() {
			errs = append(errs, &ConfigurationError{Key: "index.api_key"})
		}
		if !c.Index.IndexKey.IsSet() {
			errs = append(errs, &ConfigurationError{Key: "index.index_key"})
		}
	case BackendQdrant:
		if c.Qdrant.Host == "" {
			errs = append(errs, &ConfigurationError{Key: "qdrant.host"})
		}
		if c.Qdrant.VectorSize <= 0 {
			errs = append(errs, &ConfigurationError{Key: "qdrant.vector_size", Reason: "must be positive"})
		}
	default:
		errs = append(errs, &ConfigurationError{Key: "index.backend", Reason: fmt.Sprintf("unknown backend %q", c.Index.Backend)})
	}

	if c.Index.IndexName == "" {
		errs = append(errs, &ConfigurationError{Key: "index.index_name"})
	}
	if c.Index.Timeout.Duration() <= 0 {
		errs = append(errs, &ConfigurationError{Key: "index.timeout", Reason: "must be positive"})
	}
	if c.Retrieval.OverFetch < MinOverFetch {
		errs = append(errs, &ConfigurationError{Key: "retrieval.over_fetch", Reason: fmt.Sprintf("must be at least %d, got %d", MinOverFetch, c.Retrieval.OverFetch)})
	}
	if c.Ingest.ChunkWords <= 0 {
		errs = append(errs, &ConfigurationError{Key: "ingest.chunk_words", Reason: "must be positive"})
	}
	for role, labels := range c.Access {
		if len(labels) == 0 {
			errs = append(errs, &ConfigurationError{Key: "access." + role, Reason: "label set cannot be empty"})
		}
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the settings needed by processes that synthesize answers.
func (c *Config) ValidateLLM() error {
	var errs []error
	if !c.LLM.APIKey.IsSet() {
		errs = append(errs, &ConfigurationError{Key: "llm.api_key"})
	}
	if c.LLM.Model == "" {
		errs = append(errs, &ConfigurationError{Key: "llm.model"})
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, &ConfigurationError{Key: "llm.base_url"})
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, &ConfigurationError{Key: "llm.temperature", Reason: "must be within [0, 2]"})
	}
	return errors.Join(errs...)
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendCyborg
	}
	cfg.Index.Backend = strings.ToLower(cfg.Index.Backend)
	if cfg.Index.BaseURL == "" {
		cfg.Index.BaseURL = "http://localhost:8000"
	}
	if cfg.Index.IndexName == "" {
		cfg.Index.IndexName = "hr_policies"
	}
	if cfg.Index.Timeout == 0 {
		cfg.Index.Timeout = Duration(30 * time.Second)
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "hr_policies"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // all-MiniLM-L6-v2 dimensions
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama-3.3-70b-versatile"
	}

	if cfg.Retrieval.OverFetch == 0 {
		cfg.Retrieval.OverFetch = 8
	}
	if cfg.Ingest.ChunkWords == 0 {
		cfg.Ingest.ChunkWords = 500
	}

	if cfg.Bench.Workers == 0 {
		cfg.Bench.Workers = 4
	}
	if cfg.Bench.Repetitions == 0 {
		cfg.Bench.Repetitions = 10
	}
	if cfg.Bench.RequestsPerQuery == 0 {
		cfg.Bench.RequestsPerQuery = 5
	}
	if cfg.Bench.TopK == 0 {
		cfg.Bench.TopK = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "ragguard"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
}
