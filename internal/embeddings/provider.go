package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragguard/internal/config"
	"go.uber.org/zap"
)

const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"

	// DefaultModel matches the model used to build the policy index.
	DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder maps text to vectors.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a single question.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that owns resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// modelDimensions lists known models and their output size. Keys are
// matched case-insensitively.
var modelDimensions = map[string]int{
	"baai/bge-small-en-v1.5":                 384,
	"baai/bge-small-en":                      384,
	"baai/bge-base-en-v1.5":                  768,
	"baai/bge-base-en":                       768,
	"baai/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-minilm-l6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-minilm-l6-v2":                  384,
}

// DimensionForModel returns the embedding dimension for a model name.
// Unknown models fall back on the size hint in their name, then 384.
func DimensionForModel(model string) int {
	m := strings.ToLower(model)
	if dim, ok := modelDimensions[m]; ok {
		return dim
	}
	switch {
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider builds the provider selected by cfg.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderFastEmbed, "":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    model,
			CacheDir: cfg.CacheDir,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderTEI:
		svc, err := NewService(Config{BaseURL: cfg.BaseURL, Model: model, Logger: logger})
		if err != nil {
			return nil, err
		}
		return &teiProvider{Service: svc, dimension: DimensionForModel(model)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

type teiProvider struct {
	*Service
	dimension int
}

func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op; TEI holds no local resources.
func (t *teiProvider) Close() error {
	return nil
}
