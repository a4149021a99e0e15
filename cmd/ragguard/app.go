package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/config"
	"github.com/fyrsmithlabs/ragguard/internal/embeddings"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/ingest"
	"github.com/fyrsmithlabs/ragguard/internal/logging"
	"github.com/fyrsmithlabs/ragguard/internal/retrieval"
	"github.com/fyrsmithlabs/ragguard/internal/synth"
	"github.com/fyrsmithlabs/ragguard/internal/telemetry"
)

// app holds the process-wide dependencies built from configuration.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	policy  *access.Policy
	closers []func() error
}

type appOptions struct {
	// longRunning keeps the configured log level; one-shot commands log
	// warnings and above unless --verbose is set.
	longRunning bool
	// needIndex validates index settings.
	needIndex bool
	// needLLM validates answer-synthesis settings.
	needLLM bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: configPath, DotenvPath: dotenvPath})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.needIndex {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.needLLM {
		if err := cfg.ValidateLLM(); err != nil {
			return nil, err
		}
	}

	logCfg, err := logging.FromSettings(cfg.Logging, cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	if !opts.longRunning && !verbose && logCfg.Level < zapcore.WarnLevel {
		logCfg.Level = zapcore.WarnLevel
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(terr))
	}

	policy, err := access.DefaultPolicy().WithOverrides(cfg.Access)
	if err != nil {
		return nil, fmt.Errorf("access policy: %w", err)
	}

	return &app{cfg: cfg, logger: logger, tel: tel, policy: policy}, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *app) embedder() (embeddings.Provider, error) {
	p, err := embeddings.NewProvider(a.cfg.Embeddings, a.logger.Underlying().Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// indexClient builds the configured backend. dimension is the embedder's
// output size, checked against the Qdrant collection size.
func (a *app) indexClient(ctx context.Context, dimension int) (index.Client, error) {
	zl := a.logger.Underlying().Named("index")

	switch a.cfg.Index.Backend {
	case config.BackendCyborg:
		c, err := index.NewCyborgClient(index.CyborgConfig{
			BaseURL:   a.cfg.Index.BaseURL,
			APIKey:    a.cfg.Index.APIKey.Value(),
			IndexKey:  a.cfg.Index.IndexKey.Value(),
			IndexName: a.cfg.Index.IndexName,
			Timeout:   a.cfg.Index.Timeout.Duration(),
			Logger:    zl,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendQdrant:
		if dimension > 0 && dimension != a.cfg.Qdrant.VectorSize {
			return nil, &config.ConfigurationError{
				Key:    "qdrant.vector_size",
				Reason: fmt.Sprintf("%d does not match embedding dimension %d", a.cfg.Qdrant.VectorSize, dimension),
			}
		}
		c, err := index.NewQdrantClient(index.QdrantConfig{
			Host:       a.cfg.Qdrant.Host,
			Port:       a.cfg.Qdrant.Port,
			UseTLS:     a.cfg.Qdrant.UseTLS,
			APIKey:     a.cfg.Qdrant.APIKey.Value(),
			Collection: a.cfg.Qdrant.Collection,
			VectorSize: uint64(a.cfg.Qdrant.VectorSize),
			Timeout:    a.cfg.Index.Timeout.Duration(),
			Logger:     zl,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		if err := c.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("preparing collection: %w", err)
		}
		return c, nil
	default:
		return nil, &config.ConfigurationError{Key: "index.backend", Reason: fmt.Sprintf("unknown backend %q", a.cfg.Index.Backend)}
	}
}

func (a *app) enforcer(idx index.Client, emb embeddings.Embedder) (*retrieval.Enforcer, error) {
	s, err := synth.New(synth.Config{
		BaseURL:     a.cfg.LLM.BaseURL,
		Model:       a.cfg.LLM.Model,
		APIKey:      a.cfg.LLM.APIKey.Value(),
		Temperature: a.cfg.LLM.Temperature,
		Logger:      a.logger.Underlying().Named("synth"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating synthesizer: %w", err)
	}
	return retrieval.NewEnforcer(emb, idx, a.policy, s,
		retrieval.WithOverFetch(a.cfg.Retrieval.OverFetch),
		retrieval.WithLogger(a.logger.Named("retrieval")),
	)
}

func (a *app) pipeline(idx index.Client, emb embeddings.Embedder) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(emb, idx,
		ingest.WithChunkWords(a.cfg.Ingest.ChunkWords),
		ingest.WithLogger(a.logger.Named("ingest")),
	)
}
