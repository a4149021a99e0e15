// Package ingest turns documents into access-tagged fragments and writes
// them to the index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/embeddings"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrEmptyText is returned when there is nothing to ingest.
var ErrEmptyText = errors.New("ingest: text is empty")

// Pipeline embeds and upserts fragments. It keeps no local state; every
// fragment is written through to the index.
type Pipeline struct {
	embedder   embeddings.Embedder
	index      index.Client
	chunkWords int
	logger     *logging.Logger
	tracer     trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChunkWords sets the word-window size used by IngestDocument.
func WithChunkWords(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkWords = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(embedder embeddings.Embedder, idx index.Client, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if idx == nil {
		return nil, errors.New("ingest: index client is required")
	}
	p := &Pipeline{
		embedder:   embedder,
		index:      idx,
		chunkWords: DefaultChunkWords,
		logger:     logging.Nop(),
		tracer:     otel.Tracer("ragguard.ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ingest embeds one chunk and upserts it tagged with label and source. It
// returns the fragment ID. The label is validated before any remote call.
// Upsert failures are returned as *index.StorageError or *index.TimeoutError.
func (p *Pipeline) Ingest(ctx context.Context, text, label, source string) (id string, err error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	lbl, err := access.ParseLabel(label)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	id = FragmentID(source, text)
	span.SetAttributes(
		attribute.String("fragment_id", id),
		attribute.String("access_level", string(lbl)),
	)

	vectors, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("embedding fragment: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embedding fragment: expected 1 vector, got %d", len(vectors))
	}

	item := index.NewFragmentItem(id, vectors[0], string(lbl), text, source)
	if err := p.index.Upsert(ctx, []index.Item{item}); err != nil {
		p.logger.Warn(ctx, "fragment upsert failed",
			zap.String("fragment_id", id),
			zap.String("access_level", string(lbl)),
			zap.Error(err))
		return "", err
	}

	p.logger.Debug(ctx, "fragment ingested",
		zap.String("fragment_id", id),
		zap.String("access_level", string(lbl)),
		zap.String("source", source))
	return id, nil
}

// IngestDocument chunks text into word windows and ingests each in order.
// It stops at the first failure and returns the IDs written so far.
func (p *Pipeline) IngestDocument(ctx context.Context, text, label, source string) ([]string, error) {
	lbl, err := access.ParseLabel(label)
	if err != nil {
		return nil, err
	}

	var ids []string
	for chunk := range Chunk(text, p.chunkWords) {
		id, err := p.Ingest(ctx, chunk, string(lbl), source)
		if err != nil {
			return ids, fmt.Errorf("chunk %d: %w", len(ids), err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyText
	}

	p.logger.Info(ctx, "document ingested",
		zap.String("source", source),
		zap.String("access_level", string(lbl)),
		zap.Int("fragments", len(ids)))
	return ids, nil
}
