// Package retrieval answers questions using only fragments the caller's
// role may read.
//
// The enforcer over-fetches candidates from the index without any label
// filter and re-derives authorization from each candidate's metadata. That
// local filter is the sole enforcement point: only authorized text reaches
// the synthesizer or the caller.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/embeddings"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/logging"
	"github.com/fyrsmithlabs/ragguard/internal/synth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultOverFetch is the number of candidates requested per question.
	DefaultOverFetch = 8
	// MinOverFetch bounds the over-fetch from below: answers use about
	// four fragments and the index is asked for strictly more.
	MinOverFetch = 5
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("retrieval: question is empty")

// Enforcer runs the role-gated query path.
type Enforcer struct {
	embedder  embeddings.Embedder
	index     index.Client
	policy    *access.Policy
	synth     synth.Synthesizer
	overFetch int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithOverFetch sets how many candidates are requested from the index.
// NewEnforcer rejects values below MinOverFetch.
func WithOverFetch(n int) Option {
	return func(e *Enforcer) {
		e.overFetch = n
	}
}

// WithLogger sets the enforcer logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Enforcer) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Enforcer) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEnforcer wires the query path. All collaborators are required.
func NewEnforcer(embedder embeddings.Embedder, idx index.Client, policy *access.Policy, s synth.Synthesizer, opts ...Option) (*Enforcer, error) {
	switch {
	case embedder == nil:
		return nil, errors.New("retrieval: embedder is required")
	case idx == nil:
		return nil, errors.New("retrieval: index client is required")
	case policy == nil:
		return nil, errors.New("retrieval: access policy is required")
	case s == nil:
		return nil, errors.New("retrieval: synthesizer is required")
	}

	e := &Enforcer{
		embedder:  embedder,
		index:     idx,
		policy:    policy,
		synth:     s,
		overFetch: DefaultOverFetch,
		logger:    logging.Nop(),
		tracer:    otel.Tracer("ragguard.retrieval"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.overFetch < MinOverFetch {
		return nil, fmt.Errorf("retrieval: over-fetch must be at least %d, got %d", MinOverFetch, e.overFetch)
	}
	return e, nil
}

// Ask answers question for role.
//
// An unknown role fails with *access.UnknownRoleError before any remote
// call. Index failures are not errors: they come back as a Result of kind
// KindStorageFailure or KindTimeout with Result.Err set. When no candidate
// is authorized the result is the refusal sentinel and the synthesizer is
// not called. Embedding and synthesis failures are returned as errors.
func (e *Enforcer) Ask(ctx context.Context, question, role string) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "Enforcer.Ask")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		asksTotal.WithLabelValues(res.Kind.String()).Inc()
		span.SetAttributes(attribute.String("result_kind", res.Kind.String()))
		span.SetStatus(codes.Ok, "")
	}()

	r, err := access.ParseRole(role)
	if err != nil {
		return Result{}, err
	}
	allowed, err := e.policy.Allowed(r)
	if err != nil {
		return Result{}, err
	}
	ctx = logging.WithRole(ctx, string(r))
	span.SetAttributes(
		attribute.String("role", string(r)),
		attribute.Int("over_fetch", e.overFetch),
	)

	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embedding question: %w", err)
	}

	candidates, err := e.index.Query(ctx, vector, e.overFetch)
	if err != nil {
		return e.indexFailure(ctx, err)
	}

	authorized := Authorize(candidates, allowed)
	dropped := len(candidates) - len(authorized)
	if dropped > 0 {
		droppedCandidates.Add(float64(dropped))
	}
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("authorized", len(authorized)),
	)
	e.logger.Debug(ctx, "candidates filtered",
		zap.Int("candidates", len(candidates)),
		zap.Int("authorized", len(authorized)))

	if len(authorized) == 0 {
		return Refusal(), nil
	}

	texts := make([]string, len(authorized))
	for i, c := range authorized {
		texts[i] = c.Text()
	}
	answer, err := e.synth.Generate(ctx, strings.Join(texts, "\n\n"), question)
	if err != nil {
		return Result{}, err
	}

	kind := KindAnswer
	if strings.TrimSpace(answer) == RefusalSentinel {
		kind = KindRefusal
	}
	return Result{Kind: kind, Text: answer, Sources: sources(authorized)}, nil
}

func (e *Enforcer) indexFailure(ctx context.Context, err error) (Result, error) {
	switch {
	case index.IsTimeout(err):
		e.logger.Warn(ctx, "index query timed out", zap.Error(err))
		return Result{Kind: KindTimeout, Err: err}, nil
	case index.IsStorageError(err):
		e.logger.Warn(ctx, "index query failed", zap.Error(err))
		return Result{Kind: KindStorageFailure, Err: err}, nil
	default:
		return Result{}, fmt.Errorf("querying index: %w", err)
	}
}

func sources(cs []index.Candidate) []string {
	seen := make(map[string]struct{}, len(cs))
	var out []string
	for _, c := range cs {
		src := c.Source()
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}
