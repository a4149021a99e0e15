// Package synth turns authorized context and a question into an answer
// using an OpenAI-compatible chat model.
//
// The synthesizer is instructed to answer only from context and to reply
// with the refusal sentinel otherwise. Callers must not rely on that
// instruction for access control; only authorized text may be passed in.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RefusalSentinel is the exact reply for questions the caller's context
// cannot answer.
const RefusalSentinel = "I cannot answer this based on your access level."

// PromptTemplate is rendered with {{.context}} and {{.input}}.
const PromptTemplate = `You are a secure HR assistant.

RULES:
1. Answer ONLY from the provided context.
2. If the answer is not explicitly present, respond exactly:
"` + RefusalSentinel + `"
3. Do NOT infer or guess.

Context:
{{.context}}

Question: {{.input}}

Answer:`

var (
	// ErrInvalidConfig indicates the model could not be configured.
	ErrInvalidConfig = errors.New("invalid synthesizer configuration")

	// ErrGeneration indicates the model call failed.
	ErrGeneration = errors.New("answer generation failed")
)

// Synthesizer generates an answer from context and a question.
type Synthesizer interface {
	Generate(ctx context.Context, contextText, question string) (string, error)
}

// Config configures a ChatSynthesizer backed by an OpenAI-compatible API.
type Config struct {
	BaseURL     string // default https://api.groq.com/openai/v1
	Model       string // default llama-3.3-70b-versatile
	APIKey      string
	Temperature float64
	Timeout     time.Duration // default 60s
	Logger      *zap.Logger
	Tracer      trace.Tracer
}

// ChatSynthesizer renders the instruction prompt and calls a chat model.
type ChatSynthesizer struct {
	model       llms.Model
	modelName   string
	template    prompts.PromptTemplate
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New builds a ChatSynthesizer for an OpenAI-compatible endpoint.
func New(cfg Config) (*ChatSynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return NewWithModel(llm, cfg), nil
}

// NewWithModel wraps an existing model. cfg.APIKey and cfg.BaseURL are
// ignored.
func NewWithModel(model llms.Model, cfg Config) *ChatSynthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("ragguard.synth")
	}
	return &ChatSynthesizer{
		model:       model,
		modelName:   cfg.Model,
		template:    prompts.NewPromptTemplate(PromptTemplate, []string{"context", "input"}),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
	}
}

// Render returns the prompt sent to the model.
func (s *ChatSynthesizer) Render(contextText, question string) (string, error) {
	return s.template.Format(map[string]any{
		"context": contextText,
		"input":   question,
	})
}

// Generate returns the model's reply, trimmed of surrounding whitespace.
func (s *ChatSynthesizer) Generate(ctx context.Context, contextText, question string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "ChatSynthesizer.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", s.modelName),
		attribute.Int("context_chars", len(contextText)),
	)

	prompt, err := s.Render(contextText, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, llms.WithTemperature(s.temperature))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGeneration, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	s.logger.Debug("answer generated",
		zap.String("model", s.modelName),
		zap.Duration("duration", time.Since(start)))
	span.SetStatus(codes.Ok, "success")
	return strings.TrimSpace(out), nil
}
