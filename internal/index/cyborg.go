package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	backendCyborg = "cyborg"

	upsertPath = "/v1/vectors/upsert"
	queryPath  = "/v1/vectors/query"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
	// maxErrorBody caps the remote detail kept on a StorageError.
	maxErrorBody = 4 << 10
)

// CyborgConfig configures a CyborgClient.
type CyborgConfig struct {
	// BaseURL is the service root, e.g. http://localhost:8000.
	BaseURL string
	// APIKey authenticates the caller (sent as X-API-Key).
	APIKey string
	// IndexKey decrypts the index; sent with every call.
	IndexKey string
	// IndexName selects the index. Default: hr_policies.
	IndexName string
	// Timeout bounds each call. Default: 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport. Its own Timeout is ignored in
	// favour of the per-call Timeout above.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// CyborgClient calls the encrypted index service's REST API.
type CyborgClient struct {
	baseURL   string
	apiKey    string
	indexKey  string
	indexName string
	timeout   time.Duration
	http      *http.Client
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewCyborgClient validates cfg and returns a ready client. No network
// call is made.
func NewCyborgClient(cfg CyborgConfig) (*CyborgClient, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL must be absolute, got %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.IndexKey == "" {
		return nil, fmt.Errorf("%w: index key required", ErrInvalidConfig)
	}
	if cfg.IndexName == "" {
		cfg.IndexName = "hr_policies"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("ragguard.index.cyborg")
	}

	return &CyborgClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		indexKey:  cfg.IndexKey,
		indexName: cfg.IndexName,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

type wireItem struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	IndexName string     `json:"index_name"`
	IndexKey  string     `json:"index_key"`
	Items     []wireItem `json:"items"`
}

type queryRequest struct {
	IndexName    string    `json:"index_name"`
	IndexKey     string    `json:"index_key"`
	QueryVectors []float32 `json:"query_vectors"`
	TopK         int       `json:"top_k"`
	Filters      Filter    `json:"filters,omitempty"`
	Include      []string  `json:"include"`
}

type wireResult struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata"`
}

type queryResponse struct {
	Results json.RawMessage `json:"results"`
}

// Upsert writes items to the index.
func (c *CyborgClient) Upsert(ctx context.Context, items []Item) (err error) {
	start := time.Now()
	defer func() { observe(backendCyborg, "upsert", start, err) }()

	ctx, span := c.tracer.Start(ctx, "CyborgClient.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("index_name", c.indexName),
		attribute.Int("item_count", len(items)),
	)

	if err := validateItems(items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	req := upsertRequest{
		IndexName: c.indexName,
		IndexKey:  c.indexKey,
		Items:     make([]wireItem, len(items)),
	}
	for i, it := range items {
		req.Items[i] = wireItem{ID: it.ID, Vector: it.Vector, Metadata: it.Metadata}
	}

	if _, err := c.post(ctx, "upsert", upsertPath, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to topK candidates in server order.
func (c *CyborgClient) Query(ctx context.Context, vector []float32, topK int, opts ...QueryOption) (_ []Candidate, err error) {
	start := time.Now()
	defer func() { observe(backendCyborg, "query", start, err) }()

	ctx, span := c.tracer.Start(ctx, "CyborgClient.Query")
	defer span.End()
	o := buildQueryOptions(opts)
	span.SetAttributes(
		attribute.String("index_name", c.indexName),
		attribute.Int("top_k", topK),
		attribute.Bool("filtered", len(o.filter) > 0),
	)

	if err := validateQuery(vector, topK); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := c.post(ctx, "query", queryPath, queryRequest{
		IndexName:    c.indexName,
		IndexKey:     c.indexKey,
		QueryVectors: vector,
		TopK:         topK,
		Filters:      o.filter,
		Include:      o.include,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results, err := decodeResults(body)
	if err != nil {
		err = &StorageError{Op: "query", StatusCode: http.StatusOK, Body: truncate(string(body)), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return nil, err
	}

	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{ID: r.ID, Score: r.Distance, Rank: i, Metadata: r.Metadata}
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")
	return candidates, nil
}

// decodeResults accepts a flat result list, or a list of lists (one per
// query vector) from which the first list is taken.
func decodeResults(body []byte) ([]wireResult, error) {
	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}
	raw := bytes.TrimSpace(resp.Results)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var flat []wireResult
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]wireResult
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("decoding query results: %w", err)
	}
	if len(nested) == 0 {
		return nil, nil
	}
	return nested[0], nil
}

// post sends payload as JSON and returns the 2xx response body.
func (c *CyborgClient) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	c.logger.Debug("index call",
		zap.String("op", op),
		zap.String("index_name", c.indexName),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StorageError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

func (c *CyborgClient) transportError(ctx context.Context, op string, err error) error {
	if isTimeout(ctx, err) {
		return &TimeoutError{Op: op, Timeout: c.timeout, Err: err}
	}
	return &StorageError{Op: op, Err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// truncate cuts s to at most maxErrorBody bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
