package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	backendQdrant = "qdrant"

	// payloadFragmentID keeps the caller's ID; Qdrant point IDs must be UUIDs.
	payloadFragmentID = "fragment_id"
)

// pointNamespace derives deterministic point UUIDs from fragment IDs.
var pointNamespace = uuid.MustParse("6f1c2b8e-4d0a-5e7b-9c3f-2a1d8e4b7c60")

// QdrantConfig configures a QdrantClient.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port, default 6334
	UseTLS     bool
	APIKey     string
	Collection string
	VectorSize uint64
	Timeout    time.Duration
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// QdrantClient stores fragments in a Qdrant collection over gRPC.
type QdrantClient struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
	timeout    time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewQdrantClient connects to Qdrant. The connection is lazy; call
// EnsureCollection to verify reachability and prepare the collection.
func NewQdrantClient(cfg QdrantConfig) (*QdrantClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid qdrant port %d", ErrInvalidConfig, cfg.Port)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection required", ErrInvalidConfig)
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("ragguard.index.qdrant")
	}
	if !cfg.UseTLS {
		cfg.Logger.Warn("qdrant gRPC using plaintext; enable TLS outside local development")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(32 << 20)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &QdrantClient{
		client:     client,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
	}, nil
}

// Close releases the gRPC connection.
func (c *QdrantClient) Close() error {
	return c.client.Close()
}

// EnsureCollection creates the collection with cosine distance when absent.
func (c *QdrantClient) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return c.classify(ctx, "ensure_collection", err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     c.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if status.Code(err) == grpccodes.AlreadyExists {
			return nil
		}
		return c.classify(ctx, "ensure_collection", err)
	}
	c.logger.Info("created qdrant collection",
		zap.String("collection", c.collection),
		zap.Uint64("vector_size", c.vectorSize))
	return nil
}

// Upsert writes items as points keyed by a UUID derived from each item ID.
func (c *QdrantClient) Upsert(ctx context.Context, items []Item) (err error) {
	start := time.Now()
	defer func() { observe(backendQdrant, "upsert", start, err) }()

	ctx, span := c.tracer.Start(ctx, "QdrantClient.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", c.collection),
		attribute.Int("item_count", len(items)),
	)

	if err := validateItems(items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(items))
	for i, it := range items {
		payload, err := toPayload(it)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(it.ID)),
			Vectors: qdrant.NewVectors(it.Vector...),
			Payload: payload,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.client.Upsert(callCtx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		err = c.classify(callCtx, "upsert", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to topK points ordered by similarity.
func (c *QdrantClient) Query(ctx context.Context, vector []float32, topK int, opts ...QueryOption) (_ []Candidate, err error) {
	start := time.Now()
	defer func() { observe(backendQdrant, "query", start, err) }()

	ctx, span := c.tracer.Start(ctx, "QdrantClient.Query")
	defer span.End()
	o := buildQueryOptions(opts)
	span.SetAttributes(
		attribute.String("collection", c.collection),
		attribute.Int("top_k", topK),
		attribute.Bool("filtered", len(o.filter) > 0),
	)

	if err := validateQuery(vector, topK); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	filter, err := toQdrantFilter(o.filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	points, err := c.client.Query(callCtx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         filter,
	})
	if err != nil {
		err = c.classify(callCtx, "query", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	candidates := make([]Candidate, len(points))
	for i, p := range points {
		md := fromPayload(p.GetPayload())
		id, _ := md[payloadFragmentID].(string)
		if id == "" {
			id = p.GetId().GetUuid()
		}
		delete(md, payloadFragmentID)
		candidates[i] = Candidate{ID: id, Score: float64(p.GetScore()), Rank: i, Metadata: md}
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")
	return candidates, nil
}

// PointID maps a fragment ID to its deterministic Qdrant point UUID.
func PointID(fragmentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fragmentID)).String()
}

func (c *QdrantClient) classify(ctx context.Context, op string, err error) error {
	if status.Code(err) == grpccodes.DeadlineExceeded || isTimeout(ctx, err) {
		return &TimeoutError{Op: op, Timeout: c.timeout, Err: err}
	}
	if st, ok := status.FromError(err); ok {
		return &StorageError{Op: op, StatusCode: int(st.Code()), Body: st.Message(), Err: err}
	}
	return &StorageError{Op: op, Err: err}
}

func toPayload(it Item) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(it.Metadata)+1)
	for k, v := range it.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		default:
			return nil, fmt.Errorf("%w: item %s: unsupported metadata type %T for %q", ErrInvalidArgument, it.ID, v, k)
		}
	}
	payload[payloadFragmentID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: it.ID}}
	return payload, nil
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	md := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			md[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			md[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			md[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			md[k] = val.BoolValue
		}
	}
	return md
}

// toQdrantFilter translates equality and $in expressions on string fields.
func toQdrantFilter(f Filter) (*qdrant.Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	conds := make([]*qdrant.Condition, 0, len(f))
	for field, expr := range f {
		switch v := expr.(type) {
		case string:
			conds = append(conds, keywordCondition(field, &qdrant.Match{
				MatchValue: &qdrant.Match_Keyword{Keyword: v},
			}))
		case map[string]any:
			values, err := inValues(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			conds = append(conds, keywordCondition(field, &qdrant.Match{
				MatchValue: &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: values}},
			}))
		default:
			return nil, fmt.Errorf("%w: field %q has type %T", ErrUnsupportedFilter, field, expr)
		}
	}
	return &qdrant.Filter{Must: conds}, nil
}

func keywordCondition(field string, m *qdrant.Match) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: m},
		},
	}
}

func inValues(op map[string]any) ([]string, error) {
	if len(op) != 1 {
		return nil, fmt.Errorf("%w: expected a single $in operator", ErrUnsupportedFilter)
	}
	raw, ok := op["$in"]
	if !ok {
		return nil, fmt.Errorf("%w: only $in is supported", ErrUnsupportedFilter)
	}
	switch vals := raw.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $in values must be strings", ErrUnsupportedFilter)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.Join(ErrUnsupportedFilter, fmt.Errorf("$in expects a list, got %T", raw))
	}
}
