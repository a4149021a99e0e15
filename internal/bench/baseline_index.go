package bench

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/philippgille/chromem-go"
)

// BaselineCollection is the plaintext collection name.
const BaselineCollection = "hr_plaintext"

var errNoEmbedding = errors.New("bench: baseline documents must carry precomputed embeddings")

// BaselineIndex is an in-memory, unencrypted index.Client backed by
// chromem-go. It is safe for concurrent use.
type BaselineIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ index.Client = (*BaselineIndex)(nil)

// NewBaselineIndex creates an empty in-memory collection.
func NewBaselineIndex() (*BaselineIndex, error) {
	db := chromem.NewDB()
	// Vectors always arrive precomputed; the collection never embeds.
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedding }
	c, err := db.GetOrCreateCollection(BaselineCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", BaselineCollection, err)
	}
	return &BaselineIndex{db: db, collection: c}, nil
}

// Count returns the number of stored documents.
func (b *BaselineIndex) Count() int {
	return b.collection.Count()
}

// Upsert adds items. Metadata values are stored as strings; the text
// metadata becomes the document content.
func (b *BaselineIndex) Upsert(ctx context.Context, items []index.Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items cannot be empty", index.ErrInvalidArgument)
	}
	docs := make([]chromem.Document, len(items))
	for i, it := range items {
		if it.ID == "" || len(it.Vector) == 0 {
			return fmt.Errorf("%w: item %d needs an id and a vector", index.ErrInvalidArgument, i)
		}
		md := make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			md[k] = stringify(v)
		}
		docs[i] = chromem.Document{
			ID:        it.ID,
			Metadata:  md,
			Embedding: it.Vector,
			Content:   md[index.MetaText],
		}
	}
	if err := b.collection.AddDocuments(ctx, docs, 1); err != nil {
		return &index.StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// Query returns up to topK nearest documents. Only string equality
// filters are supported.
func (b *BaselineIndex) Query(ctx context.Context, vector []float32, topK int, opts ...index.QueryOption) ([]index.Candidate, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, fmt.Errorf("%w: vector and positive top_k required", index.ErrInvalidArgument)
	}
	where, err := whereFilter(opts)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	n := min(topK, b.collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := b.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, &index.StorageError{Op: "query", Err: err}
	}

	out := make([]index.Candidate, len(results))
	for i, r := range results {
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		out[i] = index.Candidate{ID: r.ID, Score: float64(r.Similarity), Rank: i, Metadata: md}
	}
	return out, nil
}

func whereFilter(opts []index.QueryOption) (map[string]string, error) {
	f := index.FilterFrom(opts...)
	if len(f) == 0 {
		return nil, nil
	}
	where := make(map[string]string, len(f))
	for k, v := range f {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: baseline supports equality on %q only", index.ErrUnsupportedFilter, k)
		}
		where[k] = s
	}
	return where, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
