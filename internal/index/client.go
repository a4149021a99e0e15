// Package index provides clients for the remote vector index that stores
// access-tagged fragments.
//
// Two backends implement Client: CyborgClient talks to an encrypted index
// service over authenticated HTTP, and QdrantClient talks to Qdrant over
// gRPC. Clients are created once per process and are safe for concurrent
// use. They perform no retries; each call is bounded by the configured
// timeout and fails with *TimeoutError or *StorageError.
//
// Filters passed to Query are advisory. Authorization never depends on
// them; see the retrieval package.
package index

import (
	"context"
	"errors"
	"fmt"
)

// Metadata keys written with every fragment.
const (
	MetaAccessLevel = "access_level"
	MetaText        = "text"
	MetaSource      = "source"
)

var (
	// ErrInvalidArgument indicates a malformed call (empty items, empty vector, non-positive top_k).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig indicates a client could not be built from its configuration.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrUnsupportedFilter indicates a filter expression the backend cannot translate.
	ErrUnsupportedFilter = errors.New("unsupported filter expression")
)

// Client is the remote index surface used by ingestion, retrieval, and the
// benchmark harness.
type Client interface {
	// Upsert writes items, replacing any stored item with the same ID.
	Upsert(ctx context.Context, items []Item) error

	// Query returns up to topK candidates ranked by the server.
	Query(ctx context.Context, vector []float32, topK int, opts ...QueryOption) ([]Candidate, error)
}

// Item is one vector with its identifier and metadata.
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// NewFragmentItem builds the item stored for an ingested fragment.
func NewFragmentItem(id string, vector []float32, label, text, source string) Item {
	return Item{
		ID:     id,
		Vector: vector,
		Metadata: map[string]any{
			MetaAccessLevel: label,
			MetaText:        text,
			MetaSource:      source,
		},
	}
}

// Candidate is one ranked query result.
type Candidate struct {
	ID string
	// Score is the server-reported relevance value. Its scale depends on the backend.
	Score float64
	// Rank is the zero-based position in the server's ordering.
	Rank     int
	Metadata map[string]any
}

// Label returns the access_level metadata value. ok is false when the key
// is missing or not a string.
func (c Candidate) Label() (label string, ok bool) {
	label, ok = c.Metadata[MetaAccessLevel].(string)
	return label, ok
}

// Text returns the fragment text, or "" when absent.
func (c Candidate) Text() string {
	s, _ := c.Metadata[MetaText].(string)
	return s
}

// Source returns the fragment provenance, or "" when absent.
func (c Candidate) Source() string {
	s, _ := c.Metadata[MetaSource].(string)
	return s
}

// Filter is a metadata filter expression in the index service's syntax:
// a field name mapped to either a literal or an operator object such as
// {"$in": [...]}.
type Filter map[string]any

// InFilter returns {field: {"$in": values}}.
func InFilter(field string, values []string) Filter {
	return Filter{field: map[string]any{"$in": values}}
}

// QueryOption customizes a Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	filter  Filter
	include []string
}

// WithFilter attaches an advisory filter to the query.
func WithFilter(f Filter) QueryOption {
	return func(o *queryOptions) {
		o.filter = f
	}
}

// WithInclude sets the fields the server returns. Default: metadata.
func WithInclude(fields ...string) QueryOption {
	return func(o *queryOptions) {
		o.include = fields
	}
}

// FilterFrom returns the filter set by opts, or nil. Client
// implementations outside this package use it to honor WithFilter.
func FilterFrom(opts ...QueryOption) Filter {
	return buildQueryOptions(opts).filter
}

func buildQueryOptions(opts []QueryOption) queryOptions {
	o := queryOptions{include: []string{"metadata"}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items cannot be empty", ErrInvalidArgument)
	}
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d: id cannot be empty", ErrInvalidArgument, i)
		}
		if len(it.Vector) == 0 {
			return fmt.Errorf("%w: item %d: vector cannot be empty", ErrInvalidArgument, i)
		}
	}
	return nil
}

func validateQuery(vector []float32, topK int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: query vector cannot be empty", ErrInvalidArgument)
	}
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	return nil
}
