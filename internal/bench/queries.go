package bench

import (
	"context"
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/ragguard/internal/embeddings"
)

var defaultQueries = []string{
	"What are the office working hours?",
	"What is the leave policy?",
	"How are performance reviews conducted?",
	"What salary bands apply to engineers?",
}

// DefaultQueries returns the standard HR question set.
func DefaultQueries() []string {
	return slices.Clone(defaultQueries)
}

// PrecomputeVectors embeds every query once, in order.
func PrecomputeVectors(ctx context.Context, e embeddings.Embedder, queries []string) ([][]float32, error) {
	vectors := make([][]float32, len(queries))
	for i, q := range queries {
		v, err := e.EmbedQuery(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("embedding query %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}
