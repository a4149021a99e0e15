package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewQdrantClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  QdrantConfig
	}{
		{"missing host", QdrantConfig{Collection: "c", VectorSize: 3}},
		{"bad port", QdrantConfig{Host: "localhost", Port: 70000, Collection: "c", VectorSize: 3}},
		{"missing collection", QdrantConfig{Host: "localhost", VectorSize: 3}},
		{"missing vector size", QdrantConfig{Host: "localhost", Collection: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQdrantClient(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("frag-1")
	assert.Equal(t, a, PointID("frag-1"))
	assert.NotEqual(t, a, PointID("frag-2"))
	assert.Len(t, a, 36)
}

func TestPayloadRoundTrip(t *testing.T) {
	item := NewFragmentItem("frag-1", []float32{1}, "employee", "Leave is 20 days.", "leave.md")
	item.Metadata["page"] = 3

	payload, err := toPayload(item)
	require.NoError(t, err)
	assert.Equal(t, "frag-1", payload[payloadFragmentID].GetStringValue())

	md := fromPayload(payload)
	assert.Equal(t, "employee", md[MetaAccessLevel])
	assert.Equal(t, "Leave is 20 days.", md[MetaText])
	assert.Equal(t, int64(3), md["page"])
}

func TestToPayload_UnsupportedType(t *testing.T) {
	_, err := toPayload(Item{ID: "a", Metadata: map[string]any{"tags": []string{"x"}}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestToQdrantFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f, err := toQdrantFilter(nil)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("equality", func(t *testing.T) {
		f, err := toQdrantFilter(Filter{MetaAccessLevel: "public"})
		require.NoError(t, err)
		require.Len(t, f.Must, 1)
		fc := f.Must[0].GetField()
		assert.Equal(t, MetaAccessLevel, fc.GetKey())
		assert.Equal(t, "public", fc.GetMatch().GetKeyword())
	})

	t.Run("in", func(t *testing.T) {
		f, err := toQdrantFilter(InFilter(MetaAccessLevel, []string{"public", "employee"}))
		require.NoError(t, err)
		require.Len(t, f.Must, 1)
		got := f.Must[0].GetField().GetMatch().GetKeywords().GetStrings()
		assert.Equal(t, []string{"public", "employee"}, got)
	})

	t.Run("in from decoded json", func(t *testing.T) {
		f, err := toQdrantFilter(Filter{MetaAccessLevel: map[string]any{"$in": []any{"manager"}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"manager"}, f.Must[0].GetField().GetMatch().GetKeywords().GetStrings())
	})

	unsupported := []struct {
		name string
		f    Filter
	}{
		{"numeric literal", Filter{"page": 3}},
		{"unknown operator", Filter{MetaAccessLevel: map[string]any{"$nin": []string{"x"}}}},
		{"two operators", Filter{MetaAccessLevel: map[string]any{"$in": []string{"x"}, "$eq": "y"}}},
		{"non-string members", Filter{MetaAccessLevel: map[string]any{"$in": []any{1}}}},
		{"non-list in", Filter{MetaAccessLevel: map[string]any{"$in": "public"}}},
	}
	for _, tt := range unsupported {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toQdrantFilter(tt.f)
			assert.ErrorIs(t, err, ErrUnsupportedFilter)
		})
	}
}

func TestQdrantClassify(t *testing.T) {
	c := &QdrantClient{timeout: 2 * time.Second}
	ctx := context.Background()

	err := c.classify(ctx, "query", status.Error(grpccodes.DeadlineExceeded, "slow"))
	assert.True(t, IsTimeout(err))

	err = c.classify(ctx, "query", status.Error(grpccodes.Unavailable, "connection refused"))
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int(grpccodes.Unavailable), se.StatusCode)
	assert.Equal(t, "connection refused", se.Body)

	err = c.classify(ctx, "upsert", errors.New("plain"))
	require.True(t, errors.As(err, &se))
	assert.Zero(t, se.StatusCode)
}

func TestKeywordCondition(t *testing.T) {
	cond := keywordCondition("k", &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: "v"}})
	assert.Equal(t, "k", cond.GetField().GetKey())
}
