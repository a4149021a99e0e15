package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordGeneration(ctx, "all-MiniLM-L6-v2", "embed_documents", 100*time.Millisecond, 10, nil)
	m.RecordGeneration(ctx, "all-MiniLM-L6-v2", "embed_query", 50*time.Millisecond, 1, nil)
	m.RecordGeneration(ctx, "all-MiniLM-L6-v2", "embed_documents", 25*time.Millisecond, 5, errors.New("boom"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = md.Data
		}
	}

	require.Contains(t, found, "ragguard.embedding.generation_duration_seconds")
	require.Contains(t, found, "ragguard.embedding.batch_size")
	require.Contains(t, found, "ragguard.embedding.errors_total")

	errs, ok := found["ragguard.embedding.errors_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range errs.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(1), total)
}

func TestMetrics_NilInstruments(t *testing.T) {
	m := &Metrics{}
	assert.NotPanics(t, func() {
		m.RecordGeneration(context.Background(), "m", "embed_query", time.Millisecond, 1, errors.New("x"))
	})
}
