//go:build cgo

package embeddings

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "not-a-model", CacheDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFastEmbedProvider_Embed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping FastEmbed test in short mode")
	}
	if os.Getenv("ONNX_PATH") == "" {
		t.Skip("ONNX runtime not available, skipping FastEmbed test")
	}

	p, err := NewFastEmbedProvider(FastEmbedConfig{Model: DefaultModel})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 384, p.Dimension())

	ctx := context.Background()
	docs, err := p.EmbedDocuments(ctx, []string{"Office hours are 9am to 6pm."})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0], 384)

	q1, err := p.EmbedQuery(ctx, "What are the office working hours?")
	require.NoError(t, err)
	q2, err := p.EmbedQuery(ctx, "What are the office working hours?")
	require.NoError(t, err)
	assert.Equal(t, q1, q2)

	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
