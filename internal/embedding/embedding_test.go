package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/config"
)

func TestHashProviderDeterministic(t *testing.T) {
	p := NewHashProvider(128)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "the same text")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := p.EmbedQuery(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashProviderDimensionAndRange(t *testing.T) {
	for _, dim := range []int{16, 128, 1000} {
		p := NewHashProvider(dim)
		vec, err := p.EmbedQuery(context.Background(), "hello")
		require.NoError(t, err)
		require.Len(t, vec, dim)
		assert.Equal(t, dim, p.Dim())
		for _, v := range vec {
			assert.GreaterOrEqual(t, v, float32(-1))
			assert.Less(t, v, float32(1))
		}
	}
}

func TestHashProviderBatchMatchesSingle(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := p.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, err := p.EmbedQuery(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestNewSelectsVariant(t *testing.T) {
	p, err := New(&config.EmbeddingConfig{Provider: "hash", Dim: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, p.Dim())

	p, err = New(&config.EmbeddingConfig{Provider: "dev"})
	require.NoError(t, err)
	assert.Equal(t, defaultHashDim, p.Dim())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(&config.EmbeddingConfig{Provider: "word2vec"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown embedding provider")
}

func TestNewRejectsMissingKey(t *testing.T) {
	_, err := New(&config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestOpenAIModelDims(t *testing.T) {
	cases := []struct {
		model string
		dim   int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-future-model", 1536},
	}
	for _, tc := range cases {
		p, err := NewOpenAIProvider(&config.EmbeddingConfig{
			Provider: "openai",
			Key:      "test-key",
			Model:    tc.model,
		})
		require.NoError(t, err, tc.model)
		assert.Equal(t, tc.dim, p.Dim(), tc.model)
	}
}
