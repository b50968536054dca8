package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "libsql provides native vector search")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "libsql provides native vector search")
	require.NoError(t, err)

	sim, err := Cosine(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sim, 0.99)
}

func TestMockProvider_SimilarTextsAreClose(t *testing.T) {
	p := NewMockProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "libsql provides native vector search with diskann and fts5")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "libsql provides native vector search with diskann fts5 and triggers")
	require.NoError(t, err)
	c, err := p.Embed(ctx, "cooking pasta with tomato sauce")
	require.NoError(t, err)

	simAB, err := Cosine(a, b)
	require.NoError(t, err)
	simAC, err := Cosine(a, c)
	require.NoError(t, err)
	assert.Greater(t, simAB, simAC)
	assert.Greater(t, simAB, 0.8)
}

func TestMockProvider_Batch(t *testing.T) {
	p := NewMockProvider(32)
	vecs, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 32)
}

func TestMockReranker_RanksOverlapFirst(t *testing.T) {
	r := NewMockReranker()
	docs := []string{
		"Cooking pasta with tomato sauce",
		"Ruby on Rails web framework for building apps",
		"Python machine learning",
	}

	results, err := r.Rerank(context.Background(), "Ruby on Rails web framework", docs, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestMockReranker_TopK(t *testing.T) {
	r := NewMockReranker()
	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
