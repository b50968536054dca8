package engram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestKNN_BruteForceMatchesIndexed drives the exact-scan fallback directly and
// checks it returns the same shape and ordering as the indexed probe.
func TestKNN_BruteForceMatchesIndexed(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	rails, _, _ := seedCorpus(t, e)

	query, err := e.embedText(ctx, "Ruby on Rails web framework")
	require.NoError(t, err)

	indexed, err := e.store.KNN(ctx, query, 3, VectorFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, indexed)

	e.store.bruteForce = true
	defer func() { e.store.bruteForce = false }()

	exact, err := e.store.KNN(ctx, query, 3, VectorFilter{})
	require.NoError(t, err)
	require.Len(t, exact, len(indexed))

	assert.Equal(t, rails, exact[0].ID)
	for i := range exact {
		assert.Equal(t, indexed[i].ID, exact[i].ID)
		assert.InDelta(t, indexed[i].Distance, exact[i].Distance, 0.01)
	}
}

func TestKNN_BruteForceRespectsFilters(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	rails, cooking, _ := seedCorpus(t, e)
	_, err := e.Archive(ctx, cooking, true)
	require.NoError(t, err)

	e.store.bruteForce = true
	defer func() { e.store.bruteForce = false }()

	query, err := e.embedText(ctx, "Ruby on Rails web framework")
	require.NoError(t, err)

	hits, err := e.store.KNN(ctx, query, 10, VectorFilter{Type: TypeFact, ExcludeID: rails})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, rails, h.ID)
		assert.NotEqual(t, cooking, h.ID)
	}
}

func TestKNN_DimensionMismatch(t *testing.T) {
	e := createTestEngine(t)
	_, err := e.store.KNN(context.Background(), make([]float32, 8), 3, VectorFilter{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// Writes keep working when the vector index is gone: merge and auto-link
// degrade to best-effort probes over the exact scan.
func TestAdd_WorksInBruteForceMode(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	e.store.bruteForce = true

	first := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes",
		Content: "LibSQL provides native vector search with DiskANN and FTS5.",
	})
	assert.Equal(t, StatusCreated, first.Status)

	second := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes (expanded)",
		Content: "LibSQL provides native vector search with DiskANN, FTS5, and triggers.",
	})
	assert.Equal(t, StatusMerged, second.Status)

	results, err := e.SearchSemantic(ctx, "vector search notes", SemanticOptions{K: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestMeta(t *testing.T) {
	e := createTestEngine(t)

	_, ok, err := e.store.Meta("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.store.SetMeta("k", "v1"))
	require.NoError(t, e.store.SetMeta("k", "v2"))

	v, ok, err := e.store.Meta("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
