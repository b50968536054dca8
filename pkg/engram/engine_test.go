package engram

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foramoment/engram-ai-memory/pkg/embed"
)

const testDimension = 64

func createTestEngine(t *testing.T) *Engine {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "engram.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	store, err := OpenStore(StoreConfig{
		Path:      dbPath,
		Dimension: testDimension,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := embed.NewService(embed.NewMockProvider(testDimension), embed.NewMockReranker())
	return New(store, svc, logger, DefaultOptions())
}

func mustAdd(t *testing.T, e *Engine, in AddInput) AddResult {
	t.Helper()
	res, err := e.Add(context.Background(), in)
	require.NoError(t, err)
	return res
}

func TestOpenStore_MissingPath(t *testing.T) {
	_, err := OpenStore(StoreConfig{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpenStore_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engram.db")
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	s1, err := OpenStore(StoreConfig{Path: dbPath, Dimension: testDimension, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := OpenStore(StoreConfig{Path: dbPath, Dimension: testDimension, Logger: logger})
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Meta("schema_version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok, err = s2.Meta("created_at")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddAndGet(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "SQLite WAL mode",
		Content: "WAL mode allows concurrent readers during a write.",
		Tags:    []string{" Database ", "sqlite"},
	})
	assert.Equal(t, StatusCreated, res.Status)
	assert.Positive(t, res.ID)

	m, ok, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TypeFact, m.Type)
	assert.Equal(t, "SQLite WAL mode", m.Title)
	assert.Equal(t, []string{"database", "sqlite"}, m.Tags)
	assert.Equal(t, 0.5, m.Importance)
	assert.Equal(t, 1.0, m.Strength)
	assert.Equal(t, 0, m.AccessCount)
	assert.Nil(t, m.LastAccessedAt)
	assert.False(t, m.Archived)
	assert.Len(t, m.Embedding, testDimension)
}

func TestGet_Missing(t *testing.T) {
	e := createTestEngine(t)
	_, ok, err := e.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdd_InvalidInput(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	bad := 1.5
	tests := []struct {
		name string
		in   AddInput
	}{
		{"unknown type", AddInput{Type: "dream", Title: "x"}},
		{"empty title", AddInput{Type: TypeFact, Title: ""}},
		{"importance out of range", AddInput{Type: TypeFact, Title: "x", Importance: &bad}},
		{"bad relation", AddInput{Type: TypeFact, Title: "x", Links: []LinkInput{{TargetID: 1, Relation: "follows"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Add(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestUpdate(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{Type: TypeFact, Title: "Original", Content: "old content"})
	before, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)

	newContent := "completely different content about embeddings"
	ok, err := e.Update(ctx, res.ID, UpdateInput{Content: &newContent})
	require.NoError(t, err)
	assert.True(t, ok)

	after, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, newContent, after.Content)
	assert.NotEqual(t, before.Embedding, after.Embedding)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
}

func TestUpdate_Missing(t *testing.T) {
	e := createTestEngine(t)
	title := "x"
	ok, err := e.Update(context.Background(), 12345, UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_Cascades(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	a := mustAdd(t, e, AddInput{Type: TypeFact, Title: "A", Content: "alpha content", Tags: []string{"keep"}})
	b := mustAdd(t, e, AddInput{Type: TypeFact, Title: "B", Content: "totally unrelated beta topic", NoAutoLink: true})
	require.NoError(t, e.LinkMemories(ctx, a.ID, b.ID, RelRelatedTo, 0.5))
	require.NoError(t, e.LogAccess(ctx, a.ID, "", "q", 0.9))

	ok, err := e.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := e.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, found)

	links, err := e.LinksOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	var logs int
	require.NoError(t, e.store.db.QueryRow(
		`SELECT COUNT(*) FROM access_log WHERE memory_id = ?`, a.ID).Scan(&logs))
	assert.Zero(t, logs)

	// FTS rows follow the delete trigger.
	results, err := e.SearchFTS(ctx, "alpha", FTSOptions{K: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_Missing(t *testing.T) {
	e := createTestEngine(t)
	ok, err := e.Delete(context.Background(), 4242)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList_FiltersArchived(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	a := mustAdd(t, e, AddInput{Type: TypeFact, Title: "visible", Content: "shown"})
	b := mustAdd(t, e, AddInput{Type: TypeEpisode, Title: "hidden", Content: "completely different archived episode"})
	_, err := e.Archive(ctx, b.ID, true)
	require.NoError(t, err)

	memories, err := e.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, a.ID, memories[0].ID)

	all, err := e.List(ctx, ListOptions{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTagOperations(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{Type: TypePreference, Title: "tabs vs spaces"})
	require.NoError(t, e.Tag(ctx, res.ID, "Style", "style", "editor"))

	m, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor", "style"}, m.Tags)

	require.NoError(t, e.Untag(ctx, res.ID, "STYLE"))
	m, _, err = e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor"}, m.Tags)

	counts, err := e.ListTags(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, counts)
}

func TestMarkPermanent(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{Type: TypeReflex, Title: "always run tests"})
	require.NoError(t, e.MarkPermanent(ctx, res.ID, true))

	m, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Contains(t, m.Tags, PermanentTag)

	require.NoError(t, e.MarkPermanent(ctx, res.ID, false))
	m, _, err = e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.NotContains(t, m.Tags, PermanentTag)
}
