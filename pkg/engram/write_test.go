package engram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_ExactDuplicateBumpsAccess(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	first := mustAdd(t, e, AddInput{Type: TypeFact, Title: "X", Content: "content"})
	assert.Equal(t, StatusCreated, first.Status)

	second := mustAdd(t, e, AddInput{Type: TypeFact, Title: "X", Content: "content"})
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.ID, second.ID)

	m, _, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.AccessCount)
	assert.NotNil(t, m.LastAccessedAt)
}

func TestAdd_DuplicateAppliesNewTags(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	first := mustAdd(t, e, AddInput{Type: TypeFact, Title: "tagged", Tags: []string{"old"}})
	second := mustAdd(t, e, AddInput{Type: TypeFact, Title: "tagged", Tags: []string{"new"}})
	require.Equal(t, StatusDuplicate, second.Status)

	m, _, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old", "new"}, m.Tags)
}

func TestAdd_DifferentTypeIsNotDuplicate(t *testing.T) {
	e := createTestEngine(t)

	first := mustAdd(t, e, AddInput{Type: TypeFact, Title: "same title", Content: "pasta carbonara recipe", NoAutoLink: true})
	second := mustAdd(t, e, AddInput{Type: TypeDecision, Title: "same title", Content: "migrate the billing service to kafka", NoAutoLink: true})
	assert.Equal(t, StatusCreated, second.Status)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAdd_MergeOnWrite(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	first := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes",
		Content: "LibSQL provides native vector search with DiskANN and FTS5.",
	})
	require.Equal(t, StatusCreated, first.Status)

	second := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes (expanded)",
		Content: "LibSQL provides native vector search with DiskANN, FTS5, and triggers.",
	})
	assert.Equal(t, StatusMerged, second.Status)
	assert.Equal(t, first.ID, second.MergedInto)

	m, _, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Contains(t, m.Content, "DiskANN and FTS5.")
	assert.Contains(t, m.Content, "and triggers.")
	assert.Contains(t, m.Content, mergeSeparator)
	// The longer title wins.
	assert.Equal(t, "LibSQL notes (expanded)", m.Title)
	assert.Equal(t, 1, m.AccessCount)
}

func TestAdd_MergeIsStableOnRepeat(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes",
		Content: "LibSQL provides native vector search with DiskANN and FTS5.",
	})
	repeat := AddInput{
		Type:    TypeFact,
		Title:   "LibSQL notes (expanded)",
		Content: "LibSQL provides native vector search with DiskANN, FTS5, and triggers.",
	}

	second := mustAdd(t, e, repeat)
	require.Equal(t, StatusMerged, second.Status)
	afterFirstMerge, _, err := e.Get(ctx, second.MergedInto)
	require.NoError(t, err)

	// Identical content is a substring of the merged text now; nothing changes.
	third := mustAdd(t, e, repeat)
	assert.Equal(t, StatusDuplicate, third.Status)

	// A same-type near-duplicate under a fresh title still merges without
	// growing the content.
	repeat.Title = "LibSQL notes (expanded again)"
	fourth, err := e.Add(ctx, repeat)
	require.NoError(t, err)
	if fourth.Status == StatusMerged {
		final, _, err := e.Get(ctx, fourth.MergedInto)
		require.NoError(t, err)
		assert.Equal(t, afterFirstMerge.Content, final.Content)
		assert.Equal(t, 1, strings.Count(final.Content, mergeSeparator))
	}
}

func TestAdd_MergeBoostsStrengthClamped(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	first := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "clamp check",
		Content: "strength reinforcement is clamped at one",
	})

	_, err := e.store.db.Exec(`UPDATE memories SET strength = 0.5 WHERE id = ?`, first.ID)
	require.NoError(t, err)

	second := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "clamp check again",
		Content: "strength reinforcement is clamped at one",
	})
	require.Equal(t, StatusMerged, second.Status)

	m, _, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, m.Strength, 1e-9)
	assert.LessOrEqual(t, m.Strength, 1.0)
}

func TestAdd_ExplicitLinks(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	target := mustAdd(t, e, AddInput{Type: TypeFact, Title: "schema design", Content: "normalized tables with foreign keys", NoAutoLink: true})
	res := mustAdd(t, e, AddInput{
		Type:       TypeDecision,
		Title:      "use sqlite",
		Content:    "ship with an embedded database",
		Links:      []LinkInput{{TargetID: target.ID, Relation: RelCausedBy}},
		NoAutoLink: true,
	})

	links, err := e.LinksOf(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, res.ID, links[0].SourceID)
	assert.Equal(t, target.ID, links[0].TargetID)
	assert.Equal(t, RelCausedBy, links[0].Relation)
	assert.Equal(t, 0.5, links[0].Strength)
}

func TestAdd_AutoLink(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	first := mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "vector search basics",
		Content: "vector search ranks documents by embedding similarity",
	})
	// Close topic, but a different type, so the merge probe never sees it.
	second := mustAdd(t, e, AddInput{
		Type:    TypeEpisode,
		Title:   "vector search production basics",
		Content: "vector search ranks documents by embedding similarity in production deployments",
	})
	require.Equal(t, StatusCreated, second.Status)

	links, err := e.LinksOf(ctx, second.ID)
	require.NoError(t, err)
	if assert.NotEmpty(t, links, "expected an auto-link to the related memory") {
		assert.Equal(t, RelRelatedTo, links[0].Relation)
		assert.Equal(t, first.ID, links[0].TargetID)
		assert.GreaterOrEqual(t, links[0].Strength, 0.7)
	}
}

func TestAdd_NoAutoLink(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	mustAdd(t, e, AddInput{
		Type:    TypeFact,
		Title:   "vector search basics",
		Content: "vector search ranks documents by embedding similarity",
	})
	second := mustAdd(t, e, AddInput{
		Type:       TypeEpisode,
		Title:      "vector search rollout",
		Content:    "vector search ranks documents by embedding similarity in production",
		NoAutoLink: true,
	})

	links, err := e.LinksOf(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestAdd_PermanentFlagTags(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{Type: TypePreference, Title: "dark mode", Permanent: true})
	m, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Contains(t, m.Tags, PermanentTag)
}
