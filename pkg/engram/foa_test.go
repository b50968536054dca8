package engram

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecall_TinyBudgetReturnsAtLeastOne(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	seedCorpus(t, e)
	result, err := e.Recall(ctx, "Ruby on Rails web framework", RecallOptions{Budget: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Memories)
}

func TestRecall_PacksWithinBudget(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	// Distinct types so the near-identical bodies stay separate memories.
	seeds := []struct {
		typ   MemoryType
		title string
	}{
		{TypeFact, "alpha topic"},
		{TypeEpisode, "beta topic"},
		{TypeDecision, "gamma topic"},
	}
	for _, s := range seeds {
		mustAdd(t, e, AddInput{
			Type:       s.typ,
			Title:      s.title,
			Content:    strings.Repeat("shared keyword filler content. ", 20),
			NoAutoLink: true,
		})
	}

	one := estimateTokens("[fact] alpha topic\n" + strings.Repeat("shared keyword filler content. ", 20))
	result, err := e.Recall(ctx, "shared keyword", RecallOptions{Budget: one + 10})
	require.NoError(t, err)
	assert.Len(t, result.Memories, 1)
	assert.LessOrEqual(t, result.TotalTokensEstimate, one+10)
}

func TestRecall_CompositeRanking(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	low := mustAdd(t, e, AddInput{Type: TypeFact, Title: "weak note", Content: "shared keyword topic", NoAutoLink: true})
	strong := mustAdd(t, e, AddInput{Type: TypeEpisode, Title: "strong note", Content: "shared keyword topic too", NoAutoLink: true})

	_, err := e.store.db.Exec(`UPDATE memories SET importance = 0.1, strength = 0.2 WHERE id = ?`, low.ID)
	require.NoError(t, err)
	_, err = e.store.db.Exec(`UPDATE memories SET importance = 0.9, strength = 1.0, last_accessed_at = ? WHERE id = ?`,
		isoNow(), strong.ID)
	require.NoError(t, err)

	result, err := e.Recall(ctx, "shared keyword topic", RecallOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Memories), 2)
	assert.Equal(t, strong.ID, result.Memories[0].ID)
}

func TestRecall_SessionContextPrepended(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	seedCorpus(t, e)
	session, err := e.StartSession(ctx, "sess-1", "debugging")
	require.NoError(t, err)
	_, err = e.EndSession(ctx, session.ID, "We investigated the Rails upgrade.")
	require.NoError(t, err)

	result, err := e.Recall(ctx, "Rails", RecallOptions{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, "We investigated the Rails upgrade.", result.SessionContext)
	assert.Greater(t, result.TotalTokensEstimate, estimateTokens(result.SessionContext))
}

func TestRecall_LogsAccess(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	rails, _, _ := seedCorpus(t, e)
	_, err := e.StartSession(ctx, "sess-2", "")
	require.NoError(t, err)

	before, _, err := e.Get(ctx, rails)
	require.NoError(t, err)

	result, err := e.Recall(ctx, "Ruby on Rails", RecallOptions{SessionID: "sess-2"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Memories)

	after, _, err := e.Get(ctx, rails)
	require.NoError(t, err)
	assert.Greater(t, after.AccessCount, before.AccessCount)
	assert.NotNil(t, after.LastAccessedAt)

	_, accessed, err := e.SessionContext(ctx, "sess-2")
	require.NoError(t, err)
	assert.NotEmpty(t, accessed)
}

func TestRecencyBonus(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.5, recencyBonus(nil, now))

	fresh := now.Add(-time.Hour)
	assert.InDelta(t, 1.0, recencyBonus(&fresh, now), 0.01)

	old := now.Add(-30 * 24 * time.Hour)
	assert.Equal(t, 0.1, recencyBonus(&old, now))
}

func TestRenderRecall(t *testing.T) {
	r := RecallResult{
		SessionContext: "summary here",
		Memories: []RecallMemory{
			{Memory: Memory{Type: TypeFact, Title: "T1", Content: "C1"}, Tokens: 10},
		},
		TotalTokensEstimate: 42,
	}

	out := RenderRecall(r)
	assert.Contains(t, out, "## Session Context")
	assert.Contains(t, out, "summary here")
	assert.Contains(t, out, "## Relevant Memories")
	assert.Contains(t, out, "### [fact] T1")
	assert.Contains(t, out, "_1 memories | ~42 tokens_")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 2, estimateTokens("abcdefg"))
}
