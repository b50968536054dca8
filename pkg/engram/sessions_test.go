package engram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSession_GeneratesID(t *testing.T) {
	e := createTestEngine(t)

	s, err := e.StartSession(context.Background(), "", "exploratory")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "exploratory", s.Title)
}

func TestStartSession_ReplacesExisting(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	_, err := e.StartSession(ctx, "dev", "first")
	require.NoError(t, err)
	_, err = e.StartSession(ctx, "dev", "second")
	require.NoError(t, err)

	s, ok, err := e.GetSession(ctx, "dev")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", s.Title)
	assert.Nil(t, s.EndedAt)
}

func TestEndSession_WithSummary(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	_, err := e.StartSession(ctx, "dev", "")
	require.NoError(t, err)

	ok, err := e.EndSession(ctx, "dev", "shipped the retrieval funnel")
	require.NoError(t, err)
	assert.True(t, ok)

	s, found, err := e.GetSession(ctx, "dev")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "shipped the retrieval funnel", s.Summary)
	assert.Len(t, s.SummaryEmbedding, testDimension)
	require.NotNil(t, s.EndedAt)
}

func TestEndSession_Unknown(t *testing.T) {
	e := createTestEngine(t)
	ok, err := e.EndSession(context.Background(), "ghost", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionContext_OrdersByRecentAccess(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	a := mustAdd(t, e, AddInput{Type: TypeFact, Title: "first accessed", Content: "alpha", NoAutoLink: true})
	b := mustAdd(t, e, AddInput{Type: TypeEpisode, Title: "second accessed", Content: "completely different beta", NoAutoLink: true})

	_, err := e.StartSession(ctx, "s1", "")
	require.NoError(t, err)

	require.NoError(t, e.LogAccess(ctx, a.ID, "s1", "q1", 0.5))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.LogAccess(ctx, b.ID, "s1", "q2", 0.6))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.LogAccess(ctx, a.ID, "s1", "q3", 0.7))

	session, memories, err := e.SessionContext(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	require.Len(t, memories, 2)
	assert.Equal(t, a.ID, memories[0].ID)
	assert.Equal(t, b.ID, memories[1].ID)
}

func TestLogAccess_BumpsCounter(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	res := mustAdd(t, e, AddInput{Type: TypeFact, Title: "counted", Content: "body"})
	require.NoError(t, e.LogAccess(ctx, res.ID, "", "some query", 0.4))
	require.NoError(t, e.LogAccess(ctx, res.ID, "", "", 0))

	m, _, err := e.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.AccessCount)
	require.NotNil(t, m.LastAccessedAt)
	assert.WithinDuration(t, time.Now(), *m.LastAccessedAt, 10*time.Second)
}

func TestListSessions(t *testing.T) {
	e := createTestEngine(t)
	ctx := context.Background()

	_, err := e.StartSession(ctx, "old", "")
	require.NoError(t, err)
	_, err = e.store.db.Exec(`UPDATE sessions SET started_at = ? WHERE id = 'old'`,
		isoTime(time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)
	_, err = e.StartSession(ctx, "new", "")
	require.NoError(t, err)

	all, err := e.ListSessions(ctx, SessionListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)

	since := time.Now().Add(-time.Hour)
	recent, err := e.ListSessions(ctx, SessionListOptions{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)

	limited, err := e.ListSessions(ctx, SessionListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
