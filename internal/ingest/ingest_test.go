package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foramoment/engram-ai-memory/pkg/embed"
	"github.com/foramoment/engram-ai-memory/pkg/engram"
)

func createTestEngine(t *testing.T) *engram.Engine {
	t.Helper()

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	store, err := engram.OpenStore(engram.StoreConfig{
		Path:      filepath.Join(t.TempDir(), "engram.db"),
		Dimension: 64,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := embed.NewService(embed.NewMockProvider(64), nil)
	return engram.New(store, svc, logger, engram.DefaultOptions())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte(`[{"type":"fact","title":"x"}]`)))
	assert.Error(t, Validate([]byte(`[{"type":"dream","title":"x"}]`)))
	assert.Error(t, Validate([]byte(`[{"type":"fact"}]`)))
	assert.Error(t, Validate([]byte(`{"type":"fact","title":"x"}`)))
	assert.Error(t, Validate([]byte(`[{"type":"fact","title":"x","importance":2}]`)))
}

func TestBytes(t *testing.T) {
	e := createTestEngine(t)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	report, err := Bytes(context.Background(), e, []byte(`[
		{"type": "fact", "title": "first", "content": "pasta with tomato sauce", "tags": ["food"]},
		{"type": "episode", "title": "second", "content": "entirely different deployment story"}
	]`), logger)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)

	memories, err := e.List(context.Background(), engram.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, memories, 2)
}

func TestBytes_PartialFailure(t *testing.T) {
	e := createTestEngine(t)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)

	// Passes schema validation but fails the engine's link validation.
	report, err := Bytes(context.Background(), e, []byte(`[
		{"type": "fact", "title": "good", "content": "fine"},
		{"type": "fact", "title": "bad", "links": [{"target_id": 999, "relation": "caused_by"}]}
	]`), logger)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.Items[1].Err)
}

func TestFile_RemoveOnlyOnFullSuccess(t *testing.T) {
	e := createTestEngine(t)
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	ctx := context.Background()

	good := filepath.Join(t.TempDir(), "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"type":"fact","title":"a","content":"body"}]`), 0644))

	report, err := File(ctx, e, good, true, logger)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NoFileExists(t, good)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[
		{"type":"fact","title":"b","content":"other body"},
		{"type":"fact","title":"c","links":[{"target_id":12345,"relation":"caused_by"}]}
	]`), 0644))

	report, err = File(ctx, e, bad, true, logger)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.FileExists(t, bad)
}
