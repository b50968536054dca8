package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 0.92, cfg.Write.MergeThreshold)
	assert.Equal(t, 0.7, cfg.Write.AutoLinkThreshold)
	assert.Equal(t, 3, cfg.Write.MaxAutoLinks)
	assert.Equal(t, 0.95, cfg.Consolidation.DecayRate)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }},
		{"merge threshold range", func(c *Config) { c.Write.MergeThreshold = 1.5 }},
		{"auto link range", func(c *Config) { c.Write.AutoLinkThreshold = -0.1 }},
		{"decay rate range", func(c *Config) { c.Consolidation.DecayRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.json"))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"db_path": "/tmp/custom.db",
		"embedding": {"provider": "mock"},
		"write": {"merge_threshold": 0.9, "auto_link_threshold": 0.6, "max_auto_links": 2}
	}`), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.ResolvedDBPath())
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, 0.9, cfg.Write.MergeThreshold)
	assert.Equal(t, 2, cfg.Write.MaxAutoLinks)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.json")
	l := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/engram-data"
	cfg.Embedding.Provider = "mock"
	require.NoError(t, l.Save(cfg))

	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/engram-data", loaded.DataDir)
	assert.Equal(t, "mock", loaded.Embedding.Provider)
}

func TestResolvedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/engram"
	assert.Equal(t, filepath.Join("/srv/engram", "data", "engram.db"), cfg.ResolvedDBPath())
	assert.Equal(t, filepath.Join("/srv/engram", "models"), cfg.ResolvedModelCacheDir())

	cfg.DBPath = "/elsewhere/x.db"
	assert.Equal(t, "/elsewhere/x.db", cfg.ResolvedDBPath())
}
