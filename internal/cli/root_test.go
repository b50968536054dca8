package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "engram", root.Name())
	assert.True(t, root.HasSubCommands())
}

func TestAllVerbsRegistered(t *testing.T) {
	root := GetRootCmd()
	want := []string{
		"add", "ingest", "recall", "search", "get", "update", "delete",
		"link", "tag", "mark", "session", "sleep", "stats", "diagnostics", "export",
	}
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, verb := range want {
		assert.True(t, names[verb], "missing verb %s", verb)
	}
}

func TestSessionSubcommands(t *testing.T) {
	for _, sub := range []string{"start", "end", "list"} {
		found := false
		for _, c := range sessionCmd.Commands() {
			if c.Name() == sub {
				found = true
			}
		}
		assert.True(t, found, "missing session subcommand %s", sub)
	}
}

func TestTagSubcommands(t *testing.T) {
	for _, sub := range []string{"add", "remove", "list"} {
		found := false
		for _, c := range tagCmd.Commands() {
			if c.Name() == sub {
				found = true
			}
		}
		assert.True(t, found, "missing tag subcommand %s", sub)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("forty-two")
	assert.Error(t, err)
}
