package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEmptyCorpus(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "search", "tabs", "or", "spaces")
	require.NoError(t, err)
	assert.Contains(t, out, "No memories found.")
}

func TestSearchFindsSeededMemory(t *testing.T) {
	_, project := testEnv(t)

	prefs := filepath.Join(project, ".openclaw_memory", "user")
	require.NoError(t, os.MkdirAll(prefs, 0o755))
	content := "# Preferences\n\n## Style\n- prefers tabs over spaces in Go files\n"
	require.NoError(t, os.WriteFile(filepath.Join(prefs, "preferences.md"), []byte(content), 0o644))

	out, err := runCommand(t, "search", "tabs", "spaces", "go")
	require.NoError(t, err)

	assert.Contains(t, out, "prefers tabs over spaces")
	assert.Contains(t, out, "[salience:")
	assert.Contains(t, out, "[total tokens:")
}

func TestSearchRequiresQuery(t *testing.T) {
	testEnv(t)

	_, err := runCommand(t, "search")
	require.Error(t, err)
}

func TestIndexCommandCompletes(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed")
}

func TestPrimerCommandRendersSections(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "primer")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
