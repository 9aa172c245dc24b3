package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitScaffoldsBothScopes(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	t.Chdir(project)

	out, err := runCommand(t, "init", "--name", "billing-api")
	require.NoError(t, err)

	globalRoot := filepath.Join(home, ".openclaw_memory")
	assert.FileExists(t, filepath.Join(globalRoot, "config.toml"))
	assert.DirExists(t, filepath.Join(globalRoot, "journal"))

	projectConfig := filepath.Join(project, ".openclaw_memory.toml")
	require.FileExists(t, projectConfig)
	content, err := os.ReadFile(projectConfig)
	require.NoError(t, err)
	assert.Contains(t, string(content), `name = "billing-api"`)

	assert.DirExists(t, filepath.Join(project, ".openclaw_memory", "agent"))
	assert.Contains(t, out, "project store ready")
}

func TestInitGlobalOnlySkipsProject(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	t.Chdir(project)

	_, err := runCommand(t, "init", "--global-only")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(home, ".openclaw_memory", "config.toml"))
	assert.NoFileExists(t, filepath.Join(project, ".openclaw_memory.toml"))
}

func TestInitNeverOverwritesExistingConfig(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	t.Chdir(project)

	custom := "[project]\nname = \"keep-me\"\n"
	projectConfig := filepath.Join(project, ".openclaw_memory.toml")
	require.NoError(t, os.WriteFile(projectConfig, []byte(custom), 0o644))

	out, err := runCommand(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	content, err := os.ReadFile(projectConfig)
	require.NoError(t, err)
	assert.Equal(t, custom, string(content))
}

func TestInitRejectsUnknownProvider(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	_, err := runCommand(t, "init", "--provider", "gpu-cluster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid provider")
}

func TestRenderProjectConfigProviderUncommented(t *testing.T) {
	content := renderProjectConfig("demo", "local")

	assert.Contains(t, content, `name = "demo"`)
	assert.Contains(t, content, "[embedding]\nprovider = \"local\"")
	assert.False(t, strings.Contains(content, `# provider = "local"`))
}
