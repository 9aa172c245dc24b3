package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/preflight"
)

func TestDoctorPassesInHealthyEnvironment(t *testing.T) {
	home, _ := testEnv(t)

	out, err := runCommand(t, "doctor")
	require.NoError(t, err)

	assert.Contains(t, out, "OpenClaw Memory Doctor")
	assert.Contains(t, out, "[PASS] config:")
	assert.Contains(t, out, "Status: READY")

	// A clean run refreshes the serve-skip marker.
	assert.False(t, preflight.NeedsCheck(home+"/.openclaw_memory"))
}

func TestDoctorJSON(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "doctor", "--json")
	require.NoError(t, err)

	var payload doctorJSON
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "ready", payload.Status)
	assert.NotEmpty(t, payload.Checks)
	assert.Empty(t, payload.Errors)
}

func TestDoctorWarnsWithoutProject(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	t.Setenv("OPENCLAW_EMBEDDING_PROVIDER", "local")
	t.Chdir(t.TempDir())

	out, err := runCommand(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "[WARN] project_scope:")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}
