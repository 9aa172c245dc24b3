package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReportsEmbedderAndScopes(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Memory Status")
	assert.Contains(t, out, "static-384")
	assert.Contains(t, out, "global scope")
	assert.Contains(t, out, "project scope")
}

func TestStatusJSON(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "status", "--json")
	require.NoError(t, err)

	var payload statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "static-384", payload.Embedder.Model)
	assert.Equal(t, 384, payload.Embedder.Dims)
	assert.True(t, payload.Embedder.Available)
	assert.Len(t, payload.Scopes, 2)
	assert.Equal(t, "global", payload.Scopes[0].Kind)
}

func TestStatsJSONListsScopes(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "stats", "--json")
	require.NoError(t, err)

	var payload []scopeStatsJSON
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload, 2)
	assert.Equal(t, "global", payload[0].Scope)
	assert.Equal(t, "project", payload[1].Scope)
}

func TestStatsPlainOutput(t *testing.T) {
	testEnv(t)

	out, err := runCommand(t, "stats")
	require.NoError(t, err)

	assert.Contains(t, out, "global scope")
	assert.Contains(t, out, "files:")
	assert.Contains(t, out, "max reinforcement:")
}
