package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
)

func TestMatchFastRoute(t *testing.T) {
	tests := []struct {
		query string
		scope config.ScopeKind
		uri   string
	}{
		{"what are my preferences", config.ScopeGlobal, config.PreferencesURI},
		{"我的偏好是什么", config.ScopeGlobal, config.PreferencesURI},
		{"show me the coding rules", config.ScopeGlobal, config.InstructionsURI},
		{"list known entities", config.ScopeGlobal, config.EntitiesURI},
		{"项目里有哪些人物", config.ScopeGlobal, config.EntitiesURI},
		{"why did we make that decision", config.ScopeProject, config.DecisionsURI},
		{"established patterns in this repo", config.ScopeProject, config.PatternsURI},
		{"current tasks", config.ScopeProject, config.TasksName},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			route, ok := matchFastRoute(tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.scope, route.scope)
			assert.Equal(t, tt.uri, route.uri)
		})
	}
}

func TestMatchFastRouteOrder(t *testing.T) {
	// A query naming both preferences and tasks takes the first table hit.
	route, ok := matchFastRoute("preference for task ordering")
	require.True(t, ok)
	assert.Equal(t, config.PreferencesURI, route.uri)
}

func TestMatchFastRouteMiss(t *testing.T) {
	for _, query := range []string{
		"how does the websocket reconnect work",
		"database schema",
	} {
		_, ok := matchFastRoute(query)
		assert.False(t, ok, query)
	}
}

func TestWantsTimeline(t *testing.T) {
	yes := []string{
		"what happened recently",
		"what did I do yesterday",
		"summarize the last 3 days",
		"past 10 days of work",
		"最近在做什么",
		"这几天的进展",
	}
	for _, q := range yes {
		assert.True(t, wantsTimeline(q), q)
	}

	no := []string{
		"how is auth implemented",
		"postgres connection pooling",
	}
	for _, q := range no {
		assert.False(t, wantsTimeline(q), q)
	}
}
