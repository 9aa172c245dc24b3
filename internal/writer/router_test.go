package writer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
)

var routeNow = time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)

func TestRouteContent(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "instruction cjk", text: "必须使用类型注解来编写所有的代码", want: KindInstruction},
		{name: "instruction english", text: "Always run the linter before committing changes", want: KindInstruction},
		{name: "instruction outranks decision", text: "必须在决定采用新依赖之前先做评审", want: KindInstruction},
		{name: "decision cjk", text: "决定采用 PostgreSQL 作为主数据库", want: KindDecision},
		{name: "decision english", text: "we decided to adopt sqlite for local storage", want: KindDecision},
		{name: "pattern cjk", text: "发现这个超时现象的原因是连接池太小", want: KindPattern},
		{name: "pattern english", text: "the workaround is to pin the driver version", want: KindPattern},
		{name: "preference cjk", text: "用户偏好简洁明了的提交信息", want: KindPreference},
		{name: "preference english", text: "the user prefers tabs over spaces for indentation", want: KindPreference},
		{name: "entity cjk", text: "张伟担任后端团队的技术负责人", want: KindEntity},
		{name: "entity english", text: "Alice Zhang works on the payments service", want: KindEntity},
		{name: "lowercase subject stays journal", text: "the parser is slow on deeply nested files", want: KindJournal},
		{name: "fallback journal", text: "met with the infra team about quarterly capacity", want: KindJournal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routeContent(tt.text, routeNow).Kind)
		})
	}
}

func TestRouteForKind(t *testing.T) {
	tests := []struct {
		kind       string
		file       string
		scope      config.ScopeKind
		importance int
	}{
		{kind: KindInstruction, file: config.InstructionsURI, scope: config.ScopeGlobal, importance: 5},
		{kind: KindDecision, file: config.DecisionsURI, scope: config.ScopeProject, importance: 5},
		{kind: KindPattern, file: config.PatternsURI, scope: config.ScopeProject, importance: 3},
		{kind: KindPreference, file: config.PreferencesURI, scope: config.ScopeGlobal, importance: 4},
		{kind: KindEntity, file: config.EntitiesURI, scope: config.ScopeGlobal, importance: 3},
		{kind: KindJournal, file: "journal/2026-03-07.md", scope: config.ScopeProject, importance: 1},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			route, ok := routeForKind(tt.kind, routeNow)
			require.True(t, ok)
			assert.Equal(t, tt.kind, route.Kind)
			assert.Equal(t, tt.file, route.File)
			assert.Equal(t, tt.scope, route.Scope)
			assert.Equal(t, tt.importance, route.Importance)
			assert.NotEmpty(t, route.Section)
		})
	}

	_, ok := routeForKind("wisdom", routeNow)
	assert.False(t, ok)
}

func TestRouteTargetsAndSections(t *testing.T) {
	route := routeContent("用户偏好简洁的回答风格", routeNow)
	assert.Equal(t, config.PreferencesURI, route.File)
	assert.Equal(t, "Preferences", route.Section)

	route = routeContent("totally unclassifiable phrasing for one day", routeNow)
	assert.Equal(t, "journal/2026-03-07.md", route.File)
	assert.Equal(t, "Notes", route.Section)
}
