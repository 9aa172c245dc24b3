package search

import (
	"regexp"

	"github.com/openclaw/openclaw-memory/internal/config"
)

// fastRoute maps a query that names a canonical memory file to that file.
// First match wins; the table order puts the more specific phrasings
// ahead of the catch-alls.
type fastRoute struct {
	pattern *regexp.Regexp
	scope   config.ScopeKind
	uri     string
}

var fastRoutes = []fastRoute{
	{regexp.MustCompile(`(?i)(偏好|preference)`), config.ScopeGlobal, config.PreferencesURI},
	{regexp.MustCompile(`(?i)(指令|instruction|规则|rule)`), config.ScopeGlobal, config.InstructionsURI},
	{regexp.MustCompile(`(?i)(实体|entity|entities|人物|people)`), config.ScopeGlobal, config.EntitiesURI},
	{regexp.MustCompile(`(?i)(决策|decision)`), config.ScopeProject, config.DecisionsURI},
	{regexp.MustCompile(`(?i)(模式|pattern)`), config.ScopeProject, config.PatternsURI},
	{regexp.MustCompile(`(?i)(任务|task)`), config.ScopeProject, config.TasksName},
}

// matchFastRoute returns the file a query names, if any.
func matchFastRoute(query string) (fastRoute, bool) {
	for _, r := range fastRoutes {
		if r.pattern.MatchString(query) {
			return r, true
		}
	}
	return fastRoute{}, false
}

// timelinePattern recognizes temporal queries that should read the
// journal directly instead of searching the index.
var timelinePattern = regexp.MustCompile(`(?i)(最近|这几天|昨天|recent|recently|today|yesterday|past\s+\d+\s+days?|last\s+\d+\s+days?)`)

// wantsTimeline reports whether the query asks about recent activity.
func wantsTimeline(query string) bool {
	return timelinePattern.MatchString(query)
}
