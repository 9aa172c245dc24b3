package writer

import (
	"regexp"
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
)

// Memory kinds the router can emit. They double as the chunk type stored
// in the index and the frontmatter type of the files the writer creates.
const (
	KindPreference  = "preference"
	KindInstruction = "instruction"
	KindEntity      = "entity"
	KindDecision    = "decision"
	KindPattern     = "pattern"
	KindJournal     = "journal"
)

// Route is the destination the router picked for one note.
type Route struct {
	Kind       string
	File       string // URI relative to the scope root
	Scope      config.ScopeKind
	Section    string // canonical heading appends land under
	Importance int
}

// Keyword rules in priority order; the first match wins. Instructions
// outrank decisions outrank patterns: a note that both decides and
// instructs is an instruction. The Latin entity rule requires real
// capitalization, so "the parser is slow" does not mint an entity.
var routingRules = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{KindInstruction, regexp.MustCompile(`(?i)(必须|不要|不允许|禁止|always|never|must|规范|规则|要求|请总是)`)},
	{KindDecision, regexp.MustCompile(`(?i)(决定|采用|选择了?|决策|ADR|decided|chose|adopt)`)},
	{KindPattern, regexp.MustCompile(`(?i)(发现|总结|规律|模式|解决方案|pattern|solution|workaround|原因是)`)},
	{KindPreference, regexp.MustCompile(`(?i)(偏好|喜欢|习惯|prefer|like to|fond of|favor)`)},
	{KindEntity, regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,4}(是|担任|负责)`)},
	{KindEntity, regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)?\s+(is|role is|works on|leads?|maintains?)`)},
}

// routeForKind returns the destination for a memory kind; ok is false for
// unknown kinds. now selects the journal day file.
func routeForKind(kind string, now time.Time) (Route, bool) {
	switch kind {
	case KindInstruction:
		return Route{Kind: kind, File: config.InstructionsURI, Scope: config.ScopeGlobal, Section: "Instructions", Importance: 5}, true
	case KindDecision:
		return Route{Kind: kind, File: config.DecisionsURI, Scope: config.ScopeProject, Section: "Decisions", Importance: 5}, true
	case KindPattern:
		return Route{Kind: kind, File: config.PatternsURI, Scope: config.ScopeProject, Section: "Patterns", Importance: 3}, true
	case KindPreference:
		return Route{Kind: kind, File: config.PreferencesURI, Scope: config.ScopeGlobal, Section: "Preferences", Importance: 4}, true
	case KindEntity:
		return Route{Kind: kind, File: config.EntitiesURI, Scope: config.ScopeGlobal, Section: "Entities", Importance: 3}, true
	case KindJournal:
		return Route{Kind: kind, File: config.JournalURI(now), Scope: config.ScopeProject, Section: "Notes", Importance: 1}, true
	}
	return Route{}, false
}

// routeContent classifies a note by keyword. Unmatched notes land in
// today's journal.
func routeContent(text string, now time.Time) Route {
	for _, rule := range routingRules {
		if rule.pattern.MatchString(text) {
			route, _ := routeForKind(rule.kind, now)
			return route
		}
	}
	route, _ := routeForKind(KindJournal, now)
	return route
}
