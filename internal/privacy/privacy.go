// Package privacy screens agent notes for sensitive material before they
// become durable memories.
package privacy

import (
	"fmt"
	"regexp"

	"github.com/openclaw/openclaw-memory/internal/errors"
)

// Filter matches text against a list of sensitive-content patterns. A nil
// Filter matches nothing, so callers can pass one through unconditionally.
type Filter struct {
	enabled  bool
	patterns []*regexp.Regexp
}

// New compiles patterns into a Filter. Patterns match case-insensitively
// anywhere in the text; an unparseable pattern is a configuration error.
func New(enabled bool, patterns []string) (*Filter, error) {
	f := &Filter{enabled: enabled}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("privacy pattern %q", p), err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// Sensitive reports whether text matches any configured pattern.
func (f *Filter) Sensitive(text string) bool {
	if f == nil || !f.enabled {
		return false
	}
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Redact replaces every sensitive span with a placeholder. Log lines that
// quote user content go through here.
func (f *Filter) Redact(text string) string {
	if f == nil || !f.enabled {
		return text
	}
	for _, re := range f.patterns {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
