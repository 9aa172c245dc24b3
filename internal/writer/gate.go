package writer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Quality gate rejection reasons, surfaced verbatim in "Rejected: <reason>"
// replies.
const (
	ReasonTooShort    = "too short"
	ReasonFiller      = "filler phrase"
	ReasonCodeOrPath  = "code or path"
	ReasonSpeculative = "speculative"
)

// Minimum note length in runes. CJK packs more meaning per rune, so
// predominantly-CJK notes clear the gate earlier.
const (
	minLengthCJK   = 10
	minLengthOther = 20
)

// Conversational filler that carries no memory value.
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(我来|让我|I'll|Let me|I will)\s*(帮你|看看|help|check|look)`),
	regexp.MustCompile(`(?i)^(好的|OK|Sure|Alright|Got it)`),
	regexp.MustCompile(`(?i)^(当然|Of course|Certainly)`),
	regexp.MustCompile(`(?i)^(没问题|No problem)`),
	regexp.MustCompile(`(?i)^(这是|Here is|Here's|This is)\s*(the|a)?\s*(code|file|result)`),
}

// Bare code or paths belong in files, not memories.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[/\\][\w/\\.-]+$`),
	regexp.MustCompile(`^\.{1,2}[/\\][\w/\\.-]*$`),
	regexp.MustCompile(`^[\w/\\.-]+\.(py|js|ts|go|rs|java|cpp|c|h)$`),
	regexp.MustCompile(`^(import|from|require|include)\s+`),
	regexp.MustCompile(`^\s*[\{\[\(]`),
}

// Hedged notes are not worth remembering; the agent can log them again
// once it is sure.
var speculativePrefixes = []string{
	"可能", "也许", "或许", "大概",
	"probably", "maybe", "perhaps", "possibly",
	"might be", "could be", "not sure", "i think", "i guess",
}

// gateReason screens a trimmed note, returning the rejection reason or ""
// when the note may be stored.
func gateReason(text string) string {
	minLen := minLengthOther
	if predominantlyCJK(text) {
		minLen = minLengthCJK
	}
	if utf8.RuneCountInString(text) < minLen {
		return ReasonTooShort
	}

	for _, re := range fillerPatterns {
		if re.MatchString(text) {
			return ReasonFiller
		}
	}
	for _, re := range codePatterns {
		if re.MatchString(text) {
			return ReasonCodeOrPath
		}
	}

	lower := strings.ToLower(text)
	for _, prefix := range speculativePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ReasonSpeculative
		}
	}
	return ""
}

// predominantlyCJK reports whether at least half of the non-space runes
// fall in the CJK unified ideograph block.
func predominantlyCJK(text string) bool {
	total, cjk := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		}
	}
	return total > 0 && cjk*2 >= total
}
