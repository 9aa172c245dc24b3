package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenPattern matches ASCII identifier runs and individual CJK characters.
// FTS5's unicode61 tokenizer treats a run of Han characters as one token, so
// CJK text is split to single characters here, before it ever reaches SQLite.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+|[\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}]`)

// ftsStopWords are English function words excluded from the full-text index
// and from queries. Memory notes are prose, not code, so the list is the
// usual suspects rather than programming keywords.
var ftsStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "is": {}, "for": {}, "on": {}, "with": {}, "that": {},
	"this": {}, "it": {}, "as": {}, "at": {}, "be": {}, "are": {}, "was": {},
}

// Tokenize splits text into lowercase search tokens: identifier-aware for
// ASCII (camelCase and snake_case are broken apart), one token per CJK
// character. Stop words and single ASCII letters are dropped; a lone CJK
// character is three bytes and survives the length filter. Both the indexed
// content and MATCH queries go through this function, so the two sides
// always agree on token boundaries.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenPattern.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) < 2 {
				continue
			}
			if _, stop := ftsStopWords[lower]; stop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// splitIdentifier breaks snake_case and camelCase identifiers into their
// parts. Non-identifier tokens (single CJK characters, plain words) pass
// through unchanged.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, p := range strings.Split(token, "_") {
			if p != "" {
				parts = append(parts, splitCamelCase(p)...)
			}
		}
		return parts
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase and PascalCase runs, keeping acronyms
// together: "parseHTTPRequest" becomes ["parse", "HTTP", "Request"].
func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// ftsText renders content into the space-joined token form stored in the
// full-text table.
func ftsText(content string) string {
	return strings.Join(Tokenize(content), " ")
}
