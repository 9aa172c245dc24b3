package chunk

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokensPerChar is the rough chars-per-token ratio used by the fallback
// estimator for non-CJK text.
const TokensPerChar = 4

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding. When the encoding
// cannot be loaded (offline environments), it falls back to a deterministic
// estimate. Either way the same input yields the same count for the lifetime
// of the process, which the retrieval budget arithmetic relies on.
func CountTokens(text string) int {
	tokenizerOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			tokenizer = enc
		}
	})
	if tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens approximates cl100k_base counts: CJK characters tokenize to
// roughly one token each, everything else to about four characters per token.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := cjk + (other+TokensPerChar-1)/TokensPerChar
	if n == 0 {
		n = 1
	}
	return n
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
