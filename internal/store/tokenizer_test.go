package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain words lowercase",
			input: "Prefers tabs",
			want:  []string{"prefers", "tabs"},
		},
		{
			name:  "camelCase splits",
			input: "getUserById",
			want:  []string{"get", "user", "by", "id"},
		},
		{
			name:  "snake_case splits",
			input: "get_user_by_id",
			want:  []string{"get", "user", "by", "id"},
		},
		{
			name:  "acronym boundary",
			input: "HTTPServer",
			want:  []string{"http", "server"},
		},
		{
			name:  "stop words removed",
			input: "the theme of the editor is dark",
			want:  []string{"theme", "editor", "dark"},
		},
		{
			name:  "single letters dropped",
			input: "a b option x",
			want:  []string{"option"},
		},
		{
			name:  "chinese split per character",
			input: "深色主题",
			want:  []string{"深", "色", "主", "题"},
		},
		{
			name:  "mixed languages",
			input: "dark主题 mode",
			want:  []string{"dark", "主", "题", "mode"},
		},
		{
			name:  "punctuation only",
			input: "!!! ??? ...",
			want:  nil,
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"simple", []string{"simple"}},
		{"camelCase", []string{"camel", "Case"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"getUserByID", []string{"get", "User", "By", "ID"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitCamelCase(tt.input), "input %q", tt.input)
	}
}

func TestFTSText(t *testing.T) {
	assert.Equal(t, "prefers dark theme", ftsText("Prefers the dark theme."))
	assert.Equal(t, "深 色 主 题", ftsText("深色主题"))
}
