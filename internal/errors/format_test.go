package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatReply_RendersErrorLine(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "storage error",
			err:      StorageError("cannot open index.db", nil),
			expected: "Error: StorageError: cannot open index.db",
		},
		{
			name:     "embedding error",
			err:      EmbeddingUnavailable("request timed out", nil),
			expected: "Error: EmbeddingUnavailable: request timed out",
		},
		{
			name:     "not found",
			err:      NotFound("agent/decisions.md"),
			expected: "Error: NotFound: not found: agent/decisions.md",
		},
		{
			name:     "quality rejection",
			err:      QualityRejected("too short"),
			expected: "Rejected: too short",
		},
		{
			name:     "privacy rejection",
			err:      PrivacyRejected(),
			expected: "Rejected: contains sensitive information",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: "Error: InternalError: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatReply(tt.err))
		})
	}
}

func TestFormatReply_NilError(t *testing.T) {
	assert.Empty(t, FormatReply(nil))
}

func TestFormatReply_WrappedError(t *testing.T) {
	// A MemoryError buried in an fmt.Errorf chain is still recognized.
	err := StorageError("disk full", nil)
	wrapped := errWrap("indexing journal/2025-01-15.md", err)

	assert.Equal(t, "Error: StorageError: disk full", FormatReply(wrapped))
}

func errWrap(msg string, err error) error {
	return &wrappedErr{msg: msg, err: err}
}

type wrappedErr struct {
	msg string
	err error
}

func (w *wrappedErr) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.err }

func TestFormatForCLI_IncludesCodeAndHint(t *testing.T) {
	err := New(ErrCodeCorruptIndex, "index is corrupted", nil).
		WithSuggestion("Run 'openclaw-memory index --force' to rebuild")

	result := FormatForCLI(err)

	assert.Contains(t, result, "index is corrupted")
	assert.Contains(t, result, "ERR_204_CORRUPT_INDEX")
	assert.Contains(t, result, "Hint:")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := NotFound("TASKS.md")

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "Should be concise")
}

func TestFormatForCLI_PlainError(t *testing.T) {
	result := FormatForCLI(errors.New("boom"))

	assert.Contains(t, result, "Error: boom")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}
