package errors

import (
	"context"
	"errors"
	"fmt"
)

// MemoryError is the structured error type for OpenClaw Memory.
// It provides rich context for error handling, logging, and user presentation.
type MemoryError struct {
	// Code is the unique error code (e.g., "ERR_201_STORE_IO").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Embedding, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MemoryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MemoryError.
func (e *MemoryError) Is(target error) bool {
	if t, ok := target.(*MemoryError); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the user-facing failure kind used in verb replies.
func (e *MemoryError) Kind() string {
	return kindFromCode(e.Code)
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MemoryError) WithDetail(key, value string) *MemoryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *MemoryError) WithSuggestion(suggestion string) *MemoryError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MemoryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MemoryError {
	return &MemoryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MemoryError from an existing error.
// The error's message becomes the MemoryError message.
func Wrap(code string, err error) *MemoryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MemoryError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates an index-database or memory-file error.
func StorageError(message string, cause error) *MemoryError {
	return New(ErrCodeStoreIO, message, cause)
}

// EmbeddingUnavailable creates an embedding-provider error.
// These are typically retryable.
func EmbeddingUnavailable(message string, cause error) *MemoryError {
	return New(ErrCodeEmbedUnavailable, message, cause)
}

// QualityRejected creates a quality-gate refusal with the given reason.
func QualityRejected(reason string) *MemoryError {
	return New(ErrCodeQualityRejected, reason, nil)
}

// PrivacyRejected creates a privacy-filter refusal.
func PrivacyRejected() *MemoryError {
	return New(ErrCodePrivacyRejected, "contains sensitive information", nil)
}

// NotFound creates a missing-path error for read/delete operations.
func NotFound(path string) *MemoryError {
	return New(ErrCodeNotFound, fmt.Sprintf("not found: %s", path), nil)
}

// Cancelled wraps a context cancellation.
func Cancelled(cause error) *MemoryError {
	return New(ErrCodeCancelled, "operation cancelled", cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MemoryError {
	return New(ErrCodeInternal, message, cause)
}

// FromContext converts a context error into the matching MemoryError,
// or returns nil if the context is still live.
func FromContext(ctx context.Context) *MemoryError {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return New(ErrCodeEmbedTimeout, "deadline exceeded", err)
		}
		return Cancelled(err)
	}
	return nil
}

// IsRejection reports whether the error is a quality or privacy refusal.
func IsRejection(err error) bool {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Category == CategoryRejection &&
			(me.Code == ErrCodeQualityRejected || me.Code == ErrCodePrivacyRejected)
	}
	return false
}

// RejectionReason returns the refusal reason for rejection errors,
// empty string otherwise.
func RejectionReason(err error) string {
	var me *MemoryError
	if errors.As(err, &me) && IsRejection(err) {
		return me.Message
	}
	return ""
}

// IsNotFound reports whether the error is a missing-path error.
func IsNotFound(err error) bool {
	var me *MemoryError
	return errors.As(err, &me) && me.Code == ErrCodeNotFound
}

// IsEmbeddingUnavailable reports whether the error came from the embedding
// provider (timeout, unreachable, dimension mismatch).
func IsEmbeddingUnavailable(err error) bool {
	var me *MemoryError
	return errors.As(err, &me) && me.Category == CategoryEmbedding
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a MemoryError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a MemoryError.
// Returns empty string if not a MemoryError.
func GetCode(err error) string {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from a MemoryError.
// Returns empty string if not a MemoryError.
func GetCategory(err error) Category {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}
