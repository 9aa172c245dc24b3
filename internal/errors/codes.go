// Package errors provides structured error handling for OpenClaw Memory.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (chunk table, FTS, vector index, memory files)
//   - 3XX: Embedding provider errors
//   - 4XX: Write-pipeline rejections (structured refusals, not failures)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index database and memory-file I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryEmbedding indicates embedding provider errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryRejection indicates write-pipeline refusals (quality, privacy).
	CategoryRejection Category = "REJECTION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeNoProject      = "ERR_103_NO_PROJECT"

	// Storage errors (200-299)
	ErrCodeStoreIO      = "ERR_201_STORE_IO"
	ErrCodeStoreSchema  = "ERR_202_STORE_SCHEMA"
	ErrCodeFTSSync      = "ERR_203_FTS_SYNC"
	ErrCodeCorruptIndex = "ERR_204_CORRUPT_INDEX"
	ErrCodeNotFound     = "ERR_205_NOT_FOUND"
	ErrCodeFileIO       = "ERR_206_FILE_IO"

	// Embedding errors (300-399)
	ErrCodeEmbedTimeout      = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable  = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeDimensionMismatch = "ERR_303_DIMENSION_MISMATCH"

	// Rejections (400-499)
	ErrCodeQualityRejected = "ERR_401_QUALITY_REJECTED"
	ErrCodePrivacyRejected = "ERR_402_PRIVACY_REJECTED"
	ErrCodeInvalidInput    = "ERR_403_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal  = "ERR_501_INTERNAL"
	ErrCodeCancelled = "ERR_502_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryRejection
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeQualityRejected, ErrCodePrivacyRejected:
		// Rejections are pipeline outcomes, not faults.
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable:
		return true
	default:
		return false
	}
}

// kindFromCode maps an error code onto the user-facing failure kind used in
// verb replies ("Error: <kind>: <message>").
func kindFromCode(code string) string {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeNoProject:
		return "ConfigError"
	case ErrCodeStoreIO, ErrCodeStoreSchema, ErrCodeFTSSync, ErrCodeCorruptIndex, ErrCodeFileIO:
		return "StorageError"
	case ErrCodeEmbedTimeout, ErrCodeEmbedUnavailable, ErrCodeDimensionMismatch:
		return "EmbeddingUnavailable"
	case ErrCodeQualityRejected:
		return "QualityRejected"
	case ErrCodePrivacyRejected:
		return "PrivacyRejected"
	case ErrCodeNotFound:
		return "NotFound"
	case ErrCodeCancelled:
		return "Cancelled"
	default:
		return "InternalError"
	}
}
