// Package errors provides structured error handling for stratoindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Queue and input validation errors
//   - 3XX: Store and persistence errors
//   - 4XX: Search and index errors
//   - 5XX: Internal and collaborator errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryQueue indicates queue and input validation errors.
	CategoryQueue Category = "QUEUE"
	// CategoryStore indicates vector store and persistence errors.
	CategoryStore Category = "STORE"
	// CategorySearch indicates lexical index and search errors.
	CategorySearch Category = "SEARCH"
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
)

// Kind classifies a failure by how callers should react to it.
type Kind string

const (
	// KindValidation is bad input. Never retried.
	KindValidation Kind = "validation"
	// KindStructural will fail identically until something is rebuilt
	// (for example an embedding dimension change).
	KindStructural Kind = "structural"
	// KindTransient may succeed on a later attempt (timeouts, I/O).
	KindTransient Kind = "transient"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Queue errors (200-299)
	ErrCodeInvalidVector = "ERR_201_INVALID_VECTOR"
	ErrCodeInvalidID     = "ERR_202_INVALID_ID"
	ErrCodeQueueFull     = "ERR_203_QUEUE_FULL"
	ErrCodeQueueClosed   = "ERR_204_QUEUE_CLOSED"

	// Store errors (300-399)
	ErrCodeDimensionMismatch = "ERR_301_DIMENSION_MISMATCH"
	ErrCodeStoreClosed       = "ERR_302_STORE_CLOSED"
	ErrCodeStoreTimeout      = "ERR_303_STORE_TIMEOUT"
	ErrCodePersistFailed     = "ERR_304_PERSIST_FAILED"
	ErrCodeStateCorrupt      = "ERR_305_STATE_CORRUPT"
	ErrCodeLocked            = "ERR_306_DATA_DIR_LOCKED"
	ErrCodeRecordNotFound    = "ERR_307_RECORD_NOT_FOUND"
	ErrCodePathConflict      = "ERR_308_PATH_CONFLICT"

	// Search errors (400-499)
	ErrCodeQueryEmpty     = "ERR_401_QUERY_EMPTY"
	ErrCodeInvalidMode    = "ERR_402_INVALID_MODE"
	ErrCodeIndexBuild     = "ERR_403_INDEX_BUILD_FAILED"
	ErrCodeSearchFailed   = "ERR_404_SEARCH_FAILED"
	ErrCodeShuttingDown   = "ERR_405_SHUTTING_DOWN"
	ErrCodeSearchTimeout  = "ERR_406_SEARCH_TIMEOUT"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeGraphFailed     = "ERR_503_GRAPH_FAILED"
	ErrCodeHistoryFailed   = "ERR_504_HISTORY_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryQueue
	case '3':
		return CategoryStore
	case '4':
		return CategorySearch
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeLocked, ErrCodeConfigInvalid:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreTimeout, ErrCodePersistFailed, ErrCodeSearchTimeout,
		ErrCodeEmbeddingFailed, ErrCodeGraphFailed, ErrCodeHistoryFailed:
		return true
	default:
		return false
	}
}

// kindFromCode maps an error code to its failure kind.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeInvalidVector, ErrCodeInvalidID, ErrCodeQueryEmpty, ErrCodeInvalidMode, ErrCodePathConflict:
		return KindValidation
	case ErrCodeDimensionMismatch:
		return KindStructural
	default:
		return KindTransient
	}
}
