package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDocument indicates a document produced no chunks.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrJobHalted indicates the max-failures circuit breaker tripped
	// and the remainder of the job was not scheduled.
	ErrJobHalted = errors.New("ingestion job halted by failure threshold")
)

// ErrorKind tags a failure class for sanitized reporting. Results
// carry the tag instead of raw error chains or stack traces.
type ErrorKind string

const (
	KindConfig      ErrorKind = "config"
	KindChunking    ErrorKind = "chunking"
	KindEmbedding   ErrorKind = "embedding"
	KindPersistence ErrorKind = "persistence"
	KindInternal    ErrorKind = "internal"
)

// ConfigError reports invalid configuration. It is fatal at startup
// and never raised per-document.
type ConfigError struct {
	// Field names the offending setting.
	Field string

	// Reason explains the constraint that was violated.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Kind returns the error class tag.
func (e *ConfigError) Kind() ErrorKind { return KindConfig }

// ChunkingError reports a failure of the fallback chunking strategy.
// Primary-strategy failures are recovered by the fallback and never
// surface as this error.
type ChunkingError struct {
	// Location identifies the document being chunked.
	Location string

	// Err is the underlying cause.
	Err error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking %s: %v", e.Location, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// Kind returns the error class tag.
func (e *ChunkingError) Kind() ErrorKind { return KindChunking }

// EmbeddingError reports a failed embedding batch. It carries the
// batch identifier and item count but never the text itself, so the
// error can be logged without leaking document content.
type EmbeddingError struct {
	// BatchID identifies the failed batch.
	BatchID string

	// ItemCount is the number of texts in the batch.
	ItemCount int

	// StatusCode is the HTTP status, 0 for transport failures and
	// response-shape problems (e.g., dimension mismatch).
	StatusCode int

	// Retries is how many retries were attempted before giving up.
	Retries int

	// Err is the underlying cause. Adapters must keep document text
	// out of it.
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding batch %s failed (items=%d, status=%d, retries=%d): %v",
		e.BatchID, e.ItemCount, e.StatusCode, e.Retries, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Kind returns the error class tag.
func (e *EmbeddingError) Kind() ErrorKind { return KindEmbedding }

// Transient reports whether the failure class is worth retrying:
// transport errors, timeouts, 5xx and 429. Validation-class 4xx
// failures are permanent.
func (e *EmbeddingError) Transient() bool {
	if e.StatusCode == 0 {
		// Transport failure or timeout. Response-shape errors set
		// StatusCode 0 too but are constructed non-transient by the
		// adapter before retry bookkeeping, so this stays simple.
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// PersistenceError reports a storage failure. A failure during chunk
// replacement rolls back the whole transaction; the prior chunk set
// is left intact.
type PersistenceError struct {
	// Op names the store operation that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Kind returns the error class tag.
func (e *PersistenceError) Kind() ErrorKind { return KindPersistence }

// kinder is implemented by every typed error above.
type kinder interface{ Kind() ErrorKind }

// KindOf classifies an error chain for sanitized reporting.
func KindOf(err error) ErrorKind {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}
