package domain

import "time"

// SourceStatus is the ingestion state of a DocumentSource.
// The set is closed; statuses are stored as strings but must only
// be compared against the constants below.
type SourceStatus string

const (
	// StatusPending means the source row exists but the current
	// ingestion attempt has not finished.
	StatusPending SourceStatus = "pending"

	// StatusIngested means every chunk embedded and persisted.
	StatusIngested SourceStatus = "ingested"

	// StatusPartiallyIngested means chunking and persistence succeeded
	// but a strict subset of embedding batches failed after retry.
	// The chunks that did embed are stored; the dropped count is
	// recorded on the ingestion result.
	StatusPartiallyIngested SourceStatus = "partially_ingested"

	// StatusFailed means the ingestion attempt failed and no chunk
	// replacement took place. Prior chunks, if any, remain intact.
	StatusFailed SourceStatus = "failed"
)

// Valid reports whether the status is one of the known values.
func (s SourceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusIngested, StatusPartiallyIngested, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends an ingestion attempt.
// Statuses are monotonic within one attempt: a terminal status is
// only left by starting a new attempt (which resets to pending).
func (s SourceStatus) Terminal() bool {
	return s == StatusIngested || s == StatusPartiallyIngested || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal
// within a single ingestion attempt.
func (s SourceStatus) CanTransition(next SourceStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	// A new attempt may always reset to pending.
	if next == StatusPending {
		return true
	}
	// Terminal statuses never silently revert mid-attempt.
	return s == StatusPending
}

// DocumentSource represents one logical document tracked for ingestion.
// There is exactly one row per location; the location is the stable
// identity and the content hash drives change detection.
type DocumentSource struct {
	// ID is the unique identifier for the source.
	ID string

	// Location is the stable, globally unique identity (file path, URL).
	Location string

	// DocumentName is the human-readable name (usually the file name).
	DocumentName string

	// DocumentType is the declared format (e.g., "md", "txt", "pdf").
	DocumentType string

	// ContentHash is the SHA-256 digest of the raw bytes, used to
	// decide whether re-ingestion is necessary.
	ContentHash string

	// Status is the current ingestion state.
	Status SourceStatus

	// EmbeddingModel identifies the model whose vectors are stored
	// for this source's chunks.
	EmbeddingModel string

	// ErrorMessage holds the sanitized failure reason, if any.
	ErrorMessage string

	// Metadata contains source-level key-value pairs (size, mtime).
	Metadata map[string]any

	// CreatedAt is when the source was first discovered.
	CreatedAt time.Time

	// UpdatedAt is when the source was last touched by ingestion.
	UpdatedAt time.Time
}

// ContentChanged reports whether the given hash differs from the
// stored one. A source with no stored hash always counts as changed.
func (s *DocumentSource) ContentChanged(hash string) bool {
	return s.ContentHash == "" || s.ContentHash != hash
}
