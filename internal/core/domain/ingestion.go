package domain

import "time"

// DocumentOutcome is the per-document result of one job run. Unlike
// SourceStatus it includes the skipped case, which never touches the
// sources table.
type DocumentOutcome string

const (
	// OutcomeIngested means the document was fully ingested.
	OutcomeIngested DocumentOutcome = "ingested"

	// OutcomePartial means a strict subset of embedding batches failed
	// and the document was stored without the affected chunks.
	OutcomePartial DocumentOutcome = "partially_ingested"

	// OutcomeFailed means the document was not (re)ingested and its
	// prior chunks, if any, were left untouched.
	OutcomeFailed DocumentOutcome = "failed"

	// OutcomeSkipped means the content hash was unchanged and force
	// was not set; nothing was written.
	OutcomeSkipped DocumentOutcome = "skipped"
)

// IngestionRequest carries caller-supplied options for one job run.
type IngestionRequest struct {
	// Directories overrides the configured source directories.
	Directories []string

	// GlobPatterns are applied within each directory (default "**/*").
	GlobPatterns []string

	// Force reprocesses every document regardless of stored hashes.
	Force bool

	// MaxFailures halts the job early once this many documents have
	// failed. Zero disables the breaker.
	MaxFailures int

	// Concurrency bounds the number of documents processed in
	// parallel. Zero or one means sequential.
	Concurrency int

	// PipelineID overrides the identifier emitted in logs and results.
	PipelineID string
}

// DocumentResult summarises the ingestion of one document.
type DocumentResult struct {
	// Location identifies the document.
	Location string

	// Outcome is the per-document result.
	Outcome DocumentOutcome

	// Chunks is the number of chunk rows written.
	Chunks int

	// DroppedChunks counts chunks excluded because their embedding
	// batch failed (non-zero only for OutcomePartial).
	DroppedChunks int

	// Retries is the number of embedding retries that occurred.
	Retries int

	// Error is the sanitized failure reason, empty on success.
	Error string

	// ErrorKind tags the failure class ("chunking", "embedding", ...).
	ErrorKind string

	// Duration is the total wall time spent on this document.
	Duration time.Duration

	// ChunkDuration, EmbedDuration and StoreDuration break the total
	// down by stage.
	ChunkDuration time.Duration
	EmbedDuration time.Duration
	StoreDuration time.Duration
}

// IngestionStats aggregates counts across one job run.
type IngestionStats struct {
	Discovered    int
	Ingested      int
	Skipped       int
	Failed        int
	ChunksCreated int
}

// IngestionResult is the job-level summary handed back to the caller.
// It is ephemeral; only the sources and chunks tables persist.
type IngestionResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	PipelineID  string
	Documents   []DocumentResult
	Stats       IngestionStats
}

// Duration returns the total job wall time.
func (r *IngestionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// FailedDocuments returns the results for documents that failed.
func (r *IngestionResult) FailedDocuments() []DocumentResult {
	var failed []DocumentResult
	for _, doc := range r.Documents {
		if doc.Outcome == OutcomeFailed {
			failed = append(failed, doc)
		}
	}
	return failed
}
