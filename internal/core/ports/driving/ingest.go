package driving

import (
	"context"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// IngestService runs the document ingestion pipeline.
type IngestService interface {
	// Ingest discovers, chunks, embeds and stores the documents named
	// by the request. Per-document failures are recorded in the
	// result, not returned; the error return is reserved for job-level
	// failures (store unreachable, cancellation before completion).
	Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error)

	// Watch keeps watching the requested directories and re-runs the
	// per-document pipeline whenever a matching file settles after a
	// change. The returned channel carries one result per re-emitted
	// document and is closed when the context is cancelled.
	Watch(ctx context.Context, req domain.IngestionRequest) (<-chan domain.DocumentResult, error)
}

// SourceService exposes the tracked document sources.
type SourceService interface {
	// ListSources returns all tracked sources ordered by location.
	ListSources(ctx context.Context) ([]domain.DocumentSource, error)

	// RemoveSource deletes a source and its chunks.
	RemoveSource(ctx context.Context, id string) error
}
