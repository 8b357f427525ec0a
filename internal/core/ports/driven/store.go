package driven

import (
	"context"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// ChunkHit is one chunk returned by a single search pass, scored in
// [0, 1] where 1 is the best match in the result set.
type ChunkHit struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// SourceID identifies the owning document source.
	SourceID string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int

	// Text is the chunk content.
	Text string

	// Metadata is the chunk's structural metadata.
	Metadata domain.ChunkMetadata

	// Score is the normalized relevance score for this pass.
	Score float64
}

// PersistenceStore persists document sources and chunks, and serves
// the three search passes over the stored chunks.
//
// Backed by PostgreSQL (pgvector, tsvector, pg_trgm) or SQLite
// (FTS5) for local use.
type PersistenceStore interface {
	// UpsertSource inserts the source or, if a row with the same
	// location exists, updates it in place. The location is the
	// conflict key; the ID of the stored row is returned.
	UpsertSource(ctx context.Context, source *domain.DocumentSource) (string, error)

	// GetSourceByLocation retrieves a source by its location.
	// Returns domain.ErrNotFound when absent.
	GetSourceByLocation(ctx context.Context, location string) (*domain.DocumentSource, error)

	// GetSource retrieves a source by ID.
	// Returns domain.ErrNotFound when absent.
	GetSource(ctx context.Context, id string) (*domain.DocumentSource, error)

	// ListSources returns all tracked sources ordered by location.
	ListSources(ctx context.Context) ([]domain.DocumentSource, error)

	// ReplaceChunksForSource atomically replaces the chunk set of a
	// source: delete old, insert new, in one transaction. On error
	// nothing changes and the prior chunks remain queryable.
	ReplaceChunksForSource(ctx context.Context, sourceID string, chunks []domain.Chunk) error

	// MarkSourceStatus updates a source's status and sanitized error
	// message. Returns domain.ErrNotFound when the source is absent.
	MarkSourceStatus(ctx context.Context, sourceID string, status domain.SourceStatus, errMsg string) error

	// DeleteSource removes a source and its chunks.
	DeleteSource(ctx context.Context, id string) error

	// CountChunks returns the number of stored chunks for a source.
	CountChunks(ctx context.Context, sourceID string) (int, error)

	// DenseSearch returns the chunks nearest to the query vector by
	// cosine similarity, best first.
	DenseSearch(ctx context.Context, vector []float32, limit int) ([]ChunkHit, error)

	// LexicalSearch returns chunks ranked by full-text relevance,
	// best first. Scores are normalized to the top hit.
	LexicalSearch(ctx context.Context, query string, limit int) ([]ChunkHit, error)

	// PatternSearch returns chunks containing the query as a
	// substring or close trigram match, best first.
	PatternSearch(ctx context.Context, query string, limit int) ([]ChunkHit, error)

	// Close releases the underlying connection.
	Close() error
}
