package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

func TestNewStore(t *testing.T) {
	store := NewStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.sources)
	assert.NotNil(t, store.chunks)
}

func TestStore_UpsertSource_Insert(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location:     "/docs/a.md",
		DocumentName: "a.md",
		DocumentType: "md",
		ContentHash:  "hash-1",
		Status:       domain.StatusPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	saved, err := store.GetSourceByLocation(ctx, "/docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, id, saved.ID)
	assert.Equal(t, "hash-1", saved.ContentHash)
	assert.Equal(t, domain.StatusPending, saved.Status)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestStore_UpsertSource_UpdateKeepsID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id1, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location:    "/docs/a.md",
		ContentHash: "hash-1",
		Status:      domain.StatusPending,
	})
	require.NoError(t, err)

	id2, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location:    "/docs/a.md",
		ContentHash: "hash-2",
		Status:      domain.StatusPending,
	})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	saved, err := store.GetSourceByLocation(ctx, "/docs/a.md")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", saved.ContentHash)
}

func TestStore_GetSourceByLocation_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.GetSourceByLocation(context.Background(), "/missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ReplaceChunksForSource(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location: "/docs/a.md",
		Status:   domain.StatusPending,
	})
	require.NoError(t, err)

	first := []domain.Chunk{
		{SourceID: id, ChunkIndex: 0, Text: "old one"},
		{SourceID: id, ChunkIndex: 1, Text: "old two"},
		{SourceID: id, ChunkIndex: 2, Text: "old three"},
	}
	require.NoError(t, store.ReplaceChunksForSource(ctx, id, first))

	count, err := store.CountChunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Replacement is wholesale, not a merge.
	second := []domain.Chunk{{SourceID: id, ChunkIndex: 0, Text: "new one"}}
	require.NoError(t, store.ReplaceChunksForSource(ctx, id, second))

	count, err = store.CountChunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ReplaceChunksForSource_UnknownSource(t *testing.T) {
	store := NewStore()

	err := store.ReplaceChunksForSource(context.Background(), "nope", nil)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_MarkSourceStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location: "/docs/a.md",
		Status:   domain.StatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkSourceStatus(ctx, id, domain.StatusFailed, "embedding unavailable"))

	saved, err := store.GetSource(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, saved.Status)
	assert.Equal(t, "embedding unavailable", saved.ErrorMessage)
}

func TestStore_DeleteSource(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location: "/docs/a.md",
		Status:   domain.StatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceChunksForSource(ctx, id, []domain.Chunk{
		{SourceID: id, ChunkIndex: 0, Text: "text"},
	}))

	require.NoError(t, store.DeleteSource(ctx, id))

	_, err = store.GetSource(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetSourceByLocation(ctx, "/docs/a.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListSources_OrderedByLocation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, loc := range []string{"/docs/c.md", "/docs/a.md", "/docs/b.md"} {
		_, err := store.UpsertSource(ctx, &domain.DocumentSource{Location: loc, Status: domain.StatusPending})
		require.NoError(t, err)
	}

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "/docs/a.md", sources[0].Location)
	assert.Equal(t, "/docs/b.md", sources[1].Location)
	assert.Equal(t, "/docs/c.md", sources[2].Location)
}

func seedChunks(t *testing.T, store *Store) string {
	t.Helper()
	ctx := context.Background()
	id, err := store.UpsertSource(ctx, &domain.DocumentSource{
		Location: "/docs/catalog.md",
		Status:   domain.StatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceChunksForSource(ctx, id, []domain.Chunk{
		{SourceID: id, ChunkIndex: 0, Text: "The XJ-900 motor ships with a mounting bracket.", Embedding: []float32{1, 0, 0}},
		{SourceID: id, ChunkIndex: 1, Text: "Electric motors convert electrical energy into rotation.", Embedding: []float32{0.9, 0.1, 0}},
		{SourceID: id, ChunkIndex: 2, Text: "Shipping and returns are handled within five days.", Embedding: []float32{0, 1, 0}},
	}))
	return id
}

func TestStore_DenseSearch(t *testing.T) {
	store := NewStore()
	seedChunks(t, store)

	hits, err := store.DenseSearch(context.Background(), []float32{1, 0, 0}, 2)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 1, hits[1].ChunkIndex)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStore_LexicalSearch(t *testing.T) {
	store := NewStore()
	seedChunks(t, store)

	hits, err := store.LexicalSearch(context.Background(), "electric motors", 10)

	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestStore_PatternSearch_ExactSubstringWins(t *testing.T) {
	store := NewStore()
	seedChunks(t, store)

	hits, err := store.PatternSearch(context.Background(), "XJ-900", 10)

	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestStore_SearchEmptyQuery(t *testing.T) {
	store := NewStore()
	seedChunks(t, store)

	lexical, err := store.LexicalSearch(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, lexical)

	pattern, err := store.PatternSearch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, pattern)
}
