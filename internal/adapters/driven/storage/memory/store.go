// Package memory provides an in-memory persistence store used by
// tests and as a reference implementation of the store semantics.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.PersistenceStore = (*Store)(nil)

// Store is an in-memory implementation of driven.PersistenceStore.
// Search scoring is exact but naive: full cosine scan for dense,
// token overlap for lexical, trigram overlap for pattern.
type Store struct {
	mu         sync.RWMutex
	sources    map[string]domain.DocumentSource
	byLocation map[string]string
	chunks     map[string][]domain.Chunk
}

// NewStore creates a new in-memory persistence store.
func NewStore() *Store {
	return &Store{
		sources:    make(map[string]domain.DocumentSource),
		byLocation: make(map[string]string),
		chunks:     make(map[string][]domain.Chunk),
	}
}

// UpsertSource inserts or updates a source keyed by location.
func (s *Store) UpsertSource(_ context.Context, source *domain.DocumentSource) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.byLocation[source.Location]; ok {
		existing := s.sources[id]
		existing.DocumentName = source.DocumentName
		existing.DocumentType = source.DocumentType
		existing.ContentHash = source.ContentHash
		existing.Status = source.Status
		existing.EmbeddingModel = source.EmbeddingModel
		existing.ErrorMessage = source.ErrorMessage
		existing.Metadata = source.Metadata
		existing.UpdatedAt = now
		s.sources[id] = existing
		return id, nil
	}

	stored := *source
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.sources[stored.ID] = stored
	s.byLocation[stored.Location] = stored.ID
	return stored.ID, nil
}

// GetSourceByLocation retrieves a source by its location.
func (s *Store) GetSourceByLocation(_ context.Context, location string) (*domain.DocumentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byLocation[location]
	if !ok {
		return nil, domain.ErrNotFound
	}
	source := s.sources[id]
	return &source, nil
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(_ context.Context, id string) (*domain.DocumentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	source, ok := s.sources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &source, nil
}

// ListSources returns all tracked sources ordered by location.
func (s *Store) ListSources(_ context.Context) ([]domain.DocumentSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.DocumentSource, 0, len(s.sources))
	for _, source := range s.sources {
		result = append(result, source)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Location < result[j].Location
	})
	return result, nil
}

// ReplaceChunksForSource atomically replaces a source's chunk set.
func (s *Store) ReplaceChunksForSource(_ context.Context, sourceID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[sourceID]; !ok {
		return domain.ErrNotFound
	}
	replacement := make([]domain.Chunk, len(chunks))
	copy(replacement, chunks)
	for i := range replacement {
		if replacement[i].ID == "" {
			replacement[i].ID = uuid.NewString()
		}
	}
	s.chunks[sourceID] = replacement
	return nil
}

// MarkSourceStatus updates a source's status and error message.
func (s *Store) MarkSourceStatus(_ context.Context, sourceID string, status domain.SourceStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[sourceID]
	if !ok {
		return domain.ErrNotFound
	}
	source.Status = status
	source.ErrorMessage = errMsg
	source.UpdatedAt = time.Now().UTC()
	s.sources[sourceID] = source
	return nil
}

// DeleteSource removes a source and its chunks.
func (s *Store) DeleteSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byLocation, source.Location)
	delete(s.sources, id)
	delete(s.chunks, id)
	return nil
}

// CountChunks returns the number of stored chunks for a source.
func (s *Store) CountChunks(_ context.Context, sourceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[sourceID]), nil
}

// DenseSearch scans all chunks and ranks by cosine similarity.
func (s *Store) DenseSearch(_ context.Context, vector []float32, limit int) ([]driven.ChunkHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []driven.ChunkHit
	s.forEachChunk(func(chunk domain.Chunk) {
		if chunk.Embedding == nil {
			return
		}
		score := cosine(vector, chunk.Embedding)
		if score <= 0 {
			return
		}
		hits = append(hits, hit(chunk, score))
	})
	return top(hits, limit), nil
}

// LexicalSearch ranks chunks by the fraction of query tokens present.
func (s *Store) LexicalSearch(_ context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []driven.ChunkHit
	s.forEachChunk(func(chunk domain.Chunk) {
		text := strings.ToLower(chunk.Text)
		matched := 0
		for _, token := range tokens {
			if strings.Contains(text, token) {
				matched++
			}
		}
		if matched == 0 {
			return
		}
		hits = append(hits, hit(chunk, float64(matched)/float64(len(tokens))))
	})
	return top(hits, limit), nil
}

// PatternSearch ranks chunks by trigram overlap with the query; an
// exact substring match scores 1.
func (s *Store) PatternSearch(_ context.Context, query string, limit int) ([]driven.ChunkHit, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	queryGrams := trigrams(needle)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []driven.ChunkHit
	s.forEachChunk(func(chunk domain.Chunk) {
		text := strings.ToLower(chunk.Text)
		if strings.Contains(text, needle) {
			hits = append(hits, hit(chunk, 1.0))
			return
		}
		if len(queryGrams) == 0 {
			return
		}
		textGrams := trigrams(text)
		matched := 0
		for gram := range queryGrams {
			if textGrams[gram] {
				matched++
			}
		}
		if matched == 0 {
			return
		}
		hits = append(hits, hit(chunk, float64(matched)/float64(len(queryGrams))))
	})
	return top(hits, limit), nil
}

// Close releases resources (no-op for the memory store).
func (s *Store) Close() error {
	return nil
}

// forEachChunk visits every stored chunk. Caller must hold the lock.
func (s *Store) forEachChunk(fn func(domain.Chunk)) {
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			fn(chunk)
		}
	}
}

func hit(chunk domain.Chunk, score float64) driven.ChunkHit {
	return driven.ChunkHit{
		ChunkID:    chunk.ID,
		SourceID:   chunk.SourceID,
		ChunkIndex: chunk.ChunkIndex,
		Text:       chunk.Text,
		Metadata:   chunk.Metadata,
		Score:      score,
	}
}

// top sorts hits best first (score desc, chunk index asc) and
// truncates to limit.
func top(hits []driven.ChunkHit, limit int) []driven.ChunkHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func trigrams(text string) map[string]bool {
	grams := make(map[string]bool)
	for i := 0; i+3 <= len(text); i++ {
		grams[text[i:i+3]] = true
	}
	return grams
}
