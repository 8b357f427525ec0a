package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driving"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Ensure RetrieveService implements the interface.
var _ driving.RetrieveService = (*RetrieveService)(nil)

// RetrieveService combines three search passes into one ranking:
// dense (cosine over embeddings), lexical (full-text) and pattern
// (substring/trigram). The blend weights depend on whether the query
// looks like an identifier or natural language.
type RetrieveService struct {
	store    driven.PersistenceStore
	embedder driven.EmbeddingClient
	settings domain.RetrievalSettings
}

// NewRetrieveService creates a new retrieval service.
func NewRetrieveService(
	store driven.PersistenceStore,
	embedder driven.EmbeddingClient,
	settings domain.RetrievalSettings,
) *RetrieveService {
	return &RetrieveService{
		store:    store,
		embedder: embedder,
		settings: settings,
	}
}

// identifierToken matches code-like tokens: anything with a digit, a
// hyphenated alphanumeric compound, or inner uppercase (camelCase).
var identifierToken = regexp.MustCompile(`\d|^[A-Za-z0-9]+(-[A-Za-z0-9]+)+$|^.+[a-z][A-Z]`)

// Classify applies the query heuristic: a single code-like token makes
// the whole query identifier-class, since that token is usually the
// thing being looked up.
func Classify(query string) domain.QueryClass {
	for _, token := range strings.Fields(query) {
		if identifierToken.MatchString(token) {
			return domain.ClassIdentifier
		}
	}
	return domain.ClassConceptual
}

// passOutcome carries one search pass's hits or failure.
type passOutcome struct {
	name string
	hits []driven.ChunkHit
	err  error
}

// Retrieve runs the three passes concurrently and combines them.
// Individual pass failures degrade the ranking; only all three
// failing, or the query embedding failing, is an error.
func (s *RetrieveService) Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]domain.RankedChunk, error) {
	// 1. Normalise and validate the query
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	topK := query.TopK
	if topK <= 0 {
		topK = s.settings.TopK
	}
	// Zero means the configured default; a negative MinScore is an
	// explicit request for no threshold at all.
	minScore := query.MinScore
	if minScore < 0 {
		minScore = 0
	} else if minScore == 0 {
		minScore = s.settings.MinScore
	}
	candidateLimit := s.settings.CandidateLimit
	if candidateLimit < topK {
		candidateLimit = topK
	}

	// 2. Pick the weight profile
	profile := s.settings.Conceptual
	class := Classify(text)
	if class == domain.ClassIdentifier {
		profile = s.settings.Identifier
	}
	logger.Debug("Query classified as %s", class)

	// 3. Embed the query. No partial outcome here: retrieval without
	// the dense pass vector is retrieval with a silently different
	// meaning, so embedding failure is a hard error.
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// 4. Fan out the three passes, each under its own timeout
	timeout := time.Duration(s.settings.SearchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	outcomes := make([]passOutcome, 3)
	var wg sync.WaitGroup
	run := func(i int, name string, search func(context.Context) ([]driven.ChunkHit, error)) {
		defer wg.Done()
		passCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		hits, err := search(passCtx)
		outcomes[i] = passOutcome{name: name, hits: hits, err: err}
	}
	wg.Add(3)
	go run(0, "dense", func(ctx context.Context) ([]driven.ChunkHit, error) {
		return s.store.DenseSearch(ctx, vector, candidateLimit)
	})
	go run(1, "lexical", func(ctx context.Context) ([]driven.ChunkHit, error) {
		return s.store.LexicalSearch(ctx, text, candidateLimit)
	})
	go run(2, "pattern", func(ctx context.Context) ([]driven.ChunkHit, error) {
		return s.store.PatternSearch(ctx, text, candidateLimit)
	})
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			logger.Warn("%s search failed: %v", o.name, o.err)
		}
	}
	if failed == len(outcomes) {
		return nil, fmt.Errorf("all search passes failed: %w", outcomes[0].err)
	}

	// 5. Combine: a pass that did not return a chunk contributes 0
	merged := make(map[string]*domain.RankedChunk)
	collect := func(hits []driven.ChunkHit, assign func(*domain.RankedChunk, float64)) {
		for _, hit := range hits {
			ranked, ok := merged[hit.ChunkID]
			if !ok {
				ranked = &domain.RankedChunk{
					ChunkID:    hit.ChunkID,
					SourceID:   hit.SourceID,
					ChunkIndex: hit.ChunkIndex,
					Text:       hit.Text,
					Metadata:   hit.Metadata,
				}
				merged[hit.ChunkID] = ranked
			}
			assign(ranked, hit.Score)
		}
	}
	collect(outcomes[0].hits, func(r *domain.RankedChunk, s float64) { r.Dense = s })
	collect(outcomes[1].hits, func(r *domain.RankedChunk, s float64) { r.Lexical = s })
	collect(outcomes[2].hits, func(r *domain.RankedChunk, s float64) { r.Pattern = s })

	ranked := make([]domain.RankedChunk, 0, len(merged))
	for _, r := range merged {
		r.Score = profile.Combine(r.Dense, r.Lexical, r.Pattern)
		if r.Score < minScore {
			continue
		}
		ranked = append(ranked, *r)
	}

	// 6. Sort best first; chunk order within a source breaks ties
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].ChunkIndex != ranked[j].ChunkIndex {
			return ranked[i].ChunkIndex < ranked[j].ChunkIndex
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
