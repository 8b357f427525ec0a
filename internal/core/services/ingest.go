package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/retriva-cli/internal/chunker"
	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driving"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService runs the ingestion pipeline: discover raw documents,
// convert, chunk, embed, and store. Each document is an independent
// unit of work; one document's failure never aborts the job unless the
// failure threshold trips.
type IngestService struct {
	store    driven.PersistenceStore
	embedder driven.EmbeddingClient
	registry driven.ConverterRegistry
	factory  driven.ConnectorFactory
	chunker  *chunker.Chunker
	settings domain.IngestionSettings
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	store driven.PersistenceStore,
	embedder driven.EmbeddingClient,
	registry driven.ConverterRegistry,
	factory driven.ConnectorFactory,
	ch *chunker.Chunker,
	settings domain.IngestionSettings,
) *IngestService {
	return &IngestService{
		store:    store,
		embedder: embedder,
		registry: registry,
		factory:  factory,
		chunker:  ch,
		settings: settings,
	}
}

// Ingest runs one ingestion job. Per-document failures are recorded in
// the result; the error return is reserved for job-level conditions:
// cancellation, discovery failure, or the failure threshold halting
// the job (domain.ErrJobHalted).
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestionRequest) (*domain.IngestionResult, error) {
	// 1. Resolve request against configured defaults
	patterns := req.GlobPatterns
	if len(patterns) == 0 {
		patterns = s.settings.GlobPatterns
	}
	maxFailures := req.MaxFailures
	if maxFailures == 0 {
		maxFailures = s.settings.MaxFailures
	}
	concurrency := req.Concurrency
	if concurrency == 0 {
		concurrency = s.settings.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	pipelineID := req.PipelineID
	if pipelineID == "" {
		pipelineID = uuid.NewString()
	}

	result := &domain.IngestionResult{
		StartedAt:  time.Now().UTC(),
		PipelineID: pipelineID,
	}

	// 2. Create a connector over the requested roots
	connector, err := s.factory.Create(req.Directories, patterns)
	if err != nil {
		return nil, fmt.Errorf("creating connector: %w", err)
	}
	defer connector.Close()

	if err := connector.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validating connector: %w", err)
	}

	logger.Section(fmt.Sprintf("Ingestion %s", pipelineID))

	// 3. Stream discovered documents through a bounded worker pool.
	// Locations already dispatched in this job are not dispatched
	// again, so at most one worker touches a given document.
	docsCh, errsCh := connector.Discover(ctx)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sem      = make(chan struct{}, concurrency)
		seen     = make(map[string]bool)
		halted   bool
		failures int
	)

	record := func(doc domain.DocumentResult) {
		mu.Lock()
		defer mu.Unlock()
		result.Documents = append(result.Documents, doc)
		switch doc.Outcome {
		case domain.OutcomeIngested, domain.OutcomePartial:
			result.Stats.Ingested++
			result.Stats.ChunksCreated += doc.Chunks
		case domain.OutcomeSkipped:
			result.Stats.Skipped++
		case domain.OutcomeFailed:
			result.Stats.Failed++
			failures++
			if maxFailures > 0 && failures >= maxFailures {
				halted = true
			}
		}
	}

	shouldHalt := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return halted
	}

	for raw := range docsCh {
		if ctx.Err() != nil {
			break
		}
		if seen[raw.Location] {
			continue
		}

		// Acquire before checking the breaker so that at concurrency
		// one the check observes every prior document's outcome.
		sem <- struct{}{}
		if shouldHalt() {
			<-sem
			break
		}
		seen[raw.Location] = true
		result.Stats.Discovered++

		wg.Add(1)
		go func(raw domain.RawDocument) {
			defer wg.Done()
			defer func() { <-sem }()
			record(s.processDocument(ctx, &raw, req.Force))
		}(raw)
	}
	wg.Wait()

	// Drain after an early break so the producer can finish and close
	// the error channel.
	for range docsCh {
	}

	// 4. Surface discovery errors that arrived alongside documents
	var discoveryErr error
	for err := range errsCh {
		logger.Error("Discovery: %v", err)
		if discoveryErr == nil {
			discoveryErr = err
		}
	}

	result.CompletedAt = time.Now().UTC()

	logger.Info("Ingestion %s finished: %d discovered, %d ingested, %d skipped, %d failed",
		pipelineID, result.Stats.Discovered, result.Stats.Ingested,
		result.Stats.Skipped, result.Stats.Failed)

	// 5. Job-level outcome
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if shouldHalt() {
		return result, fmt.Errorf("%w: %d documents failed", domain.ErrJobHalted, failures)
	}
	if discoveryErr != nil && len(result.Documents) == 0 {
		return result, fmt.Errorf("discovery: %w", discoveryErr)
	}
	return result, nil
}

// Watch streams documents from the connector's change watcher through
// the per-document pipeline. Documents are processed one at a time in
// arrival order; change detection still applies, so a save without a
// content change comes back as a skip unless req.Force is set. The
// returned channel is closed when the context is cancelled or the
// watcher stops.
func (s *IngestService) Watch(ctx context.Context, req domain.IngestionRequest) (<-chan domain.DocumentResult, error) {
	patterns := req.GlobPatterns
	if len(patterns) == 0 {
		patterns = s.settings.GlobPatterns
	}

	connector, err := s.factory.Create(req.Directories, patterns)
	if err != nil {
		return nil, fmt.Errorf("creating connector: %w", err)
	}
	if err := connector.Validate(ctx); err != nil {
		connector.Close()
		return nil, fmt.Errorf("validating connector: %w", err)
	}
	docsCh, err := connector.Watch(ctx)
	if err != nil {
		connector.Close()
		return nil, fmt.Errorf("starting watch: %w", err)
	}

	logger.Info("Watching %d directories for changes", len(req.Directories))

	results := make(chan domain.DocumentResult)
	go func() {
		defer close(results)
		defer connector.Close()
		for raw := range docsCh {
			res := s.processDocument(ctx, &raw, req.Force)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return results, nil
}

// processDocument runs the per-document pipeline: change check,
// convert, chunk, embed, store, mark. Failures leave any prior chunk
// set untouched.
func (s *IngestService) processDocument(ctx context.Context, raw *domain.RawDocument, force bool) domain.DocumentResult {
	started := time.Now()
	res := domain.DocumentResult{Location: raw.Location}

	fail := func(cause error) domain.DocumentResult {
		res.Outcome = domain.OutcomeFailed
		res.Error = cause.Error()
		res.ErrorKind = string(domain.KindOf(cause))
		res.Duration = time.Since(started)
		logger.Error("Failed %s: %v", raw.Location, cause)
		return res
	}

	// 1. Change detection: unchanged content is skipped unless forced
	existing, err := s.store.GetSourceByLocation(ctx, raw.Location)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fail(err)
	}
	if existing != nil && !force && !existing.ContentChanged(raw.ContentHash) {
		logger.Debug("Skipping %s: content unchanged", raw.Location)
		res.Outcome = domain.OutcomeSkipped
		res.Duration = time.Since(started)
		return res
	}

	// 2. Register the attempt
	source := &domain.DocumentSource{
		Location:       raw.Location,
		DocumentName:   raw.Name(),
		DocumentType:   raw.DeclaredType,
		ContentHash:    raw.ContentHash,
		Status:         domain.StatusPending,
		EmbeddingModel: s.embedder.ModelName(),
		Metadata: map[string]any{
			"size_bytes": raw.SizeBytes,
		},
	}
	sourceID, err := s.store.UpsertSource(ctx, source)
	if err != nil {
		return fail(err)
	}

	// 3. Convert and chunk
	chunkStart := time.Now()
	structured, err := s.registry.Convert(ctx, raw)
	if err != nil {
		res.ChunkDuration = time.Since(chunkStart)
		return fail(s.markFailed(ctx, sourceID, err))
	}
	candidates, err := s.chunker.Chunk(structured)
	res.ChunkDuration = time.Since(chunkStart)
	if err != nil {
		return fail(s.markFailed(ctx, sourceID, err))
	}
	if len(candidates) == 0 {
		err := fmt.Errorf("%w: %s", domain.ErrEmptyDocument, raw.Location)
		return fail(s.markFailed(ctx, sourceID, err))
	}

	// 4. Embed
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	embedStart := time.Now()
	embedded, err := s.embedder.EmbedDocuments(ctx, texts)
	res.EmbedDuration = time.Since(embedStart)
	if err != nil {
		return fail(s.markFailed(ctx, sourceID, err))
	}
	for _, batch := range embedded.Batches {
		res.Retries += batch.Retries
	}

	// 5. Decide the document outcome from the batch outcomes
	failedBatches := embedded.FailedBatches()
	if len(failedBatches) == len(embedded.Batches) && len(embedded.Batches) > 0 {
		return fail(s.markFailed(ctx, sourceID, failedBatches[0].Err))
	}

	chunks := make([]domain.Chunk, 0, len(candidates))
	for i, c := range candidates {
		if embedded.Vectors[i] == nil {
			res.DroppedChunks++
			continue
		}
		chunks = append(chunks, domain.Chunk{
			SourceID:       sourceID,
			ChunkIndex:     len(chunks),
			Text:           c.Text,
			Embedding:      embedded.Vectors[i],
			Metadata:       c.Metadata,
			EmbeddingModel: s.embedder.ModelName(),
			Fingerprint:    s.embedder.Fingerprint(),
		})
	}

	// 6. Atomic replace, then mark terminal status
	storeStart := time.Now()
	if err := s.store.ReplaceChunksForSource(ctx, sourceID, chunks); err != nil {
		res.StoreDuration = time.Since(storeStart)
		return fail(s.markFailed(ctx, sourceID, err))
	}

	status := domain.StatusIngested
	res.Outcome = domain.OutcomeIngested
	if res.DroppedChunks > 0 {
		status = domain.StatusPartiallyIngested
		res.Outcome = domain.OutcomePartial
		res.ErrorKind = string(domain.KindEmbedding)
		res.Error = fmt.Sprintf("%d of %d embedding batches failed", len(failedBatches), len(embedded.Batches))
	}
	if err := s.store.MarkSourceStatus(ctx, sourceID, status, res.Error); err != nil {
		res.StoreDuration = time.Since(storeStart)
		return fail(err)
	}
	res.StoreDuration = time.Since(storeStart)
	res.Chunks = len(chunks)

	logger.Debug("Ingested %s: %d chunks (%d dropped, %d retries)",
		raw.Location, res.Chunks, res.DroppedChunks, res.Retries)
	res.Duration = time.Since(started)
	return res
}

// markFailed records the terminal failed status with a sanitized
// message, then hands the original cause back for reporting. Errors
// from the status write itself are logged, not propagated.
func (s *IngestService) markFailed(ctx context.Context, sourceID string, cause error) error {
	if err := s.store.MarkSourceStatus(ctx, sourceID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("Marking source %s failed: %v", sourceID, err)
	}
	return cause
}
