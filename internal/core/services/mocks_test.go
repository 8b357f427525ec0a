package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

// fakeStore is an in-memory PersistenceStore with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	sources   map[string]domain.DocumentSource
	byLoc     map[string]string
	chunks    map[string][]domain.Chunk
	statusLog []domain.SourceStatus

	replaceErr error
	denseErr   error
	lexicalErr error
	patternErr error

	denseHits   []driven.ChunkHit
	lexicalHits []driven.ChunkHit
	patternHits []driven.ChunkHit
}

var _ driven.PersistenceStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources: make(map[string]domain.DocumentSource),
		byLoc:   make(map[string]string),
		chunks:  make(map[string][]domain.Chunk),
	}
}

func (f *fakeStore) UpsertSource(_ context.Context, source *domain.DocumentSource) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byLoc[source.Location]
	if !ok {
		id = source.ID
		if id == "" {
			id = uuid.NewString()
		}
		f.byLoc[source.Location] = id
	}
	stored := *source
	stored.ID = id
	f.sources[id] = stored
	return id, nil
}

func (f *fakeStore) GetSourceByLocation(_ context.Context, location string) (*domain.DocumentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byLoc[location]
	if !ok {
		return nil, domain.ErrNotFound
	}
	source := f.sources[id]
	return &source, nil
}

func (f *fakeStore) GetSource(_ context.Context, id string) (*domain.DocumentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &source, nil
}

func (f *fakeStore) ListSources(_ context.Context) ([]domain.DocumentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentSource
	for _, source := range f.sources {
		out = append(out, source)
	}
	return out, nil
}

func (f *fakeStore) ReplaceChunksForSource(_ context.Context, sourceID string, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	if _, ok := f.sources[sourceID]; !ok {
		return domain.ErrNotFound
	}
	f.chunks[sourceID] = append([]domain.Chunk(nil), chunks...)
	return nil
}

func (f *fakeStore) MarkSourceStatus(_ context.Context, sourceID string, status domain.SourceStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[sourceID]
	if !ok {
		return domain.ErrNotFound
	}
	source.Status = status
	source.ErrorMessage = errMsg
	f.sources[sourceID] = source
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *fakeStore) DeleteSource(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(f.sources, id)
	delete(f.byLoc, source.Location)
	delete(f.chunks, id)
	return nil
}

func (f *fakeStore) CountChunks(_ context.Context, sourceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[sourceID]), nil
}

func (f *fakeStore) DenseSearch(_ context.Context, _ []float32, _ int) ([]driven.ChunkHit, error) {
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return f.denseHits, nil
}

func (f *fakeStore) LexicalSearch(_ context.Context, _ string, _ int) ([]driven.ChunkHit, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexicalHits, nil
}

func (f *fakeStore) PatternSearch(_ context.Context, _ string, _ int) ([]driven.ChunkHit, error) {
	if f.patternErr != nil {
		return nil, f.patternErr
	}
	return f.patternHits, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) statusFor(location string) domain.SourceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byLoc[location]
	if !ok {
		return ""
	}
	return f.sources[id].Status
}

func (f *fakeStore) chunkCountFor(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[f.byLoc[location]])
}

// fakeEmbedder batches deterministically; batches whose index appears
// in failBatches come back with nil vectors and a batch error.
type fakeEmbedder struct {
	batchSize   int
	dims        int
	failBatches map[int]bool
	queryErr    error
	docsErr     error
	calls       int
}

var _ driven.EmbeddingClient = (*fakeEmbedder)(nil)

func newFakeEmbedder(batchSize int) *fakeEmbedder {
	return &fakeEmbedder{batchSize: batchSize, dims: 4, failBatches: make(map[int]bool)}
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) (*driven.EmbedResult, error) {
	f.calls++
	if f.docsErr != nil {
		return nil, f.docsErr
	}
	result := &driven.EmbedResult{Vectors: make([][]float32, len(texts))}
	for start, batchIdx := 0, 0; start < len(texts); start, batchIdx = start+f.batchSize, batchIdx+1 {
		end := start + f.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		metrics := driven.BatchMetrics{BatchID: fmt.Sprintf("batch-%d", batchIdx), ItemCount: end - start}
		if f.failBatches[batchIdx] {
			metrics.Retries = 1
			metrics.Err = &domain.EmbeddingError{BatchID: metrics.BatchID, ItemCount: metrics.ItemCount, StatusCode: 503, Retries: 1}
		} else {
			for i := start; i < end; i++ {
				vec := make([]float32, f.dims)
				vec[0] = float32(len(texts[i]))
				result.Vectors[i] = vec
			}
		}
		result.Batches = append(result.Batches, metrics)
	}
	return result, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	vec := make([]float32, f.dims)
	vec[0] = float32(len(text))
	return vec, nil
}

func (f *fakeEmbedder) Dimensions() int     { return f.dims }
func (f *fakeEmbedder) ModelName() string   { return "fake-embed" }
func (f *fakeEmbedder) Fingerprint() string { return "fake-embed:4" }
func (f *fakeEmbedder) Close() error        { return nil }

// fakeRegistry converts raw bytes into a single-segment document.
type fakeRegistry struct {
	convertErr error
}

var _ driven.ConverterRegistry = (*fakeRegistry)(nil)

func (f *fakeRegistry) Convert(_ context.Context, raw *domain.RawDocument) (*domain.StructuredDocument, error) {
	if f.convertErr != nil {
		return nil, f.convertErr
	}
	text := string(raw.Data)
	doc := &domain.StructuredDocument{Location: raw.Location, Text: text}
	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		doc.Segments = append(doc.Segments, domain.Segment{Text: para, ElementType: "paragraph"})
	}
	return doc, nil
}

func (f *fakeRegistry) Register(driven.Converter) {}

func (f *fakeRegistry) SupportedTypes() []string { return []string{"txt"} }

// fakeConnector streams a fixed document set. Tests drive watch mode
// by sending on watchCh.
type fakeConnector struct {
	docs        []domain.RawDocument
	watchCh     chan domain.RawDocument
	discoverErr error
	validateErr error
	watchErr    error
}

var _ driven.Connector = (*fakeConnector)(nil)

func (f *fakeConnector) Type() string { return "fake" }

func (f *fakeConnector) Validate(context.Context) error { return f.validateErr }

func (f *fakeConnector) Discover(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docsCh := make(chan domain.RawDocument)
	errsCh := make(chan error, 1)
	go func() {
		defer close(docsCh)
		defer close(errsCh)
		for _, doc := range f.docs {
			select {
			case docsCh <- doc:
			case <-ctx.Done():
				return
			}
		}
		if f.discoverErr != nil {
			errsCh <- f.discoverErr
		}
	}()
	return docsCh, errsCh
}

func (f *fakeConnector) Watch(context.Context) (<-chan domain.RawDocument, error) {
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	if f.watchCh == nil {
		return nil, fmt.Errorf("not supported")
	}
	return f.watchCh, nil
}

func (f *fakeConnector) Close() error { return nil }

// fakeFactory hands out the same connector for every request.
type fakeFactory struct {
	connector *fakeConnector
	createErr error
}

var _ driven.ConnectorFactory = (*fakeFactory)(nil)

func (f *fakeFactory) Create(_, _ []string) (driven.Connector, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.connector, nil
}

func rawDoc(location, text string) domain.RawDocument {
	return domain.RawDocument{
		Location:     location,
		Data:         []byte(text),
		ContentHash:  fmt.Sprintf("hash-%d-%s", len(text), location),
		DeclaredType: "txt",
		SizeBytes:    int64(len(text)),
	}
}
