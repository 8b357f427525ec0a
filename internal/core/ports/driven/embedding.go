package driven

import "context"

// BatchMetrics reports the outcome of one embedding batch. The
// orchestrator uses per-batch outcomes to distinguish a fully ingested
// document from a partially ingested one.
type BatchMetrics struct {
	// BatchID identifies the batch within one EmbedDocuments call.
	BatchID string

	// ItemCount is the number of texts in the batch.
	ItemCount int

	// Retries is how many retries the batch consumed.
	Retries int

	// DurationMS is the wall-clock time spent on the batch, retries included.
	DurationMS int64

	// Err is nil on success. On failure it is a *domain.EmbeddingError
	// carrying batch metadata but never document text.
	Err error
}

// EmbedResult is the outcome of embedding a slice of texts.
type EmbedResult struct {
	// Vectors is aligned with the input texts. Entries belonging to a
	// failed batch are nil; callers decide whether to drop or fail.
	Vectors [][]float32

	// Batches describes every batch in submission order.
	Batches []BatchMetrics
}

// FailedBatches returns the metrics of batches that did not succeed.
func (r *EmbedResult) FailedBatches() []BatchMetrics {
	var failed []BatchMetrics
	for _, b := range r.Batches {
		if b.Err != nil {
			failed = append(failed, b)
		}
	}
	return failed
}

// EmbeddingClient generates vector embeddings from text.
//
// Implementations batch internally, retry transient failures with
// backoff, and validate vector dimensions before reporting success.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Any OpenAI-compatible endpoint (Ollama, vLLM, LM Studio)
type EmbeddingClient interface {
	// EmbedDocuments embeds the given texts for storage. A batch that
	// fails after retry does not abort the call: its vectors come back
	// nil and its error is recorded in the batch metrics. The error
	// return is reserved for conditions that invalidate the whole call
	// (context cancellation, client misconfiguration).
	EmbedDocuments(ctx context.Context, texts []string) (*EmbedResult, error)

	// EmbedQuery embeds a single query string. Unlike EmbedDocuments
	// there is no partial outcome: failure is an error.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size (e.g., 1024, 1536).
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Fingerprint identifies the model+dimensions pair. Stored per
	// chunk so stale vectors are detectable after a model change.
	Fingerprint() string

	// Close releases resources.
	Close() error
}
