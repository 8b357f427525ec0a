// Package openai provides an embedding client adapter for the OpenAI
// embeddings API and compatible endpoints (Ollama, vLLM, gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Ensure Client implements the interface.
var _ driven.EmbeddingClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 30 * time.Second
	DefaultBatchSize  = 8
	DefaultRetryCount = 1
	DefaultBackoff    = 2 * time.Second
	DefaultDimensions = 1024
)

// maxJitter is added to every backoff to spread concurrent retries.
const maxJitter = 500 * time.Millisecond

// Config holds configuration for the embedding client.
type Config struct {
	// APIKey is the bearer token. Optional for local endpoints.
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// Dimensions is the expected vector size. Responses with any
	// other size fail validation.
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// RetryCount is the number of retries per transient batch failure.
	RetryCount int

	// Backoff is the base of the exponential retry delay.
	Backoff time.Duration

	// RequestsPerSecond caps the request rate. Zero disables the cap.
	RequestsPerSecond float64

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// Client generates embeddings over an OpenAI-compatible /embeddings
// endpoint, batching input and retrying transient failures with a
// context-aware backoff.
type Client struct {
	client     *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	retryCount int
	backoff    time.Duration
}

// embeddingRequest is the API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RetryCount < 0 {
		return nil, &domain.ConfigError{Field: "embedding.retry_count", Reason: "must not be negative"}
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retryCount: cfg.RetryCount,
		backoff:    cfg.Backoff,
	}, nil
}

// EmbedDocuments embeds the given texts for storage, preserving input
// order. Batches are issued sequentially; a batch that fails after
// retry leaves nil vectors for its slots and is reported in the batch
// metrics rather than aborting the call.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) (*driven.EmbedResult, error) {
	result := &driven.EmbedResult{
		Vectors: make([][]float32, len(texts)),
	}
	if len(texts) == 0 {
		return result, nil
	}

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, metrics := c.embedBatch(ctx, batch)
		result.Batches = append(result.Batches, metrics)
		if metrics.Err != nil {
			if ctx.Err() != nil {
				// Cancellation invalidates the whole call.
				return nil, ctx.Err()
			}
			continue
		}
		copy(result.Vectors[start:], vectors)
	}
	return result, nil
}

// EmbedQuery embeds a single query string. Failure is a hard error.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, metrics := c.embedBatch(ctx, []string{text})
	if metrics.Err != nil {
		return nil, metrics.Err
	}
	return vectors[0], nil
}

// embedBatch runs one batch through the retry loop. The returned
// metrics always carry the batch id, item count and retries consumed.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, driven.BatchMetrics) {
	batchID := uuid.NewString()
	metrics := driven.BatchMetrics{
		BatchID:   batchID,
		ItemCount: len(texts),
	}
	start := time.Now()

	var lastErr *domain.EmbeddingError
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt); err != nil {
				break
			}
			metrics.Retries = attempt
		}

		vectors, err := c.invoke(ctx, batchID, texts)
		if err == nil {
			metrics.DurationMS = time.Since(start).Milliseconds()
			logger.Debug("embedding batch %s succeeded (items=%d, retries=%d)",
				batchID, len(texts), metrics.Retries)
			return vectors, metrics
		}

		err.Retries = attempt
		lastErr = err
		logger.Warn("embedding batch %s attempt %d failed: %v", batchID, attempt, err)
		if !err.Transient() {
			break
		}
	}

	metrics.DurationMS = time.Since(start).Milliseconds()
	metrics.Err = lastErr
	return nil, metrics
}

// waitBackoff sleeps the exponential backoff for the given attempt,
// served from a timer so cancellation interrupts the wait.
func (c *Client) waitBackoff(ctx context.Context, attempt int) error {
	delay := c.backoff * (1 << (attempt - 1))
	delay += time.Duration(rand.Int63n(int64(maxJitter)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// invoke performs one HTTP call and validates the response shape.
// Errors never contain the batch text.
func (c *Client) invoke(ctx context.Context, batchID string, texts []string) ([][]float32, *domain.EmbeddingError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	reqBody := embeddingRequest{Model: c.model, Input: texts}
	if c.model == "text-embedding-3-small" || c.model == "text-embedding-3-large" {
		reqBody.Dimensions = c.dimensions
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("endpoint returned status %d", resp.StatusCode))
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("decode response: %w", err))
	}
	if embedResp.Error != nil {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("endpoint error: %s", embedResp.Error.Type))
	}
	if len(embedResp.Data) != len(texts) {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Data)))
	}

	// Order by index and validate dimensions. Dimension drift must
	// never reach storage, even on a 200 response.
	vectors := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, c.batchError(batchID, len(texts), resp.StatusCode,
				fmt.Errorf("embedding index %d out of range", data.Index))
		}
		if len(data.Embedding) != c.dimensions {
			return nil, c.batchError(batchID, len(texts), resp.StatusCode,
				fmt.Errorf("expected %d dimensions, got %d", c.dimensions, len(data.Embedding)))
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors[data.Index] = vector
	}
	for i, v := range vectors {
		if v == nil {
			return nil, c.batchError(batchID, len(texts), resp.StatusCode,
				fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return vectors, nil
}

func (c *Client) batchError(batchID string, itemCount, statusCode int, err error) *domain.EmbeddingError {
	return &domain.EmbeddingError{
		BatchID:    batchID,
		ItemCount:  itemCount,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Dimensions returns the embedding vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// ModelName returns the name of the embedding model being used.
func (c *Client) ModelName() string {
	return c.model
}

// Fingerprint identifies the model+dimensions pair producing vectors.
func (c *Client) Fingerprint() string {
	return fmt.Sprintf("%s:%d", c.model, c.dimensions)
}

// Close releases resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
