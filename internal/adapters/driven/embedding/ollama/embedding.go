// Package ollama provides an embedding client for a local Ollama
// instance using its native batch API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
	"github.com/custodia-labs/retriva-cli/internal/logger"
)

var _ driven.EmbeddingClient = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultBatchSize  = 8
	DefaultRetryCount = 1
	DefaultBackoff    = 2 * time.Second
	DefaultDimensions = 768 // nomic-embed-text default
)

// Config holds configuration for the Ollama embedding client.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Dimensions is the expected vector size (model-dependent).
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// RetryCount is the number of retries per transient batch failure.
	RetryCount int

	// Backoff is the base of the exponential retry delay.
	Backoff time.Duration

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// Client generates embeddings over Ollama's /api/embed endpoint,
// batching input and retrying transient failures.
type Client struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	retryCount int
	backoff    time.Duration
}

// embedRequest is the Ollama batch API request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama batch API response format.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewClient creates a new Ollama embedding client.
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

	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		retryCount: cfg.RetryCount,
		backoff:    cfg.Backoff,
	}, nil
}

// EmbedDocuments embeds the given texts for storage, preserving input
// order. A batch that fails after retry leaves nil vectors for its
// slots and is reported in the batch metrics.
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

// embedBatch runs one batch through the retry loop.
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
			timer := time.NewTimer(c.backoff * (1 << (attempt - 1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				attempt = c.retryCount + 1
				continue
			case <-timer.C:
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

// invoke performs one HTTP call and validates the response shape.
// Errors never contain the batch text.
func (c *Client) invoke(ctx context.Context, batchID string, texts []string) ([][]float32, *domain.EmbeddingError) {
	jsonBody, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/api/embed",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, c.batchError(batchID, len(texts), 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

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

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("decode response: %w", err))
	}
	if embedResp.Error != "" {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("endpoint error: %s", embedResp.Error))
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, c.batchError(batchID, len(texts), resp.StatusCode,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Embeddings)))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range embedResp.Embeddings {
		if len(emb) != c.dimensions {
			return nil, c.batchError(batchID, len(texts), resp.StatusCode,
				fmt.Errorf("expected %d dimensions, got %d", c.dimensions, len(emb)))
		}
		vector := make([]float32, len(emb))
		for j, v := range emb {
			vector[j] = float32(v)
		}
		vectors[i] = vector
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

// Ping checks connectivity against the /api/tags endpoint without
// running inference.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinging ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
