package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

const testDims = 4

// fakeEndpoint serves an OpenAI-style /embeddings response. The
// handler may be preceded by a number of canned failure responses.
type fakeEndpoint struct {
	server   *httptest.Server
	calls    atomic.Int32
	failures atomic.Int32
	failCode int
	dims     int
}

func newFakeEndpoint(t *testing.T, failures int, failCode int) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{failCode: failCode, dims: testDims}
	f.failures.Store(int32(failures))
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if f.failures.Load() > 0 {
			f.failures.Add(-1)
			w.WriteHeader(f.failCode)
			fmt.Fprint(w, `{"error":{"message":"nope","type":"server_error"}}`)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for i := range req.Input {
			vec := make([]float64, f.dims)
			// Deterministic per-text value so ordering is checkable.
			vec[0] = float64(len(req.Input[i]))
			resp.Data = append(resp.Data, item{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "test-embed",
		Dimensions: testDims,
		BatchSize:  2,
		RetryCount: 1,
		Backoff:    time.Millisecond,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

// TestEmbedDocuments_EmptyInput tests that empty input makes no call
func TestEmbedDocuments_EmptyInput(t *testing.T) {
	f := newFakeEndpoint(t, 0, 0)
	c := testClient(t, f.server.URL)

	result, err := c.EmbedDocuments(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result.Vectors)
	assert.Empty(t, result.Batches)
	assert.Equal(t, int32(0), f.calls.Load())
}

// TestEmbedDocuments_OrderPreserved tests vectors align with inputs
// across multiple batches
func TestEmbedDocuments_OrderPreserved(t *testing.T) {
	f := newFakeEndpoint(t, 0, 0)
	c := testClient(t, f.server.URL)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	result, err := c.EmbedDocuments(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, result.Vectors, 5)
	require.Len(t, result.Batches, 3) // batch size 2
	for i, text := range texts {
		require.NotNil(t, result.Vectors[i])
		assert.Equal(t, float32(len(text)), result.Vectors[i][0])
	}
	for _, b := range result.Batches {
		assert.NoError(t, b.Err)
		assert.Equal(t, 0, b.Retries)
	}
}

// TestEmbedDocuments_TransientRetriedOnce tests that one transient
// failure is retried exactly once and the batch succeeds
func TestEmbedDocuments_TransientRetriedOnce(t *testing.T) {
	f := newFakeEndpoint(t, 1, http.StatusInternalServerError)
	c := testClient(t, f.server.URL)

	result, err := c.EmbedDocuments(context.Background(), []string{"hello", "world"})

	require.NoError(t, err)
	require.Len(t, result.Batches, 1)
	assert.NoError(t, result.Batches[0].Err)
	assert.Equal(t, 1, result.Batches[0].Retries)
	assert.NotNil(t, result.Vectors[0])
	assert.Equal(t, int32(2), f.calls.Load())
}

// TestEmbedDocuments_TwoFailuresDropBatch tests that a batch failing
// twice is recorded, not embedded as zero vectors
func TestEmbedDocuments_TwoFailuresDropBatch(t *testing.T) {
	f := newFakeEndpoint(t, 2, http.StatusInternalServerError)
	c := testClient(t, f.server.URL)

	result, err := c.EmbedDocuments(context.Background(), []string{"hello", "world"})

	require.NoError(t, err)
	require.Len(t, result.Batches, 1)
	require.Error(t, result.Batches[0].Err)
	assert.Nil(t, result.Vectors[0])
	assert.Nil(t, result.Vectors[1])
	assert.Equal(t, int32(2), f.calls.Load()) // initial + exactly one retry

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, result.Batches[0].Err, &embErr)
	assert.Equal(t, 2, embErr.ItemCount)
	assert.Equal(t, http.StatusInternalServerError, embErr.StatusCode)
	assert.NotContains(t, embErr.Error(), "hello")
}

// TestEmbedDocuments_PermanentFailureNoRetry tests that 4xx fails
// immediately without retry
func TestEmbedDocuments_PermanentFailureNoRetry(t *testing.T) {
	f := newFakeEndpoint(t, 5, http.StatusBadRequest)
	c := testClient(t, f.server.URL)

	result, err := c.EmbedDocuments(context.Background(), []string{"hello"})

	require.NoError(t, err)
	require.Len(t, result.Batches, 1)
	require.Error(t, result.Batches[0].Err)
	assert.Equal(t, int32(1), f.calls.Load())
}

// TestEmbedDocuments_FailedBatchIsolated tests that one failed batch
// does not poison the others
func TestEmbedDocuments_FailedBatchIsolated(t *testing.T) {
	// First two calls fail: batch 1 fails after its single retry.
	f := newFakeEndpoint(t, 2, http.StatusInternalServerError)
	c := testClient(t, f.server.URL)

	texts := []string{"a", "b", "c", "d"}
	result, err := c.EmbedDocuments(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, result.Batches, 2)
	assert.Error(t, result.Batches[0].Err)
	assert.NoError(t, result.Batches[1].Err)
	assert.Nil(t, result.Vectors[0])
	assert.Nil(t, result.Vectors[1])
	assert.NotNil(t, result.Vectors[2])
	assert.NotNil(t, result.Vectors[3])
	assert.Len(t, result.FailedBatches(), 1)
}

// TestEmbedDocuments_DimensionMismatch tests that dimension drift on a
// 200 response is an EmbeddingError
func TestEmbedDocuments_DimensionMismatch(t *testing.T) {
	f := newFakeEndpoint(t, 0, 0)
	f.dims = testDims + 1
	c := testClient(t, f.server.URL)

	result, err := c.EmbedDocuments(context.Background(), []string{"hello"})

	require.NoError(t, err)
	require.Len(t, result.Batches, 1)
	require.Error(t, result.Batches[0].Err)

	var embErr *domain.EmbeddingError
	require.ErrorAs(t, result.Batches[0].Err, &embErr)
	assert.Contains(t, embErr.Error(), "dimensions")
	// A 200-status validation failure is permanent: no retry.
	assert.Equal(t, int32(1), f.calls.Load())
}

// TestEmbedQuery_Success tests the single-query path
func TestEmbedQuery_Success(t *testing.T) {
	f := newFakeEndpoint(t, 0, 0)
	c := testClient(t, f.server.URL)

	vector, err := c.EmbedQuery(context.Background(), "what is the setup")

	require.NoError(t, err)
	require.Len(t, vector, testDims)
}

// TestEmbedQuery_HardError tests that query embedding failure is an
// error, not a partial outcome
func TestEmbedQuery_HardError(t *testing.T) {
	f := newFakeEndpoint(t, 5, http.StatusInternalServerError)
	c := testClient(t, f.server.URL)

	_, err := c.EmbedQuery(context.Background(), "query")

	require.Error(t, err)
	assert.Equal(t, domain.KindEmbedding, domain.KindOf(err))
}

// TestEmbedDocuments_ContextCancelled tests that cancellation aborts
// the whole call
func TestEmbedDocuments_ContextCancelled(t *testing.T) {
	f := newFakeEndpoint(t, 0, 0)
	c := testClient(t, f.server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.EmbedDocuments(ctx, []string{"hello"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestClient_Fingerprint tests the model identity string
func TestClient_Fingerprint(t *testing.T) {
	c := testClient(t, "http://localhost:0")

	assert.Equal(t, "test-embed:4", c.Fingerprint())
	assert.Equal(t, testDims, c.Dimensions())
	assert.Equal(t, "test-embed", c.ModelName())
}
