package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestConfigError_Error tests ConfigError message formatting
func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "chunk.min_size", Reason: "must be positive"}

	assert.Equal(t, "config: chunk.min_size: must be positive", err.Error())
	assert.Equal(t, KindConfig, err.Kind())
}

// TestChunkingError_Unwrap tests the wrapped cause is reachable
func TestChunkingError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ChunkingError{Location: "/docs/a.md", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/docs/a.md")
	assert.Equal(t, KindChunking, err.Kind())
}

// TestEmbeddingError_Error tests that the message carries batch
// metadata but never document text
func TestEmbeddingError_Error(t *testing.T) {
	err := &EmbeddingError{
		BatchID:    "batch-3",
		ItemCount:  8,
		StatusCode: 429,
		Retries:    1,
		Err:        errors.New("rate limited"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "batch-3")
	assert.Contains(t, msg, "items=8")
	assert.Contains(t, msg, "status=429")
	assert.Contains(t, msg, "retries=1")
	assert.Equal(t, KindEmbedding, err.Kind())
}

// TestEmbeddingError_Transient tests the retry classification
func TestEmbeddingError_Transient(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"transport failure", 0, true},
		{"rate limited", 429, true},
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"bad request", 400, false},
		{"unauthorized", 401, false},
		{"payload too large", 413, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &EmbeddingError{StatusCode: tt.status, Err: errors.New("x")}
			assert.Equal(t, tt.transient, err.Transient())
		})
	}
}

// TestPersistenceError_Unwrap tests the wrapped cause is reachable
func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PersistenceError{Op: "replace chunks", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "replace chunks")
	assert.Equal(t, KindPersistence, err.Kind())
}

// TestKindOf tests error chain classification
func TestKindOf(t *testing.T) {
	assert.Equal(t, KindChunking, KindOf(&ChunkingError{Location: "x", Err: errors.New("y")}))
	assert.Equal(t, KindEmbedding, KindOf(&EmbeddingError{Err: errors.New("y")}))
	assert.Equal(t, KindPersistence, KindOf(&PersistenceError{Op: "upsert", Err: errors.New("y")}))
	assert.Equal(t, KindConfig, KindOf(&ConfigError{Field: "f", Reason: "r"}))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

// TestKindOf_WrappedChain tests classification through fmt.Errorf wrapping
func TestKindOf_WrappedChain(t *testing.T) {
	inner := &EmbeddingError{BatchID: "b1", Err: errors.New("timeout")}
	wrapped := fmt.Errorf("embedding document: %w", inner)

	assert.Equal(t, KindEmbedding, KindOf(wrapped))
}

// TestSentinelErrors tests sentinel identity through wrapping
func TestSentinelErrors(t *testing.T) {
	wrapped := fmt.Errorf("looking up source: %w", ErrNotFound)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrAlreadyExists)
}
