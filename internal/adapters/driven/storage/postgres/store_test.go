package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
	"github.com/custodia-labs/retriva-cli/internal/core/ports/driven"
)

func TestVectorToString(t *testing.T) {
	assert.Equal(t, "[]", vectorToString(nil))
	assert.Equal(t, "[1,0,-0.5]", vectorToString([]float32{1, 0, -0.5}))
}

func TestNormalizeByBest(t *testing.T) {
	hits := []driven.ChunkHit{
		{ChunkID: "a", Score: 0.8},
		{ChunkID: "b", Score: 0.4},
		{ChunkID: "c", Score: 0.1},
	}

	normalizeByBest(hits)

	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.5, hits[1].Score, 1e-9)
	assert.InDelta(t, 0.125, hits[2].Score, 1e-9)
}

func TestNormalizeByBest_DegenerateScores(t *testing.T) {
	hits := []driven.ChunkHit{{Score: 0}, {Score: 0}}

	normalizeByBest(hits)

	for _, hit := range hits {
		assert.Equal(t, 1.0, hit.Score)
	}
}

func TestUnmarshalChunkMetadata(t *testing.T) {
	var meta domain.ChunkMetadata

	err := unmarshalChunkMetadata(`{"heading":"Intro","page_start":2}`, &meta)
	assert.NoError(t, err)
	assert.Equal(t, "Intro", meta.Heading)
	assert.Equal(t, 2, meta.PageStart)

	assert.NoError(t, unmarshalChunkMetadata("", &meta))
	assert.Error(t, unmarshalChunkMetadata("{broken", &meta))
}
