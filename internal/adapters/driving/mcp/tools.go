package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

// RetrieveInput is the input schema for the retrieve_chunks tool.
type RetrieveInput struct {
	Query    string  `json:"query" jsonschema:"the retrieval query"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop chunks below this combined score"`
}

// RetrieveOutput is the output schema for the retrieve_chunks tool.
type RetrieveOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

// ChunkOutput represents a single retrieved chunk.
type ChunkOutput struct {
	ChunkID  string  `json:"chunk_id"`
	SourceID string  `json:"source_id"`
	Heading  string  `json:"heading,omitempty"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Dense    float64 `json:"dense"`
	Lexical  float64 `json:"lexical"`
	Pattern  float64 `json:"pattern"`
}

// IngestInput is the input schema for the ingest_documents tool.
type IngestInput struct {
	Directories  []string `json:"directories" jsonschema:"directories to ingest"`
	GlobPatterns []string `json:"glob_patterns,omitempty" jsonschema:"glob patterns selecting files"`
	Force        bool     `json:"force,omitempty" jsonschema:"reprocess documents even when unchanged"`
	MaxFailures  int      `json:"max_failures,omitempty" jsonschema:"halt after this many failed documents"`
}

// IngestOutput is the output schema for the ingest_documents tool.
type IngestOutput struct {
	PipelineID    string `json:"pipeline_id"`
	Discovered    int    `json:"discovered"`
	Ingested      int    `json:"ingested"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	ChunksCreated int    `json:"chunks_created"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_chunks",
		Description: "Retrieve document chunks matching a query, ranked by combined semantic, full-text and pattern relevance",
	}, s.handleRetrieve)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_documents",
			Description: "Ingest document directories into the retrieval store",
		}, s.handleIngest)
	}
}

// handleRetrieve handles the retrieve_chunks tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	ranked, err := s.ports.Retrieve.Retrieve(ctx, domain.RetrievalQuery{
		Text:     input.Query,
		TopK:     input.TopK,
		MinScore: input.MinScore,
	})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Chunks: make([]ChunkOutput, len(ranked)),
		Count:  len(ranked),
	}
	for i, chunk := range ranked {
		output.Chunks[i] = ChunkOutput{
			ChunkID:  chunk.ChunkID,
			SourceID: chunk.SourceID,
			Heading:  chunk.Metadata.Heading,
			Text:     chunk.Text,
			Score:    chunk.Score,
			Dense:    chunk.Dense,
			Lexical:  chunk.Lexical,
			Pattern:  chunk.Pattern,
		}
	}
	return nil, output, nil
}

// handleIngest handles the ingest_documents tool invocation. A halted
// job still reports its partial stats.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	result, err := s.ports.Ingest.Ingest(ctx, domain.IngestionRequest{
		Directories:  input.Directories,
		GlobPatterns: input.GlobPatterns,
		Force:        input.Force,
		MaxFailures:  input.MaxFailures,
	})
	if err != nil && !errors.Is(err, domain.ErrJobHalted) {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{
		PipelineID:    result.PipelineID,
		Discovered:    result.Stats.Discovered,
		Ingested:      result.Stats.Ingested,
		Skipped:       result.Stats.Skipped,
		Failed:        result.Stats.Failed,
		ChunksCreated: result.Stats.ChunksCreated,
	}, nil
}
