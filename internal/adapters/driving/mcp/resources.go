package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for Retriva resources.
const uriScheme = "retriva://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sources",
		Name:        "sources",
		Description: "All tracked document sources with their ingestion status",
		MIMEType:    "application/json",
	}, s.handleSourcesResource)
}

// handleSourcesResource returns the tracked sources.
func (s *Server) handleSourcesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Source == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	sources, err := s.ports.Source.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	type sourceInfo struct {
		ID       string `json:"id"`
		Location string `json:"location"`
		Status   string `json:"status"`
		Error    string `json:"error,omitempty"`
	}

	infos := make([]sourceInfo, len(sources))
	for i, src := range sources {
		infos[i] = sourceInfo{
			ID:       src.ID,
			Location: src.Location,
			Status:   string(src.Status),
			Error:    src.ErrorMessage,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sources: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
