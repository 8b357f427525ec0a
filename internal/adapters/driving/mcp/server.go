package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/retriva-cli/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// instructions tells connected assistants what the server is for.
const instructions = `Retriva exposes a local document store over MCP.
Use retrieve_chunks to search ingested documents; part numbers and
code-like identifiers are matched exactly, prose queries semantically.
Use ingest_documents to add or refresh directories of documents.`

// shutdownGrace bounds the HTTP drain on context cancellation.
const shutdownGrace = 5 * time.Second

// Server exposes the retrieval and ingestion services over the Model
// Context Protocol.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "retriva", Version: Version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("mcp server starting on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves MCP over streamable HTTP on addr until the context is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr: addr,
		Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return s.server
		}, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(drainCtx); err != nil {
			logger.Warn("mcp server shutdown: %v", err)
		}
	}()

	logger.Info("mcp server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
