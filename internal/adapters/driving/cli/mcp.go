package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/retriva-cli/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC.
Use --port to start an HTTP server instead.

Examples:
  # Stdio mode (default)
  retriva mcp serve

  # HTTP mode
  retriva mcp serve --port 8080`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Retrieve: retrieveService,
		Ingest:   ingestService,
		Source:   sourceService,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		return server.RunHTTP(cmd.Context(), fmt.Sprintf("127.0.0.1:%d", port))
	}
	return server.Run(cmd.Context())
}
