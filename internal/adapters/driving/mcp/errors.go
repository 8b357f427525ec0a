// Package mcp provides an MCP (Model Context Protocol) server adapter
// for Retriva. It lets AI assistants ingest document collections and
// retrieve ranked chunks over the protocol.
package mcp

import "errors"

// ErrMissingRetrieveService is returned when the retrieve service is not provided.
var ErrMissingRetrieveService = errors.New("mcp: retrieve service is required")
