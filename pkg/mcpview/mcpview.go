// Package mcpview exposes live views over MCP (Model Context Protocol) as
// read-only tools: fetchall and count. It is an introspection sink, not a
// core propagation path — no tool call ever mutates a view.
package mcpview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/reactivesql/pkg/ivm"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server wraps an MCP server exposing a named set of registered views.
type Server struct {
	mcp *mcpserver.MCPServer
}

// New builds an MCP server with no views registered yet.
func New(name, version string) *Server {
	return &Server{
		mcp: mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(true), mcpserver.WithRecovery()),
	}
}

// Register exposes view under name as two read-only tools:
// "<name>.fetchall" and "<name>.count".
func (s *Server) Register(name string, view ivm.View) {
	fetchTool := mcp.NewTool(
		name+".fetchall",
		mcp.WithDescription(fmt.Sprintf("Fetch every row currently in the %s view", name)),
	)
	s.mcp.AddTool(fetchTool, FetchAllHandler(view))

	countTool := mcp.NewTool(
		name+".count",
		mcp.WithDescription(fmt.Sprintf("Count the rows currently in the %s view", name)),
	)
	s.mcp.AddTool(countTool, CountHandler(view))
}

// FetchAllHandler returns the tool handler serving a view's current
// contents as a JSON array of column->value objects.
func FetchAllHandler(view ivm.View) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rows, err := view.FetchAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cols := view.Columns()
		out := make([]map[string]any, len(rows))
		for i, r := range rows {
			m := make(map[string]any, len(cols))
			for _, c := range cols {
				m[c] = r.Get(c)
			}
			out[i] = m
		}
		text, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}

// CountHandler returns the tool handler serving a view's current row count.
func CountHandler(view ivm.View) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rows, err := view.FetchAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d", len(rows))), nil
	}
}

// ServeStdio runs the server over stdio until the process exits, blocking
// the calling goroutine.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}
