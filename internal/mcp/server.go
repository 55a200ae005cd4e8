// Package mcp exposes the tool registry over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/deskmail/deskmail/internal/tools"
)

// Server publishes every registered tool to an MCP client.
type Server struct {
	registry *tools.Registry
	mcp      *server.MCPServer
	logger   zerolog.Logger
}

// NewServer creates a new MCP server named name/version.
func NewServer(registry *tools.Registry, name, version string, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		registry: registry,
		mcp:      server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		logger:   logger.With().Str("component", "mcp").Logger(),
	}

	for _, t := range registry.GetAll() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
		s.logger.Debug().Str("tool", t.Name()).Msg("Published tool")
	}
	return s, nil
}

// handler forwards a call to the registry. Failures are reported as error
// results carrying the same "Error: ..." text.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(tools.ErrorText(fmt.Errorf("invalid arguments: %w", err))), nil
		}

		text := s.registry.Call(ctx, name, args)
		if strings.HasPrefix(text, "Error:") {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// Serve speaks MCP over in/out until in is closed or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))

	s.logger.Info().Int("tools", len(s.registry.GetAll())).Msg("Serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}
