// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execution engine as tools. It uses the mark3labs/mcp-go library to handle
// the protocol details.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/engine"
)

// Tool names
const (
	ToolExecuteCode   = "execute_code"
	ToolListLanguages = "list_languages"
)

// Executor routes execution requests to the engine
type Executor interface {
	Route(ctx context.Context, req engine.Request) engine.Result
	Registrations() []engine.Registration
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Any("engine.routes", s.config.Engine.Routes),
		zap.Bool("metrics.enabled", s.config.Metrics.Enabled),
	)

	s.mcpServer = server.NewMCPServer("execbox", "A multi-backend code execution server")

	s.registerExecuteCodeTool()
	s.registerListLanguagesTool()

	return s, nil
}

func (s *MCPServer) languages() []string {
	regs := s.executor.Registrations()
	langs := make([]string, len(regs))
	for i, reg := range regs {
		langs[i] = reg.Language.String()
	}
	return langs
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        ToolExecuteCode,
		Description: "Execute source code and return its output or error",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language",
					"enum":        s.languages(),
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Source file name (optional)",
				},
				"args": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Program arguments (optional)",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input (optional)",
				},
				"version": map[string]any{
					"type":        "string",
					"description": "Runtime version for remotely executed languages (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// registerListLanguagesTool registers the list_languages tool
func (s *MCPServer) registerListLanguagesTool() {
	tool := mcp.Tool{
		Name:        ToolListLanguages,
		Description: "List the supported languages and the backend that runs each one",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListLanguages)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	args, err := stringSlice(request.GetArguments()["args"])
	if err != nil {
		return nil, fmt.Errorf("invalid args parameter: %w", err)
	}

	req := engine.Request{
		Language: language,
		Code:     code,
		Filename: request.GetString("filename", ""),
		Args:     args,
		// "input" is accepted for clients built against the older request shape
		Stdin:   request.GetString("stdin", request.GetString("input", "")),
		Version: request.GetString("version", ""),
	}

	s.logger.Info("code execution requested",
		zap.String("language", language),
		zap.Int("code_len", len(code)),
		zap.Int("args", len(args)))

	result := s.executor.Route(ctx, req)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(resultJSON),
			},
		},
		IsError: !result.Success,
	}, nil
}

// handleListLanguages handles the list_languages tool
func (s *MCPServer) handleListLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(s.executor.Registrations())
	if err != nil {
		return nil, fmt.Errorf("encoding languages: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(out),
			},
		},
	}, nil
}

func stringSlice(v any) ([]string, error) {
	switch values := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return values, nil
	case []any:
		out := make([]string, len(values))
		for i, item := range values {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a string", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of strings, got %T", v)
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
