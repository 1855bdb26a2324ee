// Package mcp exposes the tool registry and the chat agent over MCP stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/masato25/aika-adb/pkg/agent"
	"github.com/masato25/aika-adb/pkg/logger"
	"github.com/masato25/aika-adb/pkg/tools"
)

// AgentChatTool routes a free-text message through the agent.
const AgentChatTool = "agent_chat"

const agentChatSchema = `{
	"type": "object",
	"properties": {
		"query":      {"type": "string", "minLength": 1, "description": "Natural language message"},
		"session_id": {"type": "string", "description": "Conversation to continue"}
	},
	"required": ["query"]
}`

// Server MCP server over the tool registry
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	agent    *agent.Agent
	logger   *logger.Logger
}

// NewServer registers every registry tool, plus agent_chat when a is not nil.
func NewServer(name, version string, registry *tools.Registry, a *agent.Agent, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
			server.WithRecovery(),
		),
		registry: registry,
		agent:    a,
		logger:   log.Named("mcp"),
	}

	for _, info := range registry.List() {
		s.mcp.AddTool(mcp.NewToolWithRawSchema(info.Name, info.Description, info.InputSchema), s.toolHandler(info.Name))
	}
	if a != nil {
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(AgentChatTool,
				"Answer a question about the Oracle ADB or external APIs, calling tools as needed",
				json.RawMessage(agentChatSchema)),
			s.handleAgentChat,
		)
	}
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves JSON-RPC on stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	s.logger.Infow("serving MCP over stdio", "tools", s.registry.Len())
	return server.ServeStdio(s.mcp, server.WithErrorLogger(s.logger.StdLog()))
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := s.registry.Call(ctx, name, request.GetArguments())
		if err != nil {
			s.logger.ToolExecution(name, "error", time.Since(start))
			var verr *tools.ValidationError
			if errors.As(err, &verr) {
				return mcp.NewToolResultError(verr.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}

		status := "success"
		if !result.OK() {
			status = "error"
		}
		s.logger.ToolExecution(name, status, time.Since(start))
		return envelope(result, !result.OK())
	}
}

func (s *Server) handleAgentChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	sessionID, _ := args["session_id"].(string)

	resp := s.agent.Execute(ctx, sessionID, query)
	return envelope(resp, resp.Status != agent.StatusSuccess)
}

func envelope(v interface{}, isError bool) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	result := mcp.NewToolResultText(string(raw))
	result.IsError = isError
	return result, nil
}
