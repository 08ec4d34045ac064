// Package mcpserver exposes the search handler as an MCP tool served over
// stdio.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/config"
)

// ToolName is the name clients call.
const ToolName = "o3-search"

const (
	inputArg         = "input"
	toolDescription  = "An AI agent with advanced web search capabilities. Useful for finding the latest information, troubleshooting errors, and discussing ideas or design challenges. Supports natural language queries."
	inputDescription = "ask questions, search for information, or consult about complex problems in English."
)

// NewTool returns the o3-search tool definition.
func NewTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription(toolDescription),
		mcp.WithString(inputArg,
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description(inputDescription),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

// New builds the MCP server with the o3-search tool registered. Tool calls
// run through invocation logging, panic recovery and argument validation
// before reaching searcher.
func New(searcher domain.Searcher, cfg config.ServerConfig, logger *slog.Logger) (*server.MCPServer, error) {
	tool := NewTool()

	validate, err := schemaValidation(tool)
	if err != nil {
		return nil, domain.WrapOp("compile tool schema", err)
	}

	hooks := &server.Hooks{}
	hooks.AddOnError(func(_ context.Context, id any, method mcp.MCPMethod, _ any, err error) {
		logger.Warn("mcp request failed",
			"id", id,
			"method", string(method),
			"code", domain.ErrorCodeOf(err),
			"error", err,
		)
	})

	srv := server.NewMCPServer(cfg.Name, cfg.Version,
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
		server.WithToolHandlerMiddleware(invocationLogging(logger)),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(validate),
	)
	srv.AddTool(tool, toolHandler(searcher))

	return srv, nil
}

// toolHandler adapts a domain.Searcher to an mcp-go tool handler. The
// upstream call is detached from the request context: the stdio listener
// cancels that context on shutdown, and in-flight searches are allowed to
// finish.
func toolHandler(searcher domain.Searcher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args domain.ToolRequest
		if err := req.BindArguments(&args); err != nil {
			return nil, domain.NewDomainError("Tool.Call", domain.ErrInvalidInput, err.Error())
		}
		if args.Input == "" {
			return nil, domain.NewDomainError("Tool.Call", domain.ErrInvalidInput, "input is required")
		}
		resp := searcher.Search(context.WithoutCancel(ctx), args.Input)
		return mcp.NewToolResultText(resp.Text), nil
	}
}
