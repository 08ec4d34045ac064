package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kaptinlin/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"o3-search-mcp/internal/domain"
)

type invocationIDKey struct{}

// InvocationID returns the id assigned to the current tool call, if any.
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string)
	return id
}

func newInvocationID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// invocationLogging tags each tool call with a ULID and logs its start and
// outcome.
func invocationLogging(logger *slog.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id := newInvocationID()
			ctx = context.WithValue(ctx, invocationIDKey{}, id)
			log := logger.With("invocation_id", id, "tool", req.Params.Name)

			start := time.Now()
			log.Info("tool call started")

			result, err := next(ctx, req)
			if err != nil {
				log.Warn("tool call rejected", "error", err, "duration", time.Since(start))
				return result, err
			}
			log.Info("tool call finished", "duration", time.Since(start))
			return result, nil
		}
	}
}

// schemaValidation rejects calls whose arguments do not match the tool's
// input schema. Rejections surface as protocol errors.
func schemaValidation(tool mcp.Tool) (server.ToolHandlerMiddleware, error) {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}

	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if args == nil {
				args = map[string]any{}
			}
			if result := schema.Validate(args); !result.IsValid() {
				return nil, domain.NewDomainError("Tool.Validate", domain.ErrInvalidInput, result.Error())
			}
			return next(ctx, req)
		}
	}, nil
}
