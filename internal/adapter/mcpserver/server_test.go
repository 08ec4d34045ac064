package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/config"
)

type searcherFunc func(ctx context.Context, input string) domain.ToolResponse

func (f searcherFunc) Search(ctx context.Context, input string) domain.ToolResponse {
	return f(ctx, input)
}

func answer(text string) searcherFunc {
	return func(context.Context, string) domain.ToolResponse { return domain.TextResponse(text) }
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServerConfig() config.ServerConfig {
	return config.Defaults().Server
}

func newTestServer(t *testing.T, s domain.Searcher) *server.MCPServer {
	t.Helper()
	srv, err := New(s, testServerConfig(), noopLogger())
	require.NoError(t, err)
	return srv
}

func newTestClient(t *testing.T, srv *server.MCPServer) *client.Client {
	t.Helper()
	ctx := context.Background()

	c, err := client.NewInProcessClient(srv)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { c.Close() })

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolName
	req.Params.Arguments = args
	return c.CallTool(context.Background(), req)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestListToolsExposesSearchTool(t *testing.T) {
	c := newTestClient(t, newTestServer(t, answer("x")))

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)

	tool := res.Tools[0]
	assert.Equal(t, "o3-search", tool.Name)
	assert.NotEmpty(t, tool.Description)
	assert.Equal(t, []string{"input"}, tool.InputSchema.Required)

	prop, ok := tool.InputSchema.Properties["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", prop["type"])
	assert.Equal(t, "ask questions, search for information, or consult about complex problems in English.", prop["description"])

	require.NotNil(t, tool.Annotations.ReadOnlyHint)
	assert.True(t, *tool.Annotations.ReadOnlyHint)
	require.NotNil(t, tool.Annotations.OpenWorldHint)
	assert.True(t, *tool.Annotations.OpenWorldHint)
}

func TestCallToolReturnsAnswer(t *testing.T) {
	var got string
	s := searcherFunc(func(_ context.Context, input string) domain.ToolResponse {
		got = input
		return domain.TextResponse("Paris.")
	})
	c := newTestClient(t, newTestServer(t, s))

	res, err := callTool(t, c, map[string]any{"input": "What is the capital of France?"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Paris.", resultText(t, res))
	assert.Equal(t, "What is the capital of France?", got)
}

func TestCallToolUpstreamErrorIsInBand(t *testing.T) {
	c := newTestClient(t, newTestServer(t, answer("Error: rate limit exceeded")))

	res, err := callTool(t, c, map[string]any{"input": "q"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Error: rate limit exceeded", resultText(t, res))
}

func TestCallToolRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing input", map[string]any{}},
		{"nil arguments", nil},
		{"non-string input", map[string]any{"input": 42}},
		{"empty input", map[string]any{"input": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			s := searcherFunc(func(context.Context, string) domain.ToolResponse {
				calls.Add(1)
				return domain.TextResponse("unreachable")
			})
			c := newTestClient(t, newTestServer(t, s))

			_, err := callTool(t, c, tt.args)
			require.Error(t, err)
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestCallToolRecoversPanic(t *testing.T) {
	s := searcherFunc(func(context.Context, string) domain.ToolResponse { panic("searcher bug") })
	c := newTestClient(t, newTestServer(t, s))

	_, err := callTool(t, c, map[string]any{"input": "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searcher bug")
}

func TestCallToolCarriesInvocationID(t *testing.T) {
	ids := make(chan string, 2)
	s := searcherFunc(func(ctx context.Context, _ string) domain.ToolResponse {
		ids <- InvocationID(ctx)
		return domain.TextResponse("ok")
	})
	c := newTestClient(t, newTestServer(t, s))

	for i := 0; i < 2; i++ {
		_, err := callTool(t, c, map[string]any{"input": "q"})
		require.NoError(t, err)
	}
	first, second := <-ids, <-ids
	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}

func TestToolHandlerDetachesCancellation(t *testing.T) {
	var ctxErr error
	s := searcherFunc(func(ctx context.Context, _ string) domain.ToolResponse {
		ctxErr = ctx.Err()
		return domain.TextResponse("done")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = ToolName
	req.Params.Arguments = map[string]any{"input": "q"}

	res, err := toolHandler(s)(ctx, req)
	require.NoError(t, err)
	assert.NoError(t, ctxErr)
	assert.Equal(t, "done", resultText(t, res))
}

func TestInvocationIDEmptyOutsideCall(t *testing.T) {
	assert.Empty(t, InvocationID(context.Background()))
}

func TestToolHandlerRejectsMissingInput(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Name = ToolName
	req.Params.Arguments = map[string]any{}

	_, err := toolHandler(answer("unused"))(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
