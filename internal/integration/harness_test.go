package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"o3-search-mcp/internal/adapter/llm"
	"o3-search-mcp/internal/adapter/mcpserver"
	"o3-search-mcp/internal/infra/config"
	"o3-search-mcp/internal/usecase/lifecycle"
	"o3-search-mcp/internal/usecase/search"
)

// process runs the full server stack against in-memory stdio, the same way
// the binary wires it, and exposes the exit code.
type process struct {
	stdin   *io.PipeWriter
	lines   chan string
	signals chan os.Signal
	mgr     *lifecycle.Manager
	exit    chan int
}

func startProcess(t *testing.T, cfg *config.Config) *process {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	provider := llm.NewProvider(cfg.OpenAI, logger)
	handler := search.NewHandler(provider, search.Options{
		Model:             cfg.OpenAI.Model,
		SearchContextSize: cfg.OpenAI.SearchContextSize,
		ReasoningEffort:   cfg.OpenAI.ReasoningEffort,
	}, logger)
	srv, err := mcpserver.New(handler, cfg.Server, logger)
	require.NoError(t, err)
	transport := mcpserver.NewStdioTransport(srv, inR, outW, cfg.Server, logger)

	signals := make(chan os.Signal, 1)
	mgr := lifecycle.NewManager(transport, lifecycle.Config{
		MaxRuntime:   cfg.Server.ProcessTimeout,
		CloseTimeout: cfg.Server.ShutdownTimeout,
	}, logger, lifecycle.WithSignals(signals))

	p := &process{
		stdin:   inW,
		lines:   make(chan string, 16),
		signals: signals,
		mgr:     mgr,
		exit:    make(chan int, 1),
	}

	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(outR)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	go func() {
		p.exit <- mgr.Run(context.Background())
		outW.Close()
	}()

	t.Cleanup(func() {
		inW.Close()
		mgr.Trigger("test cleanup")
	})
	return p
}

func (p *process) send(t *testing.T, frame string) {
	t.Helper()
	_, err := io.WriteString(p.stdin, frame+"\n")
	require.NoError(t, err)
}

func (p *process) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case line, ok := <-p.lines:
		require.True(t, ok, "stdout closed")
		var msg map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &msg), "non-JSON line on stdout: %s", line)
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("no frame on stdout")
		return nil
	}
}

func (p *process) initialize(t *testing.T) {
	t.Helper()
	p.send(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":%q,"capabilities":{},"clientInfo":{"name":"e2e","version":"1.0.0"}}}`, mcp.LATEST_PROTOCOL_VERSION))
	resp := p.next(t)
	require.Contains(t, resp, "result")
	p.send(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
}

func (p *process) call(t *testing.T, id int, input string) map[string]any {
	t.Helper()
	p.send(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"o3-search","arguments":{"input":%q}}}`, id, input))
	return p.next(t)
}

func (p *process) waitExit(t *testing.T) int {
	t.Helper()
	select {
	case code := <-p.exit:
		return code
	case <-time.After(15 * time.Second):
		t.Fatal("process did not exit")
		return -1
	}
}

func resultText(t *testing.T, resp map[string]any) string {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "response: %v", resp)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	return content[0].(map[string]any)["text"].(string)
}
