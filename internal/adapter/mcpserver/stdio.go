package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"

	"o3-search-mcp/internal/domain"
	"o3-search-mcp/internal/infra/config"
)

// StdioTransport serves an MCPServer over newline-delimited JSON-RPC on a
// reader/writer pair. It satisfies lifecycle.Transport.
type StdioTransport struct {
	stdio  *server.StdioServer
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	connected atomic.Bool
	closing   atomic.Bool
	input     *io.PipeWriter
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewStdioTransport wraps srv for the given streams. mcp-go diagnostics are
// routed to logger at error level so nothing but protocol frames reach out.
func NewStdioTransport(srv *server.MCPServer, in io.Reader, out io.Writer, cfg config.ServerConfig, logger *slog.Logger) *StdioTransport {
	stdio := server.NewStdioServer(srv)
	for _, opt := range []server.StdioOption{
		server.WithErrorLogger(slog.NewLogLogger(logger.With("component", "mcp-stdio").Handler(), slog.LevelError)),
		server.WithWorkerPoolSize(cfg.WorkerPoolSize),
		server.WithQueueSize(cfg.QueueSize),
	} {
		opt(stdio)
	}

	return &StdioTransport{
		stdio:  stdio,
		in:     in,
		out:    out,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Connect starts listening. The listen loop runs through spawn (a plain
// goroutine when spawn is nil). The returned channel yields nil when the
// input ends, or the read error, and is then closed. Nothing is sent once
// Close has been called.
//
// The listener reads from a pipe fed by a copier goroutine, so Close can end
// input without cancelling the listener. Cancelling ctx does not stop
// serving; shutdown always goes through Close.
func (t *StdioTransport) Connect(ctx context.Context, spawn func(name string, fn func(context.Context) error)) (<-chan error, error) {
	if !t.connected.CompareAndSwap(false, true) {
		return nil, domain.WrapOp("stdio connect", domain.ErrAlreadyStarted)
	}
	if spawn == nil {
		spawn = func(_ string, fn func(context.Context) error) {
			go func() { _ = fn(context.Background()) }()
		}
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	pr, pw := io.Pipe()
	t.input = pw
	errs := make(chan error, 1)

	// The copier may stay blocked on a read from in after Close; its next
	// write fails on the closed pipe and it exits.
	go func() {
		_, err := io.Copy(pw, t.in)
		pw.CloseWithError(err)
	}()

	spawn("mcp-stdio-listen", func(context.Context) error {
		defer close(t.done)
		defer close(errs)

		err := t.stdio.Listen(listenCtx, pr, t.out)
		if t.closing.Load() {
			return nil
		}
		if err != nil {
			t.logger.Warn("stdio listener stopped", "error", err)
		} else {
			t.logger.Info("stdin closed")
		}
		errs <- err
		return nil
	})

	t.logger.Info("mcp server listening on stdio")
	return errs, nil
}

// Close stops reading input and waits until every accepted tool call,
// running or queued, has written its response. If ctx expires first the
// remaining calls are abandoned and an ErrTimeout error is returned.
// Repeated calls wait on the same shutdown.
func (t *StdioTransport) Close(ctx context.Context) error {
	if !t.connected.Load() {
		return nil
	}
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		t.input.Close()
	})

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		t.cancel()
		return fmt.Errorf("%w: in-flight tool calls did not finish: %w", domain.ErrTimeout, ctx.Err())
	}
}

// Done is closed once the listen loop has returned.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}
