// Package lifecycle owns process start-up and the single, guarded shutdown
// sequence of the server.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"o3-search-mcp/internal/domain"
)

// State is the lifecycle phase of a Manager.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Shutdown reasons.
const (
	ReasonTimeout          = "timeout"
	ReasonStdinEnd         = "stdin end"
	ReasonContextCancelled = "context cancelled"
)

// Exit codes returned by Run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

const defaultCloseTimeout = 10 * time.Second

// Transport is the protocol endpoint the manager drives.
//
// Connect starts serving, running any background loop through spawn so that
// panics and errors are supervised. The returned channel yields at most one
// value: nil when the input stream ends, or the read error. Close stops
// serving and waits for in-flight work, honouring ctx.
type Transport interface {
	Connect(ctx context.Context, spawn func(name string, fn func(context.Context) error)) (<-chan error, error)
	Close(ctx context.Context) error
}

// Config bounds the process lifetime.
type Config struct {
	MaxRuntime   time.Duration // 0 disables the timer
	CloseTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithSignals replaces OS signal delivery, mainly for tests.
func WithSignals(ch <-chan os.Signal) Option {
	return func(m *Manager) { m.signals = ch }
}

// Manager connects a Transport, waits for the first shutdown trigger and
// closes the transport exactly once.
type Manager struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool
	reason   atomic.Pointer[string]
	triggers chan string
	signals  <-chan os.Signal
	done     chan struct{}

	// ctx is handed to supervised goroutines and cancelled when shutdown begins.
	ctx    context.Context
	cancel context.CancelFunc

	timerMu      sync.Mutex
	timer        *time.Timer
	timerStopped bool
}

// NewManager creates a Manager for transport.
func NewManager(transport Transport, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		triggers:  make(chan string, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run connects the transport and blocks until shutdown completes. It returns
// the process exit code.
func (m *Manager) Run(ctx context.Context) int {
	if !m.started.CompareAndSwap(false, true) {
		m.logger.Error("lifecycle run rejected", "error", domain.ErrAlreadyStarted)
		return ExitFailure
	}

	errs, err := m.transport.Connect(ctx, m.Go)
	if err != nil {
		m.logger.Error("transport connect failed", "error", err)
		m.stopping.Store(true)
		m.cancel()
		m.finish()
		return ExitFailure
	}
	m.setState(StateRunning)
	m.logger.Info("server running", "max_runtime", m.cfg.MaxRuntime)
	m.startTimer()

	sigs := m.signals
	if sigs == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}

	stop := make(chan struct{})
	go m.watch(ctx, errs, sigs, stop)

	reason := <-m.triggers
	close(stop)
	return m.shutdown(reason)
}

// watch turns external events into triggers until stop is closed.
func (m *Manager) watch(ctx context.Context, errs <-chan error, sigs <-chan os.Signal, stop <-chan struct{}) {
	ctxDone := ctx.Done()
	for {
		select {
		case <-stop:
			return
		case sig := <-sigs:
			m.Trigger(signalName(sig))
		case err, ok := <-errs:
			errs = nil
			if !ok || err == nil {
				m.Trigger(ReasonStdinEnd)
				continue
			}
			m.Trigger("stdin error: " + err.Error())
		case <-ctxDone:
			ctxDone = nil
			m.Trigger(ReasonContextCancelled)
		}
	}
}

// Trigger requests shutdown. Only the first call has an effect; it stops the
// max-runtime timer and reports true.
func (m *Manager) Trigger(reason string) bool {
	if !m.stopping.CompareAndSwap(false, true) {
		m.logger.Debug("shutdown already in progress, ignoring trigger", "reason", reason)
		return false
	}
	m.stopTimer()
	m.reason.Store(&reason)
	m.logger.Info("shutdown triggered", "reason", reason)
	m.triggers <- reason
	return true
}

// Go runs fn in a supervised goroutine. A panic triggers shutdown with
// "uncaught panic: ..."; a returned error with "unhandled error: ...". The
// context passed to fn is cancelled when shutdown begins.
func (m *Manager) Go(name string, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("supervised goroutine panicked",
					"goroutine", name,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				m.Trigger(fmt.Sprintf("uncaught panic: %v", r))
			}
		}()
		err := fn(m.ctx)
		if err == nil || (errors.Is(err, context.Canceled) && m.ctx.Err() != nil) {
			return
		}
		m.logger.Error("supervised goroutine failed", "goroutine", name, "error", err)
		m.Trigger("unhandled error: " + err.Error())
	}()
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Done is closed once the manager reaches StateTerminated.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Reason returns the trigger that started shutdown, or "" while running.
func (m *Manager) Reason() string {
	if r := m.reason.Load(); r != nil {
		return *r
	}
	return ""
}

func (m *Manager) shutdown(reason string) (code int) {
	m.setState(StateShuttingDown)
	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CloseTimeout)
	defer cancel()

	start := time.Now()
	err := m.closeTransport(ctx)
	m.finish()

	if err != nil {
		m.logger.Error("shutdown failed", "reason", reason, "error", err, "elapsed", time.Since(start))
		return ExitFailure
	}
	m.logger.Info("shutdown complete", "reason", reason, "elapsed", time.Since(start))
	return ExitOK
}

func (m *Manager) closeTransport(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: close panicked: %v", domain.ErrTransportClosed, r)
		}
	}()
	return m.transport.Close(ctx)
}

func (m *Manager) finish() {
	m.setState(StateTerminated)
	close(m.done)
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) startTimer() {
	if m.cfg.MaxRuntime <= 0 {
		return
	}
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timerStopped {
		return
	}
	m.timer = time.AfterFunc(m.cfg.MaxRuntime, func() {
		m.Trigger(ReasonTimeout)
	})
}

func (m *Manager) stopTimer() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.timerStopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}
