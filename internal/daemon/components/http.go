package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/ivrbridge/internal/concurrency"
	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/gateway"
)

var defaultHTTPDependencies = []string{"Conversation", "Idempotency"}

// HTTPServerComponent serves the webhook gateway.
type HTTPServerComponent struct {
	daemon           *daemon.Daemon
	cfg              *config.Config
	conversationComp *ConversationComponent
	idemComp         *IdempotencyComponent
	dependencies     []string
	server           *http.Server
	listener         net.Listener
	shutdownTTL      time.Duration
	initialized      bool
	started          bool
	mu               sync.RWMutex
	startTime        time.Time
}

func NewHTTPServerComponent(d *daemon.Daemon, cfg *config.Config, conversationComp *ConversationComponent, idemComp *IdempotencyComponent) *HTTPServerComponent {
	return NewHTTPServerComponentWithDependencies(d, cfg, conversationComp, idemComp, defaultHTTPDependencies)
}

func NewHTTPServerComponentWithDependencies(d *daemon.Daemon, cfg *config.Config, conversationComp *ConversationComponent, idemComp *IdempotencyComponent, deps []string) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:           d,
		cfg:              cfg,
		conversationComp: conversationComp,
		idemComp:         idemComp,
		dependencies:     append([]string(nil), deps...),
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return append([]string(nil), h.dependencies...)
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conversationComp == nil || h.conversationComp.Driver() == nil {
		return fmt.Errorf("conversation driver not initialized")
	}

	var opts []gateway.Option
	if h.idemComp != nil && h.idemComp.Store() != nil {
		opts = append(opts, gateway.WithIdempotency(h.idemComp.Store(), h.idemComp.TTL()))
	}
	if h.daemon != nil {
		opts = append(opts, gateway.WithHealthSource(h.componentHealth))
	}
	gw, err := gateway.New(h.conversationComp.Driver(), h.cfg.Gateway, opts...)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	srv := h.cfg.Server
	readTimeout, err := config.DurationOrDefault(srv.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(srv.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(srv.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(srv.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout

	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "port", srv.Port)
	return nil
}

func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	server := h.server
	concurrency.SafeGo("http-server", func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}, nil)

	h.started = true
	h.startTime = time.Now()
	slog.Info("HTTPServer started", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name(), "uptime", time.Since(h.startTime))
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !h.started {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}

// Addr is the bound listen address once started.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// componentHealth bridges daemon component health into the gateway's /health view.
// The HTTP server itself is skipped to avoid locking against a request in flight.
func (h *HTTPServerComponent) componentHealth() map[string]gateway.ComponentHealth {
	out := make(map[string]gateway.ComponentHealth)
	for name, ch := range h.daemon.ComponentHealthExcept(h.Name()) {
		entry := gateway.ComponentHealth{Healthy: ch.Healthy}
		if ch.Error != nil {
			entry.Error = ch.Error.Error()
		}
		out[name] = entry
	}
	return out
}
