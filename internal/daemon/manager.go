package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/pathutil"
)

type timeouts struct {
	shutdown        time.Duration
	startupShutdown time.Duration
	healthInterval  time.Duration
}

// Daemon owns the bridge's components: it initializes and starts them in
// dependency order, watches their health, and stops them in reverse.
type Daemon struct {
	cfg        *config.Config
	components []Component
	timeouts   timeouts

	mu            sync.RWMutex
	initOrder     []string
	shutdownOrder []string
	health        HealthStatus
	startedAt     time.Time
	monitorDone   chan struct{}
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Daemon{
		cfg:         cfg,
		health:      StatusStarting,
		startedAt:   time.Now(),
		monitorDone: make(chan struct{}),
	}, nil
}

// AddComponent registers comp. Until the init order is resolved, components
// stop in reverse registration order.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	d.shutdownOrder = slices.Insert(d.shutdownOrder, 0, comp.Name())
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start runs the bridge until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts every component down within daemon.shutdown_timeout.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("ivrbridge daemon starting...", "port", d.cfg.Server.Port)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := d.preInitChecks(ctx); err != nil {
		return fmt.Errorf("pre-init checks failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		d.gracefulShutdown(ctx, d.timeouts.startupShutdown)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("ivrbridge daemon is running", "components", len(d.components), "order", d.initOrder)

	go d.monitorHealth(ctx)
	<-ctx.Done()

	slog.Info("Context cancelled, initiating graceful shutdown", "reason", ctx.Err())
	d.setHealth(StatusStopping)
	close(d.monitorDone)

	if err := d.gracefulShutdown(context.Background(), d.timeouts.shutdown); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return nil
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startedAt)
}

func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	return d.ComponentHealthExcept()
}

// ComponentHealthExcept collects health from every component not named in
// skip. A component whose Health call itself fails is reported unhealthy.
func (d *Daemon) ComponentHealthExcept(skip ...string) map[string]*ComponentHealth {
	d.mu.RLock()
	components := slices.Clone(d.components)
	d.mu.RUnlock()

	report := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		name := comp.Name()
		if slices.Contains(skip, name) {
			continue
		}
		h, err := comp.Health(context.Background())
		if h == nil {
			h = &ComponentHealth{Name: name}
		}
		if err != nil {
			h.Healthy, h.Error = false, err
		}
		report[name] = h
	}
	return report
}

// Component returns the registered component called name, or nil.
func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lookup(name)
}

func (d *Daemon) lookup(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

// validateConfig rejects settings no component could start with and
// resolves the daemon's own timeouts.
func (d *Daemon) validateConfig() error {
	slog.Info("Validating configuration...")

	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if _, err := config.DurationOrDefault(d.cfg.Session.Timeout, config.DefaultSessionTimeout); err != nil {
		return fmt.Errorf("invalid session timeout: %w", err)
	}
	if d.cfg.Archive.Enabled && d.cfg.Archive.Path == "" {
		return fmt.Errorf("archive enabled without archive.path")
	}

	var err error
	t := &d.timeouts
	if t.shutdown, err = config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout); err != nil {
		return fmt.Errorf("invalid daemon shutdown timeout: %w", err)
	}
	if t.startupShutdown, err = config.DurationOrDefault(d.cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout); err != nil {
		return fmt.Errorf("invalid daemon startup shutdown timeout: %w", err)
	}
	if t.healthInterval, err = config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval); err != nil {
		return fmt.Errorf("invalid daemon health check interval: %w", err)
	}

	slog.Info("Configuration validated", "port", d.cfg.Server.Port, "shutdown_timeout", t.shutdown)
	return nil
}

// preInitChecks makes sure the archive and webhook key directories exist
// and are writable before any component opens them.
func (d *Daemon) preInitChecks(ctx context.Context) error {
	var dirs []string
	if d.cfg.Archive.Enabled {
		dirs = append(dirs, d.cfg.Archive.Path)
	}
	if d.cfg.Gateway.IdempotencyPath != "" {
		dirs = append(dirs, filepath.Dir(d.cfg.Gateway.IdempotencyPath))
	}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pre-init checks cancelled: %w", err)
		}
		if err := pathutil.EnsureWritable(dir); err != nil {
			return err
		}
	}
	slog.Info("Pre-init checks completed", "dirs", dirs)
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := planOrder(d.components)
	if err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}
	slog.Info("Initializing components...", "order", order)

	if err := d.each(order, "init", func(c Component) error { return c.Init(ctx) }); err != nil {
		return err
	}

	d.mu.Lock()
	d.initOrder = order
	d.shutdownOrder = reversed(order)
	d.mu.Unlock()
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	order := d.initOrder
	if len(order) == 0 {
		order = reversed(d.shutdownOrder)
	}
	return d.each(order, "startup", func(c Component) error { return c.Start(ctx) })
}

// each runs fn over the named components in order and stops at the first error.
func (d *Daemon) each(order []string, phase string, fn func(Component) error) error {
	for _, name := range order {
		comp := d.lookup(name)
		if comp == nil {
			continue
		}
		if err := fn(comp); err != nil {
			slog.Error("Component "+phase+" failed", "component", name, "error", err)
			return fmt.Errorf("component %s %s failed: %w", name, phase, err)
		}
		slog.Debug("Component "+phase+" done", "component", name)
	}
	slog.Info("All components done", "phase", phase, "count", len(order))
	return nil
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.shutdownComponents(shutdownCtx)
	}()

	select {
	case err := <-done:
		slog.Info("Graceful shutdown completed")
		return err
	case <-shutdownCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
		slog.Error("Shutdown timeout exceeded", "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// shutdownComponents stops every component, logging failures without
// stopping early, so open calls still reach the archive.
func (d *Daemon) shutdownComponents(ctx context.Context) error {
	d.stopAll(ctx, "Stopping")
	return nil
}

func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...")
	d.stopAll(ctx, "Rolling back")
}

func (d *Daemon) stopAll(ctx context.Context, verb string) {
	d.mu.RLock()
	order := slices.Clone(d.shutdownOrder)
	d.mu.RUnlock()

	for _, name := range order {
		comp := d.lookup(name)
		if comp == nil {
			continue
		}
		slog.Info(verb+" component...", "component", name)
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
		}
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(d.timeouts.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.monitorDone:
			return
		case <-ticker.C:
			report := d.ComponentHealth()
			if ctx.Err() != nil {
				return
			}
			bad := Unhealthy(report)
			for _, name := range bad {
				slog.Warn("Component unhealthy", "component", name, "error", report[name].Error)
			}
			if len(bad) > 0 {
				slog.Warn("Daemon has unhealthy components", "count", len(bad), "total", len(report))
			} else {
				slog.Debug("All components healthy", "count", len(report))
			}
		}
	}
}
