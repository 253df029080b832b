package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/archive"
	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
)

// ArchiveComponent owns the call archive writer. Disabled archives are a no-op.
type ArchiveComponent struct {
	cfg         *config.ArchiveConfig
	archive     *archive.Archive
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewArchiveComponent(cfg *config.ArchiveConfig) *ArchiveComponent {
	return &ArchiveComponent{cfg: cfg}
}

func (a *ArchiveComponent) Name() string {
	return "Archive"
}

func (a *ArchiveComponent) Dependencies() []string {
	return []string{}
}

func (a *ArchiveComponent) Enabled() bool {
	return a.cfg != nil && a.cfg.Enabled
}

func (a *ArchiveComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Archive init cancelled: %w", ctx.Err())
	default:
	}

	if !a.Enabled() {
		a.initialized = true
		slog.Info("Archive disabled", "component", a.Name())
		return nil
	}

	lockCfg, err := archive.FileLockConfigFrom(*a.cfg)
	if err != nil {
		return err
	}
	arch, err := archive.Open(a.cfg.Path, archive.WithLockConfig(lockCfg), archive.WithTranscriptLimit(a.cfg.TranscriptLimit))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	a.archive = arch
	a.initialized = true
	slog.Info("Archive initialized", "component", a.Name(), "path", a.cfg.Path)
	return nil
}

func (a *ArchiveComponent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("Archive not initialized")
	}
	if a.archive != nil {
		a.archive.Start()
	}
	a.started = true
	return nil
}

func (a *ArchiveComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.archive != nil {
		a.archive.Stop()
		if dropped := a.archive.Dropped(); dropped > 0 {
			slog.Warn("Archive dropped records", "component", a.Name(), "dropped", dropped)
		}
	}
	a.started = false
	return nil
}

func (a *ArchiveComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.initialized {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if a.archive != nil && a.started && !a.archive.IsRunning() {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: fmt.Errorf("archive writer stopped")}, nil
	}
	return &daemon.ComponentHealth{Name: a.Name(), Healthy: true}, nil
}

// Archive returns the writer, or nil when archiving is disabled.
func (a *ArchiveComponent) Archive() *archive.Archive {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.archive
}
