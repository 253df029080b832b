package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/notify"
)

type NotifierComponent struct {
	cfg         *config.NotifyConfig
	manager     *notify.Manager
	initialized bool
	mu          sync.RWMutex
}

func NewNotifierComponent(cfg *config.NotifyConfig) *NotifierComponent {
	return &NotifierComponent{cfg: cfg}
}

func (n *NotifierComponent) Name() string {
	return "Notifier"
}

func (n *NotifierComponent) Dependencies() []string {
	return []string{}
}

func (n *NotifierComponent) Init(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	cfg := config.NotifyConfig{}
	if n.cfg != nil {
		cfg = *n.cfg
	}
	manager, err := notify.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	n.manager = manager
	n.initialized = true
	slog.Info("Notifier initialized", "component", n.Name(), "channels", manager.Names())
	return nil
}

func (n *NotifierComponent) Start(ctx context.Context) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.initialized {
		return fmt.Errorf("Notifier not initialized")
	}
	return nil
}

func (n *NotifierComponent) Stop(ctx context.Context) error {
	return nil
}

func (n *NotifierComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.initialized {
		return &daemon.ComponentHealth{Name: n.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if err := n.manager.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: n.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: n.Name(), Healthy: true}, nil
}

func (n *NotifierComponent) Manager() *notify.Manager {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.manager
}
