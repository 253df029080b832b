package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/idempotency"
)

// IdempotencyComponent holds the webhook replay store. Keys are written to
// disk on shutdown when a path is configured.
type IdempotencyComponent struct {
	cfg         *config.GatewayConfig
	store       *idempotency.Store
	ttl         time.Duration
	initialized bool
	mu          sync.RWMutex
}

func NewIdempotencyComponent(cfg *config.GatewayConfig) *IdempotencyComponent {
	return &IdempotencyComponent{cfg: cfg}
}

func (i *IdempotencyComponent) Name() string {
	return "Idempotency"
}

func (i *IdempotencyComponent) Dependencies() []string {
	return []string{}
}

func (i *IdempotencyComponent) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	path, ttlValue := "", ""
	if i.cfg != nil {
		path, ttlValue = i.cfg.IdempotencyPath, i.cfg.IdempotencyTTL
	}
	ttl, err := config.DurationOrDefault(ttlValue, config.DefaultGatewayIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("parse idempotency ttl: %w", err)
	}
	store, err := idempotency.NewStore(path)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}

	i.store = store
	i.ttl = ttl
	i.initialized = true
	slog.Info("Idempotency initialized", "component", i.Name(), "path", path, "ttl", ttl, "keys", store.Len())
	return nil
}

func (i *IdempotencyComponent) Start(ctx context.Context) error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.initialized {
		return fmt.Errorf("Idempotency not initialized")
	}
	return nil
}

func (i *IdempotencyComponent) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.store == nil {
		return nil
	}
	i.store.Prune()
	if err := i.store.Save(); err != nil {
		return fmt.Errorf("save idempotency keys: %w", err)
	}
	return nil
}

func (i *IdempotencyComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.initialized {
		return &daemon.ComponentHealth{Name: i.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	return &daemon.ComponentHealth{Name: i.Name(), Healthy: true}, nil
}

func (i *IdempotencyComponent) Store() *idempotency.Store {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.store
}

func (i *IdempotencyComponent) TTL() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ttl
}
