package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/sweeper"
)

type SweeperComponent struct {
	cfg         *config.SweeperConfig
	sessionComp *SessionStoreComponent
	idemComp    *IdempotencyComponent
	sweeper     *sweeper.Sweeper
	initialized bool
	mu          sync.RWMutex
}

func NewSweeperComponent(cfg *config.SweeperConfig, sessionComp *SessionStoreComponent, idemComp *IdempotencyComponent) *SweeperComponent {
	return &SweeperComponent{
		cfg:         cfg,
		sessionComp: sessionComp,
		idemComp:    idemComp,
	}
}

func (s *SweeperComponent) Name() string {
	return "Sweeper"
}

func (s *SweeperComponent) Dependencies() []string {
	deps := []string{"SessionStore"}
	if s.idemComp != nil {
		deps = append(deps, "Idempotency")
	}
	return deps
}

func (s *SweeperComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionComp == nil || s.sessionComp.Store() == nil {
		return fmt.Errorf("session store not initialized")
	}

	cfg := config.SweeperConfig{}
	if s.cfg != nil {
		cfg = *s.cfg
	}
	var opts []sweeper.Option
	if s.idemComp != nil && s.idemComp.Store() != nil {
		opts = append(opts, sweeper.WithIdempotency(s.idemComp.Store()))
	}
	sw, err := sweeper.New(s.sessionComp.Store(), cfg, opts...)
	if err != nil {
		return err
	}

	s.sweeper = sw
	s.initialized = true
	slog.Info("Sweeper initialized", "component", s.Name(), "schedule", sw.Schedule())
	return nil
}

func (s *SweeperComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("Sweeper not initialized")
	}
	return s.sweeper.Start(ctx)
}

func (s *SweeperComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sweeper == nil {
		return nil
	}
	return s.sweeper.Stop(ctx)
}

func (s *SweeperComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if err := s.sweeper.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}
