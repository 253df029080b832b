package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/model"
	"github.com/harunnryd/ivrbridge/internal/policy"
)

// PolicyComponent builds the dialogue policy and, for model-backed
// backends, the model router it calls.
type PolicyComponent struct {
	cfg         *config.Config
	router      *model.DefaultModelRouter
	policy      policy.Policy
	initialized bool
	mu          sync.RWMutex
}

func NewPolicyComponent(cfg *config.Config) *PolicyComponent {
	return &PolicyComponent{cfg: cfg}
}

func (p *PolicyComponent) Name() string {
	return "Policy"
}

func (p *PolicyComponent) Dependencies() []string {
	return []string{}
}

func (p *PolicyComponent) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Policy init cancelled: %w", ctx.Err())
	default:
	}

	var router policy.Router
	if p.cfg.Policy.Backend == policy.BackendLLM || p.cfg.Policy.Backend == policy.BackendSemantic {
		r, err := model.NewModelRouter(p.cfg.Models)
		if err != nil {
			return fmt.Errorf("create model router: %w", err)
		}
		p.router = r
		router = r
	}

	pol, err := policy.New(ctx, p.cfg.Policy, router)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}

	p.policy = pol
	p.initialized = true
	slog.Info("Policy initialized", "component", p.Name(), "backend", pol.Name())
	return nil
}

func (p *PolicyComponent) Start(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return fmt.Errorf("Policy not initialized")
	}
	return nil
}

func (p *PolicyComponent) Stop(ctx context.Context) error {
	return nil
}

func (p *PolicyComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return &daemon.ComponentHealth{Name: p.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if p.router != nil {
		if err := p.router.Health(ctx); err != nil {
			return &daemon.ComponentHealth{Name: p.Name(), Healthy: false, Error: err}, nil
		}
	}
	return &daemon.ComponentHealth{Name: p.Name(), Healthy: true}, nil
}

func (p *PolicyComponent) Policy() policy.Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.policy
}
