package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/session"
)

// SessionStoreComponent owns the active call sessions. Sessions still open at
// shutdown are ended as failed, which archives them when the archive is on.
type SessionStoreComponent struct {
	cfg         *config.SessionConfig
	archiveComp *ArchiveComponent
	store       *session.Store
	initialized bool
	mu          sync.RWMutex
}

func NewSessionStoreComponent(cfg *config.SessionConfig, archiveComp *ArchiveComponent) *SessionStoreComponent {
	return &SessionStoreComponent{
		cfg:         cfg,
		archiveComp: archiveComp,
	}
}

func (s *SessionStoreComponent) Name() string {
	return "SessionStore"
}

func (s *SessionStoreComponent) Dependencies() []string {
	if s.archiveComp == nil {
		return []string{}
	}
	return []string{"Archive"}
}

func (s *SessionStoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("SessionStore init cancelled: %w", ctx.Err())
	default:
	}

	timeoutValue := ""
	if s.cfg != nil {
		timeoutValue = s.cfg.Timeout
	}
	timeout, err := config.DurationOrDefault(timeoutValue, config.DefaultSessionTimeout)
	if err != nil {
		return fmt.Errorf("parse session timeout: %w", err)
	}

	s.store = session.NewStore(session.WithTimeout(timeout))
	if s.archiveComp != nil {
		if arch := s.archiveComp.Archive(); arch != nil {
			s.store.OnEnd(arch.Hook())
		}
	}

	s.initialized = true
	slog.Info("SessionStore initialized", "component", s.Name(), "timeout", timeout)
	return nil
}

func (s *SessionStoreComponent) Start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return fmt.Errorf("SessionStore not initialized")
	}
	return nil
}

func (s *SessionStoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	active := s.store.ActiveCount()
	s.store.Close()
	slog.Info("SessionStore closed", "component", s.Name(), "ended_sessions", active)
	return nil
}

func (s *SessionStoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *SessionStoreComponent) Store() *session.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}
