package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/ivrbridge/internal/config"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/idempotency"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/robfig/cron/v3"
)

// Report is the outcome of one sweep.
type Report struct {
	At              time.Time
	ExpiredSessions int
	PrunedKeys      int
}

type Option func(*Sweeper)

func WithIdempotency(store *idempotency.Store) Option {
	return func(s *Sweeper) {
		s.idem = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper evicts idle sessions and expired webhook keys on a cron schedule,
// so abandoned calls end even when no webhook ever touches them again.
type Sweeper struct {
	store    *session.Store
	idem     *idempotency.Store
	schedule string
	now      func() time.Time

	mu      sync.RWMutex
	cron    *cron.Cron
	running bool
	last    Report
	runs    int
}

func New(store *session.Store, cfg config.SweeperConfig, opts ...Option) (*Sweeper, error) {
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = config.DefaultSweeperSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, ivrErrors.InvalidInput(fmt.Sprintf("invalid sweeper schedule %q: %v", schedule, err))
	}

	s := &Sweeper{
		store:    store,
		schedule: schedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sweeper) Schedule() string { return s.schedule }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	slog.Info("Sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	select {
	case <-c.Stop().Done():
		slog.Info("Sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass immediately.
func (s *Sweeper) Sweep() Report {
	report := Report{At: s.now()}
	report.ExpiredSessions = s.store.CleanupExpired()

	if s.idem != nil {
		report.PrunedKeys = s.idem.Prune()
		if err := s.idem.Save(); err != nil {
			slog.Error("Failed to save idempotency keys", "error", err)
		}
	}

	s.mu.Lock()
	s.last = report
	s.runs++
	s.mu.Unlock()

	if report.ExpiredSessions > 0 || report.PrunedKeys > 0 {
		slog.Info("Sweep finished", "expired_sessions", report.ExpiredSessions, "pruned_keys", report.PrunedKeys)
	} else {
		slog.Debug("Sweep finished, nothing to evict")
	}
	return report
}

// Last returns the most recent sweep and how many sweeps have run.
func (s *Sweeper) Last() (Report, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.runs
}

func (s *Sweeper) Health(ctx context.Context) error {
	if !s.IsRunning() {
		return ivrErrors.Internal("sweeper not running")
	}
	return nil
}

func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
