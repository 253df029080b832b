package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/ivrbridge/internal/concurrency"

	"github.com/oklog/ulid/v2"
)

const DefaultTimeout = 30 * time.Minute

// EndHook receives the final snapshot of a session leaving the active set.
// Hooks run after the call's lock is released.
type EndHook func(Session)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Store owns the active call sessions.
//
// Every operation on a call runs under that call's key lock, so two webhooks for
// the same call are applied one after the other while different calls proceed
// in parallel. Session fields are written with both the key lock and mu held;
// readers hold either one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	keys     *concurrency.KeyedMutex
	timeout  time.Duration
	now      func() time.Time

	hookMu sync.RWMutex
	hooks  []EndHook
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		keys:     concurrency.NewKeyedMutex(),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Timeout() time.Duration { return s.timeout }

// OnEnd registers a hook fired for every session that ends, whatever the cause.
func (s *Store) OnEnd(hook EndHook) {
	if hook == nil {
		return
	}
	s.hookMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hookMu.Unlock()
}

// Create returns the active session for callID, creating it if needed.
// A duplicate create leaves the existing session untouched.
func (s *Store) Create(callID, callerRef string) *Session {
	var ended []*Session
	defer func() { s.fire(ended) }()

	s.keys.Lock(callID)
	defer s.keys.Unlock(callID)

	existing, expired := s.lookupLocked(callID)
	if expired != nil {
		ended = append(ended, expired)
	}
	if existing != nil {
		slog.Warn("Session already exists, returning existing", "call_id", callID)
		return existing.Clone()
	}

	sess := &Session{
		CallID:       callID,
		CallerRef:    callerRef,
		StartTime:    s.now(),
		Status:       StatusActive,
		Interactions: []Interaction{},
		Context:      Values{},
	}

	s.mu.Lock()
	s.sessions[callID] = sess
	s.mu.Unlock()

	slog.Info("Session created", "call_id", callID, "caller", callerRef)
	return sess.Clone()
}

// Get returns a snapshot of the active session. An idle session is ended as
// failed and reported missing.
func (s *Store) Get(callID string) (*Session, bool) {
	var found *Session
	s.withLive(callID, func(sess *Session) {
		found = sess.Clone()
	})
	return found, found != nil
}

func (s *Store) AddInteraction(callID string, speaker Speaker, message string, kind InputKind) bool {
	return s.mutate(callID, func(sess *Session) {
		sess.Interactions = append(sess.Interactions, Interaction{
			ID:        ulid.Make().String(),
			Timestamp: s.now(),
			Speaker:   speaker,
			Message:   message,
			InputKind: kind,
		})
	})
}

// UpdateContext shallow-merges updates into the session context.
func (s *Store) UpdateContext(callID string, updates Values) bool {
	return s.mutate(callID, func(sess *Session) {
		if sess.Context == nil {
			sess.Context = Values{}
		}
		sess.Context.Merge(updates)
	})
}

func (s *Store) SetIntent(callID, intent string) bool {
	return s.mutate(callID, func(sess *Session) {
		sess.CurrentIntent = intent
	})
}

func (s *Store) SetCustomerID(callID, customerID string) bool {
	return s.mutate(callID, func(sess *Session) {
		sess.CustomerID = customerID
	})
}

// StoreBookingData creates the booking record if absent, then merges partial into it.
func (s *Store) StoreBookingData(callID string, partial BookingData) bool {
	return s.mutate(callID, func(sess *Session) {
		if sess.Booking == nil {
			sess.Booking = &BookingData{}
		}
		sess.Booking.Merge(partial)
	})
}

// ClearBooking drops the booking record so a new booking starts empty.
func (s *Store) ClearBooking(callID string) bool {
	return s.mutate(callID, func(sess *Session) {
		sess.Booking = nil
	})
}

// End moves the session to a terminal status and drops it from the active set.
// It reports false when the call is no longer active or status is not terminal.
func (s *Store) End(callID string, status Status) bool {
	if !status.Terminal() {
		slog.Warn("Refusing to end session with non-terminal status", "call_id", callID, "status", status)
		return false
	}

	var ended *Session
	func() {
		s.keys.Lock(callID)
		defer s.keys.Unlock(callID)

		s.mu.RLock()
		sess, ok := s.sessions[callID]
		s.mu.RUnlock()
		if !ok {
			return
		}
		ended = s.finishLocked(sess, status)
	}()

	if ended == nil {
		return false
	}
	s.fire([]*Session{ended})
	return true
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ListSummaries reports the active sessions ordered by start time.
func (s *Store) ListSummaries() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Duration is (end or now) - start for an active session.
func (s *Store) Duration(callID string) (time.Duration, bool) {
	var (
		d  time.Duration
		ok bool
	)
	s.withLive(callID, func(sess *Session) {
		end := s.now()
		if sess.EndTime != nil {
			end = *sess.EndTime
		}
		d, ok = end.Sub(sess.StartTime), true
	})
	return d, ok
}

// History returns the last n interactions, or all of them when n <= 0.
func (s *Store) History(callID string, n int) []Interaction {
	var out []Interaction
	s.withLive(callID, func(sess *Session) {
		items := sess.Interactions
		if n > 0 && len(items) > n {
			items = items[len(items)-n:]
		}
		out = append([]Interaction(nil), items...)
	})
	return out
}

// CleanupExpired ends every idle session as failed and returns how many were evicted.
func (s *Store) CleanupExpired() int {
	count := 0
	for _, callID := range s.callIDs() {
		var ended []*Session
		func() {
			s.keys.Lock(callID)
			defer s.keys.Unlock(callID)
			if _, expired := s.lookupLocked(callID); expired != nil {
				ended = append(ended, expired)
			}
		}()
		count += len(ended)
		s.fire(ended)
	}
	if count > 0 {
		slog.Info("Cleaned up expired sessions", "count", count)
	}
	return count
}

// Close ends every remaining session as failed.
func (s *Store) Close() {
	for _, callID := range s.callIDs() {
		s.End(callID, StatusFailed)
	}
}

func (s *Store) callIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastActivity()) > s.timeout
}

// lookupLocked must run under the call's key lock. It returns the live session,
// or the final snapshot of a session it just expired.
func (s *Store) lookupLocked(callID string) (*Session, *Session) {
	s.mu.RLock()
	sess, ok := s.sessions[callID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.expired(sess, s.now()) {
		slog.Warn("Session expired", "call_id", callID, "last_activity", sess.LastActivity())
		return nil, s.finishLocked(sess, StatusFailed)
	}
	return sess, nil
}

func (s *Store) finishLocked(sess *Session, status Status) *Session {
	end := s.now()

	s.mu.Lock()
	sess.EndTime = &end
	sess.Status = status
	delete(s.sessions, sess.CallID)
	s.mu.Unlock()

	slog.Info("Session ended", "call_id", sess.CallID, "status", status, "interactions", len(sess.Interactions))
	return sess.Clone()
}

func (s *Store) withLive(callID string, fn func(*Session)) bool {
	var ended []*Session
	defer func() { s.fire(ended) }()

	s.keys.Lock(callID)
	defer s.keys.Unlock(callID)

	sess, expired := s.lookupLocked(callID)
	if expired != nil {
		ended = append(ended, expired)
	}
	if sess == nil {
		return false
	}
	fn(sess)
	return true
}

func (s *Store) mutate(callID string, fn func(*Session)) bool {
	return s.withLive(callID, func(sess *Session) {
		s.mu.Lock()
		fn(sess)
		s.mu.Unlock()
	})
}

func (s *Store) fire(ended []*Session) {
	if len(ended) == 0 {
		return
	}
	s.hookMu.RLock()
	hooks := append([]EndHook(nil), s.hooks...)
	s.hookMu.RUnlock()

	for _, sess := range ended {
		for _, hook := range hooks {
			hook(*sess)
		}
	}
}
