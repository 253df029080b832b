package idempotency

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Entry is a remembered webhook reply. Expiry is a unix timestamp.
type Entry struct {
	Expiry      int64  `json:"expiry"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type processedKeys struct {
	Keys map[string]Entry `json:"keys"`
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store remembers webhook deliveries for a bounded time so retried requests
// get the original reply. With an empty path it lives in memory only.
type Store struct {
	path  string
	state processedKeys
	now   func() time.Time
	mu    sync.RWMutex
}

func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path: path,
		state: processedKeys{
			Keys: make(map[string]Entry),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		return s.save()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return err
	}
	if s.state.Keys == nil {
		s.state.Keys = make(map[string]Entry)
	}
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// Lookup returns the live entry for key.
func (s *Store) Lookup(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.state.Keys[key]
	if !ok || entry.Expiry <= s.now().Unix() {
		return Entry{}, false
	}
	return entry, true
}

// Remember stores the reply sent for key, replacing any previous entry.
func (s *Store) Remember(key string, status int, contentType string, body []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Keys[key] = Entry{
		Expiry:      s.now().Add(ttl).Unix(),
		Status:      status,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
	}
}

// CheckAndMark reports whether key was already seen and live; otherwise it marks it.
func (s *Store) CheckAndMark(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if entry, exists := s.state.Keys[key]; exists {
		if entry.Expiry > now.Unix() {
			return true
		}
		delete(s.state.Keys, key)
	}

	s.state.Keys[key] = Entry{Expiry: now.Add(ttl).Unix()}
	return false
}

func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	count := 0
	for k, entry := range s.state.Keys {
		if entry.Expiry <= now {
			delete(s.state.Keys, k)
			count++
		}
	}
	return count
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Keys)
}
