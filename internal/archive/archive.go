package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/ivrbridge/internal/concurrency"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/natefinch/atomic"
)

const (
	indexFileName = "index.json"
	dayLayout     = "20060102"
	inboxSize     = 256
)

// Record is one ended call as written to the archive.
type Record struct {
	session.Session
	// InteractionCount is the call's full turn count, even when the stored
	// transcript was cut to the archive's transcript limit.
	InteractionCount int       `json:"interaction_count"`
	DurationSeconds  float64   `json:"duration_seconds"`
	ArchivedAt       time.Time `json:"archived_at"`
}

// Index summarizes the archive so operators can read totals without
// scanning the call files.
type Index struct {
	Total    int                    `json:"total"`
	ByStatus map[session.Status]int `json:"by_status"`
	ByDay    map[string]int         `json:"by_day"`
	Updated  time.Time              `json:"updated"`
}

type Option func(*Archive)

func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		if now != nil {
			a.now = now
		}
	}
}

// WithTranscriptLimit keeps only the last n interactions of each archived
// call. Live sessions are never trimmed; zero keeps every turn.
func WithTranscriptLimit(n int) Option {
	return func(a *Archive) {
		if n >= 0 {
			a.transcriptLimit = n
		}
	}
}

func WithLockConfig(cfg *FileLockConfig) Option {
	return func(a *Archive) {
		if cfg != nil {
			a.lockCfg = cfg
		}
	}
}

// Archive appends ended calls to daily JSONL files from a single writer goroutine.
type Archive struct {
	dir     string
	lockCfg *FileLockConfig
	lock    *FileLock
	index   *Index
	now     func() time.Time

	transcriptLimit int

	inbox   chan Record
	quit    chan struct{}
	wg      sync.WaitGroup
	running stdatomic.Bool
	dropped stdatomic.Int64
	stop    sync.Once
}

func Open(dir string, opts ...Option) (*Archive, error) {
	a := &Archive{
		dir:     dir,
		lockCfg: DefaultFileLockConfig(),
		now:     time.Now,
		inbox:   make(chan Record, inboxSize),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir %s: %w", dir, err)
	}

	lock, err := NewFileLock(dir, a.lockCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire archive lock: %w", err)
	}
	a.lock = lock

	index, err := ReadIndex(dir)
	if err != nil {
		slog.Warn("Failed to parse archive index, starting fresh", "error", err)
		index = newIndex()
	}
	a.index = index
	return a, nil
}

func newIndex() *Index {
	return &Index{ByStatus: make(map[session.Status]int), ByDay: make(map[string]int)}
}

// ReadIndex loads the index of the archive in dir. A missing index is empty.
func ReadIndex(dir string) (*Index, error) {
	idx := newIndex()
	data, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, err
	}
	if idx.ByStatus == nil {
		idx.ByStatus = make(map[session.Status]int)
	}
	if idx.ByDay == nil {
		idx.ByDay = make(map[string]int)
	}
	return idx, nil
}

func (a *Archive) Start() {
	a.wg.Add(1)
	concurrency.SafeGo("archive-writer", a.loop, nil)
}

func (a *Archive) loop() {
	slog.Info("Archive writer started", "dir", a.dir)
	a.running.Store(true)
	defer func() {
		a.running.Store(false)
		a.wg.Done()
	}()

	for {
		select {
		case rec := <-a.inbox:
			a.write(rec)
		case <-a.quit:
			for {
				select {
				case rec := <-a.inbox:
					a.write(rec)
				default:
					slog.Info("Archive writer stopping", "dir", a.dir)
					return
				}
			}
		}
	}
}

func (a *Archive) write(rec Record) {
	if err := a.append(rec); err != nil {
		slog.Error("Failed to archive call", "call_id", rec.CallID, "error", err)
		return
	}
	if err := a.saveIndex(); err != nil {
		slog.Error("Failed to save archive index", "error", err)
	}
}

// Hook returns the session end hook feeding this archive.
func (a *Archive) Hook() session.EndHook {
	return a.Record
}

// Record queues an ended session. It never blocks the caller; a full queue drops the record.
func (a *Archive) Record(sess session.Session) {
	rec := Record{Session: sess, InteractionCount: len(sess.Interactions), ArchivedAt: a.now()}
	if n := a.transcriptLimit; n > 0 && len(sess.Interactions) > n {
		rec.Interactions = sess.Interactions[len(sess.Interactions)-n:]
	}
	if sess.EndTime != nil {
		rec.DurationSeconds = sess.EndTime.Sub(sess.StartTime).Seconds()
	}

	select {
	case <-a.quit:
		slog.Warn("Archive closed, call not recorded", "call_id", sess.CallID)
	case a.inbox <- rec:
	default:
		a.dropped.Add(1)
		slog.Warn("Archive queue full, call not recorded", "call_id", sess.CallID)
	}
}

func (a *Archive) Stop() {
	a.stop.Do(func() {
		close(a.quit)
		a.wg.Wait()
		a.lock.Unlock()
	})
}

func (a *Archive) IsRunning() bool { return a.running.Load() }

func (a *Archive) Dropped() int64 { return a.dropped.Load() }

func (a *Archive) Dir() string { return a.dir }

func dayFile(dir string, t time.Time) string {
	return filepath.Join(dir, "calls-"+t.UTC().Format(dayLayout)+".jsonl")
}

func recordDay(rec Record) time.Time {
	if rec.EndTime != nil {
		return *rec.EndTime
	}
	return rec.ArchivedAt
}

func (a *Archive) append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	day := recordDay(rec)
	f, err := os.OpenFile(dayFile(a.dir, day), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	a.index.Total++
	a.index.ByStatus[rec.Status]++
	a.index.ByDay[day.UTC().Format(dayLayout)]++
	a.index.Updated = a.now()
	return nil
}

func (a *Archive) saveIndex() error {
	data, err := json.MarshalIndent(a.index, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(a.dir, indexFileName), bytes.NewReader(data))
}

// ReadDay returns the calls archived for the UTC day containing t.
func ReadDay(dir string, t time.Time) ([]Record, error) {
	f, err := os.Open(dayFile(dir, t))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			slog.Warn("Skipping malformed archive line", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

// Days lists the archived days, oldest first.
func (idx *Index) Days() []string {
	days := make([]string, 0, len(idx.ByDay))
	for d := range idx.ByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}
