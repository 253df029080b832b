package transaction

import (
	"strconv"
	"sync"
	"time"
)

type BookingState string

const (
	BookingConfirmed BookingState = "confirmed"
	BookingCancelled BookingState = "cancelled"
)

// LedgerEntry records one issued booking reference.
type LedgerEntry struct {
	Reference   string            `json:"reference"`
	CallID      string            `json:"call_id"`
	State       BookingState      `json:"state"`
	Fields      map[string]string `json:"fields"`
	IssuedAt    time.Time         `json:"issued_at"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
}

// Ledger keeps the booking references issued by this process.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*LedgerEntry)}
}

// reserve claims ref, adding a numeric suffix when it is already taken.
func (l *Ledger) reserve(ref, callID string, fields map[string]string, at time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	candidate := ref
	for n := 2; ; n++ {
		if _, taken := l.entries[candidate]; !taken {
			break
		}
		candidate = ref + "-" + strconv.Itoa(n)
	}

	stored := make(map[string]string, len(fields))
	for k, v := range fields {
		stored[k] = v
	}
	l.entries[candidate] = &LedgerEntry{
		Reference: candidate,
		CallID:    callID,
		State:     BookingConfirmed,
		Fields:    stored,
		IssuedAt:  at,
	}
	return candidate
}

func (l *Ledger) Get(ref string) (LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[ref]
	if !ok {
		return LedgerEntry{}, false
	}
	return *e, true
}

// cancel flips a confirmed entry to cancelled. found is false for unknown refs.
func (l *Ledger) cancel(ref string, at time.Time) (found, changed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ref]
	if !ok {
		return false, false
	}
	if e.State == BookingCancelled {
		return true, false
	}
	e.State = BookingCancelled
	e.CancelledAt = &at
	return true, true
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
