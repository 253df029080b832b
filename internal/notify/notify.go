package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transfer describes a call handed over to a human agent.
type Transfer struct {
	CallID        string
	CallerRef     string
	Intent        string
	LastUtterance string
	Reason        string
	At            time.Time
}

// Notifier delivers agent-transfer notices to an operator channel.
type Notifier interface {
	// Name returns the notifier name (e.g. "slack", "telegram").
	Name() string

	// Notify sends one transfer notice.
	Notify(ctx context.Context, t Transfer) error

	// Health checks if the notifier can reach its platform.
	Health(ctx context.Context) error
}

// Format renders a transfer notice as plain text.
func Format(t Transfer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call %s is being transferred to an agent", t.CallID)
	if t.CallerRef != "" {
		fmt.Fprintf(&b, "\nCaller: %s", t.CallerRef)
	}
	if t.Intent != "" {
		fmt.Fprintf(&b, "\nIntent: %s", t.Intent)
	}
	if t.LastUtterance != "" {
		fmt.Fprintf(&b, "\nLast said: %q", t.LastUtterance)
	}
	if t.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", t.Reason)
	}
	if !t.At.IsZero() {
		fmt.Fprintf(&b, "\nAt: %s", t.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}
