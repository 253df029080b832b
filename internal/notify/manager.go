package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/ivrbridge/internal/config"
)

// Manager fans a notice out to every configured notifier.
type Manager struct {
	notifiers []Notifier
}

// NewManager builds the notifiers enabled in cfg. With none enabled the
// manager holds a single NullNotifier.
func NewManager(cfg config.NotifyConfig) (*Manager, error) {
	var notifiers []Notifier

	if cfg.Slack.Enabled {
		if strings.TrimSpace(cfg.Slack.BotToken) == "" {
			return nil, fmt.Errorf("notify.slack.bot_token is required when slack notices are enabled")
		}
		if strings.TrimSpace(cfg.Slack.Channel) == "" {
			return nil, fmt.Errorf("notify.slack.channel is required when slack notices are enabled")
		}
		notifiers = append(notifiers, NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel))
	}

	if cfg.Telegram.Enabled {
		token := strings.TrimSpace(cfg.Telegram.BotToken)
		if token == "" {
			return nil, fmt.Errorf("notify.telegram.bot_token is required when telegram notices are enabled")
		}
		if cfg.Telegram.ChatID == 0 {
			return nil, fmt.Errorf("notify.telegram.chat_id is required when telegram notices are enabled")
		}
		notifiers = append(notifiers, NewTelegramNotifier(token, cfg.Telegram.ChatID, ""))
	}

	if len(notifiers) == 0 {
		notifiers = append(notifiers, NewNullNotifier(""))
	}
	return NewManagerWith(notifiers...), nil
}

// NewManagerWith wraps explicit notifiers. Later notifiers replace earlier ones with the same name.
func NewManagerWith(notifiers ...Notifier) *Manager {
	return &Manager{notifiers: dedupeNotifiers(notifiers)}
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Notify delivers t to every notifier. A failing notifier does not stop the others.
func (m *Manager) Notify(ctx context.Context, t Transfer) error {
	var errs []string
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, t); err != nil {
			slog.Warn("Transfer notice failed", "notifier", n.Name(), "call_id", t.CallID, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", n.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to send transfer notice: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Manager) Health(ctx context.Context) error {
	for _, n := range m.notifiers {
		if err := n.Health(ctx); err != nil {
			return fmt.Errorf("notifier %s unhealthy: %w", n.Name(), err)
		}
	}
	return nil
}

func dedupeNotifiers(notifiers []Notifier) []Notifier {
	if len(notifiers) == 0 {
		return nil
	}
	indexByName := make(map[string]int, len(notifiers))
	ordered := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		name := strings.TrimSpace(n.Name())
		if name == "" {
			continue
		}
		if idx, exists := indexByName[name]; exists {
			ordered[idx] = n
			continue
		}
		indexByName[name] = len(ordered)
		ordered = append(ordered, n)
	}
	return ordered
}
