package components

import (
	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/daemon"
)

// Set is the full component graph of a running bridge.
type Set struct {
	Archive      *ArchiveComponent
	Sessions     *SessionStoreComponent
	Notifier     *NotifierComponent
	Policy       *PolicyComponent
	Idempotency  *IdempotencyComponent
	Conversation *ConversationComponent
	Sweeper      *SweeperComponent
	HTTP         *HTTPServerComponent
}

// Register builds every component for cfg and adds it to d. The sweeper is
// only registered when enabled.
func Register(d *daemon.Daemon, cfg *config.Config) *Set {
	set := &Set{}
	set.Archive = NewArchiveComponent(&cfg.Archive)
	set.Sessions = NewSessionStoreComponent(&cfg.Session, set.Archive)
	set.Notifier = NewNotifierComponent(&cfg.Notify)
	set.Policy = NewPolicyComponent(cfg)
	set.Idempotency = NewIdempotencyComponent(&cfg.Gateway)
	set.Conversation = NewConversationComponent(&cfg.Transactions, set.Sessions, set.Policy, set.Notifier)
	set.HTTP = NewHTTPServerComponent(d, cfg, set.Conversation, set.Idempotency)

	d.AddComponent(set.Archive)
	d.AddComponent(set.Sessions)
	d.AddComponent(set.Notifier)
	d.AddComponent(set.Policy)
	d.AddComponent(set.Idempotency)
	d.AddComponent(set.Conversation)
	if cfg.Sweeper.Enabled {
		set.Sweeper = NewSweeperComponent(&cfg.Sweeper, set.Sessions, set.Idempotency)
		d.AddComponent(set.Sweeper)
	}
	d.AddComponent(set.HTTP)
	return set
}
