package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/conversation"
	"github.com/harunnryd/ivrbridge/internal/daemon"
	"github.com/harunnryd/ivrbridge/internal/transaction"
)

// ConversationComponent wires the turn driver from the session store, the
// policy, the transaction processors and the transfer notifier.
type ConversationComponent struct {
	cfg          *config.TransactionsConfig
	sessionComp  *SessionStoreComponent
	policyComp   *PolicyComponent
	notifierComp *NotifierComponent
	driver       *conversation.Driver
	initialized  bool
	mu           sync.RWMutex
}

func NewConversationComponent(cfg *config.TransactionsConfig, sessionComp *SessionStoreComponent, policyComp *PolicyComponent, notifierComp *NotifierComponent) *ConversationComponent {
	return &ConversationComponent{
		cfg:          cfg,
		sessionComp:  sessionComp,
		policyComp:   policyComp,
		notifierComp: notifierComp,
	}
}

func (c *ConversationComponent) Name() string {
	return "Conversation"
}

func (c *ConversationComponent) Dependencies() []string {
	return []string{"SessionStore", "Policy", "Notifier"}
}

func (c *ConversationComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionComp == nil || c.sessionComp.Store() == nil {
		return fmt.Errorf("session store not initialized")
	}
	if c.policyComp == nil || c.policyComp.Policy() == nil {
		return fmt.Errorf("policy not initialized")
	}

	txCfg := config.TransactionsConfig{}
	if c.cfg != nil {
		txCfg = *c.cfg
	}
	mode, err := transaction.ParseCancellationMode(txCfg.Cancellation.Mode)
	if err != nil {
		return fmt.Errorf("parse cancellation mode: %w", err)
	}
	opts := []transaction.Option{transaction.WithCancellationMode(mode)}
	if txCfg.FlightRegistryPath != "" {
		registry, err := transaction.LoadFlightRegistry(txCfg.FlightRegistryPath)
		if err != nil {
			return fmt.Errorf("load flight registry: %w", err)
		}
		opts = append(opts, transaction.WithRegistry(registry))
	}
	tx := transaction.New(opts...)

	var driverOpts []conversation.Option
	if c.notifierComp != nil && c.notifierComp.Manager() != nil {
		driverOpts = append(driverOpts, conversation.WithNotifier(c.notifierComp.Manager()))
	}
	c.driver = conversation.New(c.sessionComp.Store(), c.policyComp.Policy(), tx, driverOpts...)

	c.initialized = true
	slog.Info("Conversation initialized", "component", c.Name(), "flights", len(tx.Registry().IDs()), "cancellation_mode", mode)
	return nil
}

func (c *ConversationComponent) Start(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return fmt.Errorf("Conversation not initialized")
	}
	return nil
}

func (c *ConversationComponent) Stop(ctx context.Context) error {
	return nil
}

func (c *ConversationComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}

func (c *ConversationComponent) Driver() *conversation.Driver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driver
}
