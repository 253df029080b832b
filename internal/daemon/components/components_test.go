package components

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/ivrbridge/internal/archive"
	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreComponent_DefaultsKeepEveryTurn(t *testing.T) {
	sessComp := NewSessionStoreComponent(&config.SessionConfig{}, nil)
	require.NoError(t, sessComp.Init(context.Background()))

	store := sessComp.Store()
	store.Create("CA1", "+1")
	for i := 0; i < 60; i++ {
		require.True(t, store.AddInteraction("CA1", session.SpeakerUser, fmt.Sprintf("turn-%d", i), session.InputSpeech))
	}

	sess, ok := store.Get("CA1")
	require.True(t, ok)
	require.Len(t, sess.Interactions, 60)
	assert.Equal(t, "turn-0", sess.Interactions[0].Message)
}

func TestSessionStoreComponent_ArchivesOnStop(t *testing.T) {
	dir := t.TempDir()
	archComp := NewArchiveComponent(&config.ArchiveConfig{Enabled: true, Path: dir, LockTimeout: "200ms", LockRetry: "10ms", LockMaxRetry: 20})
	sessComp := NewSessionStoreComponent(&config.SessionConfig{Timeout: "5m"}, archComp)
	assert.Equal(t, []string{"Archive"}, sessComp.Dependencies())

	ctx := context.Background()
	require.NoError(t, archComp.Init(ctx))
	require.NoError(t, sessComp.Init(ctx))
	require.NoError(t, archComp.Start(ctx))
	require.NoError(t, sessComp.Start(ctx))

	sessComp.Store().Create("CA1", "+1")
	assert.Equal(t, 5*time.Minute, sessComp.Store().Timeout())

	require.NoError(t, sessComp.Stop(ctx))
	require.NoError(t, archComp.Stop(ctx))

	idx, err := archive.ReadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Total)
	assert.Equal(t, 1, idx.ByStatus[session.StatusFailed])
}

func TestArchiveComponent_Disabled(t *testing.T) {
	comp := NewArchiveComponent(&config.ArchiveConfig{})
	ctx := context.Background()
	require.NoError(t, comp.Init(ctx))
	require.NoError(t, comp.Start(ctx))
	assert.Nil(t, comp.Archive())

	health, err := comp.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	require.NoError(t, comp.Stop(ctx))
}

func TestSessionStoreComponent_BadTimeout(t *testing.T) {
	comp := NewSessionStoreComponent(&config.SessionConfig{Timeout: "later"}, nil)
	assert.Empty(t, comp.Dependencies())
	assert.Error(t, comp.Init(context.Background()))
}

func TestPolicyComponent_Keyword(t *testing.T) {
	comp := NewPolicyComponent(&config.Config{Policy: config.PolicyConfig{Backend: "keyword"}})
	ctx := context.Background()
	require.NoError(t, comp.Init(ctx))
	assert.Equal(t, "keyword", comp.Policy().Name())

	health, err := comp.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func TestPolicyComponent_UnknownBackend(t *testing.T) {
	comp := NewPolicyComponent(&config.Config{Policy: config.PolicyConfig{Backend: "oracle"}})
	assert.Error(t, comp.Init(context.Background()))
}

func TestConversationComponent_LoadsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flights:\n  ZZ9:\n    origin: Pune\n    destination: Goa\n    status: Delayed\n"), 0o644))

	ctx := context.Background()
	sessComp := NewSessionStoreComponent(&config.SessionConfig{}, nil)
	policyComp := NewPolicyComponent(&config.Config{})
	notifierComp := NewNotifierComponent(&config.NotifyConfig{})
	require.NoError(t, sessComp.Init(ctx))
	require.NoError(t, policyComp.Init(ctx))
	require.NoError(t, notifierComp.Init(ctx))

	comp := NewConversationComponent(&config.TransactionsConfig{
		FlightRegistryPath: path,
		Cancellation:       config.CancellationConfig{Mode: "ledger"},
	}, sessComp, policyComp, notifierComp)
	require.NoError(t, comp.Init(ctx))
	require.NotNil(t, comp.Driver())

	comp.Driver().Start(ctx, "CA1", "+1")
	res, err := comp.Driver().Transact(ctx, "CA1", "status_check", session.Values{"flight_id": session.String("ZZ9")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "Delayed")
}

func TestConversationComponent_BadCancellationMode(t *testing.T) {
	ctx := context.Background()
	sessComp := NewSessionStoreComponent(&config.SessionConfig{}, nil)
	policyComp := NewPolicyComponent(&config.Config{})
	require.NoError(t, sessComp.Init(ctx))
	require.NoError(t, policyComp.Init(ctx))

	comp := NewConversationComponent(&config.TransactionsConfig{Cancellation: config.CancellationConfig{Mode: "maybe"}}, sessComp, policyComp, nil)
	assert.Error(t, comp.Init(ctx))
}

func TestIdempotencyComponent_SavesOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	comp := NewIdempotencyComponent(&config.GatewayConfig{IdempotencyPath: path, IdempotencyTTL: "1m"})
	ctx := context.Background()
	require.NoError(t, comp.Init(ctx))
	assert.Equal(t, time.Minute, comp.TTL())

	comp.Store().CheckAndMark("tok", time.Minute)
	require.NoError(t, comp.Stop(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tok")
}

func TestSweeperComponent_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sessComp := NewSessionStoreComponent(&config.SessionConfig{}, nil)
	require.NoError(t, sessComp.Init(ctx))

	comp := NewSweeperComponent(&config.SweeperConfig{Enabled: true, Schedule: "@every 1m"}, sessComp, nil)
	assert.Equal(t, []string{"SessionStore"}, comp.Dependencies())
	require.NoError(t, comp.Init(ctx))

	health, err := comp.Health(ctx)
	require.NoError(t, err)
	assert.False(t, health.Healthy)

	require.NoError(t, comp.Start(ctx))
	health, err = comp.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	require.NoError(t, comp.Stop(ctx))
}
