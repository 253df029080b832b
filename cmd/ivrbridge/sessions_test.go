package main

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/gateway"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminFixture(t *testing.T) (*adminClient, *session.Store) {
	t.Helper()
	cfg := &config.Config{Policy: config.PolicyConfig{Backend: "keyword"}}
	driver, err := newSimulationDriver(context.Background(), cfg)
	require.NoError(t, err)

	gw, err := gateway.New(driver, config.GatewayConfig{BaseURL: "http://test"})
	require.NoError(t, err)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	return newAdminClient(srv.URL + "/"), driver.Store()
}

func TestAdminClient_ListShowEnd(t *testing.T) {
	client, store := newAdminFixture(t)
	ctx := context.Background()

	store.Create("CA1", "+911234567890")
	store.AddInteraction("CA1", session.SpeakerUser, "book a flight", session.InputSpeech)
	store.SetIntent("CA1", "book_flight")

	active, err := client.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active.Count)
	require.Len(t, active.Sessions, 1)
	assert.Equal(t, 1, active.Sessions[0].InteractionCount)

	table := formatSummaries(active.Sessions)
	assert.Contains(t, table, "CA1")
	assert.Contains(t, table, "book_flight")
	assert.Contains(t, table, "Total: 1 session(s)")

	sess, err := client.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "+911234567890", sess.CallerRef)
	assert.Contains(t, formatSession(sess), "book a flight")

	require.NoError(t, client.End(ctx, "CA1"))
	_, err = client.Get(ctx, "CA1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session not found")
}

func TestAdminClient_Unreachable(t *testing.T) {
	client := newAdminClient("http://127.0.0.1:1")
	_, err := client.Active(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestFormatSummaries_Empty(t *testing.T) {
	assert.Equal(t, "No active sessions.", formatSummaries(nil))
	assert.Equal(t, "abcd...", truncateString("abcdefghij", 7))
}
