package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/ivrbridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSimulation(t *testing.T, script ...string) string {
	t.Helper()
	cfg := &config.Config{Policy: config.PolicyConfig{Backend: "keyword"}}
	driver, err := newSimulationDriver(context.Background(), cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(script, "\n") + "\n")
	require.NoError(t, newSimulator(driver, "+911234567890", in, &out).Run(context.Background()))
	return out.String()
}

func TestSimulator_KeywordTurns(t *testing.T) {
	out := runSimulation(t,
		"I want to book a flight",
		"domestic",
		"/exit",
		"never read",
	)

	assert.Contains(t, out, "policy: keyword")
	assert.Contains(t, out, "intent=book_flight")
	assert.Contains(t, out, "Where would you like to fly from?")
	assert.NotContains(t, out, "never read")
}

func TestSimulator_AgentTransferEndsCall(t *testing.T) {
	out := runSimulation(t,
		"let me talk to an agent",
		"hello?",
		"/new +919999999999",
		"check status",
	)

	assert.Contains(t, out, "ended: transferred")
	assert.Contains(t, out, "no active call")
	assert.Contains(t, out, "from +919999999999")
	assert.Contains(t, out, "intent=check_status")
}

func TestSimulator_Commands(t *testing.T) {
	out := runSimulation(t,
		"/help",
		"/tx status_check flight_id=AI1",
		"/tx status_check flight_id=ZZ999",
		"/tx nonsense",
		"/tx status_check oops",
		"/session",
		"/dtmf",
		"/bogus",
		"/hangup no-answer",
		"/hangup",
	)

	assert.Contains(t, out, "/confirm")
	assert.Contains(t, out, "tx[ok]> Flight AI1 from Mumbai to Delhi is On Time")
	assert.Contains(t, out, "tx[failed]> Flight not found")
	assert.Contains(t, out, "error:")
	assert.Contains(t, out, `ignoring "oops"`)
	assert.Contains(t, out, `"call_id": "SIM`)
	assert.Contains(t, out, "usage: /dtmf")
	assert.Contains(t, out, "Unknown command: /bogus")
	assert.Contains(t, out, "ended: no-answer")
	assert.Contains(t, out, "[no call ended]")
}
