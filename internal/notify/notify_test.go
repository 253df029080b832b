package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/ivrbridge/internal/config"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransfer() Transfer {
	return Transfer{
		CallID:        "CA1",
		CallerRef:     "+911234567890",
		Intent:        "speak_to_agent",
		LastUtterance: "agent please",
		Reason:        "caller asked for an agent",
		At:            time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFormat(t *testing.T) {
	text := Format(sampleTransfer())
	assert.Contains(t, text, "Call CA1 is being transferred to an agent")
	assert.Contains(t, text, "Caller: +911234567890")
	assert.Contains(t, text, `Last said: "agent please"`)
	assert.Contains(t, text, "At: 2026-03-01T09:00:00Z")

	bare := Format(Transfer{CallID: "CA2"})
	assert.Equal(t, "Call CA2 is being transferred to an agent", bare)
}

func TestNullNotifier(t *testing.T) {
	n := NewNullNotifier("")
	assert.Equal(t, "null", n.Name())
	assert.NoError(t, n.Notify(context.Background(), sampleTransfer()))
	assert.NoError(t, n.Health(context.Background()))
}

func TestSlackNotifier_PostsToChannel(t *testing.T) {
	var (
		mu   sync.Mutex
		form url.Values
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		form, _ = url.ParseQuery(string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer server.Close()

	n := NewSlackNotifier("xoxb-test", "C123", slack.OptionAPIURL(server.URL+"/"))
	require.NoError(t, n.Notify(context.Background(), sampleTransfer()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "C123", form.Get("channel"))
	assert.Contains(t, form.Get("text"), "Call CA1")
}

func TestSlackNotifier_ReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer server.Close()

	n := NewSlackNotifier("xoxb-test", "C404", slack.OptionAPIURL(server.URL+"/"))
	err := n.Notify(context.Background(), sampleTransfer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestTelegramNotifier_SendsMessage(t *testing.T) {
	var (
		mu   sync.Mutex
		sent url.Values
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ivr","username":"ivr_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			sent = r.PostForm
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	n := NewTelegramNotifier("test-token", 42, server.URL+"/bot%s/%s")
	require.NoError(t, n.Notify(context.Background(), sampleTransfer()))
	require.NoError(t, n.Health(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", sent.Get("chat_id"))
	assert.Contains(t, sent.Get("text"), "Call CA1")
}

type recordingNotifier struct {
	name  string
	err   error
	calls int
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, t Transfer) error {
	r.calls++
	return r.err
}

func (r *recordingNotifier) Health(ctx context.Context) error { return r.err }

func TestManager_FansOutAndCollectsErrors(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	broken := &recordingNotifier{name: "broken", err: errors.New("boom")}
	m := NewManagerWith(broken, ok)

	err := m.Notify(context.Background(), sampleTransfer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, broken.calls)

	assert.Error(t, m.Health(context.Background()))
}

func TestManager_DedupesByName(t *testing.T) {
	first := &recordingNotifier{name: "slack"}
	second := &recordingNotifier{name: "slack"}
	m := NewManagerWith(first, nil, second)

	assert.Equal(t, []string{"slack"}, m.Names())
	require.NoError(t, m.Notify(context.Background(), sampleTransfer()))
	assert.Zero(t, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestNewManager_FromConfig(t *testing.T) {
	m, err := NewManager(config.NotifyConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"null"}, m.Names())

	_, err = NewManager(config.NotifyConfig{Slack: config.SlackConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewManager(config.NotifyConfig{Telegram: config.TelegramConfig{Enabled: true, BotToken: "t"}})
	assert.Error(t, err)

	m, err = NewManager(config.NotifyConfig{
		Slack:    config.SlackConfig{Enabled: true, BotToken: "xoxb", Channel: "C1"},
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"slack", "telegram"}, m.Names())
}
