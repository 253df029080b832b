package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/ivrbridge/internal/model/contract"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	content string
	err     error
	last    contract.CompletionRequest
}

func (f *fakeCompleter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &contract.CompletionResponse{Content: f.content}, nil
}

func TestLLMPolicy_ParsesReply(t *testing.T) {
	fc := &fakeCompleter{content: "```json\n{\"message\":\"Where to?\",\"intent\":\"book_flight\",\"action\":\"collect_destination\",\"confidence\":0.93,\"parameters\":{\"origin\":\"Pune\"}}\n```"}
	p := NewLLMPolicy(fc, "gpt-4o-mini", 2, time.Second)

	sess := bookingSession(nil)
	sess.Interactions = []session.Interaction{
		{Speaker: session.SpeakerUser, Message: "one"},
		{Speaker: session.SpeakerSystem, Message: "two"},
		{Speaker: session.SpeakerUser, Message: "three"},
	}

	res, err := p.Process(context.Background(), "CA1", "Pune", sess)
	require.NoError(t, err)
	assert.Equal(t, "Where to?", res.Message)
	assert.Equal(t, IntentBookFlight, res.Intent)
	assert.Equal(t, ActionCollectDestination, res.Action)
	assert.InDelta(t, 0.93, res.Confidence, 1e-9)
	origin, _ := res.Parameters.StringValue("origin")
	assert.Equal(t, "Pune", origin)

	require.Len(t, fc.last.Messages, 3)
	assert.Equal(t, "assistant", fc.last.Messages[0].Role)
	assert.Equal(t, "three", fc.last.Messages[1].Content)
	assert.Equal(t, "Pune", fc.last.Messages[2].Content)
	assert.True(t, fc.last.JSON)
	require.NotNil(t, fc.last.Temperature)
	assert.InDelta(t, 0.1, *fc.last.Temperature, 1e-6)
	assert.Contains(t, fc.last.System, "Current intent: book_flight")
}

func TestLLMPolicy_ProviderErrorDegrades(t *testing.T) {
	p := NewLLMPolicy(&fakeCompleter{err: errors.New("503 service unavailable")}, "m", 5, 0)
	res, err := p.Process(context.Background(), "CA1", "hello", freshSession())
	require.NoError(t, err)
	assert.Equal(t, ErrorResult(), res)
}

func TestLLMPolicy_MalformedReplyDegrades(t *testing.T) {
	for _, content := range []string{"not json", `{"intent":"book_flight"}`, `{"message":"x","parameters":{"a":[1]}}`} {
		p := NewLLMPolicy(&fakeCompleter{content: content}, "m", 5, 0)
		res, err := p.Process(context.Background(), "CA1", "hello", freshSession())
		require.NoError(t, err)
		assert.Equal(t, IntentError, res.Intent, content)
		assert.Equal(t, MessageError, res.Message)
	}
}

func TestParseModelReply_Defaults(t *testing.T) {
	res, err := ParseModelReply(`{"message":"Sorry?","confidence":7}`)
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, res.Intent)
	assert.Equal(t, ActionNone, res.Action)
	assert.Equal(t, 1.0, res.Confidence)
}
