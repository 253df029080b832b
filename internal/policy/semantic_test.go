package policy

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/harunnryd/ivrbridge/internal/config"
	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 256

// bagOfWords is a deterministic stand-in for a real embedding model.
func bagOfWords(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%testDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

type embedRouter struct{ fakeCompleter }

func (e *embedRouter) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	return bagOfWords(ctx, text)
}

func newSemantic(t *testing.T) *SemanticPolicy {
	t.Helper()
	p, err := NewSemanticPolicy(context.Background(), bagOfWords, 0.8)
	require.NoError(t, err)
	return p
}

func TestSemanticPolicy_MatchesParaphrase(t *testing.T) {
	p := newSemantic(t)
	res, err := p.Process(context.Background(), "CA1", "connect me to customer care", freshSession())
	require.NoError(t, err)
	assert.Equal(t, IntentSpeakToAgent, res.Intent)
	assert.Equal(t, ActionTransferAgent, res.Action)
	assert.InDelta(t, 1.0, res.Confidence, 1e-3)
}

func TestSemanticPolicy_KeywordsKeepPrecedence(t *testing.T) {
	p := newSemantic(t)
	res, err := p.Process(context.Background(), "CA1", "I want to book a flight", freshSession())
	require.NoError(t, err)
	assert.Equal(t, IntentBookFlight, res.Intent)
	assert.Equal(t, KeywordConfidence, res.Confidence)
}

func TestSemanticPolicy_SlotFillingStillWorks(t *testing.T) {
	p := newSemantic(t)
	res, err := p.Process(context.Background(), "CA1", "Delhi", bookingSession(map[string]string{session.FieldOrigin: "Mumbai"}))
	require.NoError(t, err)
	assert.Equal(t, ActionCollectDate, res.Action)
}

func TestSemanticPolicy_BelowThresholdFallsBack(t *testing.T) {
	p := newSemantic(t)
	res, err := p.Process(context.Background(), "CA1", "asdkjalksd", freshSession())
	require.NoError(t, err)
	assert.Equal(t, IntentUnknown, res.Intent)
	assert.Equal(t, ActionNone, res.Action)
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, config.PolicyConfig{Backend: "keyword"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "keyword", p.Name())

	_, err = New(ctx, config.PolicyConfig{Backend: "llm"}, nil)
	assert.Error(t, err)

	p, err = New(ctx, config.PolicyConfig{Backend: "llm", RequestTimeout: "5s"}, &embedRouter{})
	require.NoError(t, err)
	assert.Equal(t, "llm", p.Name())

	p, err = New(ctx, config.PolicyConfig{Backend: "semantic"}, &embedRouter{})
	require.NoError(t, err)
	assert.Equal(t, "semantic", p.Name())

	_, err = New(ctx, config.PolicyConfig{Backend: "dialogflow"}, nil)
	assert.Error(t, err)
}
