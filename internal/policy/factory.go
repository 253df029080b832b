package policy

import (
	"context"
	"fmt"

	"github.com/harunnryd/ivrbridge/internal/config"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
)

// Router is what the model-backed policies need from the model layer.
type Router interface {
	Completer
	RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error)
}

const (
	BackendKeyword  = "keyword"
	BackendLLM      = "llm"
	BackendSemantic = "semantic"
)

// New builds the policy selected by cfg.Backend. router may be nil for the keyword backend.
func New(ctx context.Context, cfg config.PolicyConfig, router Router) (Policy, error) {
	switch cfg.Backend {
	case "", BackendKeyword:
		return NewKeywordPolicy(), nil

	case BackendLLM:
		if router == nil {
			return nil, ivrErrors.InvalidInput("llm policy requires a model router")
		}
		timeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultPolicyRequestTimeout)
		if err != nil {
			return nil, ivrErrors.InvalidInput(fmt.Sprintf("invalid policy.request_timeout: %v", err))
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultPolicyModel
		}
		return NewLLMPolicy(router, model, cfg.HistoryTurns, timeout), nil

	case BackendSemantic:
		if router == nil {
			return nil, ivrErrors.InvalidInput("semantic policy requires a model router")
		}
		model := cfg.Semantic.EmbeddingModel
		if model == "" {
			model = config.DefaultSemanticEmbeddingModel
		}
		threshold := cfg.Semantic.Threshold
		if threshold <= 0 {
			threshold = config.DefaultSemanticThreshold
		}
		return NewSemanticPolicy(ctx, EmbeddingFunc(router, model), threshold)

	default:
		return nil, ivrErrors.InvalidInput(fmt.Sprintf("unknown policy backend: %s", cfg.Backend))
	}
}
