package model

import (
	"context"

	"github.com/harunnryd/ivrbridge/internal/model/contract"
)

// Provider is one NLU backend. Generate classifies caller utterances for the
// LLM policy; Embed feeds the semantic policy's exemplar index.
type Provider interface {
	Name() string
	Type() string
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Health(ctx context.Context) error
}
