package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/ivrbridge/internal/config"
	ivrErrors "github.com/harunnryd/ivrbridge/internal/errors"
	"github.com/harunnryd/ivrbridge/internal/logger"
	"github.com/harunnryd/ivrbridge/internal/model/contract"
	anthropicProvider "github.com/harunnryd/ivrbridge/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/ivrbridge/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/ivrbridge/internal/model/providers/openai"
)

// DefaultModelRouter picks a Provider by model name and retries on the
// configured fallback when the first one fails.
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewModelRouter creates a new model router
func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// Register adds or replaces a provider under its Name.
func (r *DefaultModelRouter) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Route routes a completion request to the appropriate provider
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	log := logger.From(ctx)
	log.Debug("Routing completion request", "model", model)

	provider, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	log.Error("Provider request failed", "model", model, "error", err)

	fallback := r.cfg.Fallback
	if fallback == "" || fallback == provider.Name() {
		return nil, ivrErrors.WrapWithCategory(err, "provider request failed", ivrErrors.ErrTransient)
	}

	r.mu.RLock()
	fallbackProvider, exists := r.providers[fallback]
	r.mu.RUnlock()
	if !exists {
		return nil, ivrErrors.NotFound(fmt.Sprintf("fallback model %s not found", fallback))
	}

	log.Info("Attempting fallback", "from", model, "to", fallback)
	req.Model = ""
	resp, err = fallbackProvider.Generate(ctx, req)
	if err != nil {
		return nil, ivrErrors.WrapWithCategory(err, "fallback request failed", ivrErrors.ErrTransient)
	}
	return resp, nil
}

// RouteEmbedding routes an embedding request to the appropriate provider
func (r *DefaultModelRouter) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	log := logger.From(ctx)

	var lastErr error
	for _, tryModel := range r.embeddingTryOrder(model) {
		select {
		case <-ctx.Done():
			return nil, ivrErrors.Wrap(ctx.Err(), "embedding request cancelled")
		default:
		}

		r.mu.RLock()
		provider, exists := r.providers[tryModel]
		r.mu.RUnlock()
		if !exists {
			continue
		}

		embeddings, err := provider.Embed(ctx, text)
		if err == nil {
			return embeddings, nil
		}

		if isEmbeddingUnsupported(err) {
			log.Debug("Embedding unsupported by provider, trying next model", "model", tryModel)
			continue
		}

		lastErr = err
		log.Warn("Embedding failed for model, trying next model", "model", tryModel, "error", err)
	}

	if lastErr != nil {
		return nil, ivrErrors.WrapWithCategory(lastErr, "embedding failed", ivrErrors.ErrTransient)
	}

	return nil, ivrErrors.NotFound("no embedding-capable model configured")
}

func (r *DefaultModelRouter) embeddingTryOrder(requestedModel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.providers)+1)
	order := make([]string, 0, len(r.providers)+1)

	appendUnique := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		order = append(order, name)
	}

	appendUnique(requestedModel)

	registered := make([]string, 0, len(r.providers))
	for name := range r.providers {
		registered = append(registered, name)
	}
	sort.Strings(registered)

	for _, name := range registered {
		appendUnique(name)
	}

	return order
}

func isEmbeddingUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "embedding not supported") ||
		strings.Contains(msg, "not support embeddings")
}

// ListModels returns all registered model names
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return ivrErrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return ivrErrors.Internal("no providers initialized")
	}

	return nil
}

func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, error) {
	select {
	case <-ctx.Done():
		return nil, ivrErrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, exists := r.providers[model]; exists {
		return provider, nil
	}

	slog.Warn("Model not found", "model", model)
	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallbackProvider, ok := r.providers[r.cfg.Fallback]; ok {
			return fallbackProvider, nil
		}
	}

	return nil, ivrErrors.NotFound(fmt.Sprintf("model %s not found", model))
}

func createProvider(entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, ivrErrors.InvalidInput("API key required for OpenAI provider")
		}

		return openaiProvider.New(entry.APIKey, baseURL, entry.Name), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, ivrErrors.InvalidInput("API key required for Anthropic provider")
		}

		return anthropicProvider.New(entry.APIKey, entry.Name), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, ivrErrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey, entry.Name)
		if err != nil {
			return nil, ivrErrors.WrapWithCategory(err, "failed to create Gemini provider", ivrErrors.ErrInternal)
		}

		return provider, nil

	default:
		return nil, ivrErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
