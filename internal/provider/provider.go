package provider

import (
	"context"
	"fmt"

	"modelgate/internal/core"
)

// Provider is implemented by each per-vendor adapter. Generate performs one
// blocking upstream call; the adapter's HTTP client enforces the timeout, and
// a timeout surfaces as an ordinary error.
type Provider interface {
	Kind() core.ProviderKind
	Generate(ctx context.Context, model core.ModelDescriptor, messages []core.ChatMessage, systemPrompt string) (string, error)
}

// Resolver maps a model descriptor to the adapter that can serve it.
type Resolver interface {
	ForModel(model core.ModelDescriptor) (Provider, error)
}

// Upstream is the per-vendor endpoint configuration.
type Upstream struct {
	BaseURL string
	APIKey  string
}

// Factory holds one adapter per configured provider kind.
type Factory struct {
	providers map[core.ProviderKind]Provider
}

// NewFactory builds adapters for every configured upstream.
func NewFactory(upstreams map[core.ProviderKind]Upstream, httpClient HTTPDoer, logger core.Logger) *Factory {
	if logger == nil {
		logger = &core.NopLogger{}
	}

	providers := make(map[core.ProviderKind]Provider, len(upstreams))
	for kind, upstream := range upstreams {
		if upstream.BaseURL == "" {
			continue
		}
		switch kind {
		case core.ProviderLocal:
			providers[kind] = NewLocalProvider(upstream.BaseURL, httpClient, logger)
		default:
			providers[kind] = NewOpenAICompatProvider(kind, upstream, httpClient, logger)
		}
	}

	return &Factory{providers: providers}
}

// ForModel resolves the adapter for a model, checking the API key
// requirement declared by the descriptor.
func (f *Factory) ForModel(model core.ModelDescriptor) (Provider, error) {
	p, ok := f.providers[model.Provider]
	if !ok {
		return nil, fmt.Errorf("no upstream configured for provider %q (model %s)", model.Provider, model.ID)
	}

	if model.RequiresAPIKey {
		if keyed, ok := p.(*OpenAICompatProvider); ok && keyed.apiKey == "" {
			return nil, fmt.Errorf("model %s requires an API key but provider %q has none configured", model.ID, model.Provider)
		}
	}

	return p, nil
}

// Kinds returns the configured provider kinds (for startup logging).
func (f *Factory) Kinds() []core.ProviderKind {
	kinds := make([]core.ProviderKind, 0, len(f.providers))
	for kind := range f.providers {
		kinds = append(kinds, kind)
	}
	return kinds
}
