package prompt

import (
	"strings"

	"modelgate/internal/cache"
	"modelgate/internal/core"
)

// DefaultSystemPrompt is used when the caller supplies no override.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// Renderer resolves the effective system prompt for a request: the caller's
// override (or the default) plus personalization derived from the user
// context. Rendered prompts are cached since the same caller identity
// repeats across turns.
type Renderer struct {
	cache   *cache.CacheService
	metrics core.MetricsCollector
	logger  core.Logger
}

// NewRenderer creates a prompt renderer.
func NewRenderer(cacheService *cache.CacheService, metrics core.MetricsCollector, logger core.Logger) *Renderer {
	if metrics == nil {
		metrics = &core.NopMetrics{}
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Renderer{
		cache:   cacheService,
		metrics: metrics,
		logger:  logger,
	}
}

// Render returns the resolved system prompt for an override and user context.
func (r *Renderer) Render(systemPrompt string, uc *core.UserContext) string {
	if r.cache == nil {
		return render(systemPrompt, uc)
	}

	key := cache.GeneratePromptCacheKey(systemPrompt, uc)
	if cached, found := r.cache.GetPrompt(key); found {
		r.metrics.RecordCacheHit()
		return cached
	}

	r.metrics.RecordCacheMiss()
	rendered := render(systemPrompt, uc)
	r.cache.SetPrompt(key, rendered, core.PromptCacheTTL)
	r.logger.Debug("Rendered system prompt cached (key: %s)", cache.TruncateCacheKey(key, 16))
	return rendered
}

func render(systemPrompt string, uc *core.UserContext) string {
	base := systemPrompt
	if base == "" {
		base = DefaultSystemPrompt
	}

	if uc == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base)

	if uc.Name != "" {
		b.WriteString("\n\nYou are assisting ")
		b.WriteString(uc.Name)
		if uc.Role != "" {
			b.WriteString(", ")
			b.WriteString(uc.Role)
		}
		if uc.Company != "" {
			b.WriteString(" at ")
			b.WriteString(uc.Company)
		}
		b.WriteString(".")
	} else if uc.Company != "" {
		b.WriteString("\n\nYou are assisting a member of ")
		b.WriteString(uc.Company)
		b.WriteString(".")
	}

	if uc.Tier != "" {
		b.WriteString("\nThe user is on the ")
		b.WriteString(uc.Tier)
		b.WriteString(" plan.")
	}

	return b.String()
}
