package dispatch

import (
	"context"

	"modelgate/internal/core"
	"modelgate/internal/health"
	"modelgate/internal/prompt"
	"modelgate/internal/provider"
	"modelgate/internal/registry"
)

// Dispatcher routes a generation request across the registry's models:
// the requested model first, then fallback candidates, recording health
// state per attempt. Candidate attempts are strictly sequential; the
// ordering exists to prefer higher-priority models, so parallel attempts
// would defeat it.
type Dispatcher struct {
	registry  *registry.Registry
	health    *health.Tracker
	providers provider.Resolver
	prompts   *prompt.Renderer
	metrics   core.MetricsCollector
	logger    core.Logger
}

// Config configures a Dispatcher.
type Config struct {
	Registry  *registry.Registry
	Health    *health.Tracker
	Providers provider.Resolver
	Prompts   *prompt.Renderer
	Metrics   core.MetricsCollector
	Logger    core.Logger
}

// New creates a dispatcher.
func New(config Config) *Dispatcher {
	metrics := config.Metrics
	if metrics == nil {
		metrics = &core.NopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Dispatcher{
		registry:  config.Registry,
		health:    config.Health,
		providers: config.Providers,
		prompts:   config.Prompts,
		metrics:   metrics,
		logger:    logger,
	}
}

// GenerateWithFallback attempts generation against the requested model and
// falls back across the candidate list until one succeeds or all are
// exhausted. MaxRetries bounds total attempts, so 1 disables fallback.
func (d *Dispatcher) GenerateWithFallback(ctx context.Context, req core.GenerationRequest) (core.GenerationResult, error) {
	var result core.GenerationResult

	maxRetries := req.MaxRetries
	if maxRetries < 1 {
		return result, ErrInvalidMaxRetries
	}

	candidates := d.buildCandidates(req.Model, maxRetries)
	if len(candidates) == 0 {
		return result, ErrNoCandidates
	}

	systemPrompt := req.SystemPrompt
	if d.prompts != nil {
		systemPrompt = d.prompts.Render(req.SystemPrompt, req.UserContext)
	}

	attempts := make([]Attempt, 0, len(candidates))
	for _, candidate := range candidates {
		text, err := d.attempt(ctx, candidate, req.Messages, systemPrompt)
		if err != nil {
			// Cancellation is not evidence the model is unhealthy; abandon
			// the dispatch without a failure record.
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			d.logger.Warn("Model %s attempt failed: %v", candidate.ID, err)
			d.health.RecordFailure(candidate.ID)
			attempts = append(attempts, Attempt{ModelID: candidate.ID, Cause: err.Error()})
			continue
		}

		d.health.RecordSuccess(candidate.ID)

		result.Message = text
		result.ModelID = candidate.ID
		if candidate.ID != req.Model {
			result.FallbackUsed = true
			result.OriginalModel = req.Model
			d.metrics.RecordFallback()
			d.logger.Info("Request for %s served by fallback %s", req.Model, candidate.ID)
		}
		return result, nil
	}

	d.metrics.RecordExhaustion()
	return result, &ExhaustedError{Attempts: attempts}
}

// buildCandidates returns the ordered attempt list: the requested model (if
// known and not cooling down) followed by available fallback candidates,
// truncated to maxRetries entries. An unknown requested id is treated the
// same as an unavailable one.
func (d *Dispatcher) buildCandidates(requestedID string, maxRetries int) []core.ModelDescriptor {
	candidates := make([]core.ModelDescriptor, 0, maxRetries)

	requested, known := d.registry.Lookup(requestedID)
	switch {
	case !known:
		d.logger.Warn("Requested model %s not in registry, dispatching to fallbacks", requestedID)
	case !d.health.Available(requestedID):
		d.logger.Warn("Requested model %s is cooling down, dispatching to fallbacks", requestedID)
	default:
		candidates = append(candidates, requested)
	}

	exclude := map[string]bool{requestedID: true}
	for _, m := range d.registry.FallbackCandidates(exclude) {
		if len(candidates) >= maxRetries {
			break
		}
		if !d.health.Available(m.ID) {
			continue
		}
		candidates = append(candidates, m)
	}

	return candidates
}

func (d *Dispatcher) attempt(ctx context.Context, model core.ModelDescriptor, messages []core.ChatMessage, systemPrompt string) (string, error) {
	p, err := d.providers.ForModel(model)
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, model, messages, systemPrompt)
}
