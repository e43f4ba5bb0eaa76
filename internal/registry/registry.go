package registry

import (
	"fmt"
	"time"

	"modelgate/internal/core"
)

// Registry is the static model catalog. Built once at startup from the
// registry config file; read-only afterwards, so lookups need no locking.
type Registry struct {
	models   []core.ModelDescriptor
	index    map[string]core.ModelDescriptor
	priority []string
}

// New builds a registry from config, validating id uniqueness and that every
// priority entry names a known model.
func New(config core.RegistryConfig) (*Registry, error) {
	if len(config.Models) == 0 {
		return nil, fmt.Errorf("registry config contains no models")
	}

	index := make(map[string]core.ModelDescriptor, len(config.Models))
	for _, m := range config.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("registry config contains a model with an empty id")
		}
		if _, exists := index[m.ID]; exists {
			return nil, fmt.Errorf("duplicate model id %q in registry config", m.ID)
		}
		if m.Provider == "" {
			return nil, fmt.Errorf("model %q has no provider", m.ID)
		}
		index[m.ID] = m
	}

	for _, id := range config.Priority {
		if _, exists := index[id]; !exists {
			return nil, fmt.Errorf("priority list references unknown model id %q", id)
		}
	}

	return &Registry{
		models:   config.Models,
		index:    index,
		priority: config.Priority,
	}, nil
}

// Lookup finds a model by id.
func (r *Registry) Lookup(modelID string) (core.ModelDescriptor, bool) {
	m, ok := r.index[modelID]
	return m, ok
}

// List returns all models in registry order.
func (r *Registry) List() []core.ModelDescriptor {
	models := make([]core.ModelDescriptor, len(r.models))
	copy(models, r.models)
	return models
}

// IDs returns all model ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.models))
	for _, m := range r.models {
		ids = append(ids, m.ID)
	}
	return ids
}

// FallbackCandidates returns models eligible as fallbacks, excluding the
// given ids. Ordering is the configured priority list first, then the
// remaining models in registry order. The tie-break is configuration,
// never computed.
func (r *Registry) FallbackCandidates(exclude map[string]bool) []core.ModelDescriptor {
	candidates := make([]core.ModelDescriptor, 0, len(r.models))
	seen := make(map[string]bool, len(r.models))

	for _, id := range r.priority {
		if exclude[id] || seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, r.index[id])
	}

	for _, m := range r.models {
		if exclude[m.ID] || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		candidates = append(candidates, m)
	}

	return candidates
}

// ModelList returns the OpenAI-compatible models response.
func (r *Registry) ModelList() core.ModelList {
	now := time.Now().Unix()
	list := core.ModelList{Object: core.ListObjectType}
	for _, m := range r.models {
		list.Data = append(list.Data, core.ModelInfo{
			ID:      m.ID,
			Object:  core.ModelObjectType,
			Created: now,
			OwnedBy: core.ModelOwner,
		})
	}
	return list
}
