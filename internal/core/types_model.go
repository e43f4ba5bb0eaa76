package core

// ProviderKind identifies the upstream vendor an adapter speaks to.
type ProviderKind string

// Known provider kinds.
const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGoogle    ProviderKind = "google"
	ProviderGroq      ProviderKind = "groq"
	ProviderLocal     ProviderKind = "local"
)

// ModelDescriptor is a static registry entry. Loaded once at startup,
// never mutated.
type ModelDescriptor struct {
	ID             string       `json:"id"`
	Provider       ProviderKind `json:"provider"`
	DisplayName    string       `json:"display_name"`
	RequiresAPIKey bool         `json:"requires_api_key"`
	IsLocal        bool         `json:"is_local"`
	Category       string       `json:"category"`
}

// RegistryConfig is the on-disk shape of the model registry file.
// Priority lists the model ids tried first when building fallback
// candidates; remaining models follow in registry order.
type RegistryConfig struct {
	Models   []ModelDescriptor `json:"models"`
	Priority []string          `json:"priority"`
}

// ModelInfo represents a single model entry in the models list response.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI-compatible model list response.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
