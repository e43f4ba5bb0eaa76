package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/health"
	"modelgate/internal/provider"
	"modelgate/internal/util"
)

// ServerConfig server configuration
type ServerConfig struct {
	Port               string
	GinMode            string
	ClientAPIKeys      []string
	RegistryPath       string
	Upstreams          map[core.ProviderKind]provider.Upstream
	Backoff            health.BackoffPolicy
	DefaultMaxRetries  int
	HTTPClientSettings HTTPClientSettings
	Storage            core.StorageInterface
	Logger             core.Logger
}

// HTTPClientSettings HTTP client configuration
type HTTPClientSettings struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	RequestTimeout      time.Duration
}

// DefaultHTTPClientSettings default HTTP client settings
func DefaultHTTPClientSettings() HTTPClientSettings {
	return HTTPClientSettings{
		MaxIdleConns:        core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: core.HTTPMaxIdleConnsPerHost,
		MaxConnsPerHost:     core.HTTPMaxConnsPerHost,
		IdleConnTimeout:     core.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: core.HTTPTLSHandshakeTimeout,
		RequestTimeout:      core.HTTPRequestTimeout,
	}
}

// LoadRegistryConfig loads the model registry file. Accepts either the full
// config object or a bare array of model ids (treated as OpenAI-compatible
// keyed models, registry order as priority).
func LoadRegistryConfig(path string) (core.RegistryConfig, error) {
	var config core.RegistryConfig

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from config, not user input
	if err != nil {
		return config, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := util.UnmarshalJSON(data, &config); err != nil || len(config.Models) == 0 {
		var modelIDs []string
		if idErr := util.UnmarshalJSON(data, &modelIDs); idErr != nil || len(modelIDs) == 0 {
			if err == nil {
				err = fmt.Errorf("no models defined")
			}
			return config, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		config.Models = make([]core.ModelDescriptor, 0, len(modelIDs))
		for _, id := range modelIDs {
			config.Models = append(config.Models, core.ModelDescriptor{
				ID:             id,
				Provider:       core.ProviderOpenAI,
				DisplayName:    id,
				RequiresAPIKey: true,
				Category:       "chat",
			})
		}
		config.Priority = nil
	}

	return config, nil
}

// LoadServerConfigFromEnv loads server config from environment variables
func LoadServerConfigFromEnv(logger core.Logger) (ServerConfig, error) {
	clientAPIKeys := util.ParseEnvList(os.Getenv("CLIENT_API_KEYS"))
	if len(clientAPIKeys) == 0 {
		logger.Warn("CLIENT_API_KEYS environment variable is empty")
	} else {
		logger.Info("Loaded %d client API keys", len(clientAPIKeys))
	}

	config := ServerConfig{
		Port:               util.GetEnvWithDefault("PORT", core.DefaultPort),
		GinMode:            util.GetEnvWithDefault("GIN_MODE", core.DefaultGinMode),
		ClientAPIKeys:      clientAPIKeys,
		RegistryPath:       util.GetEnvWithDefault("MODELS_REGISTRY_PATH", core.DefaultRegistryPath),
		Upstreams:          LoadUpstreamsFromEnv(),
		Backoff:            LoadBackoffFromEnv(logger),
		DefaultMaxRetries:  loadMaxRetries(logger),
		HTTPClientSettings: DefaultHTTPClientSettings(),
	}

	return config, nil
}

// LoadUpstreamsFromEnv builds the per-provider endpoint table. Hosted
// vendors default to their OpenAI-compatible endpoints; the local upstream
// defaults to an Ollama server on the same host.
func LoadUpstreamsFromEnv() map[core.ProviderKind]provider.Upstream {
	return map[core.ProviderKind]provider.Upstream{
		core.ProviderOpenAI: {
			BaseURL: util.GetEnvWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("OPENAI_API_KEY"),
		},
		core.ProviderAnthropic: {
			BaseURL: util.GetEnvWithDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		},
		core.ProviderGoogle: {
			BaseURL: util.GetEnvWithDefault("GOOGLE_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			APIKey:  os.Getenv("GOOGLE_API_KEY"),
		},
		core.ProviderGroq: {
			BaseURL: util.GetEnvWithDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:  os.Getenv("GROQ_API_KEY"),
		},
		core.ProviderLocal: {
			BaseURL: util.GetEnvWithDefault("LOCAL_BASE_URL", "http://localhost:11434"),
		},
	}
}

// LoadBackoffFromEnv reads the cooldown backoff policy, falling back to
// defaults on missing or invalid values.
func LoadBackoffFromEnv(logger core.Logger) health.BackoffPolicy {
	policy := health.DefaultBackoffPolicy()

	if v := os.Getenv("BACKOFF_BASE_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			policy.Base = time.Duration(secs) * time.Second
		} else {
			logger.Warn("Invalid BACKOFF_BASE_SECONDS value '%s', using default", v)
		}
	}
	if v := os.Getenv("BACKOFF_FACTOR"); v != "" {
		if factor, err := strconv.ParseFloat(v, 64); err == nil && factor >= 1 {
			policy.Factor = factor
		} else {
			logger.Warn("Invalid BACKOFF_FACTOR value '%s', using default", v)
		}
	}
	if v := os.Getenv("BACKOFF_MAX_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			policy.Max = time.Duration(secs) * time.Second
		} else {
			logger.Warn("Invalid BACKOFF_MAX_SECONDS value '%s', using default", v)
		}
	}

	if policy.Max < policy.Base {
		logger.Warn("Backoff ceiling %s below base %s, raising ceiling to base", policy.Max, policy.Base)
		policy.Max = policy.Base
	}

	return policy
}

func loadMaxRetries(logger core.Logger) int {
	v := os.Getenv("MAX_RETRIES")
	if v == "" {
		return core.DefaultMaxRetries
	}
	retries, err := strconv.Atoi(v)
	if err != nil || retries < 1 {
		logger.Warn("Invalid MAX_RETRIES value '%s', using default %d", v, core.DefaultMaxRetries)
		return core.DefaultMaxRetries
	}
	return retries
}
