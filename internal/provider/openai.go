package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"modelgate/internal/core"
	"modelgate/internal/util"
)

// HTTPDoer is the subset of http.Client the adapters use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAICompatProvider speaks the OpenAI chat completions wire format. It
// covers every hosted vendor that exposes an OpenAI-compatible endpoint;
// only the base URL and key differ per vendor.
type OpenAICompatProvider struct {
	kind       core.ProviderKind
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
	logger     core.Logger
}

// NewOpenAICompatProvider creates an adapter for one upstream endpoint.
func NewOpenAICompatProvider(kind core.ProviderKind, upstream Upstream, httpClient HTTPDoer, logger core.Logger) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		kind:       kind,
		baseURL:    strings.TrimSuffix(upstream.BaseURL, "/"),
		apiKey:     upstream.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Kind returns the provider kind this adapter serves.
func (p *OpenAICompatProvider) Kind() core.ProviderKind {
	return p.kind
}

type chatCompletionPayload struct {
	Model    string             `json:"model"`
	Messages []core.ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs one chat completion call against the upstream.
func (p *OpenAICompatProvider) Generate(ctx context.Context, model core.ModelDescriptor, messages []core.ChatMessage, systemPrompt string) (string, error) {
	payload := chatCompletionPayload{
		Model:    model.ID,
		Messages: buildMessageList(messages, systemPrompt),
	}

	payloadBytes, err := util.MarshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	if p.apiKey != "" {
		req.Header.Set(core.HeaderAuthorization, core.AuthBearerPrefix+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, core.MaxResponseBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}

	p.logger.Debug("%s upstream status %d for model %s", p.kind, resp.StatusCode, model.ID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, util.TruncateString(string(body), 200, 0, "..."))
	}

	var parsed chatCompletionResponse
	if err := util.UnmarshalJSON(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed upstream response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("upstream error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("upstream response contains no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// buildMessageList prepends the resolved system prompt unless the caller
// already supplied a system turn.
func buildMessageList(messages []core.ChatMessage, systemPrompt string) []core.ChatMessage {
	if systemPrompt == "" || hasSystemMessage(messages) {
		return messages
	}

	out := make([]core.ChatMessage, 0, len(messages)+1)
	out = append(out, core.ChatMessage{Role: core.RoleSystem, Content: systemPrompt})
	out = append(out, messages...)
	return out
}

func hasSystemMessage(messages []core.ChatMessage) bool {
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			return true
		}
	}
	return false
}
