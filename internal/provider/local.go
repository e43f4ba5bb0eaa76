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

// LocalProvider speaks the Ollama chat API for models served on the same
// host. No API key; the endpoint is trusted.
type LocalProvider struct {
	baseURL    string
	httpClient HTTPDoer
	logger     core.Logger
}

// NewLocalProvider creates an adapter for a local model server.
func NewLocalProvider(baseURL string, httpClient HTTPDoer, logger core.Logger) *LocalProvider {
	return &LocalProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Kind returns the provider kind this adapter serves.
func (p *LocalProvider) Kind() core.ProviderKind {
	return core.ProviderLocal
}

type localChatPayload struct {
	Model    string             `json:"model"`
	Messages []core.ChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
}

type localChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Generate performs one chat call against the local server.
func (p *LocalProvider) Generate(ctx context.Context, model core.ModelDescriptor, messages []core.ChatMessage, systemPrompt string) (string, error) {
	payload := localChatPayload{
		Model:    model.ID,
		Messages: buildMessageList(messages, systemPrompt),
		Stream:   false,
	}

	payloadBytes, err := util.MarshalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("local upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, core.MaxResponseBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read local response: %w", err)
	}

	p.logger.Debug("local upstream status %d for model %s", resp.StatusCode, model.ID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("local upstream returned status %d: %s", resp.StatusCode, util.TruncateString(string(body), 200, 0, "..."))
	}

	var parsed localChatResponse
	if err := util.UnmarshalJSON(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed local response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("local upstream error: %s", parsed.Error)
	}
	if parsed.Message.Content == "" {
		return "", fmt.Errorf("local response contains no message content")
	}

	return parsed.Message.Content, nil
}
