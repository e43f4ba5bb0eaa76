package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelgate/internal/core"
	"modelgate/internal/util"
)

var testModel = core.ModelDescriptor{
	ID:             "gpt-4o",
	Provider:       core.ProviderOpenAI,
	RequiresAPIKey: true,
}

func TestOpenAICompatGenerate(t *testing.T) {
	var gotAuth string
	var gotBody []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer ts.Close()

	p := NewOpenAICompatProvider(core.ProviderOpenAI, Upstream{BaseURL: ts.URL, APIKey: "sk-test"}, ts.Client(), &core.NopLogger{})

	text, err := p.Generate(context.Background(), testModel, []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}}, "You are helpful.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}

	var payload chatCompletionPayload
	if err := util.UnmarshalJSON(gotBody, &payload); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if payload.Model != "gpt-4o" {
		t.Errorf("payload model = %q", payload.Model)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Role != core.RoleSystem {
		t.Errorf("expected prepended system message, got %+v", payload.Messages)
	}
}

func TestOpenAICompatErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`},
		{"malformed", http.StatusOK, `{{{`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"error payload", http.StatusOK, `{"error":{"message":"quota exceeded"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			p := NewOpenAICompatProvider(core.ProviderOpenAI, Upstream{BaseURL: ts.URL}, ts.Client(), &core.NopLogger{})
			if _, err := p.Generate(context.Background(), testModel, []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}}, ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOpenAICompatKeepsCallerSystemMessage(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer ts.Close()

	p := NewOpenAICompatProvider(core.ProviderOpenAI, Upstream{BaseURL: ts.URL}, ts.Client(), &core.NopLogger{})
	messages := []core.ChatMessage{
		{Role: core.RoleSystem, Content: "caller system"},
		{Role: core.RoleUser, Content: "hi"},
	}
	if _, err := p.Generate(context.Background(), testModel, messages, "rendered prompt"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var payload chatCompletionPayload
	if err := util.UnmarshalJSON(gotBody, &payload); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Content != "caller system" {
		t.Errorf("caller system message replaced: %+v", payload.Messages)
	}
}

func TestLocalProviderGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"content":"local reply"}}`))
	}))
	defer ts.Close()

	p := NewLocalProvider(ts.URL, ts.Client(), &core.NopLogger{})
	model := core.ModelDescriptor{ID: "llama-local", Provider: core.ProviderLocal, IsLocal: true}

	text, err := p.Generate(context.Background(), model, []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}}, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "local reply" {
		t.Errorf("text = %q", text)
	}
}

func TestLocalProviderErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer ts.Close()

	p := NewLocalProvider(ts.URL, ts.Client(), &core.NopLogger{})
	model := core.ModelDescriptor{ID: "llama-local", Provider: core.ProviderLocal}
	if _, err := p.Generate(context.Background(), model, []core.ChatMessage{{Role: core.RoleUser, Content: "hi"}}, ""); err == nil {
		t.Error("expected error for upstream error payload")
	}
}

func TestFactoryForModel(t *testing.T) {
	upstreams := map[core.ProviderKind]Upstream{
		core.ProviderOpenAI: {BaseURL: "https://api.openai.example", APIKey: "sk-test"},
		core.ProviderGroq:   {BaseURL: "https://api.groq.example"},
		core.ProviderLocal:  {BaseURL: "http://localhost:11434"},
	}
	f := NewFactory(upstreams, &http.Client{}, &core.NopLogger{})

	if _, err := f.ForModel(core.ModelDescriptor{ID: "gpt-4o", Provider: core.ProviderOpenAI, RequiresAPIKey: true}); err != nil {
		t.Errorf("keyed provider: %v", err)
	}

	if _, err := f.ForModel(core.ModelDescriptor{ID: "llama-70b", Provider: core.ProviderGroq, RequiresAPIKey: true}); err == nil {
		t.Error("expected error for missing API key")
	}

	if _, err := f.ForModel(core.ModelDescriptor{ID: "llama-local", Provider: core.ProviderLocal}); err != nil {
		t.Errorf("local provider: %v", err)
	}

	if _, err := f.ForModel(core.ModelDescriptor{ID: "claude", Provider: core.ProviderAnthropic}); err == nil {
		t.Error("expected error for unconfigured provider")
	}
}

func TestFactorySkipsEmptyBaseURL(t *testing.T) {
	f := NewFactory(map[core.ProviderKind]Upstream{
		core.ProviderOpenAI: {BaseURL: ""},
	}, &http.Client{}, &core.NopLogger{})

	if len(f.Kinds()) != 0 {
		t.Errorf("expected no providers, got %v", f.Kinds())
	}
}
