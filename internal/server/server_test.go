package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"modelgate/internal/cache"
	"modelgate/internal/config"
	"modelgate/internal/core"
	"modelgate/internal/dispatch"
	"modelgate/internal/health"
	"modelgate/internal/metrics"
	"modelgate/internal/prompt"
	"modelgate/internal/provider"
	"modelgate/internal/registry"
	"modelgate/internal/util"

	"github.com/gin-gonic/gin"
)

type memStorage struct {
	saved *core.RequestStats
}

func (m *memStorage) SaveStats(stats *core.RequestStats) error { m.saved = stats; return nil }
func (m *memStorage) LoadStats() (*core.RequestStats, error)   { return nil, nil }
func (m *memStorage) Close() error                             { return nil }

// stubProvider serves every model kind, failing the ids listed in fail.
type stubProvider struct {
	fail  map[string]error
	calls []string
}

func (p *stubProvider) Kind() core.ProviderKind { return core.ProviderOpenAI }

func (p *stubProvider) Generate(_ context.Context, model core.ModelDescriptor, _ []core.ChatMessage, _ string) (string, error) {
	p.calls = append(p.calls, model.ID)
	if err, ok := p.fail[model.ID]; ok {
		return "", err
	}
	return "reply from " + model.ID, nil
}

type stubResolver struct {
	provider *stubProvider
}

func (r *stubResolver) ForModel(core.ModelDescriptor) (provider.Provider, error) {
	return r.provider, nil
}

func testRegistryConfig() core.RegistryConfig {
	return core.RegistryConfig{
		Models: []core.ModelDescriptor{
			{ID: "alpha", Provider: core.ProviderOpenAI, DisplayName: "Alpha", RequiresAPIKey: true},
			{ID: "beta", Provider: core.ProviderAnthropic, DisplayName: "Beta", RequiresAPIKey: true},
			{ID: "gamma", Provider: core.ProviderLocal, DisplayName: "Gamma", IsLocal: true},
		},
		Priority: []string{"beta", "gamma"},
	}
}

func newTestServer(t *testing.T, stub *stubProvider) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := &core.NopLogger{}
	cacheService := cache.NewCacheService()
	t.Cleanup(func() { _ = cacheService.Close() })

	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      &memStorage{},
		Logger:       logger,
	})
	t.Cleanup(func() { _ = metricsService.Close() })

	modelRegistry, err := registry.New(testRegistryConfig())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	healthTracker := health.NewTracker(health.TrackerConfig{Logger: logger})

	dispatcher := dispatch.New(dispatch.Config{
		Registry:  modelRegistry,
		Health:    healthTracker,
		Providers: &stubResolver{provider: stub},
		Prompts:   prompt.NewRenderer(cacheService, metricsService, logger),
		Metrics:   metricsService,
		Logger:    logger,
	})

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	t.Cleanup(shutdownCancel)

	s := &Server{
		port:              "0",
		ginMode:           gin.TestMode,
		registry:          modelRegistry,
		healthTracker:     healthTracker,
		dispatcher:        dispatcher,
		cache:             cacheService,
		metricsService:    metricsService,
		validClientKeys:   map[string]bool{"test-key": true},
		defaultMaxRetries: core.DefaultMaxRetries,
		config:            config.ServerConfig{Logger: logger},
		rateLimiter:       newRateLimiter(1000),
		shutdownCtx:       shutdownCtx,
		shutdownCancel:    shutdownCancel,
	}
	s.setupRoutes()
	return s
}

func doJSON(s *Server, method, path, key string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		data, _ := util.MarshalJSON(body)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	if key != "" {
		req.Header.Set(core.HeaderAuthorization, core.AuthBearerPrefix+key)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := util.UnmarshalJSON(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
}

func TestHealthCheckNoAuth(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	w := doJSON(s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	w := doJSON(s, http.MethodGet, "/v1/models", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", w.Code)
	}

	w = doJSON(s, http.MethodGet, "/v1/models", "wrong-key", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("bad key: expected 403, got %d", w.Code)
	}

	w = doJSON(s, http.MethodGet, "/v1/models", "test-key", nil)
	if w.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", w.Code)
	}
}

func TestListModels(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	w := doJSON(s, http.MethodGet, "/v1/models", "test-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list core.ModelList
	decodeBody(t, w, &list)
	if list.Object != core.ListObjectType {
		t.Errorf("expected object %q, got %q", core.ListObjectType, list.Object)
	}
	if len(list.Data) != 3 {
		t.Errorf("expected 3 models, got %d", len(list.Data))
	}
}

func TestChatCompletionsSuccess(t *testing.T) {
	stub := &stubProvider{}
	s := newTestServer(t, stub)

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", w.Code, w.Body.String())
	}

	var resp chatCompletionResponse
	decodeBody(t, w, &resp)
	if resp.ModelID != "alpha" {
		t.Errorf("expected model_id alpha, got %s", resp.ModelID)
	}
	if resp.FallbackUsed {
		t.Error("expected fallback_used false")
	}
	if resp.OriginalModel != "" {
		t.Errorf("original_model should be empty on direct success, got %s", resp.OriginalModel)
	}
	if resp.ID == "" || resp.Message == "" {
		t.Errorf("incomplete response: %+v", resp)
	}
}

func TestChatCompletionsFallback(t *testing.T) {
	stub := &stubProvider{fail: map[string]error{"alpha": errors.New("upstream 500")}}
	s := newTestServer(t, stub)

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", w.Code, w.Body.String())
	}

	var resp chatCompletionResponse
	decodeBody(t, w, &resp)
	if !resp.FallbackUsed {
		t.Error("expected fallback_used true")
	}
	if resp.ModelID != "beta" {
		t.Errorf("expected priority fallback beta, got %s", resp.ModelID)
	}
	if resp.OriginalModel != "alpha" {
		t.Errorf("expected original_model alpha, got %s", resp.OriginalModel)
	}
}

func TestChatCompletionsExhausted(t *testing.T) {
	stub := &stubProvider{fail: map[string]error{
		"alpha": errors.New("down"),
		"beta":  errors.New("down"),
		"gamma": errors.New("down"),
	}}
	s := newTestServer(t, stub)

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (body: %s)", w.Code, w.Body.String())
	}

	var resp errorResponse
	decodeBody(t, w, &resp)
	if resp.Error.Type != "model_exhausted" {
		t.Errorf("expected model_exhausted, got %s", resp.Error.Type)
	}
	if len(resp.Error.AttemptedModels) != 3 {
		t.Errorf("expected 3 attempted models, got %v", resp.Error.AttemptedModels)
	}
}

func TestChatCompletionsInvalidMaxRetries(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":       "alpha",
		"messages":    []map[string]string{{"role": "user", "content": "hi"}},
		"max_retries": 0,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestChatCompletionsMaxRetriesOneNoFallback(t *testing.T) {
	stub := &stubProvider{fail: map[string]error{"alpha": errors.New("down")}}
	s := newTestServer(t, stub)

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":       "alpha",
		"messages":    []map[string]string{{"role": "user", "content": "hi"}},
		"max_retries": 1,
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if len(stub.calls) != 1 {
		t.Errorf("expected exactly 1 attempt, got %v", stub.calls)
	}
}

func TestChatCompletionsEmptyMessages(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatCompletionsBadRole(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "robot", "content": "hi"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestNoCandidatesStatusCodes(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	for _, id := range s.registry.IDs() {
		s.healthTracker.RecordFailure(id)
	}

	// Known model, whole pool cooling down: service-side condition.
	w := doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("known model: expected 503, got %d", w.Code)
	}

	// Unknown model with nothing to fall back to: caller's mistake.
	w = doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "no-such-model",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown model: expected 400, got %d", w.Code)
	}
}

func TestModelStatusAndReset(t *testing.T) {
	stub := &stubProvider{fail: map[string]error{
		"alpha": errors.New("down"),
		"beta":  errors.New("down"),
		"gamma": errors.New("down"),
	}}
	s := newTestServer(t, stub)

	// Drive failures through the dispatcher so the tracker has state.
	doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	w := doJSON(s, http.MethodGet, "/api/status", "test-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status struct {
		Models         []core.HealthSnapshot `json:"models"`
		TotalModels    int                   `json:"total_models"`
		AvailableCount int                   `json:"available_count"`
	}
	decodeBody(t, w, &status)
	if status.TotalModels != 3 {
		t.Errorf("expected 3 models, got %d", status.TotalModels)
	}
	if status.AvailableCount != 0 {
		t.Errorf("expected 0 available after exhaustion, got %d", status.AvailableCount)
	}

	w = doJSON(s, http.MethodPost, "/api/status/reset", "test-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", w.Code)
	}

	w = doJSON(s, http.MethodGet, "/api/status", "test-key", nil)
	decodeBody(t, w, &status)
	if status.AvailableCount != 3 {
		t.Errorf("expected 3 available after reset, got %d", status.AvailableCount)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	doJSON(s, http.MethodPost, "/v1/chat/completions", "test-key", map[string]any{
		"model":    "alpha",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	w := doJSON(s, http.MethodGet, "/api/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats struct {
		TotalRequests      int64 `json:"total_requests"`
		SuccessfulRequests int64 `json:"successful_requests"`
	}
	decodeBody(t, w, &stats)
	if stats.TotalRequests != 1 || stats.SuccessfulRequests != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("missing Access-Control-Allow-Origin header")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Error("4th request within the window should be rejected")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("different IP should not share the counter")
	}
}
