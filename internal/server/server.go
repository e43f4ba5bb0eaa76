package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"modelgate/internal/cache"
	"modelgate/internal/config"
	"modelgate/internal/core"
	"modelgate/internal/dispatch"
	"modelgate/internal/health"
	"modelgate/internal/metrics"
	"modelgate/internal/prompt"
	"modelgate/internal/provider"
	"modelgate/internal/registry"

	"github.com/gin-gonic/gin"
)

// Server application server
type Server struct {
	port    string
	ginMode string

	router     *gin.Engine
	httpClient *http.Client

	registry      *registry.Registry
	healthTracker *health.Tracker
	dispatcher    *dispatch.Dispatcher

	cache          *cache.CacheService
	metricsService *metrics.MetricsService

	validClientKeys   map[string]bool
	defaultMaxRetries int

	config config.ServerConfig

	rateLimiter *rateLimiter

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required in ServerConfig")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required in ServerConfig")
	}

	httpClient := createOptimizedHTTPClient(cfg.HTTPClientSettings)

	cacheService := cache.NewCacheService()

	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      cfg.Storage,
		Logger:       cfg.Logger,
	})

	if err := metricsService.LoadStats(); err != nil {
		cfg.Logger.Warn("Failed to load historical stats: %v", err)
	}

	registryConfig, err := config.LoadRegistryConfig(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}

	modelRegistry, err := registry.New(registryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}
	cfg.Logger.Info("Loaded %d models from %s", len(modelRegistry.List()), cfg.RegistryPath)

	healthTracker := health.NewTracker(health.TrackerConfig{
		Policy: cfg.Backoff,
		Logger: cfg.Logger,
	})

	providerFactory := provider.NewFactory(cfg.Upstreams, httpClient, cfg.Logger)
	cfg.Logger.Info("Configured upstream providers: %v", providerFactory.Kinds())

	dispatcher := dispatch.New(dispatch.Config{
		Registry:  modelRegistry,
		Health:    healthTracker,
		Providers: providerFactory,
		Prompts:   prompt.NewRenderer(cacheService, metricsService, cfg.Logger),
		Metrics:   metricsService,
		Logger:    cfg.Logger,
	})

	validClientKeys := make(map[string]bool)
	for _, key := range cfg.ClientAPIKeys {
		validClientKeys[key] = true
	}
	if len(validClientKeys) == 0 {
		cfg.Logger.Warn("No client API keys configured")
	}

	defaultMaxRetries := cfg.DefaultMaxRetries
	if defaultMaxRetries < 1 {
		defaultMaxRetries = core.DefaultMaxRetries
	}

	rateLimit := 120
	if envRate := os.Getenv("RATE_LIMIT"); envRate != "" {
		if parsed, parseErr := strconv.Atoi(envRate); parseErr == nil && parsed > 0 {
			rateLimit = parsed
		} else {
			cfg.Logger.Warn("Invalid RATE_LIMIT value '%s', using default %d", envRate, rateLimit)
		}
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	server := &Server{
		port:              cfg.Port,
		ginMode:           cfg.GinMode,
		router:            nil,
		httpClient:        httpClient,
		registry:          modelRegistry,
		healthTracker:     healthTracker,
		dispatcher:        dispatcher,
		cache:             cacheService,
		metricsService:    metricsService,
		validClientKeys:   validClientKeys,
		defaultMaxRetries: defaultMaxRetries,
		config:            cfg,
		rateLimiter:       newRateLimiter(rateLimit),
		shutdownCtx:       shutdownCtx,
		shutdownCancel:    shutdownCancel,
	}

	server.setupRoutes()

	return server, nil
}

func createOptimizedHTTPClient(settings config.HTTPClientSettings) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          settings.MaxIdleConns,
		MaxIdleConnsPerHost:   settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:       settings.MaxConnsPerHost,
		IdleConnTimeout:       settings.IdleConnTimeout,
		TLSHandshakeTimeout:   settings.TLSHandshakeTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
		DisableKeepAlives:     false,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: core.HTTPResponseHeaderTimeout,
		DisableCompression:    false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   settings.RequestTimeout,
	}
}

// Run runs the server
func (s *Server) Run() error {
	s.setupGracefulShutdown()

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute, // upstream fallback chains can take a while
	}

	go func() {
		<-s.shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.config.Logger.Error("Server shutdown error: %v", err)
		}
	}()

	s.config.Logger.Info("Server starting on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) setupGracefulShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		s.config.Logger.Info("Shutdown signal received, shutting down gracefully...")
		s.shutdownCancel()
	}()
}

// Close closes the server
func (s *Server) Close() error {
	if s.shutdownCancel != nil {
		s.shutdownCancel()
	}

	var closeErr error

	if s.metricsService != nil {
		if err := s.metricsService.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close metrics service: %w", err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close cache service: %w", err))
		}
	}

	return closeErr
}
