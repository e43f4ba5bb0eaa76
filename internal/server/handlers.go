package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/dispatch"
	"modelgate/internal/metrics"
	"modelgate/internal/util"

	"github.com/gin-gonic/gin"
)

type chatCompletionRequest struct {
	Messages     []core.ChatMessage `json:"messages"`
	Model        string             `json:"model"`
	SystemPrompt string             `json:"system_prompt,omitempty"`
	UserContext  *core.UserContext  `json:"user_context,omitempty"`
	MaxRetries   *int               `json:"max_retries,omitempty"`
}

type chatCompletionResponse struct {
	ID            string `json:"id"`
	Message       string `json:"message"`
	ModelID       string `json:"model_id"`
	FallbackUsed  bool   `json:"fallback_used"`
	OriginalModel string `json:"original_model,omitempty"`
}

// chatCompletions dispatches a generation request across the model pool.
func (s *Server) chatCompletions(c *gin.Context) {
	startTime := time.Now()

	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		respondError(c, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}
	for i, msg := range req.Messages {
		if msg.Role != core.RoleSystem && msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			respondError(c, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("messages[%d] has unsupported role %q", i, util.TruncateString(msg.Role, 16, 0, "...")))
			return
		}
	}

	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	result, err := s.dispatcher.GenerateWithFallback(c.Request.Context(), core.GenerationRequest{
		Messages:     req.Messages,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		UserContext:  req.UserContext,
		MaxRetries:   maxRetries,
	})

	if err != nil {
		s.handleDispatchError(c, startTime, req.Model, err)
		return
	}

	metrics.RecordSuccessWithMetrics(s.metricsService, startTime, req.Model, result.ModelID, result.FallbackUsed)

	c.JSON(http.StatusOK, chatCompletionResponse{
		ID:            util.GenerateRandomID("gen-"),
		Message:       result.Message,
		ModelID:       result.ModelID,
		FallbackUsed:  result.FallbackUsed,
		OriginalModel: result.OriginalModel,
	})
}

func (s *Server) handleDispatchError(c *gin.Context, startTime time.Time, model string, err error) {
	// Client went away: nothing useful to write and nothing to count.
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}

	var exhausted *dispatch.ExhaustedError
	switch {
	case errors.Is(err, dispatch.ErrInvalidMaxRetries):
		respondError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	case errors.Is(err, dispatch.ErrNoCandidates):
		// An unknown model with nothing to fall back to is the caller's
		// mistake; a known model with the whole pool cooling down is ours.
		if _, known := s.registry.Lookup(model); !known {
			respondError(c, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("Unknown model %q and no fallback candidates are available", model))
			return
		}
		metrics.RecordFailureWithMetrics(s.metricsService, startTime, model)
		respondError(c, http.StatusServiceUnavailable, "no_models_available",
			"No models are currently available to serve this request")
	case errors.As(err, &exhausted):
		metrics.RecordFailureWithMetrics(s.metricsService, startTime, model)
		respondExhausted(c, http.StatusServiceUnavailable,
			"All candidate models failed: "+exhausted.Error(), exhausted.AttemptedModels())
	case errors.Is(err, context.DeadlineExceeded):
		metrics.RecordFailureWithMetrics(s.metricsService, startTime, model)
		respondError(c, http.StatusGatewayTimeout, "timeout_error", "Upstream generation timed out")
	default:
		metrics.RecordFailureWithMetrics(s.metricsService, startTime, model)
		respondError(c, http.StatusInternalServerError, "internal_error", "Generation failed: "+err.Error())
	}
}

// listModels returns the registry contents in OpenAI list format.
func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.ModelList())
}

// getModelStatus reports the health tracker's view of every registered model.
func (s *Server) getModelStatus(c *gin.Context) {
	snapshots := s.healthTracker.StatusAll(s.registry.IDs())
	available := 0
	for _, snap := range snapshots {
		if snap.Available {
			available++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"models":          snapshots,
		"total_models":    len(snapshots),
		"available_count": available,
	})
}

// resetModelStatus clears all recorded failure state, restoring every model
// to available.
func (s *Server) resetModelStatus(c *gin.Context) {
	s.healthTracker.ClearAll()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "All model health state cleared",
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"models": len(s.registry.List()),
	})
}

func (s *Server) getStatsData(c *gin.Context) {
	stats := s.metricsService.GetRequestStats()
	periodStats := metrics.GetPeriodStats(stats.RequestHistory, 24, 168, 720)

	c.JSON(http.StatusOK, gin.H{
		"total_requests":      stats.TotalRequests,
		"successful_requests": stats.SuccessfulRequests,
		"failed_requests":     stats.FailedRequests,
		"fallback_requests":   stats.FallbackRequests,
		"exhausted_requests":  stats.ExhaustedRequests,
		"qps":                 s.metricsService.GetQPS(),
		"last_24h":            periodStats[24],
		"last_7d":             periodStats[168],
		"last_30d":            periodStats[720],
	})
}
