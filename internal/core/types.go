package core

import "time"

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserContext carries optional caller identity used to personalize the
// resolved system prompt. All fields are free text.
type UserContext struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// GenerationRequest is one dispatch: an ordered message list resolved against
// the requested model and, on failure, the fallback candidates.
type GenerationRequest struct {
	Messages     []ChatMessage
	Model        string
	SystemPrompt string
	UserContext  *UserContext
	MaxRetries   int
}

// GenerationResult reports which model actually served the request.
// OriginalModel is set only when FallbackUsed is true.
type GenerationResult struct {
	Message       string `json:"message"`
	ModelID       string `json:"model_id"`
	FallbackUsed  bool   `json:"fallback_used"`
	OriginalModel string `json:"original_model,omitempty"`
}

// HealthSnapshot is a point-in-time view of one model's recorded failure
// state, safe to serialize for the admin surface.
type HealthSnapshot struct {
	ModelID             string     `json:"model_id"`
	Available           bool       `json:"available"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	CooledDownUntil     *time.Time `json:"cooled_down_until,omitempty"`
}

// RequestStats holds aggregated request statistics for monitoring.
type RequestStats struct {
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	FallbackRequests   int64           `json:"fallback_requests"`
	ExhaustedRequests  int64           `json:"exhausted_requests"`
	TotalResponseTime  int64           `json:"total_response_time"`
	LastRequestTime    time.Time       `json:"last_request_time"`
	RequestHistory     []RequestRecord `json:"request_history"`
}

// RequestRecord represents a single request's metadata for history tracking.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime int64     `json:"response_time"`
	Model        string    `json:"model"`
	ModelUsed    string    `json:"model_used"`
	Fallback     bool      `json:"fallback"`
}

// PeriodStats holds computed statistics for a time period.
type PeriodStats struct {
	Requests        int64   `json:"requests"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	QPS             float64 `json:"qps"`
}
