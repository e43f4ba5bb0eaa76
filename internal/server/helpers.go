package server

import (
	"github.com/gin-gonic/gin"
)

// errorResponse is the common error envelope for client-facing failures.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message         string   `json:"message"`
	Type            string   `json:"type"`
	AttemptedModels []string `json:"attempted_models,omitempty"`
}

func respondError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, errorResponse{Error: errorDetail{Message: message, Type: errType}})
}

func respondExhausted(c *gin.Context, status int, message string, attempted []string) {
	c.JSON(status, errorResponse{Error: errorDetail{
		Message:         message,
		Type:            "model_exhausted",
		AttemptedModels: attempted,
	}})
}
