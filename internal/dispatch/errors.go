package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// Caller-input errors, distinct from exhaustion. These must never map
// to a 5xx.
var (
	ErrInvalidMaxRetries = errors.New("max retries must be at least 1")
	ErrNoCandidates      = errors.New("no dispatchable model candidates")
)

// Attempt records one failed candidate with its cause.
type Attempt struct {
	ModelID string `json:"model_id"`
	Cause   string `json:"cause"`
}

// ExhaustedError is the terminal failure: every attempted candidate failed.
// It carries the per-candidate causes for logging and the admin surface.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	ids := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		ids = append(ids, a.ModelID)
	}
	return fmt.Sprintf("all models exhausted after %d attempts (%s)", len(e.Attempts), strings.Join(ids, ", "))
}

// AttemptedModels returns the attempted model ids in order.
func (e *ExhaustedError) AttemptedModels() []string {
	ids := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		ids = append(ids, a.ModelID)
	}
	return ids
}
