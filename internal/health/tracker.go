package health

import (
	"math"
	"sync"
	"time"

	"modelgate/internal/core"
)

// BackoffPolicy computes the cooldown window after the n-th consecutive
// failure. The window is non-decreasing in n and capped at Max so a model is
// never blacked out indefinitely.
type BackoffPolicy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoffPolicy returns the tuned production policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:   core.DefaultBackoffBase,
		Factor: core.DefaultBackoffFactor,
		Max:    core.DefaultBackoffMax,
	}
}

// Cooldown returns the window applied after failure number n (n >= 1).
func (p BackoffPolicy) Cooldown(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	window := time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(n-1)))
	if window > p.Max || window <= 0 {
		return p.Max
	}
	return window
}

// modelState holds the mutable failure state for one model id. Each entry
// carries its own lock so unrelated models never serialize on each other.
type modelState struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastFailureAt       time.Time
	cooledDownUntil     time.Time
}

// Tracker maintains per-model failure state for the process lifetime.
// State is created lazily on first failure and never persisted.
type Tracker struct {
	states sync.Map // model id -> *modelState
	policy BackoffPolicy
	clock  core.Clock
	logger core.Logger
}

// TrackerConfig configures a Tracker. Zero-value fields get defaults.
type TrackerConfig struct {
	Policy BackoffPolicy
	Clock  core.Clock
	Logger core.Logger
}

// NewTracker creates a health tracker.
func NewTracker(config TrackerConfig) *Tracker {
	policy := config.Policy
	if policy.Base <= 0 {
		policy = DefaultBackoffPolicy()
	}

	clock := config.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	logger := config.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}

	return &Tracker{
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

func (t *Tracker) state(modelID string) *modelState {
	if s, ok := t.states.Load(modelID); ok {
		return s.(*modelState)
	}
	s, _ := t.states.LoadOrStore(modelID, &modelState{})
	return s.(*modelState)
}

// Available reports whether the model may be attempted now. A model with no
// recorded state is available; otherwise it is available iff its cooldown
// has expired.
func (t *Tracker) Available(modelID string) bool {
	s, ok := t.states.Load(modelID)
	if !ok {
		return true
	}

	state := s.(*modelState)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.cooledDownUntil.IsZero() || !t.clock.Now().Before(state.cooledDownUntil)
}

// RecordFailure increments the model's consecutive failure count and extends
// its cooldown per the backoff policy.
func (t *Tracker) RecordFailure(modelID string) {
	now := t.clock.Now()
	state := t.state(modelID)

	state.mu.Lock()
	state.consecutiveFailures++
	state.lastFailureAt = now
	window := t.policy.Cooldown(state.consecutiveFailures)
	state.cooledDownUntil = now.Add(window)
	failures := state.consecutiveFailures
	state.mu.Unlock()

	t.logger.Warn("Model %s failed (%d consecutive), cooling down for %s", modelID, failures, window)
}

// RecordSuccess resets the model to the healthy baseline.
func (t *Tracker) RecordSuccess(modelID string) {
	s, ok := t.states.Load(modelID)
	if !ok {
		return
	}

	state := s.(*modelState)
	state.mu.Lock()
	hadFailures := state.consecutiveFailures > 0
	state.consecutiveFailures = 0
	state.lastFailureAt = time.Time{}
	state.cooledDownUntil = time.Time{}
	state.mu.Unlock()

	if hadFailures {
		t.logger.Info("Model %s recovered, failure state cleared", modelID)
	}
}

// ClearAll resets every tracked model to the healthy baseline. Idempotent;
// exposed at the boundary as an operator action.
func (t *Tracker) ClearAll() {
	t.states.Range(func(key, _ any) bool {
		t.states.Delete(key)
		return true
	})
	t.logger.Info("All model failure state cleared")
}

// Status returns the current snapshot for one model id.
func (t *Tracker) Status(modelID string) core.HealthSnapshot {
	snapshot := core.HealthSnapshot{ModelID: modelID, Available: true}

	s, ok := t.states.Load(modelID)
	if !ok {
		return snapshot
	}

	state := s.(*modelState)
	state.mu.Lock()
	defer state.mu.Unlock()

	snapshot.ConsecutiveFailures = state.consecutiveFailures
	if !state.lastFailureAt.IsZero() {
		at := state.lastFailureAt
		snapshot.LastFailureAt = &at
	}
	if !state.cooledDownUntil.IsZero() {
		until := state.cooledDownUntil
		snapshot.CooledDownUntil = &until
		snapshot.Available = !t.clock.Now().Before(until)
	}
	return snapshot
}

// StatusAll returns snapshots for the given model ids in order.
func (t *Tracker) StatusAll(modelIDs []string) []core.HealthSnapshot {
	snapshots := make([]core.HealthSnapshot, 0, len(modelIDs))
	for _, id := range modelIDs {
		snapshots = append(snapshots, t.Status(id))
	}
	return snapshots
}
