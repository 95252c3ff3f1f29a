package market

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// ReputationTracker maintains each agent's decayed, event-sourced score.
// The score is always a projection of the event history: recomputing from
// the same events yields the same value. Recomputations for one agent are
// serialized so concurrent completions cannot lose an event.
type ReputationTracker struct {
	store  Store
	base   float64
	decay  float64
	window int
	locks  *keyedMutex
}

func NewReputationTracker(store Store, cfg Config) *ReputationTracker {
	return &ReputationTracker{
		store:  store,
		base:   cfg.ReputationBase,
		decay:  cfg.ReputationDecay,
		window: cfg.ReputationWindow,
		locks:  newKeyedMutex(),
	}
}

// ApplyEvent appends a reputation event and recomputes the agent's score.
// Returns the new score.
func (t *ReputationTracker) ApplyEvent(ctx context.Context, agentID, taskID uuid.UUID, delta float64, reason string) (float64, error) {
	t.locks.Lock(agentID)
	defer t.locks.Unlock(agentID)

	event := &models.ReputationEvent{
		ID:        uuid.New(),
		AgentID:   agentID,
		TaskID:    taskID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := t.store.AppendReputationEvent(ctx, event); err != nil {
		return 0, fmt.Errorf("append reputation event: %w", err)
	}
	return t.recompute(ctx, agentID)
}

// Recompute recalculates and persists the agent's score from its history.
func (t *ReputationTracker) Recompute(ctx context.Context, agentID uuid.UUID) (float64, error) {
	t.locks.Lock(agentID)
	defer t.locks.Unlock(agentID)
	return t.recompute(ctx, agentID)
}

func (t *ReputationTracker) recompute(ctx context.Context, agentID uuid.UUID) (float64, error) {
	events, err := t.store.ListReputationEvents(ctx, agentID, t.window)
	if err != nil {
		return 0, fmt.Errorf("list reputation events: %w", err)
	}
	score := t.scoreFromEvents(events)
	if err := t.store.UpdateAgentReputation(ctx, agentID, score); err != nil {
		return 0, fmt.Errorf("update agent reputation: %w", err)
	}
	return score, nil
}

// scoreFromEvents weights the i-th newest event by decay^i and shifts the
// base score by the weighted mean delta, clamped to [0, 5] and rounded to
// 2 decimal places. Zero events yield the base exactly.
func (t *ReputationTracker) scoreFromEvents(events []models.ReputationEvent) float64 {
	if len(events) == 0 {
		return round2(t.base)
	}
	var sum, weights float64
	weight := 1.0
	for _, ev := range events {
		sum += ev.Delta * weight
		weights += weight
		weight *= t.decay
	}
	return round2(clamp(t.base+sum/weights, 0.0, 5.0))
}
