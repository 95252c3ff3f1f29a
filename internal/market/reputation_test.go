package market

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestReputation_ZeroEventsIsBase(t *testing.T) {
	env := newTestEnv()
	agent := env.mkAgent("fresh", nil, 0)

	score, err := env.tracker.Recompute(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if score != 3.0 {
		t.Fatalf("score = %v, want exactly 3.0", score)
	}
}

// Hand-computed: after +0.1 then -0.2, newest-first deltas are
// [-0.2, +0.1] with weights [1, 0.95]:
// score = 3.0 + (-0.2 + 0.1*0.95) / 1.95 = 2.94615... -> 2.95
func TestReputation_DecayedRecomputation(t *testing.T) {
	env := newTestEnv()
	agent := env.mkAgent("worker", nil, 3.0)
	taskID := uuid.New()
	ctx := context.Background()

	score, err := env.tracker.ApplyEvent(ctx, agent.ID, taskID, 0.1, "completed")
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if score != 3.1 {
		t.Fatalf("after +0.1: score = %v, want 3.1", score)
	}

	score, err = env.tracker.ApplyEvent(ctx, agent.ID, taskID, -0.2, "failed")
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if score != 2.95 {
		t.Fatalf("after +0.1, -0.2: score = %v, want 2.95", score)
	}

	got, err := env.store.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got.ReputationScore != 2.95 {
		t.Fatalf("persisted score = %v, want 2.95", got.ReputationScore)
	}
}

func TestReputation_RecomputeIdempotent(t *testing.T) {
	env := newTestEnv()
	agent := env.mkAgent("worker", nil, 3.0)
	ctx := context.Background()

	if _, err := env.tracker.ApplyEvent(ctx, agent.ID, uuid.New(), 0.1, "completed"); err != nil {
		t.Fatalf("apply event: %v", err)
	}
	first, err := env.tracker.Recompute(ctx, agent.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	second, err := env.tracker.Recompute(ctx, agent.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first != second {
		t.Fatalf("recompute is not idempotent: %v != %v", first, second)
	}
}

func TestReputation_ClampedToRange(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	down := env.mkAgent("sinking", nil, 3.0)
	var score float64
	var err error
	for i := 0; i < 20; i++ {
		score, err = env.tracker.ApplyEvent(ctx, down.ID, uuid.New(), -5.0, "catastrophic")
		if err != nil {
			t.Fatalf("apply event: %v", err)
		}
	}
	if score != 0.0 {
		t.Fatalf("score = %v, want clamp at 0.0", score)
	}

	up := env.mkAgent("soaring", nil, 3.0)
	for i := 0; i < 20; i++ {
		score, err = env.tracker.ApplyEvent(ctx, up.ID, uuid.New(), 5.0, "heroic")
		if err != nil {
			t.Fatalf("apply event: %v", err)
		}
	}
	if score != 5.0 {
		t.Fatalf("score = %v, want clamp at 5.0", score)
	}
}

func TestReputation_WindowLimitsHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReputationWindow = 1
	store := NewMemoryStore()
	tracker := NewReputationTracker(store, cfg)
	env := &testEnv{store: store}
	agent := env.mkAgent("short-memory", nil, 3.0)
	ctx := context.Background()

	if _, err := tracker.ApplyEvent(ctx, agent.ID, uuid.New(), -2.0, "old miss"); err != nil {
		t.Fatalf("apply event: %v", err)
	}
	score, err := tracker.ApplyEvent(ctx, agent.ID, uuid.New(), 0.5, "recent win")
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	// Only the newest event is inside the window.
	if score != 3.5 {
		t.Fatalf("score = %v, want 3.5 (window of 1)", score)
	}
}
