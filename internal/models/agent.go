package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Agent struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Capabilities    pq.StringArray `db:"capabilities" json:"capabilities"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	ReputationScore float64        `db:"reputation_score" json:"reputation_score"` // clamped to [0.0, 5.0]
	CompletedCount  int            `db:"completed_count" json:"completed_count"`
	FailedCount     int            `db:"failed_count" json:"failed_count"`
	AvgCompletionS  float64        `db:"avg_completion_seconds" json:"avg_completion_seconds"`
	APIKeyHash      *string        `db:"api_key_hash" json:"-"`
	LastSeen        *time.Time     `db:"last_seen" json:"last_seen"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasCapabilities reports whether the agent's capability set covers all of
// required.
func (a *Agent) HasCapabilities(required []string) bool {
	have := make(map[string]bool, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = true
	}
	for _, c := range required {
		if !have[c] {
			return false
		}
	}
	return true
}

// AgentStats are the recomputed aggregate counters for an agent. They are a
// projection over the agent's execution history, never authoritative on
// their own.
type AgentStats struct {
	CompletedCount int     `json:"completed_count"`
	FailedCount    int     `json:"failed_count"`
	AvgCompletionS float64 `json:"avg_completion_seconds"`
}
