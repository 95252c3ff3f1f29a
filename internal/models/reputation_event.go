package models

import (
	"time"

	"github.com/google/uuid"
)

// ReputationEvent is an append-only record of a reputation change. The
// agent's score is always a projection over its event history; events are
// never mutated or deleted.
type ReputationEvent struct {
	ID        uuid.UUID `db:"id" json:"id"`
	AgentID   uuid.UUID `db:"agent_id" json:"agent_id"`
	TaskID    uuid.UUID `db:"task_id" json:"task_id"`
	Delta     float64   `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
