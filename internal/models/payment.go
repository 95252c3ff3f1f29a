package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment is a pending settlement created when a task completes
// successfully. Settlement itself happens outside this system; the row only
// records the request.
type Payment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TaskID      uuid.UUID `db:"task_id" json:"task_id"`
	AgentID     uuid.UUID `db:"agent_id" json:"agent_id"`
	Amount      int64     `db:"amount" json:"amount"`
	TokenSymbol string    `db:"token_symbol" json:"token_symbol"`
	Status      string    `db:"status" json:"status"` // pending, settled, void
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
