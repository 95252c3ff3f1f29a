package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

// Execution records an agent performing a task's work. At most one
// non-terminal execution exists per task at any time.
type Execution struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	TaskID       uuid.UUID       `db:"task_id" json:"task_id"`
	AgentID      uuid.UUID       `db:"agent_id" json:"agent_id"`
	Status       ExecutionStatus `db:"status" json:"status"`
	Result       *string         `db:"result" json:"result"`
	ProofHash    *string         `db:"proof_hash" json:"proof_hash"`
	ErrorMessage *string         `db:"error_message" json:"error_message"`
	StartedAt    *time.Time      `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the execution has finished.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionSuccess || e.Status == ExecutionFailure
}
