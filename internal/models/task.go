package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TaskStatus is the lifecycle state of a task. Transitions are validated by
// the market package; nothing writes a status outside that path.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskInAuction TaskStatus = "in_auction"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

type Task struct {
	ID                   uuid.UUID      `db:"id" json:"id"`
	OwnerID              *uuid.UUID     `db:"owner_id" json:"owner_id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description"`
	Status               TaskStatus     `db:"status" json:"status"`
	Budget               int64          `db:"budget" json:"budget"` // minor units, always > 0
	RequiredCapabilities pq.StringArray `db:"required_capabilities" json:"required_capabilities"`
	AssignedAgentID      *uuid.UUID     `db:"assigned_agent_id" json:"assigned_agent_id"`
	Deadline             *time.Time     `db:"deadline" json:"deadline"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}
