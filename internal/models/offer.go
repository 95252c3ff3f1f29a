package models

import (
	"time"

	"github.com/google/uuid"
)

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCancelled OfferStatus = "cancelled"
)

// Offer is an agent's bid on a task. Score is computed once at submission
// time and never recomputed; at most one pending offer may exist per
// (task, agent) pair, enforced by the store.
type Offer struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	TaskID     uuid.UUID   `db:"task_id" json:"task_id"`
	AgentID    uuid.UUID   `db:"agent_id" json:"agent_id"`
	Price      int64       `db:"price" json:"price"`
	ETASeconds int64       `db:"eta_seconds" json:"eta_seconds"`
	Score      float64     `db:"score" json:"score"`
	Status     OfferStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}
