package market

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// Sentinel errors returned by Store implementations. The core maps them to
// domain errors at the call site.
var (
	// ErrNotFound reports an unknown entity id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateOffer reports a second pending offer for the same
	// (task, agent) pair.
	ErrDuplicateOffer = errors.New("duplicate pending offer")
	// ErrStatusConflict reports a compare-and-swap write that found the row
	// in a different state than expected.
	ErrStatusConflict = errors.New("status conflict")
)

// Store is the persistence collaborator. Each method is atomic on its own;
// the store does not guarantee multi-row transactions across entities, so
// the core re-validates preconditions immediately before each mutating
// write. CreateOffer must enforce at most one pending offer per
// (task, agent) as a compare-and-create, not a read-then-write.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// UpdateTaskStatus swaps the task status from `from` to `to` and, when
	// assignedAgentID is non-nil, records the assignment in the same write.
	// Returns ErrStatusConflict if the persisted status is not `from`.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to models.TaskStatus, assignedAgentID *uuid.UUID) error
	ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error)
	// ListExpiredTasks returns tasks whose deadline has passed and that are
	// still open or in auction.
	ListExpiredTasks(ctx context.Context, now time.Time) ([]models.Task, error)

	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	UpdateAgentReputation(ctx context.Context, id uuid.UUID, score float64) error
	UpdateAgentStats(ctx context.Context, id uuid.UUID, stats models.AgentStats) error

	CreateOffer(ctx context.Context, offer *models.Offer) error
	ListOffersByTask(ctx context.Context, taskID uuid.UUID, status models.OfferStatus) ([]models.Offer, error)
	// UpdateOfferStatus swaps an offer status, failing with
	// ErrStatusConflict when the persisted status is not `from`.
	UpdateOfferStatus(ctx context.Context, id uuid.UUID, from, to models.OfferStatus) error

	AppendReputationEvent(ctx context.Context, event *models.ReputationEvent) error
	// ListReputationEvents returns up to limit events, newest first.
	ListReputationEvents(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ReputationEvent, error)

	CreateExecution(ctx context.Context, exec *models.Execution) error
	// GetExecutionForTask returns the latest execution for the task.
	GetExecutionForTask(ctx context.Context, taskID uuid.UUID) (*models.Execution, error)
	UpdateExecution(ctx context.Context, exec *models.Execution) error
	ListExecutionsByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Execution, error)
}
