// Package store provides the PostgreSQL implementation of the market's
// persistence interface. Uniqueness of pending offers is enforced by a
// partial unique index so concurrent submissions race in the database, not
// in application code.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	cache "github.com/patrickmn/go-cache"

	"taskmarket/internal/database"
	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

const (
	agentCacheTTL     = 5 * time.Second
	agentCacheCleanup = time.Minute
)

type Postgres struct {
	db *database.DB

	// agents is a short-lived read cache. Offer validation reads the same
	// agent row for every bid in a busy auction; a few seconds of staleness
	// on capabilities and reputation is acceptable there. All writes
	// invalidate.
	agents *cache.Cache
}

func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{
		db:     db,
		agents: cache.New(agentCacheTTL, agentCacheCleanup),
	}
}

func (s *Postgres) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, title, description, status, budget, required_capabilities, assigned_agent_id, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		task.ID, task.OwnerID, task.Title, task.Description, task.Status, task.Budget,
		task.RequiredCapabilities, task.AssignedAgentID, task.Deadline, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Postgres) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := s.db.GetContext(ctx, &task, `SELECT * FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return &task, nil
}

func (s *Postgres) UpdateTaskStatus(ctx context.Context, id uuid.UUID, from, to models.TaskStatus, assignedAgentID *uuid.UUID) error {
	var res sql.Result
	var err error
	if assignedAgentID != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE tasks SET status = $1, assigned_agent_id = $2, updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			to, *assignedAgentID, id, from)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE tasks SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3`,
			to, id, from)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return s.swapOutcome(ctx, res, `SELECT 1 FROM tasks WHERE id = $1`, id)
}

func (s *Postgres) ListTasks(ctx context.Context, status models.TaskStatus, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	tasks := []models.Task{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &tasks,
			`SELECT * FROM tasks ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &tasks,
			`SELECT * FROM tasks WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return tasks, nil
}

func (s *Postgres) ListExpiredTasks(ctx context.Context, now time.Time) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE deadline IS NOT NULL AND deadline < $1 AND status IN ($2, $3)
		ORDER BY deadline ASC`,
		now, models.TaskOpen, models.TaskInAuction)
	if err != nil {
		return nil, fmt.Errorf("select expired tasks: %w", err)
	}
	return tasks, nil
}

func (s *Postgres) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, capabilities, is_active, reputation_score, completed_count, failed_count, avg_completion_seconds, api_key_hash, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		agent.ID, agent.Name, agent.Capabilities, agent.IsActive, agent.ReputationScore,
		agent.CompletedCount, agent.FailedCount, agent.AvgCompletionS,
		agent.APIKeyHash, agent.LastSeen, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *Postgres) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	if cached, ok := s.agents.Get(id.String()); ok {
		agent := *(cached.(*models.Agent))
		return &agent, nil
	}
	var agent models.Agent
	err := s.db.GetContext(ctx, &agent, `SELECT * FROM agents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	s.agents.Set(id.String(), &agent, cache.DefaultExpiration)
	copied := agent
	return &copied, nil
}

func (s *Postgres) UpdateAgentReputation(ctx context.Context, id uuid.UUID, score float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET reputation_score = $1, updated_at = NOW() WHERE id = $2`, score, id)
	if err != nil {
		return fmt.Errorf("update agent reputation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.ErrNotFound
	}
	s.agents.Delete(id.String())
	return nil
}

func (s *Postgres) UpdateAgentStats(ctx context.Context, id uuid.UUID, stats models.AgentStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET completed_count = $1, failed_count = $2, avg_completion_seconds = $3, updated_at = NOW()
		WHERE id = $4`,
		stats.CompletedCount, stats.FailedCount, stats.AvgCompletionS, id)
	if err != nil {
		return fmt.Errorf("update agent stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.ErrNotFound
	}
	s.agents.Delete(id.String())
	return nil
}

func (s *Postgres) CreateOffer(ctx context.Context, offer *models.Offer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offers (id, task_id, agent_id, price, eta_seconds, score, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		offer.ID, offer.TaskID, offer.AgentID, offer.Price, offer.ETASeconds,
		offer.Score, offer.Status, offer.CreatedAt, offer.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return market.ErrDuplicateOffer
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (s *Postgres) ListOffersByTask(ctx context.Context, taskID uuid.UUID, status models.OfferStatus) ([]models.Offer, error) {
	offers := []models.Offer{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &offers,
			`SELECT * FROM offers WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	} else {
		err = s.db.SelectContext(ctx, &offers,
			`SELECT * FROM offers WHERE task_id = $1 AND status = $2 ORDER BY created_at ASC`, taskID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	return offers, nil
}

func (s *Postgres) UpdateOfferStatus(ctx context.Context, id uuid.UUID, from, to models.OfferStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE offers SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	return s.swapOutcome(ctx, res, `SELECT 1 FROM offers WHERE id = $1`, id)
}

func (s *Postgres) AppendReputationEvent(ctx context.Context, event *models.ReputationEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reputation_events (id, agent_id, task_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.AgentID, event.TaskID, event.Delta, event.Reason, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reputation event: %w", err)
	}
	return nil
}

func (s *Postgres) ListReputationEvents(ctx context.Context, agentID uuid.UUID, limit int) ([]models.ReputationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	events := []models.ReputationEvent{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM reputation_events
		WHERE agent_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select reputation events: %w", err)
	}
	return events, nil
}

func (s *Postgres) CreateExecution(ctx context.Context, exec *models.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, task_id, agent_id, status, result, proof_hash, error_message, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		exec.ID, exec.TaskID, exec.AgentID, exec.Status, exec.Result, exec.ProofHash,
		exec.ErrorMessage, exec.StartedAt, exec.CompletedAt, exec.CreatedAt, exec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (s *Postgres) GetExecutionForTask(ctx context.Context, taskID uuid.UUID) (*models.Execution, error) {
	var exec models.Execution
	err := s.db.GetContext(ctx, &exec, `
		SELECT * FROM executions WHERE task_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select execution: %w", err)
	}
	return &exec, nil
}

func (s *Postgres) UpdateExecution(ctx context.Context, exec *models.Execution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $1, result = $2, proof_hash = $3, error_message = $4, started_at = $5, completed_at = $6, updated_at = $7
		WHERE id = $8`,
		exec.Status, exec.Result, exec.ProofHash, exec.ErrorMessage,
		exec.StartedAt, exec.CompletedAt, exec.UpdatedAt, exec.ID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListExecutionsByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Execution, error) {
	execs := []models.Execution{}
	err := s.db.SelectContext(ctx, &execs,
		`SELECT * FROM executions WHERE agent_id = $1 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("select executions: %w", err)
	}
	return execs, nil
}

// swapOutcome distinguishes a failed compare-and-swap from a missing row
// after an UPDATE ... WHERE status = $from matched nothing.
func (s *Postgres) swapOutcome(ctx context.Context, res sql.Result, existsQuery string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.GetContext(ctx, &one, existsQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return market.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check row: %w", err)
	}
	return market.ErrStatusConflict
}
