package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// Outcome is the payload reported when an agent finishes a task. An error
// message is required whenever Success is false.
type Outcome struct {
	Success      bool   `json:"success"`
	Result       string `json:"result,omitempty"`
	ProofHash    string `json:"proof_hash,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ExecutionCoordinator drives the post-assignment lifecycle. Start and
// complete are safe to retry: re-invoking against a terminal task surfaces
// a conflict instead of double-applying effects.
type ExecutionCoordinator struct {
	store      Store
	ledger     Ledger
	bus        Bus
	reputation *ReputationTracker
	cfg        Config

	taskLocks  *keyedMutex
	agentLocks *keyedMutex
}

func NewExecutionCoordinator(store Store, ledger Ledger, bus Bus, reputation *ReputationTracker, cfg Config) *ExecutionCoordinator {
	if bus == nil {
		bus = NopBus{}
	}
	return &ExecutionCoordinator{
		store:      store,
		ledger:     ledger,
		bus:        bus,
		reputation: reputation,
		cfg:        cfg,
		taskLocks:  newKeyedMutex(),
		agentLocks: newKeyedMutex(),
	}
}

// StartExecution moves an assigned task into the running phase. The calling
// agent must be the task's assigned agent.
func (c *ExecutionCoordinator) StartExecution(ctx context.Context, taskID, agentID uuid.UUID) (*models.Execution, error) {
	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, mapTaskErr(err, taskID)
	}
	if task.AssignedAgentID == nil || *task.AssignedAgentID != agentID {
		return nil, Validationf("agent %s is not assigned to task %s", agentID, taskID)
	}
	if err := AssertTransition(task.Status, models.TaskRunning); err != nil {
		return nil, err
	}

	exec, err := c.store.GetExecutionForTask(ctx, taskID)
	switch {
	case errors.Is(err, ErrNotFound):
		now := time.Now()
		exec = &models.Execution{
			ID:        uuid.New(),
			TaskID:    taskID,
			AgentID:   agentID,
			Status:    models.ExecutionPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if cerr := c.store.CreateExecution(ctx, exec); cerr != nil {
			return nil, fmt.Errorf("create execution: %w", cerr)
		}
	case err != nil:
		return nil, fmt.Errorf("get execution for task %s: %w", taskID, err)
	case exec.Status != models.ExecutionPending:
		return nil, Conflictf("execution %s for task %s is already %s", exec.ID, taskID, exec.Status)
	}

	now := time.Now()
	exec.Status = models.ExecutionRunning
	exec.StartedAt = &now
	exec.UpdatedAt = now
	if err := c.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution: %w", err)
	}
	if err := c.store.UpdateTaskStatus(ctx, taskID, models.TaskAssigned, models.TaskRunning, nil); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, Conflictf("task %s changed status while starting execution", taskID)
		}
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	log.Printf("execution %s started for task %s by agent %s", exec.ID, taskID, agentID)
	c.bus.Publish(EventExecutionStarted, map[string]interface{}{
		"task_id":      taskID,
		"agent_id":     agentID,
		"execution_id": exec.ID,
	})
	return exec, nil
}

// CompleteExecution records the outcome, terminates the task, applies the
// reputation feedback and, on success, requests a pending payment from the
// ledger. Settlement is decoupled from the outcome: a ledger failure is
// logged and never rolls the task back.
func (c *ExecutionCoordinator) CompleteExecution(ctx context.Context, taskID, agentID uuid.UUID, outcome Outcome) (*models.Execution, error) {
	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, mapTaskErr(err, taskID)
	}
	if task.AssignedAgentID == nil || *task.AssignedAgentID != agentID {
		return nil, Validationf("agent %s is not assigned to task %s", agentID, taskID)
	}
	if err := AssertTransition(task.Status, models.TaskCompleted); err != nil {
		return nil, err
	}
	if !outcome.Success && strings.TrimSpace(outcome.ErrorMessage) == "" {
		return nil, Validationf("error message is required for a failed outcome")
	}

	exec, err := c.store.GetExecutionForTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundf("no execution found for task %s", taskID)
		}
		return nil, fmt.Errorf("get execution for task %s: %w", taskID, err)
	}
	if exec.Status != models.ExecutionRunning {
		return nil, NotFoundf("no running execution for task %s", taskID)
	}

	now := time.Now()
	exec.CompletedAt = &now
	exec.UpdatedAt = now
	if outcome.Result != "" {
		result := outcome.Result
		exec.Result = &result
	}
	if outcome.ProofHash != "" {
		proof := outcome.ProofHash
		exec.ProofHash = &proof
	}

	target := models.TaskCompleted
	if outcome.Success {
		exec.Status = models.ExecutionSuccess
	} else {
		exec.Status = models.ExecutionFailure
		msg := outcome.ErrorMessage
		exec.ErrorMessage = &msg
		target = models.TaskFailed
	}
	if err := c.store.UpdateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution: %w", err)
	}
	if err := c.store.UpdateTaskStatus(ctx, taskID, models.TaskRunning, target, nil); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, Conflictf("task %s changed status while completing execution", taskID)
		}
		return nil, fmt.Errorf("terminate task: %w", err)
	}

	if outcome.Success {
		if ref, lerr := c.ledger.CreatePendingPayment(ctx, taskID, agentID, task.Budget, c.cfg.TokenSymbol); lerr != nil {
			log.Printf("payment request failed for task %s: %v", taskID, lerr)
		} else {
			log.Printf("pending payment %s requested for task %s (%d %s)", ref, taskID, task.Budget, c.cfg.TokenSymbol)
		}
		if _, rerr := c.reputation.ApplyEvent(ctx, agentID, taskID, c.cfg.SuccessDelta, "task completed successfully"); rerr != nil {
			log.Printf("reputation update failed for agent %s: %v", agentID, rerr)
		}
		c.bus.Publish(EventExecutionCompleted, map[string]interface{}{
			"task_id":      taskID,
			"agent_id":     agentID,
			"execution_id": exec.ID,
		})
	} else {
		if _, rerr := c.reputation.ApplyEvent(ctx, agentID, taskID, c.cfg.FailureDelta, "task failed: "+outcome.ErrorMessage); rerr != nil {
			log.Printf("reputation update failed for agent %s: %v", agentID, rerr)
		}
		c.bus.Publish(EventExecutionFailed, map[string]interface{}{
			"task_id":      taskID,
			"agent_id":     agentID,
			"execution_id": exec.ID,
			"error":        outcome.ErrorMessage,
		})
	}

	if err := c.recomputeAgentStats(ctx, agentID); err != nil {
		log.Printf("stats recompute failed for agent %s: %v", agentID, err)
	}

	log.Printf("execution %s for task %s finished with %s", exec.ID, taskID, exec.Status)
	return exec, nil
}

// recomputeAgentStats refolds the agent's full execution history into its
// aggregate counters. O(n) over lifetime executions per call; incremental
// counters are the upgrade path if execution volume grows large.
func (c *ExecutionCoordinator) recomputeAgentStats(ctx context.Context, agentID uuid.UUID) error {
	c.agentLocks.Lock(agentID)
	defer c.agentLocks.Unlock(agentID)

	execs, err := c.store.ListExecutionsByAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	var stats models.AgentStats
	var totalSeconds float64
	var timed int
	for _, e := range execs {
		switch e.Status {
		case models.ExecutionSuccess:
			stats.CompletedCount++
		case models.ExecutionFailure:
			stats.FailedCount++
		default:
			continue
		}
		if e.StartedAt != nil && e.CompletedAt != nil {
			totalSeconds += e.CompletedAt.Sub(*e.StartedAt).Seconds()
			timed++
		}
	}
	if timed > 0 {
		stats.AvgCompletionS = totalSeconds / float64(timed)
	}
	if err := c.store.UpdateAgentStats(ctx, agentID, stats); err != nil {
		return fmt.Errorf("update agent stats: %w", err)
	}
	return nil
}
