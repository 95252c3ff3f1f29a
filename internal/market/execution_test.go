package market

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// runAssignment drives a task through a full auction so the execution tests
// start from an assigned task with a pending execution row.
func runAssignment(t *testing.T, env *testEnv, task *models.Task, agent *models.Agent, price int64) {
	t.Helper()
	ctx := context.Background()
	if err := env.auction.StartAuction(ctx, task.ID); err != nil {
		t.Fatalf("start auction: %v", err)
	}
	if _, err := env.auction.SubmitOffer(ctx, agent.ID, task.ID, price, 3600); err != nil {
		t.Fatalf("submit offer: %v", err)
	}
	env.auction.closeAuction(task.ID)
	got, err := env.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskAssigned {
		t.Fatalf("task status = %s after close, want %s", got.Status, models.TaskAssigned)
	}
}

func TestExecution_SuccessPath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("worker", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	exec, err := env.exec.StartExecution(ctx, task.ID, agent.ID)
	if err != nil {
		t.Fatalf("start execution: %v", err)
	}
	if exec.Status != models.ExecutionRunning || exec.StartedAt == nil {
		t.Fatalf("execution = %s started=%v, want running with a start time", exec.Status, exec.StartedAt)
	}
	got, _ := env.store.GetTask(ctx, task.ID)
	if got.Status != models.TaskRunning {
		t.Fatalf("task status = %s, want %s", got.Status, models.TaskRunning)
	}
	if !env.bus.has(EventExecutionStarted) {
		t.Fatal("expected execution.started event")
	}

	done, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{
		Success:   true,
		Result:    "output uploaded",
		ProofHash: "deadbeef",
	})
	if err != nil {
		t.Fatalf("complete execution: %v", err)
	}
	if done.Status != models.ExecutionSuccess || done.CompletedAt == nil {
		t.Fatalf("execution = %s completed=%v, want success with a completion time", done.Status, done.CompletedAt)
	}
	if done.Result == nil || *done.Result != "output uploaded" {
		t.Fatalf("result = %v, want recorded output", done.Result)
	}
	if done.ProofHash == nil || *done.ProofHash != "deadbeef" {
		t.Fatalf("proof hash = %v, want recorded proof", done.ProofHash)
	}

	got, _ = env.store.GetTask(ctx, task.ID)
	if got.Status != models.TaskCompleted {
		t.Fatalf("task status = %s, want %s", got.Status, models.TaskCompleted)
	}
	if env.ledger.count() != 1 {
		t.Fatalf("ledger saw %d payment requests, want 1", env.ledger.count())
	}
	p := env.ledger.payments[0]
	if p.TaskID != task.ID || p.AgentID != agent.ID || p.Amount != task.Budget || p.Symbol != env.cfg.TokenSymbol {
		t.Fatalf("payment = %+v, want full budget %d %s for the assigned agent", p, task.Budget, env.cfg.TokenSymbol)
	}

	updated, _ := env.store.GetAgent(ctx, agent.ID)
	if updated.ReputationScore != 3.1 {
		t.Fatalf("reputation = %v, want 3.1 after one success", updated.ReputationScore)
	}
	if updated.CompletedCount != 1 || updated.FailedCount != 0 {
		t.Fatalf("stats = %d/%d, want 1 completed and 0 failed", updated.CompletedCount, updated.FailedCount)
	}
	if !env.bus.has(EventExecutionCompleted) {
		t.Fatal("expected execution.completed event")
	}
}

func TestExecution_FailurePath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("flaky", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}
	done, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{
		Success:      false,
		ErrorMessage: "out of disk",
	})
	if err != nil {
		t.Fatalf("complete execution: %v", err)
	}
	if done.Status != models.ExecutionFailure {
		t.Fatalf("execution status = %s, want %s", done.Status, models.ExecutionFailure)
	}
	if done.ErrorMessage == nil || *done.ErrorMessage != "out of disk" {
		t.Fatalf("error message = %v, want recorded failure reason", done.ErrorMessage)
	}

	got, _ := env.store.GetTask(ctx, task.ID)
	if got.Status != models.TaskFailed {
		t.Fatalf("task status = %s, want %s", got.Status, models.TaskFailed)
	}
	if env.ledger.count() != 0 {
		t.Fatalf("ledger saw %d payment requests for a failed task, want 0", env.ledger.count())
	}
	updated, _ := env.store.GetAgent(ctx, agent.ID)
	if updated.ReputationScore != 2.8 {
		t.Fatalf("reputation = %v, want 2.8 after one failure", updated.ReputationScore)
	}
	if updated.FailedCount != 1 || updated.CompletedCount != 0 {
		t.Fatalf("stats = %d/%d, want 0 completed and 1 failed", updated.CompletedCount, updated.FailedCount)
	}
	if !env.bus.has(EventExecutionFailed) {
		t.Fatal("expected execution.failed event")
	}
}

func TestExecution_FailureRequiresErrorMessage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("silent", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)
	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}

	_, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{Success: false, ErrorMessage: "   "})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for blank failure reason, got %v", err)
	}
	got, _ := env.store.GetTask(ctx, task.ID)
	if got.Status != models.TaskRunning {
		t.Fatalf("task status = %s after rejected outcome, want %s", got.Status, models.TaskRunning)
	}
}

func TestExecution_WrongAgentRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("assigned", nil, 3.0)
	other := env.mkAgent("impostor", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	if _, err := env.exec.StartExecution(ctx, task.ID, other.ID); KindOf(err) != KindValidation {
		t.Fatalf("start by unassigned agent: expected validation error, got %v", err)
	}
	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}
	_, err := env.exec.CompleteExecution(ctx, task.ID, other.ID, Outcome{Success: true})
	if KindOf(err) != KindValidation {
		t.Fatalf("complete by unassigned agent: expected validation error, got %v", err)
	}
}

func TestExecution_StartRetry_Conflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("eager", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}
	_, err := env.exec.StartExecution(ctx, task.ID, agent.ID)
	if KindOf(err) != KindConflict {
		t.Fatalf("repeated start: expected conflict, got %v", err)
	}
}

func TestExecution_DoubleComplete_Conflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("repeater", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}
	if _, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{Success: true}); err != nil {
		t.Fatalf("complete execution: %v", err)
	}
	_, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{Success: true})
	if KindOf(err) != KindConflict {
		t.Fatalf("second complete: expected conflict, got %v", err)
	}
	if env.ledger.count() != 1 {
		t.Fatalf("ledger saw %d payment requests, want exactly 1", env.ledger.count())
	}
}

func TestExecution_StartWithoutAssignment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("early", nil, 3.0)

	_, err := env.exec.StartExecution(ctx, task.ID, agent.ID)
	if KindOf(err) != KindValidation {
		t.Fatalf("start on open task: expected validation error, got %v", err)
	}
	if _, err := env.exec.StartExecution(ctx, uuid.New(), agent.ID); KindOf(err) != KindNotFound {
		t.Fatalf("start on unknown task: expected not found, got %v", err)
	}
}

func TestExecution_CompleteBeforeStart(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("hasty", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	// Task is assigned but the execution never started.
	_, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{Success: true})
	if KindOf(err) != KindConflict {
		t.Fatalf("complete before start: expected conflict, got %v", err)
	}
}

func TestExecution_LedgerFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.mkTask(5000, nil)
	agent := env.mkAgent("unpaid", nil, 3.0)
	runAssignment(t, env, task, agent, 4000)

	if _, err := env.exec.StartExecution(ctx, task.ID, agent.ID); err != nil {
		t.Fatalf("start execution: %v", err)
	}
	env.ledger.fail = true
	done, err := env.exec.CompleteExecution(ctx, task.ID, agent.ID, Outcome{Success: true})
	if err != nil {
		t.Fatalf("complete must succeed despite ledger failure, got %v", err)
	}
	if done.Status != models.ExecutionSuccess {
		t.Fatalf("execution status = %s, want %s", done.Status, models.ExecutionSuccess)
	}
	got, _ := env.store.GetTask(ctx, task.ID)
	if got.Status != models.TaskCompleted {
		t.Fatalf("task status = %s, want %s", got.Status, models.TaskCompleted)
	}
	updated, _ := env.store.GetAgent(ctx, agent.ID)
	if updated.ReputationScore != 3.1 {
		t.Fatalf("reputation = %v, want success credit despite ledger failure", updated.ReputationScore)
	}
}
