package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

type auctionPhase int

const (
	phaseActive auctionPhase = iota + 1
	phaseClosing
	phaseClosed
)

// auction is the transient in-memory state for one task's offer window.
type auction struct {
	taskID    uuid.UUID
	phase     auctionPhase
	startedAt time.Time
	duration  time.Duration
	timer     *time.Timer
}

// AuctionCoordinator runs one timed auction per task. Auctions for
// different tasks are fully independent; all status-mutating operations for
// a single task are serialized through a per-task lock so the in-memory
// window state and the persisted task row cannot diverge.
type AuctionCoordinator struct {
	store  Store
	scorer *OfferScorer
	bus    Bus
	cfg    Config

	mu       sync.Mutex // guards auctions
	auctions map[uuid.UUID]*auction

	taskLocks *keyedMutex
}

func NewAuctionCoordinator(store Store, bus Bus, cfg Config) *AuctionCoordinator {
	if bus == nil {
		bus = NopBus{}
	}
	return &AuctionCoordinator{
		store:     store,
		scorer:    NewOfferScorer(cfg.Weights),
		bus:       bus,
		cfg:       cfg,
		auctions:  make(map[uuid.UUID]*auction),
		taskLocks: newKeyedMutex(),
	}
}

// StartAuction opens the offer window for a task. Starting a task whose
// auction is already active is a warned no-op.
func (c *AuctionCoordinator) StartAuction(ctx context.Context, taskID uuid.UUID) error {
	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	c.mu.Lock()
	if a, ok := c.auctions[taskID]; ok && a.phase == phaseActive {
		c.mu.Unlock()
		log.Printf("auction already active for task %s, ignoring start", taskID)
		return nil
	}
	c.mu.Unlock()

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return mapTaskErr(err, taskID)
	}
	if err := AssertTransition(task.Status, models.TaskInAuction); err != nil {
		return err
	}
	if err := c.store.UpdateTaskStatus(ctx, taskID, task.Status, models.TaskInAuction, nil); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return Conflictf("task %s changed status while opening the auction", taskID)
		}
		return fmt.Errorf("open auction for task %s: %w", taskID, err)
	}

	a := &auction{
		taskID:    taskID,
		phase:     phaseActive,
		startedAt: time.Now(),
		duration:  c.cfg.AuctionDuration,
	}
	a.timer = time.AfterFunc(a.duration, func() { c.closeAuction(taskID) })

	c.mu.Lock()
	c.auctions[taskID] = a
	c.mu.Unlock()

	log.Printf("auction started for task %s (window %s)", taskID, a.duration)
	c.bus.Publish(EventAuctionStarted, map[string]interface{}{
		"task_id":   taskID,
		"closes_at": a.startedAt.Add(a.duration),
	})
	return nil
}

// SubmitOffer validates and persists a pending offer for the task. The
// duplicate-pending check rides on the store's compare-and-create, so two
// concurrent submissions from one agent cannot both succeed.
func (c *AuctionCoordinator) SubmitOffer(ctx context.Context, agentID, taskID uuid.UUID, price, etaSeconds int64) (*models.Offer, error) {
	if price <= 0 {
		return nil, Validationf("price must be positive")
	}
	if etaSeconds <= 0 {
		return nil, Validationf("eta must be positive")
	}

	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, mapTaskErr(err, taskID)
	}
	if !CanAcceptOffers(task.Status) {
		return nil, Auctionf("task %s is not accepting offers (status %s)", taskID, task.Status)
	}

	agent, err := c.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundf("agent %s not found", agentID)
		}
		return nil, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	if !agent.IsActive {
		return nil, Validationf("agent %s is not active", agentID)
	}
	if !agent.HasCapabilities(task.RequiredCapabilities) {
		return nil, Validationf("agent %s lacks required capabilities for task %s", agentID, taskID)
	}
	if price > task.Budget {
		return nil, Validationf("price %d exceeds task budget %d", price, task.Budget)
	}

	now := time.Now()
	offer := &models.Offer{
		ID:         uuid.New(),
		TaskID:     taskID,
		AgentID:    agentID,
		Price:      price,
		ETASeconds: etaSeconds,
		Score:      c.scorer.Score(price, etaSeconds, agent.ReputationScore),
		Status:     models.OfferPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.CreateOffer(ctx, offer); err != nil {
		if errors.Is(err, ErrDuplicateOffer) {
			return nil, Conflictf("agent %s already has a pending offer for task %s", agentID, taskID)
		}
		return nil, fmt.Errorf("create offer: %w", err)
	}

	// The window may have closed between the status check and the write;
	// re-validate the persisted status so a late offer is deterministically
	// rejected instead of racing into a resolving auction.
	cur, err := c.store.GetTask(ctx, taskID)
	if err != nil || !CanAcceptOffers(cur.Status) {
		if uerr := c.store.UpdateOfferStatus(ctx, offer.ID, models.OfferPending, models.OfferCancelled); uerr != nil && !errors.Is(uerr, ErrStatusConflict) {
			log.Printf("failed to cancel late offer %s: %v", offer.ID, uerr)
		}
		return nil, Auctionf("auction for task %s closed during submission", taskID)
	}

	log.Printf("offer %s submitted by agent %s for task %s (score %.3f)", offer.ID, agentID, taskID, offer.Score)
	return offer, nil
}

// closeAuction fires when the countdown elapses. Unexpected failures while
// closing never strand the task: it is reset to open and the window state
// discarded.
func (c *AuctionCoordinator) closeAuction(taskID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	c.mu.Lock()
	a, ok := c.auctions[taskID]
	if !ok || a.phase != phaseActive {
		// Cancelled while the timer callback waited for the task lock.
		c.mu.Unlock()
		return
	}
	a.phase = phaseClosing
	c.mu.Unlock()

	if err := c.resolve(ctx, taskID); err != nil {
		log.Printf("auction close failed for task %s: %v", taskID, err)
		if rerr := c.store.UpdateTaskStatus(ctx, taskID, models.TaskInAuction, models.TaskOpen, nil); rerr != nil && !errors.Is(rerr, ErrStatusConflict) {
			log.Printf("failed to reopen task %s after close failure: %v", taskID, rerr)
		}
	}

	c.mu.Lock()
	a.phase = phaseClosed
	delete(c.auctions, taskID)
	c.mu.Unlock()
}

func (c *AuctionCoordinator) resolve(ctx context.Context, taskID uuid.UUID) error {
	offers, err := c.store.ListOffersByTask(ctx, taskID, models.OfferPending)
	if err != nil {
		return fmt.Errorf("list pending offers: %w", err)
	}

	if len(offers) == 0 {
		if err := c.store.UpdateTaskStatus(ctx, taskID, models.TaskInAuction, models.TaskOpen, nil); err != nil {
			return fmt.Errorf("reopen task: %w", err)
		}
		log.Printf("auction for task %s closed with no offers", taskID)
		c.bus.Publish(EventAuctionNoOffers, map[string]interface{}{"task_id": taskID})
		return nil
	}

	winner := pickWinner(offers)
	agentID := winner.AgentID
	// The CAS re-validates the persisted status at the point of commit.
	if err := c.store.UpdateTaskStatus(ctx, taskID, models.TaskInAuction, models.TaskAssigned, &agentID); err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	if err := c.store.UpdateOfferStatus(ctx, winner.ID, models.OfferPending, models.OfferAccepted); err != nil {
		return fmt.Errorf("accept winning offer: %w", err)
	}
	for _, o := range offers {
		if o.ID == winner.ID {
			continue
		}
		if err := c.store.UpdateOfferStatus(ctx, o.ID, models.OfferPending, models.OfferRejected); err != nil {
			log.Printf("failed to reject offer %s: %v", o.ID, err)
		}
	}

	now := time.Now()
	exec := &models.Execution{
		ID:        uuid.New(),
		TaskID:    taskID,
		AgentID:   winner.AgentID,
		Status:    models.ExecutionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateExecution(ctx, exec); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}

	log.Printf("auction for task %s won by agent %s (score %.3f, %d offers)",
		taskID, winner.AgentID, winner.Score, len(offers))
	c.bus.Publish(EventAuctionCompleted, map[string]interface{}{
		"task_id":  taskID,
		"agent_id": winner.AgentID,
		"offer_id": winner.ID,
		"score":    winner.Score,
	})
	return nil
}

// pickWinner returns the highest-scoring offer. Ties go to the earliest
// submission; identical timestamps fall back to the smaller offer id so the
// choice is deterministic.
func pickWinner(offers []models.Offer) models.Offer {
	best := offers[0]
	for _, o := range offers[1:] {
		switch {
		case o.Score > best.Score:
			best = o
		case o.Score == best.Score:
			if o.CreatedAt.Before(best.CreatedAt) ||
				(o.CreatedAt.Equal(best.CreatedAt) && o.ID.String() < best.ID.String()) {
				best = o
			}
		}
	}
	return best
}

// CancelAuction stops the pending timer, discards the window state and
// resets the task to open. Cancelling with no active auction is a no-op.
func (c *AuctionCoordinator) CancelAuction(ctx context.Context, taskID uuid.UUID) error {
	c.taskLocks.Lock(taskID)
	defer c.taskLocks.Unlock(taskID)

	c.mu.Lock()
	if a, ok := c.auctions[taskID]; ok {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(c.auctions, taskID)
	}
	c.mu.Unlock()

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return mapTaskErr(err, taskID)
	}
	if task.Status != models.TaskInAuction {
		return nil
	}
	if err := c.store.UpdateTaskStatus(ctx, taskID, models.TaskInAuction, models.TaskOpen, nil); err != nil && !errors.Is(err, ErrStatusConflict) {
		return fmt.Errorf("reset task %s: %w", taskID, err)
	}
	log.Printf("auction cancelled for task %s", taskID)
	c.bus.Publish(EventAuctionCancelled, map[string]interface{}{"task_id": taskID})
	return nil
}

// TimeRemaining returns the remaining window in milliseconds, clamped at
// zero, or nil when no auction is active for the task.
func (c *AuctionCoordinator) TimeRemaining(taskID uuid.UUID) *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.auctions[taskID]
	if !ok || a.phase != phaseActive {
		return nil
	}
	rem := time.Until(a.startedAt.Add(a.duration)).Milliseconds()
	if rem < 0 {
		rem = 0
	}
	return &rem
}

func mapTaskErr(err error, taskID uuid.UUID) error {
	if errors.Is(err, ErrNotFound) {
		return NotFoundf("task %s not found", taskID)
	}
	return fmt.Errorf("get task %s: %w", taskID, err)
}
