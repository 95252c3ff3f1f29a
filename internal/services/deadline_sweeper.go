package services

import (
	"context"
	"log"
	"time"

	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

// DeadlineSweeper cancels tasks whose deadline passed while they were still
// waiting for an assignment. Tasks that already reached an agent keep
// running; the deadline only bounds the matching phase.
type DeadlineSweeper struct {
	store    market.Store
	auction  *market.AuctionCoordinator
	interval time.Duration
	stop     chan struct{}
}

func NewDeadlineSweeper(store market.Store, auction *market.AuctionCoordinator, interval time.Duration) *DeadlineSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DeadlineSweeper{
		store:    store,
		auction:  auction,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweeper loop
func (s *DeadlineSweeper) Start() {
	go s.run()
}

// Stop stops the sweeper
func (s *DeadlineSweeper) Stop() {
	close(s.stop)
}

func (s *DeadlineSweeper) run() {
	log.Println("Deadline sweeper started")

	// Run immediately on start
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			log.Println("Deadline sweeper stopped")
			return
		}
	}
}

func (s *DeadlineSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.store.ListExpiredTasks(ctx, time.Now())
	if err != nil {
		log.Printf("Deadline sweeper: failed to list expired tasks: %v", err)
		return
	}

	for _, task := range expired {
		if err := s.cancelExpired(ctx, task); err != nil {
			log.Printf("Deadline sweeper: failed to cancel task %s: %v", task.ID, err)
		} else {
			log.Printf("Deadline sweeper: cancelled task %s (deadline %s)", task.ID, task.Deadline)
		}
	}
}

func (s *DeadlineSweeper) cancelExpired(ctx context.Context, task models.Task) error {
	// An open bidding window must be torn down first so its timer does not
	// fire against a cancelled task.
	if task.Status == models.TaskInAuction {
		if err := s.auction.CancelAuction(ctx, task.ID); err != nil {
			return err
		}
		task.Status = models.TaskOpen
	}
	err := s.store.UpdateTaskStatus(ctx, task.ID, task.Status, models.TaskCancelled, nil)
	if err == market.ErrStatusConflict {
		// Someone moved the task since we listed it; the next sweep will
		// pick it up again if it is still eligible.
		return nil
	}
	return err
}
