package market

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/models"
)

// recorderBus captures published events for assertions.
type recorderBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recorderBus) Publish(eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *recorderBus) has(eventType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// fakeLedger records payment requests.
type fakeLedger struct {
	mu       sync.Mutex
	payments []fakePayment
	fail     bool
}

type fakePayment struct {
	TaskID  uuid.UUID
	AgentID uuid.UUID
	Amount  int64
	Symbol  string
}

func (l *fakeLedger) CreatePendingPayment(ctx context.Context, taskID, agentID uuid.UUID, amount int64, symbol string) (PaymentRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return "", context.DeadlineExceeded
	}
	l.payments = append(l.payments, fakePayment{TaskID: taskID, AgentID: agentID, Amount: amount, Symbol: symbol})
	return PaymentRef(uuid.NewString()), nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

type testEnv struct {
	store   *MemoryStore
	bus     *recorderBus
	ledger  *fakeLedger
	auction *AuctionCoordinator
	exec    *ExecutionCoordinator
	tracker *ReputationTracker
	cfg     Config
}

func newTestEnv() *testEnv {
	cfg := DefaultConfig()
	store := NewMemoryStore()
	bus := &recorderBus{}
	ledger := &fakeLedger{}
	tracker := NewReputationTracker(store, cfg)
	return &testEnv{
		store:   store,
		bus:     bus,
		ledger:  ledger,
		auction: NewAuctionCoordinator(store, bus, cfg),
		exec:    NewExecutionCoordinator(store, ledger, bus, tracker, cfg),
		tracker: tracker,
		cfg:     cfg,
	}
}

func (e *testEnv) mkAgent(name string, caps []string, reputation float64) *models.Agent {
	now := time.Now()
	agent := &models.Agent{
		ID:              uuid.New(),
		Name:            name,
		Capabilities:    caps,
		IsActive:        true,
		ReputationScore: reputation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreateAgent(context.Background(), agent); err != nil {
		panic(err)
	}
	return agent
}

func (e *testEnv) mkTask(budget int64, caps []string) *models.Task {
	now := time.Now()
	task := &models.Task{
		ID:                   uuid.New(),
		Title:                "test task",
		Status:               models.TaskOpen,
		Budget:               budget,
		RequiredCapabilities: caps,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.store.CreateTask(context.Background(), task); err != nil {
		panic(err)
	}
	return task
}
