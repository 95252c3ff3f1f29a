package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

// Memory keeps payments in process memory. Used when no database is
// configured and in tests.
type Memory struct {
	mu       sync.Mutex
	payments []models.Payment
}

func NewMemory() *Memory {
	return &Memory{}
}

func (l *Memory) CreatePendingPayment(ctx context.Context, taskID, agentID uuid.UUID, amount int64, tokenSymbol string) (market.PaymentRef, error) {
	if amount <= 0 {
		return "", fmt.Errorf("payment amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	payment := models.Payment{
		ID:          uuid.New(),
		TaskID:      taskID,
		AgentID:     agentID,
		Amount:      amount,
		TokenSymbol: tokenSymbol,
		Status:      "pending",
		CreatedAt:   time.Now(),
	}
	l.payments = append(l.payments, payment)
	return market.PaymentRef(payment.ID.String()), nil
}

func (l *Memory) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.Payment{}
	for i := len(l.payments) - 1; i >= 0 && len(out) < limit; i-- {
		if l.payments[i].AgentID == agentID {
			out = append(out, l.payments[i])
		}
	}
	return out, nil
}
