// Package ledger records pending payments for completed tasks. Rows are a
// settlement request only; moving funds is someone else's job.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskmarket/internal/database"
	"taskmarket/internal/market"
	"taskmarket/internal/models"
)

type Postgres struct {
	db *database.DB
}

func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

func (l *Postgres) CreatePendingPayment(ctx context.Context, taskID, agentID uuid.UUID, amount int64, tokenSymbol string) (market.PaymentRef, error) {
	if amount <= 0 {
		return "", fmt.Errorf("payment amount must be positive, got %d", amount)
	}
	payment := models.Payment{
		ID:          uuid.New(),
		TaskID:      taskID,
		AgentID:     agentID,
		Amount:      amount,
		TokenSymbol: tokenSymbol,
		Status:      "pending",
		CreatedAt:   time.Now(),
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO payments (id, task_id, agent_id, amount, token_symbol, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		payment.ID, payment.TaskID, payment.AgentID, payment.Amount,
		payment.TokenSymbol, payment.Status, payment.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert payment: %w", err)
	}
	return market.PaymentRef(payment.ID.String()), nil
}

// ListByAgent returns an agent's payment history, newest first.
func (l *Postgres) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	payments := []models.Payment{}
	err := l.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments WHERE agent_id = $1
		ORDER BY created_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return payments, nil
}
