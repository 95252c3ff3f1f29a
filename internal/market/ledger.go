package market

import (
	"context"

	"github.com/google/uuid"
)

// PaymentRef identifies a payment request on the external ledger.
type PaymentRef string

// Ledger is the settlement collaborator. CreatePendingPayment is invoked
// fire-and-forget on successful completion; failures are logged and never
// roll back the task's completed status.
type Ledger interface {
	CreatePendingPayment(ctx context.Context, taskID, agentID uuid.UUID, amount int64, tokenSymbol string) (PaymentRef, error)
}
