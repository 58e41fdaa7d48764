package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages payment record persistence. Payments are append-only.
type Repository interface {
	Create(ctx context.Context, p *Payment) error

	// GetByID retrieves a payment. Returns ErrPaymentNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByLoanID retrieves paginated payments for a loan, newest first
	GetByLoanID(ctx context.Context, loanID uuid.UUID, limit, offset int) ([]*Payment, error)
	CountByLoanID(ctx context.Context, loanID uuid.UUID) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrPaymentNotFound indicates a missing payment record
type ErrPaymentNotFound struct {
	PaymentID uuid.UUID
}

func (e ErrPaymentNotFound) Error() string {
	return "payment not found: " + e.PaymentID.String()
}

func (e ErrPaymentNotFound) Is(target error) bool {
	t, ok := target.(ErrPaymentNotFound)
	if !ok {
		return false
	}
	if t.PaymentID == uuid.Nil {
		return true
	}
	return e.PaymentID == t.PaymentID
}
