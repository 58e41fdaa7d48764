package loan

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines loan aggregate persistence. Implementations must load
// and store the account together with its full installment schedule.
type Repository interface {
	// Create stores a new loan account with its installment schedule
	Create(ctx context.Context, acc *Account) error

	// GetByID retrieves a loan with its installments.
	// Returns LoanNotFoundError if the loan doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// LockForUpdate acquires a pessimistic lock on the loan row and returns
	// the aggregate. Must be used within a transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)

	// Update persists the loan and its installments using optimistic
	// locking. Returns ConcurrencyConflictError on version mismatch.
	Update(ctx context.Context, acc *Account) error

	// ListServiceableIDs returns the IDs of all loans subject to overdue
	// accrual, i.e. Active and Overdue loans.
	ListServiceableIDs(ctx context.Context) ([]uuid.UUID, error)

	WithTx(tx pgx.Tx) Repository
}
