package servicing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// EarlyPayoffRequest carries the settlement details for an early payoff
type EarlyPayoffRequest struct {
	ValueDate time.Time
	Method    payment.Method
	Reference string
	TellerID  string
}

// Servicer is the transactional loan servicing engine. Every mutation locks
// the loan row, applies the domain operation, and persists the aggregate and
// its outbox event atomically.
type Servicer interface {
	DisburseLoan(ctx context.Context, app loan.ApplicationSnapshot) (*loan.Account, error)
	ApplyPayment(ctx context.Context, instr *payment.Instruction) (*payment.Payment, error)
	QuotePayoff(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*loan.PayoffQuote, error)
	SettleEarlyPayoff(ctx context.Context, loanID uuid.UUID, req EarlyPayoffRequest) (*payment.Payment, error)
	MarkDefaulted(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error)
	MarkWrittenOff(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error)
}

// AccrualService recomputes overdue counters and penalties
type AccrualService interface {
	// RecomputeLoan accrues a single loan as of the given date.
	// Returns true when the loan changed.
	RecomputeLoan(ctx context.Context, loanID uuid.UUID, asOf time.Time) (bool, error)

	// SweepAll accrues every serviceable loan over the worker pool
	SweepAll(ctx context.Context, asOf time.Time) SweepReport

	// Shutdown releases the worker pool
	Shutdown()
}

// SweepReport summarizes one accrual sweep
type SweepReport struct {
	Total   int
	Changed int
	Failed  int
}

// Clock supplies the current time. Injected so value dates, accrual sweeps
// and tests can control time explicitly.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NewClock returns the wall clock
func NewClock() Clock { return realClock{} }
