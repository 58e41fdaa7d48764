package service

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// LoanServiceImpl implements the LoanService interface on top of the
// servicing engine
type LoanServiceImpl struct {
	servicer servicing.Servicer
	accrual  servicing.AccrualService
	loanRepo loan.Repository
	clock    servicing.Clock
	logger   *slog.Logger
}

// NewLoanService creates a new loan service
func NewLoanService(
	logger *slog.Logger,
	servicer servicing.Servicer,
	accrual servicing.AccrualService,
	loanRepo loan.Repository,
	clock servicing.Clock,
) LoanService {
	return &LoanServiceImpl{
		servicer: servicer,
		accrual:  accrual,
		loanRepo: loanRepo,
		clock:    clock,
		logger:   logger,
	}
}

// Disburse opens a new loan from an approved application snapshot
func (s *LoanServiceImpl) Disburse(ctx context.Context, app loan.ApplicationSnapshot) (*loan.Account, error) {
	return s.servicer.DisburseLoan(ctx, app)
}

// GetByID retrieves a loan with its installment schedule
func (s *LoanServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*loan.Account, error) {
	return s.loanRepo.GetByID(ctx, id)
}

// QuotePayoff computes an early settlement quote for the given date
func (s *LoanServiceImpl) QuotePayoff(ctx context.Context, id uuid.UUID, asOf time.Time) (*loan.PayoffQuote, error) {
	return s.servicer.QuotePayoff(ctx, id, asOf)
}

// SettlePayoff executes an early payoff at the quoted amount
func (s *LoanServiceImpl) SettlePayoff(ctx context.Context, id uuid.UUID, req servicing.EarlyPayoffRequest) (*payment.Payment, error) {
	return s.servicer.SettleEarlyPayoff(ctx, id, req)
}

// Close transitions a loan into a terminal administrative status, attributing
// the transition to the acting operator
func (s *LoanServiceImpl) Close(ctx context.Context, id uuid.UUID, status loan.Status, actorID string) (*loan.Account, error) {
	switch status {
	case loan.StatusDefaulted:
		return s.servicer.MarkDefaulted(ctx, id, actorID)
	case loan.StatusWrittenOff:
		return s.servicer.MarkWrittenOff(ctx, id, actorID)
	default:
		return nil, loan.ValidationError{Field: "status", Reason: "must be DEFAULTED or WRITTEN_OFF"}
	}
}

// Accrue recomputes overdue counters and penalties for one loan and returns
// the refreshed aggregate
func (s *LoanServiceImpl) Accrue(ctx context.Context, id uuid.UUID) (bool, *loan.Account, error) {
	changed, err := s.accrual.RecomputeLoan(ctx, id, s.clock.Now())
	if err != nil {
		return false, nil, err
	}
	acc, err := s.loanRepo.GetByID(ctx, id)
	if err != nil {
		return changed, nil, err
	}
	return changed, acc, nil
}

// Sweep accrues every serviceable loan
func (s *LoanServiceImpl) Sweep(ctx context.Context) servicing.SweepReport {
	return s.accrual.SweepAll(ctx, s.clock.Now())
}
