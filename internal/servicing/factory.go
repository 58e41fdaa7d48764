package servicing

import (
	"log/slog"

	"github.com/microfin-loan-servicing/internal/config"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/outbox"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// CreateServicer wires the loan servicing engine with its dependencies
func CreateServicer(
	pgDB TxRunner,
	loanRepo loan.Repository,
	paymentRepo payment.Repository,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) Servicer {
	return NewLoanServicer(
		pgDB,
		loanRepo,
		paymentRepo,
		outboxRepo,
		PoliciesFromConfig(&cfg.Servicing),
		NewClock(),
		logger,
	)
}

// CreateAccrualService wires the accrual sweep service over the configured
// worker pool
func CreateAccrualService(
	pgDB TxRunner,
	loanRepo loan.Repository,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) (AccrualService, error) {
	svc, err := NewAccrualService(
		pgDB,
		loanRepo,
		outboxRepo,
		PoliciesFromConfig(&cfg.Servicing),
		NewClock(),
		cfg.WorkerPool.Size,
		logger.With("component", "accrual"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Created accrual service", "pool_size", cfg.WorkerPool.Size)
	return svc, nil
}
