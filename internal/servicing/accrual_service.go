package servicing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/panjf2000/ants/v2"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/outbox"
)

type accrualService struct {
	pgDB       TxRunner
	loanRepo   loan.Repository
	outboxRepo outbox.Repository
	policies   Policies
	clock      Clock
	pool       *ants.Pool
	logger     *slog.Logger
}

// NewAccrualService creates the overdue accrual service backed by a worker
// pool of the given size
func NewAccrualService(
	pgDB TxRunner,
	loanRepo loan.Repository,
	outboxRepo outbox.Repository,
	policies Policies,
	clock Clock,
	poolSize int,
	logger *slog.Logger,
) (AccrualService, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create accrual worker pool: %w", err)
	}
	return &accrualService{
		pgDB:       pgDB,
		loanRepo:   loanRepo,
		outboxRepo: outboxRepo,
		policies:   policies,
		clock:      clock,
		pool:       pool,
		logger:     logger,
	}, nil
}

// RecomputeLoan accrues a single loan as of the given date under its row lock.
// Loans that are already current commit nothing.
func (s *accrualService) RecomputeLoan(ctx context.Context, loanID uuid.UUID, asOf time.Time) (bool, error) {
	changed := false

	err := s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.loanRepo.WithTx(tx)
		acc, err := repo.LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		previousStatus := acc.Status
		changed, err = acc.AccrueOverdue(asOf, s.policies.Penalty)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if acc.Status != previousStatus {
			if err := s.enqueueStatusEvent(ctx, tx, acc, previousStatus); err != nil {
				return err
			}
		}

		return repo.Update(ctx, acc)
	})
	if err != nil {
		return false, err
	}

	return changed, nil
}

// SweepAll accrues every serviceable loan as of the given date, fanning the
// work out over the pool. Per-loan failures are counted and logged, never
// propagated; one bad loan must not stall the sweep.
func (s *accrualService) SweepAll(ctx context.Context, asOf time.Time) SweepReport {
	ids, err := s.loanRepo.ListServiceableIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list serviceable loans for accrual sweep", "error", err)
		return SweepReport{Failed: 1}
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = SweepReport{Total: len(ids)}
	)

	for _, id := range ids {
		loanID := id
		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			changed, err := s.RecomputeLoan(ctx, loanID, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				s.logger.Error("Accrual failed for loan", "loan_id", loanID.String(), "error", err)
			case changed:
				report.Changed++
			}
		}); err != nil {
			wg.Done()
			mu.Lock()
			report.Failed++
			mu.Unlock()
			s.logger.Error("Failed to submit accrual task", "loan_id", loanID.String(), "error", err)
		}
	}

	wg.Wait()

	s.logger.Info("Accrual sweep finished",
		"as_of", asOf.Format("2006-01-02"),
		"total", report.Total,
		"changed", report.Changed,
		"failed", report.Failed,
	)
	return report
}

// Shutdown releases the worker pool
func (s *accrualService) Shutdown() {
	s.pool.Release()
}

func (s *accrualService) enqueueStatusEvent(ctx context.Context, tx pgx.Tx, acc *loan.Account, from loan.Status) error {
	event, err := audit.NewEvent(acc.ID, audit.EventTypeStatusChanged, statusChangedPayload{From: from, To: acc.Status}, "", correlationID(ctx), s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to build status event for loan %s: %w", acc.ID, err)
	}
	message, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build outbox message for loan %s: %w", acc.ID, err)
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, message)
}
