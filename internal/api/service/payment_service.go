package service

import (
	"context"

	"log/slog"

	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/platform/messaging/producers"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	servicer    servicing.Servicer
	paymentRepo payment.Repository
	producer    producers.MessagePublisher
	logger      *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	logger *slog.Logger,
	servicer servicing.Servicer,
	paymentRepo payment.Repository,
	producer producers.MessagePublisher,
) PaymentService {
	return &PaymentServiceImpl{
		servicer:    servicer,
		paymentRepo: paymentRepo,
		producer:    producer,
		logger:      logger,
	}
}

// Apply applies a payment instruction synchronously and returns the applied
// payment with its allocation breakdown
func (s *PaymentServiceImpl) Apply(ctx context.Context, instr *payment.Instruction) (*payment.Payment, error) {
	return s.servicer.ApplyPayment(ctx, instr)
}

// Enqueue publishes a payment instruction to the intake topic for the worker.
// The instruction ID is the idempotency handle: redelivered instructions are
// applied at most once.
func (s *PaymentServiceImpl) Enqueue(ctx context.Context, instr *payment.Instruction) error {
	// Key by loan so all instructions of one loan land on one partition
	if err := s.producer.Publish(ctx, instr.LoanID.String(), instr); err != nil {
		s.logger.Error("Failed to publish payment instruction",
			"payment_id", instr.ID.String(),
			"loan_id", instr.LoanID.String(),
			"error", err,
		)
		return err
	}

	s.logger.Info("Payment instruction published",
		"payment_id", instr.ID.String(),
		"loan_id", instr.LoanID.String(),
		"amount", instr.Amount.String(),
	)
	return nil
}

// GetByID retrieves a payment record. Returns ErrPaymentNotFound if missing.
func (s *PaymentServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

// ListByLoan retrieves paginated payment history for a loan, newest first.
// Returns payments, total count, and any error.
func (s *PaymentServiceImpl) ListByLoan(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*payment.Payment, int64, error) {
	offset := (page - 1) * perPage

	payments, err := s.paymentRepo.GetByLoanID(ctx, loanID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.paymentRepo.CountByLoanID(ctx, loanID)
	if err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}
