// Package servicing implements the transactional loan servicing engine:
// disbursement, payment application, overdue accrual and early payoff.
// All loan mutations are serialized per loan via a row lock and committed
// together with their payment records and outbox events.
package servicing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/outbox"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// TxRunner executes a function inside a database transaction, committing on
// success and rolling back on error or panic. Satisfied by persistence.PostgresDB.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type loanServicer struct {
	pgDB        TxRunner
	loanRepo    loan.Repository
	paymentRepo payment.Repository
	outboxRepo  outbox.Repository
	policies    Policies
	clock       Clock
	logger      *slog.Logger
}

// NewLoanServicer creates the servicing engine
func NewLoanServicer(
	pgDB TxRunner,
	loanRepo loan.Repository,
	paymentRepo payment.Repository,
	outboxRepo outbox.Repository,
	policies Policies,
	clock Clock,
	logger *slog.Logger,
) Servicer {
	return &loanServicer{
		pgDB:        pgDB,
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		outboxRepo:  outboxRepo,
		policies:    policies,
		clock:       clock,
		logger:      logger,
	}
}

// DisburseLoan creates an active loan from an approved application snapshot,
// generating the installment schedule and emitting a disbursement event
func (s *loanServicer) DisburseLoan(ctx context.Context, app loan.ApplicationSnapshot) (*loan.Account, error) {
	acc, err := loan.Disburse(app, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.loanRepo.WithTx(tx).Create(ctx, acc); err != nil {
			return err
		}
		return s.enqueueEvent(ctx, tx, acc, audit.EventTypeDisbursed, "", disbursedPayload{
			BorrowerName:   acc.BorrowerName,
			Principal:      acc.Terms.Principal,
			Currency:       acc.Terms.Currency,
			DurationMonths: acc.Terms.DurationMonths,
			Method:         acc.Terms.Method,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loan disbursed",
		"loan_id", acc.ID.String(),
		"principal", acc.Terms.Principal.String(),
		"currency", acc.Terms.Currency,
		"installments", len(acc.Installments),
	)
	return acc, nil
}

// ApplyPayment validates and applies a payment instruction to its loan.
// The instruction ID doubles as the payment ID: redelivery of an already
// applied instruction returns the recorded payment without touching the loan.
func (s *loanServicer) ApplyPayment(ctx context.Context, instr *payment.Instruction) (*payment.Payment, error) {
	if err := validateInstruction(instr); err != nil {
		return nil, err
	}

	// Idempotency check outside the lock; redelivery is the common retry path
	if existing, err := s.paymentRepo.GetByID(ctx, instr.ID); err == nil {
		s.logger.Info("Payment instruction already applied, skipping",
			"payment_id", instr.ID.String(),
			"loan_id", instr.LoanID.String(),
		)
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	valueDate := instr.ValueDate
	if valueDate.IsZero() {
		valueDate = s.clock.Now()
	}

	var applied *payment.Payment
	err := s.inLoanTx(ctx, instr.LoanID, func(tx pgx.Tx, acc *loan.Account) error {
		if acc.Status.Terminal() {
			return loan.LoanClosedError{LoanID: acc.ID, Status: acc.Status}
		}

		// Loans are single-currency; an empty instruction currency means the
		// loan's own. Anything else is rejected before allocation.
		if instr.Currency != "" && instr.Currency != acc.Terms.Currency {
			return loan.ValidationError{
				Field:  "currency",
				Reason: "payment in " + instr.Currency + " against a " + acc.Terms.Currency + " loan",
			}
		}

		// Bring overdue counters and penalties current before allocating,
		// so the waterfall sees today's penalty dues
		if _, err := acc.AccrueOverdue(valueDate, s.policies.Penalty); err != nil {
			return err
		}

		alloc, err := loan.Allocate(acc.Installments, instr.Amount, instr.Mode, instr.Split, valueDate)
		if err != nil {
			return err
		}

		previousStatus := acc.Status
		if err := acc.ApplyAllocation(alloc, valueDate); err != nil {
			return err
		}

		applied = payment.NewPayment(instr.ID, acc, alloc, instr.Amount, valueDate, instr.Method, instr.Reference, instr.TellerID, s.clock.Now())
		if err := s.paymentRepo.WithTx(tx).Create(ctx, applied); err != nil {
			return err
		}

		if err := s.enqueueEvent(ctx, tx, acc, audit.EventTypePaymentApplied, instr.TellerID, paymentEventPayload(applied, acc)); err != nil {
			return err
		}
		if acc.Status != previousStatus {
			if err := s.enqueueEvent(ctx, tx, acc, audit.EventTypeStatusChanged, instr.TellerID, statusChangedPayload{From: previousStatus, To: acc.Status}); err != nil {
				return err
			}
		}

		return s.loanRepo.WithTx(tx).Update(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment applied",
		"payment_id", applied.ID.String(),
		"loan_id", applied.LoanID.String(),
		"amount", applied.Amount.String(),
		"mode", string(applied.Mode),
	)
	return applied, nil
}

// QuotePayoff computes the early settlement quote without mutating the loan
func (s *loanServicer) QuotePayoff(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*loan.PayoffQuote, error) {
	acc, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	return acc.QuotePayoff(asOf, s.policies.Payoff)
}

// SettleEarlyPayoff executes an early payoff: the quoted amount is applied as
// a custom-split payment covering principal, accrued interest and penalties,
// then the remaining unearned interest is waived and the loan closes Completed.
func (s *loanServicer) SettleEarlyPayoff(ctx context.Context, loanID uuid.UUID, req EarlyPayoffRequest) (*payment.Payment, error) {
	valueDate := req.ValueDate
	if valueDate.IsZero() {
		valueDate = s.clock.Now()
	}

	var applied *payment.Payment
	err := s.inLoanTx(ctx, loanID, func(tx pgx.Tx, acc *loan.Account) error {
		if _, err := acc.AccrueOverdue(valueDate, s.policies.Penalty); err != nil {
			return err
		}

		quote, err := acc.QuotePayoff(valueDate, s.policies.Payoff)
		if err != nil {
			return err
		}

		split := &loan.Split{
			Principal: quote.Principal,
			Interest:  quote.Interest.Sub(quote.Discount),
			Penalty:   quote.Penalty,
		}
		alloc, err := loan.Allocate(acc.Installments, quote.PayoffAmount, loan.ModeCustom, split, valueDate)
		if err != nil {
			return err
		}

		previousStatus := acc.Status
		if err := acc.ApplyAllocation(alloc, valueDate); err != nil {
			return err
		}
		if err := acc.CloseEarly(valueDate); err != nil {
			return err
		}

		applied = payment.NewPayment(uuid.New(), acc, alloc, quote.PayoffAmount, valueDate, req.Method, req.Reference, req.TellerID, s.clock.Now())
		if err := s.paymentRepo.WithTx(tx).Create(ctx, applied); err != nil {
			return err
		}

		if err := s.enqueueEvent(ctx, tx, acc, audit.EventTypeEarlyPayoff, req.TellerID, earlyPayoffPayload{
			PaymentID:       applied.ID.String(),
			PayoffAmount:    quote.PayoffAmount,
			InterestSavings: quote.InterestSavings,
			PenaltySavings:  quote.PenaltySavings,
		}); err != nil {
			return err
		}
		if err := s.enqueueEvent(ctx, tx, acc, audit.EventTypeStatusChanged, req.TellerID, statusChangedPayload{From: previousStatus, To: acc.Status}); err != nil {
			return err
		}

		return s.loanRepo.WithTx(tx).Update(ctx, acc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Early payoff settled",
		"payment_id", applied.ID.String(),
		"loan_id", loanID.String(),
		"amount", applied.Amount.String(),
	)
	return applied, nil
}

// MarkDefaulted transitions the loan to the terminal Defaulted status
func (s *loanServicer) MarkDefaulted(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error) {
	return s.transition(ctx, loanID, actorID, func(acc *loan.Account) error {
		return acc.MarkDefaulted(s.clock.Now())
	})
}

// MarkWrittenOff transitions the loan to the terminal WrittenOff status
func (s *loanServicer) MarkWrittenOff(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error) {
	return s.transition(ctx, loanID, actorID, func(acc *loan.Account) error {
		return acc.MarkWrittenOff(s.clock.Now())
	})
}

func (s *loanServicer) transition(ctx context.Context, loanID uuid.UUID, actorID string, mutate func(*loan.Account) error) (*loan.Account, error) {
	var result *loan.Account
	err := s.inLoanTx(ctx, loanID, func(tx pgx.Tx, acc *loan.Account) error {
		previousStatus := acc.Status
		if err := mutate(acc); err != nil {
			return err
		}
		if err := s.enqueueEvent(ctx, tx, acc, audit.EventTypeStatusChanged, actorID, statusChangedPayload{From: previousStatus, To: acc.Status}); err != nil {
			return err
		}
		if err := s.loanRepo.WithTx(tx).Update(ctx, acc); err != nil {
			return err
		}
		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// inLoanTx runs the mutation inside a database transaction holding the loan's
// row lock. The lock serializes all mutations of one loan.
func (s *loanServicer) inLoanTx(ctx context.Context, loanID uuid.UUID, fn func(tx pgx.Tx, acc *loan.Account) error) error {
	return s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		acc, err := s.loanRepo.WithTx(tx).LockForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(tx, acc)
	})
}

func validateInstruction(instr *payment.Instruction) error {
	if instr.ID == uuid.Nil {
		return loan.ValidationError{Field: "id", Reason: "cannot be empty"}
	}
	if instr.LoanID == uuid.Nil {
		return loan.ValidationError{Field: "loan_id", Reason: "cannot be empty"}
	}
	if instr.Amount.LessThanOrEqual(decimal.Zero) {
		return loan.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	switch instr.Mode {
	case loan.ModeStandard, loan.ModePrincipalPriority:
		if instr.Split != nil {
			return loan.ValidationError{Field: "split", Reason: "only allowed with CUSTOM mode"}
		}
	case loan.ModeCustom:
		if instr.Split == nil {
			return loan.ValidationError{Field: "split", Reason: "required with CUSTOM mode"}
		}
	default:
		return loan.ValidationError{Field: "mode", Reason: "unknown allocation mode"}
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound payment.ErrPaymentNotFound
	return errors.As(err, &notFound)
}
