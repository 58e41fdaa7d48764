package servicing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/outbox"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// Event payloads published through the outbox. Amounts are serialized as
// decimal strings to keep cents exact on the wire.

type disbursedPayload struct {
	BorrowerName   string          `json:"borrower_name"`
	Principal      decimal.Decimal `json:"principal"`
	Currency       string          `json:"currency"`
	DurationMonths int             `json:"duration_months"`
	Method         loan.Method     `json:"method"`
}

type paymentAppliedPayload struct {
	PaymentID        string          `json:"payment_id"`
	Amount           decimal.Decimal `json:"amount"`
	Mode             string          `json:"mode"`
	PrincipalApplied decimal.Decimal `json:"principal_applied"`
	InterestApplied  decimal.Decimal `json:"interest_applied"`
	PenaltyApplied   decimal.Decimal `json:"penalty_applied"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	LoanStatus       loan.Status     `json:"loan_status"`
}

type statusChangedPayload struct {
	From loan.Status `json:"from"`
	To   loan.Status `json:"to"`
}

type earlyPayoffPayload struct {
	PaymentID       string          `json:"payment_id"`
	PayoffAmount    decimal.Decimal `json:"payoff_amount"`
	InterestSavings decimal.Decimal `json:"interest_savings"`
	PenaltySavings  decimal.Decimal `json:"penalty_savings"`
}

func paymentEventPayload(p *payment.Payment, acc *loan.Account) paymentAppliedPayload {
	return paymentAppliedPayload{
		PaymentID:        p.ID.String(),
		Amount:           p.Amount,
		Mode:             string(p.Mode),
		PrincipalApplied: p.PrincipalApplied,
		InterestApplied:  p.InterestApplied,
		PenaltyApplied:   p.PenaltyApplied,
		Outstanding:      acc.TotalOutstanding(),
		LoanStatus:       acc.Status,
	}
}

// enqueueEvent writes an audit event into the outbox within the caller's
// transaction, so the event is only visible if the mutation commits. The
// actor is the teller or operator behind the mutation, empty for system runs.
func (s *loanServicer) enqueueEvent(ctx context.Context, tx pgx.Tx, acc *loan.Account, eventType audit.EventType, actorID string, detail interface{}) error {
	event, err := audit.NewEvent(acc.ID, eventType, detail, actorID, correlationID(ctx), s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to build %s event for loan %s: %w", eventType, acc.ID, err)
	}

	message, err := outbox.NewMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build outbox message for loan %s: %w", acc.ID, err)
	}

	if err := s.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
		return fmt.Errorf("failed to enqueue %s event for loan %s: %w", eventType, acc.ID, err)
	}

	return nil
}

type correlationKey struct{}

// WithCorrelationID stamps a correlation ID onto the context so events and
// logs emitted during a request can be tied back to it
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}
