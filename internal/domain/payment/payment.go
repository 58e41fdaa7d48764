package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/domain/loan"
)

// Method defines how a payment was tendered
type Method string

const (
	MethodCash     Method = "CASH"
	MethodTransfer Method = "TRANSFER"
	MethodMobile   Method = "MOBILE"
	MethodCheque   Method = "CHEQUE"
)

// BalanceSnapshot captures the loan's outstanding balances right after the
// payment was applied
type BalanceSnapshot struct {
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Penalty   decimal.Decimal `json:"penalty"`
}

// Payment is an immutable, append-only record of a settled loan payment and
// its allocation breakdown. A payment belongs to exactly one loan and may
// span several installments.
type Payment struct {
	ID               uuid.UUID           `json:"id"`
	LoanID           uuid.UUID           `json:"loan_id"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
	Mode             loan.AllocationMode `json:"mode"`
	PrincipalApplied decimal.Decimal     `json:"principal_applied"`
	InterestApplied  decimal.Decimal     `json:"interest_applied"`
	PenaltyApplied   decimal.Decimal     `json:"penalty_applied"`
	ValueDate        time.Time           `json:"value_date"`
	Method           Method              `json:"method"`
	Reference        string              `json:"reference"`
	TellerID         string              `json:"teller_id,omitempty"`
	Snapshot         BalanceSnapshot     `json:"snapshot"`
	CreatedAt        time.Time           `json:"created_at"`
}

// NewPayment builds the payment record from an applied allocation and the
// post-application state of the loan
func NewPayment(id uuid.UUID, acc *loan.Account, alloc *loan.Allocation, amount decimal.Decimal, valueDate time.Time, method Method, reference, tellerID string, now time.Time) *Payment {
	return &Payment{
		ID:               id,
		LoanID:           acc.ID,
		Amount:           amount,
		Currency:         acc.Terms.Currency,
		Mode:             alloc.Mode,
		PrincipalApplied: alloc.Principal,
		InterestApplied:  alloc.Interest,
		PenaltyApplied:   alloc.Penalty,
		ValueDate:        valueDate,
		Method:           method,
		Reference:        reference,
		TellerID:         tellerID,
		Snapshot: BalanceSnapshot{
			Principal: acc.OutstandingPrincipal,
			Interest:  acc.OutstandingInterest,
			Penalty:   acc.OutstandingPenalty,
		},
		CreatedAt: now,
	}
}
