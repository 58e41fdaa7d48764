package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentStatus defines the settlement states of a single installment
type InstallmentStatus string

const (
	InstallmentStatusPending       InstallmentStatus = "PENDING"
	InstallmentStatusPartiallyPaid InstallmentStatus = "PARTIALLY_PAID"
	InstallmentStatusPaid          InstallmentStatus = "PAID"
	InstallmentStatusOverdue       InstallmentStatus = "OVERDUE"
)

// Installment is one scheduled period of a loan. Installments are created
// once at schedule generation and only mutated as payments land or penalties
// accrue, never deleted.
type Installment struct {
	Number        int               `json:"number"`
	DueDate       time.Time         `json:"due_date"`
	Principal     decimal.Decimal   `json:"principal"`
	Interest      decimal.Decimal   `json:"interest"`
	Fee           decimal.Decimal   `json:"fee"`
	PaidPrincipal decimal.Decimal   `json:"paid_principal"`
	PaidInterest  decimal.Decimal   `json:"paid_interest"`
	PaidPenalty   decimal.Decimal   `json:"paid_penalty"`
	Penalty       decimal.Decimal   `json:"penalty"` // accrued late-payment penalty
	DaysOverdue   int               `json:"days_overdue"`
	Status        InstallmentStatus `json:"status"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
}

// PrincipalDue returns the unpaid principal portion
func (i *Installment) PrincipalDue() decimal.Decimal {
	return i.Principal.Sub(i.PaidPrincipal)
}

// CostDue returns the unpaid interest-and-fee portion. Fees are collected
// together with interest in the allocation waterfall.
func (i *Installment) CostDue() decimal.Decimal {
	return i.Interest.Add(i.Fee).Sub(i.PaidInterest)
}

// PenaltyDue returns the unpaid accrued penalty
func (i *Installment) PenaltyDue() decimal.Decimal {
	return i.Penalty.Sub(i.PaidPenalty)
}

// Residual returns the total unpaid amount of the installment:
// principal + interest + fee + penalty still owed
func (i *Installment) Residual() decimal.Decimal {
	return i.PrincipalDue().Add(i.CostDue()).Add(i.PenaltyDue())
}

// Settled reports whether the installment is fully paid
func (i *Installment) Settled() bool {
	return i.Residual().IsZero()
}

// Total returns the scheduled installment total excluding penalties
func (i *Installment) Total() decimal.Decimal {
	return i.Principal.Add(i.Interest).Add(i.Fee)
}

// refreshStatus recomputes the installment status after a mutation.
// Overdue wins over partial payment until the installment is settled.
func (i *Installment) refreshStatus(valueDate time.Time) {
	switch {
	case i.Settled():
		i.Status = InstallmentStatusPaid
		if i.PaidAt == nil {
			paidAt := valueDate
			i.PaidAt = &paidAt
		}
	case i.DaysOverdue > 0:
		i.Status = InstallmentStatusOverdue
	case i.PaidPrincipal.Add(i.PaidInterest).Add(i.PaidPenalty).IsPositive():
		i.Status = InstallmentStatusPartiallyPaid
	default:
		i.Status = InstallmentStatusPending
	}
}
