package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoffPolicy configures early-payoff pricing
type PayoffPolicy struct {
	// DiscountRate is an optional early-settlement discount applied to the
	// interest charged up to the payoff date, e.g. 0.10 for 10%.
	DiscountRate decimal.Decimal

	// WaivePenalties forgives outstanding penalties on early payoff
	WaivePenalties bool
}

// PayoffQuote is the read-only projection of settling a loan early.
// Executing the payoff is a separate mutation through the payment path.
type PayoffQuote struct {
	AsOf            time.Time       `json:"as_of"`
	Principal       decimal.Decimal `json:"principal"`
	Interest        decimal.Decimal `json:"interest"` // charged up to the payoff date
	Penalty         decimal.Decimal `json:"penalty"`
	Discount        decimal.Decimal `json:"discount"`
	PayoffAmount    decimal.Decimal `json:"payoff_amount"`
	InterestSavings decimal.Decimal `json:"interest_savings"`
	PenaltySavings  decimal.Decimal `json:"penalty_savings"`
}

// QuotePayoff computes the amount required to settle the loan on the given
// date: outstanding principal, plus interest accrued only up to that date
// (the running period is pro-rated by elapsed days), plus outstanding
// penalties unless waived, minus the configured discount.
func (a *Account) QuotePayoff(asOf time.Time, policy PayoffPolicy) (*PayoffQuote, error) {
	if a.Status.Terminal() {
		return nil, LoanClosedError{LoanID: a.ID, Status: a.Status}
	}

	charged := decimal.Zero
	scheduledRemaining := decimal.Zero

	periodStart := a.Terms.DisbursedAt
	for _, inst := range a.Installments {
		if !inst.Settled() {
			due := inst.CostDue()
			scheduledRemaining = scheduledRemaining.Add(due)
			charged = charged.Add(accruedShare(inst, due, periodStart, asOf))
		}
		periodStart = inst.DueDate
	}

	discount := charged.Mul(policy.DiscountRate).Round(2)

	penalty := a.OutstandingPenalty
	penaltySavings := decimal.Zero
	if policy.WaivePenalties {
		penaltySavings = penalty
		penalty = decimal.Zero
	}

	return &PayoffQuote{
		AsOf:            asOf,
		Principal:       a.OutstandingPrincipal,
		Interest:        charged,
		Penalty:         penalty,
		Discount:        discount,
		PayoffAmount:    a.OutstandingPrincipal.Add(charged).Sub(discount).Add(penalty),
		InterestSavings: scheduledRemaining.Sub(charged),
		PenaltySavings:  penaltySavings,
	}, nil
}

// accruedShare returns the portion of an installment's unpaid interest that
// has been earned as of the given date: all of it once the installment is
// due, a pro-rata share by elapsed days inside the running period, nothing
// for future periods.
func accruedShare(inst *Installment, costDue decimal.Decimal, periodStart, asOf time.Time) decimal.Decimal {
	if !inst.DueDate.After(asOf) {
		return costDue
	}
	if !asOf.After(periodStart) {
		return decimal.Zero
	}

	periodDays := daysBetween(periodStart, inst.DueDate)
	if periodDays <= 0 {
		return costDue
	}
	elapsed := daysBetween(periodStart, asOf)
	if elapsed >= periodDays {
		return costDue
	}

	share := inst.Interest.Add(inst.Fee).
		Mul(decimal.NewFromInt(int64(elapsed))).
		Div(decimal.NewFromInt(int64(periodDays))).
		Round(2)

	// Never below what was already paid against this installment's cost
	earned := share.Sub(inst.PaidInterest)
	if earned.IsNegative() {
		return decimal.Zero
	}
	if earned.GreaterThan(costDue) {
		return costDue
	}
	return earned
}
