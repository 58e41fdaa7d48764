package loan

import (
	"math"

	"github.com/shopspring/decimal"
)

var months = decimal.NewFromInt(12)

// GenerateSchedule converts loan terms into the full ordered installment
// schedule. It is deterministic and has no side effects: calling it twice
// with identical terms yields identical schedules.
//
// Rounding differences are always pushed onto the final installment so that
// the scheduled principal sums exactly to Terms.Principal.
func GenerateSchedule(terms Terms) ([]*Installment, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	n := terms.DurationMonths
	schedule := make([]*Installment, 0, n)

	principals, interests := splitByMethod(terms)
	fees := spreadEvenly(terms.Fee, n)

	for idx := 0; idx < n; idx++ {
		schedule = append(schedule, &Installment{
			Number:        idx + 1,
			DueDate:       terms.FirstDueDate.AddDate(0, idx, 0),
			Principal:     principals[idx],
			Interest:      interests[idx],
			Fee:           fees[idx],
			PaidPrincipal: decimal.Zero,
			PaidInterest:  decimal.Zero,
			PaidPenalty:   decimal.Zero,
			Penalty:       decimal.Zero,
			Status:        InstallmentStatusPending,
		})
	}

	return schedule, nil
}

// splitByMethod computes the per-period principal and interest portions
func splitByMethod(terms Terms) (principals, interests []decimal.Decimal) {
	switch terms.Method {
	case MethodFlat:
		return flatSplit(terms)
	default:
		return decliningBalanceSplit(terms)
	}
}

// flatSplit charges interest on the original principal over the whole term
// and divides both principal and interest evenly across installments.
// This is the usual microcredit quotation: a 10,000 loan at 5% flat over
// 4 months carries 10,000 * 0.05 * 4/12 total interest.
func flatSplit(terms Terms) (principals, interests []decimal.Decimal) {
	n := terms.DurationMonths
	totalInterest := terms.Principal.
		Mul(terms.AnnualRate).
		Mul(decimal.NewFromInt(int64(n))).
		Div(months).
		Round(2)

	principals = spreadEvenly(terms.Principal, n)
	interests = spreadEvenly(totalInterest, n)
	return principals, interests
}

// decliningBalanceSplit computes a level-payment annuity schedule: each
// period's interest is charged on the remaining principal and the principal
// portion is the level payment minus that interest. The final installment
// clears the remaining principal exactly.
func decliningBalanceSplit(terms Terms) (principals, interests []decimal.Decimal) {
	n := terms.DurationMonths
	principals = make([]decimal.Decimal, n)
	interests = make([]decimal.Decimal, n)

	periodRate := terms.PeriodRate()
	payment := levelPayment(terms.Principal, periodRate, n)

	remaining := terms.Principal
	for idx := 0; idx < n; idx++ {
		interest := remaining.Mul(periodRate).Round(2)
		principal := payment.Sub(interest)

		// Final installment absorbs the rounding remainder so the
		// principal portions foot to the loan principal exactly.
		if idx == n-1 {
			principal = remaining
		}
		if principal.GreaterThan(remaining) {
			principal = remaining
		}

		principals[idx] = principal
		interests[idx] = interest
		remaining = remaining.Sub(principal)
	}

	return principals, interests
}

// levelPayment computes the annuity payment P*r*(1+r)^n / ((1+r)^n - 1).
// The power term uses float64; monetary arithmetic stays in decimal.
func levelPayment(principal decimal.Decimal, periodRate decimal.Decimal, n int) decimal.Decimal {
	if periodRate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n))).Round(2)
	}

	rate := periodRate.InexactFloat64()
	factor := math.Pow(1+rate, float64(n))
	payment := principal.InexactFloat64() * rate * factor / (factor - 1)
	return decimal.NewFromFloat(payment).Round(2)
}

// spreadEvenly divides an amount into n rounded parts, pushing the rounding
// remainder onto the final part
func spreadEvenly(amount decimal.Decimal, n int) []decimal.Decimal {
	parts := make([]decimal.Decimal, n)
	per := amount.Div(decimal.NewFromInt(int64(n))).Round(2)

	allocated := decimal.Zero
	for idx := 0; idx < n-1; idx++ {
		parts[idx] = per
		allocated = allocated.Add(per)
	}
	parts[n-1] = amount.Sub(allocated)
	return parts
}
