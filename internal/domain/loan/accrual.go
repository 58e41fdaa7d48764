package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// PenaltyPolicy configures late-payment penalty accrual
type PenaltyPolicy struct {
	// DailyRate is the penalty rate charged per day overdue on the unpaid
	// principal+interest residual of an installment, e.g. 0.001 for 0.1%/day.
	DailyRate decimal.Decimal

	// CapFactor caps the total accrued penalty at CapFactor times the
	// installment residual the penalty is charged on.
	CapFactor decimal.Decimal

	// GraceDays is the number of days past the due date before an
	// installment is flagged overdue and penalties start accruing.
	GraceDays int
}

// AccrueOverdue recomputes days-overdue counters and penalty amounts for all
// unsettled installments as of the given date, and re-evaluates the loan
// status. The computation is absolute, not incremental: re-running it for the
// same date yields the same penalties, so same-day sweeps never double-charge.
//
// Returns true when any installment or the loan status changed.
func (a *Account) AccrueOverdue(asOf time.Time, policy PenaltyPolicy) (bool, error) {
	if a.Status.Terminal() {
		return false, LoanClosedError{LoanID: a.ID, Status: a.Status}
	}
	// Nothing falls due before the funds are released
	if a.Status == StatusPendingDisbursement {
		return false, nil
	}

	changed := false
	for _, inst := range a.Installments {
		if inst.Settled() {
			continue
		}

		days := daysBetween(inst.DueDate, asOf)
		if days <= policy.GraceDays {
			if inst.DaysOverdue != 0 {
				inst.DaysOverdue = 0
				inst.refreshStatus(asOf)
				changed = true
			}
			continue
		}

		if inst.DaysOverdue != days {
			inst.DaysOverdue = days
			changed = true
		}

		// Penalty is charged on the unpaid principal+interest residual.
		// Once that residual is cleared the accrued penalty is frozen.
		base := inst.PrincipalDue().Add(inst.CostDue())
		if base.IsPositive() {
			penalty := base.Mul(policy.DailyRate).Mul(decimal.NewFromInt(int64(days))).Round(2)
			cap := base.Mul(policy.CapFactor).Round(2)
			if penalty.GreaterThan(cap) {
				penalty = cap
			}
			if penalty.LessThan(inst.PaidPenalty) {
				penalty = inst.PaidPenalty
			}
			if !penalty.Equal(inst.Penalty) {
				a.OutstandingPenalty = a.OutstandingPenalty.Add(penalty.Sub(inst.Penalty))
				inst.Penalty = penalty
				changed = true
			}
		}

		if inst.Status != InstallmentStatusOverdue {
			inst.refreshStatus(asOf)
			changed = true
		}
	}

	previous := a.Status
	a.refreshStatus()
	if a.Status != previous {
		changed = true
	}

	if changed {
		a.touch(asOf)
	}

	return changed, a.CheckInvariant()
}

// daysBetween returns the number of whole days from a to b, comparing
// calendar dates in UTC. Negative when b precedes a.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
