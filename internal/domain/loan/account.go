package loan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status defines the lifecycle states of a loan account
type Status string

const (
	StatusPendingDisbursement Status = "PENDING_DISBURSEMENT"
	StatusActive              Status = "ACTIVE"
	StatusOverdue             Status = "OVERDUE"
	StatusCompleted           Status = "COMPLETED"
	StatusDefaulted           Status = "DEFAULTED"
	StatusWrittenOff          Status = "WRITTEN_OFF"
)

// Terminal reports whether the status blocks further payment allocation
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDefaulted || s == StatusWrittenOff
}

// ApplicationSnapshot is the approved loan application data consumed from the
// origination collaborator at disbursement. Only used to construct the account.
type ApplicationSnapshot struct {
	BorrowerName string
	NationalID   string
	BranchCode   string
	Terms        Terms
}

// Account is the mutable loan aggregate: terms, schedule, balances, counters
// and lifecycle status. All mutations flow through ApplyAllocation,
// AccrueOverdue and the explicit administrative transitions, so the balance
// invariant can be enforced at every step.
type Account struct {
	ID           uuid.UUID `json:"id"`
	BorrowerName string    `json:"borrower_name"`
	NationalID   string    `json:"national_id"`
	BranchCode   string    `json:"branch_code"`

	Terms        Terms          `json:"terms"`
	Installments []*Installment `json:"installments"`

	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	OutstandingInterest  decimal.Decimal `json:"outstanding_interest"`
	OutstandingPenalty   decimal.Decimal `json:"outstanding_penalty"`
	PaidPrincipal        decimal.Decimal `json:"paid_principal"`
	PaidInterest         decimal.Decimal `json:"paid_interest"`
	PaidPenalty          decimal.Decimal `json:"paid_penalty"`

	InstallmentsPaid int        `json:"installments_paid"`
	Status           Status     `json:"status"`
	NextDueDate      *time.Time `json:"next_due_date,omitempty"`

	Version   int       `json:"version"` // optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount builds the loan aggregate from an approved application snapshot,
// generating the full installment schedule. The account awaits disbursement
// and accepts no payments until Activate releases it.
func NewAccount(app ApplicationSnapshot, now time.Time) (*Account, error) {
	if app.BorrowerName == "" {
		return nil, ValidationError{Field: "borrower_name", Reason: "cannot be empty"}
	}

	schedule, err := GenerateSchedule(app.Terms)
	if err != nil {
		return nil, err
	}

	acc := &Account{
		ID:           uuid.New(),
		BorrowerName: app.BorrowerName,
		NationalID:   app.NationalID,
		BranchCode:   app.BranchCode,
		Terms:        app.Terms,
		Installments: schedule,

		OutstandingPrincipal: app.Terms.Principal,
		OutstandingInterest:  scheduledCost(schedule),
		OutstandingPenalty:   decimal.Zero,
		PaidPrincipal:        decimal.Zero,
		PaidInterest:         decimal.Zero,
		PaidPenalty:          decimal.Zero,

		Status:    StatusPendingDisbursement,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	due := schedule[0].DueDate
	acc.NextDueDate = &due

	return acc, nil
}

// Activate marks the loan as funded, opening it for payment allocation
func (a *Account) Activate(now time.Time) error {
	if a.Status != StatusPendingDisbursement {
		return ValidationError{Field: "status", Reason: "loan already disbursed"}
	}
	a.Status = StatusActive
	a.touch(now)
	return nil
}

// Disburse creates and activates a loan account in one step, the normal path
// when funds are released at approval
func Disburse(app ApplicationSnapshot, now time.Time) (*Account, error) {
	acc, err := NewAccount(app, now)
	if err != nil {
		return nil, err
	}
	if err := acc.Activate(now); err != nil {
		return nil, err
	}
	return acc, nil
}

func scheduledCost(schedule []*Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		total = total.Add(inst.Interest).Add(inst.Fee)
	}
	return total
}

// InstallmentsRemaining returns the number of unsettled installments
func (a *Account) InstallmentsRemaining() int {
	return len(a.Installments) - a.InstallmentsPaid
}

// TotalOutstanding returns the full unpaid balance of the loan
func (a *Account) TotalOutstanding() decimal.Decimal {
	return a.OutstandingPrincipal.Add(a.OutstandingInterest).Add(a.OutstandingPenalty)
}

// PendingInstallments returns the unsettled installments oldest-first
func (a *Account) PendingInstallments() []*Installment {
	pending := make([]*Installment, 0, len(a.Installments))
	for _, inst := range a.Installments {
		if !inst.Settled() {
			pending = append(pending, inst)
		}
	}
	return pending
}

// ApplyAllocation applies an allocation produced by Allocate to the schedule
// and the aggregate balances as one step, then re-evaluates the loan status.
// The account must not be in a terminal status.
func (a *Account) ApplyAllocation(alloc *Allocation, valueDate time.Time) error {
	if a.Status.Terminal() {
		return LoanClosedError{LoanID: a.ID, Status: a.Status}
	}
	if a.Status == StatusPendingDisbursement {
		return ValidationError{Field: "status", Reason: "loan awaiting disbursement"}
	}

	byNumber := make(map[int]*Installment, len(a.Installments))
	for _, inst := range a.Installments {
		byNumber[inst.Number] = inst
	}

	for _, line := range alloc.Lines {
		inst, ok := byNumber[line.Number]
		if !ok {
			return ValidationError{Field: "allocation", Reason: fmt.Sprintf("unknown installment %d", line.Number)}
		}
		inst.PaidPenalty = inst.PaidPenalty.Add(line.Penalty)
		inst.PaidInterest = inst.PaidInterest.Add(line.Interest)
		inst.PaidPrincipal = inst.PaidPrincipal.Add(line.Principal)
		if inst.Settled() {
			inst.DaysOverdue = 0
		}
		inst.refreshStatus(valueDate)
	}

	a.OutstandingPenalty = a.OutstandingPenalty.Sub(alloc.Penalty)
	a.OutstandingInterest = a.OutstandingInterest.Sub(alloc.Interest)
	a.OutstandingPrincipal = a.OutstandingPrincipal.Sub(alloc.Principal)
	a.PaidPenalty = a.PaidPenalty.Add(alloc.Penalty)
	a.PaidInterest = a.PaidInterest.Add(alloc.Interest)
	a.PaidPrincipal = a.PaidPrincipal.Add(alloc.Principal)

	a.refreshCounters()
	a.refreshStatus()
	a.touch(valueDate)

	return a.CheckInvariant()
}

// MarkDefaulted transitions the loan to the terminal Defaulted status.
// Administrative action; further payments are rejected.
func (a *Account) MarkDefaulted(now time.Time) error {
	return a.close(StatusDefaulted, now)
}

// MarkWrittenOff transitions the loan to the terminal WrittenOff status
func (a *Account) MarkWrittenOff(now time.Time) error {
	return a.close(StatusWrittenOff, now)
}

func (a *Account) close(status Status, now time.Time) error {
	if a.Status.Terminal() {
		return LoanClosedError{LoanID: a.ID, Status: a.Status}
	}
	a.Status = status
	a.touch(now)
	return nil
}

// CloseEarly settles the loan after an early payoff: the principal must be
// fully paid, and remaining unearned interest and unpaid penalties on future
// installments are waived so the loan reads Completed.
func (a *Account) CloseEarly(valueDate time.Time) error {
	if a.Status.Terminal() {
		return LoanClosedError{LoanID: a.ID, Status: a.Status}
	}
	if !a.OutstandingPrincipal.IsZero() {
		return ValidationError{Field: "payoff", Reason: "principal not fully settled"}
	}

	for _, inst := range a.Installments {
		if inst.Settled() {
			continue
		}
		waivedCost := inst.CostDue()
		waivedPenalty := inst.PenaltyDue()
		inst.Interest = inst.Interest.Sub(waivedCost) // fee already folded into CostDue via PaidInterest
		if inst.Interest.IsNegative() {
			inst.Fee = inst.Fee.Add(inst.Interest)
			inst.Interest = decimal.Zero
		}
		inst.Penalty = inst.Penalty.Sub(waivedPenalty)
		inst.DaysOverdue = 0
		inst.refreshStatus(valueDate)

		a.OutstandingInterest = a.OutstandingInterest.Sub(waivedCost)
		a.OutstandingPenalty = a.OutstandingPenalty.Sub(waivedPenalty)
	}

	a.refreshCounters()
	a.Status = StatusCompleted
	a.touch(valueDate)
	return a.CheckInvariant()
}

// CheckInvariant verifies that the aggregate outstanding balances foot to the
// sum of unpaid installment residuals
func (a *Account) CheckInvariant() error {
	sum := decimal.Zero
	for _, inst := range a.Installments {
		sum = sum.Add(inst.Residual())
	}
	if !sum.Equal(a.TotalOutstanding()) {
		return fmt.Errorf("loan %s balance invariant violated: outstanding %s, installment residuals %s",
			a.ID, a.TotalOutstanding().StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

func (a *Account) refreshCounters() {
	paid := 0
	a.NextDueDate = nil
	for _, inst := range a.Installments {
		if inst.Settled() {
			paid++
			continue
		}
		if a.NextDueDate == nil {
			due := inst.DueDate
			a.NextDueDate = &due
		}
	}
	a.InstallmentsPaid = paid
}

// refreshStatus re-evaluates Active/Overdue/Completed from the schedule.
// Terminal administrative statuses are never changed here, and a pending loan
// only becomes Active through Activate. Reinstatement from Overdue back to
// Active happens when all overdue installments are current.
func (a *Account) refreshStatus() {
	if a.Status.Terminal() || a.Status == StatusPendingDisbursement {
		return
	}

	if a.TotalOutstanding().IsZero() {
		a.Status = StatusCompleted
		return
	}

	for _, inst := range a.Installments {
		if !inst.Settled() && inst.Status == InstallmentStatusOverdue {
			a.Status = StatusOverdue
			return
		}
	}
	a.Status = StatusActive
}

func (a *Account) touch(now time.Time) {
	a.UpdatedAt = now
	a.Version++
}
