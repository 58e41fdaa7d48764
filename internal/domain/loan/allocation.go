package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationMode selects how a payment is split across buckets
type AllocationMode string

const (
	// ModeStandard walks pending installments oldest-first, applying the
	// payment to penalty, then interest, then principal, fully settling an
	// installment before moving to the next.
	ModeStandard AllocationMode = "STANDARD"

	// ModePrincipalPriority settles dues on installments already due, then
	// applies the remainder to the principal of the earliest unpaid
	// installments. Used for voluntary principal prepayment and early payoff.
	ModePrincipalPriority AllocationMode = "PRINCIPAL_PRIORITY"

	// ModeCustom applies an explicit caller-supplied split per bucket
	ModeCustom AllocationMode = "CUSTOM"
)

// Split is an explicit per-bucket allocation supplied with a custom payment
type Split struct {
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Penalty   decimal.Decimal `json:"penalty"`
}

// Sum returns the total of the split
func (s Split) Sum() decimal.Decimal {
	return s.Principal.Add(s.Interest).Add(s.Penalty)
}

// AllocationLine records the amounts applied to one installment
type AllocationLine struct {
	Number    int             `json:"number"`
	Penalty   decimal.Decimal `json:"penalty"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
}

// Total returns the amount the line applies to its installment
func (l *AllocationLine) Total() decimal.Decimal {
	return l.Penalty.Add(l.Interest).Add(l.Principal)
}

// Allocation is the outcome of splitting a payment across installments.
// It is a pure description of deltas; applying it to the loan account is a
// separate, atomic step.
type Allocation struct {
	Mode      AllocationMode   `json:"mode"`
	Penalty   decimal.Decimal  `json:"penalty"`
	Interest  decimal.Decimal  `json:"interest"`
	Principal decimal.Decimal  `json:"principal"`
	Lines     []AllocationLine `json:"lines"`
}

// Total returns the allocated amount across all buckets
func (a *Allocation) Total() decimal.Decimal {
	return a.Penalty.Add(a.Interest).Add(a.Principal)
}

// allocator accumulates lines against a snapshot of installment residuals
// without mutating the installments themselves
type allocator struct {
	installments []*Installment
	lines        map[int]*AllocationLine
	order        []int
}

func newAllocator(installments []*Installment) *allocator {
	return &allocator{
		installments: installments,
		lines:        make(map[int]*AllocationLine),
	}
}

func (al *allocator) line(number int) *AllocationLine {
	if l, ok := al.lines[number]; ok {
		return l
	}
	l := &AllocationLine{Number: number}
	al.lines[number] = l
	al.order = append(al.order, number)
	return l
}

func (al *allocator) penaltyDue(i *Installment) decimal.Decimal {
	return i.PenaltyDue().Sub(al.line(i.Number).Penalty)
}

func (al *allocator) costDue(i *Installment) decimal.Decimal {
	return i.CostDue().Sub(al.line(i.Number).Interest)
}

func (al *allocator) principalDue(i *Installment) decimal.Decimal {
	return i.PrincipalDue().Sub(al.line(i.Number).Principal)
}

func (al *allocator) result(mode AllocationMode) *Allocation {
	out := &Allocation{Mode: mode}
	for _, number := range al.order {
		l := al.lines[number]
		if l.Total().IsZero() {
			continue
		}
		out.Lines = append(out.Lines, *l)
		out.Penalty = out.Penalty.Add(l.Penalty)
		out.Interest = out.Interest.Add(l.Interest)
		out.Principal = out.Principal.Add(l.Principal)
	}
	return out
}

// Allocate splits a payment amount across the given pending installments,
// which must be ordered oldest-first. The installments are not mutated.
//
// In ModeStandard any remainder beyond full payoff is rejected with
// OverpaymentError. ModePrincipalPriority first settles installments whose
// due date has passed as of valueDate, then applies the remainder to
// principal oldest-first. ModeCustom requires a split whose sum equals the
// amount and whose buckets fit within the outstanding balances.
func Allocate(installments []*Installment, amount decimal.Decimal, mode AllocationMode, split *Split, valueDate time.Time) (*Allocation, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ValidationError{Field: "amount", Reason: "must be positive"}
	}

	pending := make([]*Installment, 0, len(installments))
	for _, inst := range installments {
		if !inst.Settled() {
			pending = append(pending, inst)
		}
	}

	switch mode {
	case ModeStandard:
		return allocateStandard(pending, amount)
	case ModePrincipalPriority:
		return allocatePrincipalPriority(pending, amount, valueDate)
	case ModeCustom:
		if split == nil {
			return nil, ValidationError{Field: "split", Reason: "required for custom allocation"}
		}
		return allocateCustom(pending, amount, *split)
	default:
		return nil, ValidationError{Field: "mode", Reason: "unknown allocation mode"}
	}
}

// allocateStandard implements the waterfall: per installment oldest-first,
// penalty before interest before principal. Interest of a later installment
// is never touched before the principal of an earlier one is settled.
func allocateStandard(pending []*Installment, amount decimal.Decimal) (*Allocation, error) {
	al := newAllocator(pending)
	remaining := amount

	for _, inst := range pending {
		remaining = al.drain(inst, remaining)
		if remaining.IsZero() {
			break
		}
	}

	if remaining.IsPositive() {
		outstanding := amount.Sub(remaining)
		return nil, OverpaymentError{Amount: amount, Outstanding: outstanding}
	}

	return al.result(ModeStandard), nil
}

// allocatePrincipalPriority settles due installments with the full waterfall,
// then pushes the remainder into principal of the earliest unpaid
// installments. Remainder beyond the total principal is still an overpayment.
func allocatePrincipalPriority(pending []*Installment, amount decimal.Decimal, valueDate time.Time) (*Allocation, error) {
	al := newAllocator(pending)
	remaining := amount

	for _, inst := range pending {
		if inst.DueDate.After(valueDate) {
			break
		}
		remaining = al.drain(inst, remaining)
		if remaining.IsZero() {
			break
		}
	}

	for _, inst := range pending {
		if remaining.IsZero() {
			break
		}
		applied := decimal.Min(remaining, al.principalDue(inst))
		if applied.IsPositive() {
			al.line(inst.Number).Principal = al.line(inst.Number).Principal.Add(applied)
			remaining = remaining.Sub(applied)
		}
	}

	if remaining.IsPositive() {
		outstanding := amount.Sub(remaining)
		return nil, OverpaymentError{Amount: amount, Outstanding: outstanding}
	}

	return al.result(ModePrincipalPriority), nil
}

// allocateCustom applies an explicit split, each bucket oldest-first
func allocateCustom(pending []*Installment, amount decimal.Decimal, split Split) (*Allocation, error) {
	if split.Penalty.IsNegative() || split.Interest.IsNegative() || split.Principal.IsNegative() {
		return nil, AllocationMismatchError{Reason: "split buckets must not be negative"}
	}
	if !split.Sum().Equal(amount) {
		return nil, AllocationMismatchError{Reason: "split does not sum to payment amount"}
	}

	al := newAllocator(pending)

	remaining := split.Penalty
	for _, inst := range pending {
		if remaining.IsZero() {
			break
		}
		applied := decimal.Min(remaining, al.penaltyDue(inst))
		if applied.IsPositive() {
			al.line(inst.Number).Penalty = al.line(inst.Number).Penalty.Add(applied)
			remaining = remaining.Sub(applied)
		}
	}
	if remaining.IsPositive() {
		return nil, AllocationMismatchError{Reason: "penalty bucket exceeds outstanding penalties"}
	}

	remaining = split.Interest
	for _, inst := range pending {
		if remaining.IsZero() {
			break
		}
		applied := decimal.Min(remaining, al.costDue(inst))
		if applied.IsPositive() {
			al.line(inst.Number).Interest = al.line(inst.Number).Interest.Add(applied)
			remaining = remaining.Sub(applied)
		}
	}
	if remaining.IsPositive() {
		return nil, AllocationMismatchError{Reason: "interest bucket exceeds outstanding interest"}
	}

	remaining = split.Principal
	for _, inst := range pending {
		if remaining.IsZero() {
			break
		}
		applied := decimal.Min(remaining, al.principalDue(inst))
		if applied.IsPositive() {
			al.line(inst.Number).Principal = al.line(inst.Number).Principal.Add(applied)
			remaining = remaining.Sub(applied)
		}
	}
	if remaining.IsPositive() {
		return nil, AllocationMismatchError{Reason: "principal bucket exceeds outstanding principal"}
	}

	return al.result(ModeCustom), nil
}

// drain applies as much of remaining as possible to one installment in
// penalty, interest, principal order and returns what is left
func (al *allocator) drain(inst *Installment, remaining decimal.Decimal) decimal.Decimal {
	l := al.line(inst.Number)

	applied := decimal.Min(remaining, al.penaltyDue(inst))
	if applied.IsPositive() {
		l.Penalty = l.Penalty.Add(applied)
		remaining = remaining.Sub(applied)
	}

	applied = decimal.Min(remaining, al.costDue(inst))
	if applied.IsPositive() {
		l.Interest = l.Interest.Add(applied)
		remaining = remaining.Sub(applied)
	}

	applied = decimal.Min(remaining, al.principalDue(inst))
	if applied.IsPositive() {
		l.Principal = l.Principal.Add(applied)
		remaining = remaining.Sub(applied)
	}

	return remaining
}
