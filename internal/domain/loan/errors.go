package loan

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError indicates malformed loan terms or payment input.
// It is always raised before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches any ValidationError when the target carries no field
func (e ValidationError) Is(target error) bool {
	t, ok := target.(ValidationError)
	if !ok {
		return false
	}
	if t.Field == "" {
		return true
	}
	return e.Field == t.Field
}

// OverpaymentError indicates a standard-mode payment exceeding the total
// outstanding balance of the loan
type OverpaymentError struct {
	LoanID      uuid.UUID
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
}

func (e OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance %s for loan %s",
		e.Amount.StringFixed(2), e.Outstanding.StringFixed(2), e.LoanID)
}

func (e OverpaymentError) Is(target error) bool {
	t, ok := target.(OverpaymentError)
	if !ok {
		return false
	}
	if t.LoanID == uuid.Nil {
		return true
	}
	return e.LoanID == t.LoanID
}

// LoanClosedError indicates a mutation attempted on a terminal-status loan
type LoanClosedError struct {
	LoanID uuid.UUID
	Status Status
}

func (e LoanClosedError) Error() string {
	return fmt.Sprintf("loan %s is closed with status %s", e.LoanID, e.Status)
}

func (e LoanClosedError) Is(target error) bool {
	t, ok := target.(LoanClosedError)
	if !ok {
		return false
	}
	if t.LoanID == uuid.Nil {
		return true
	}
	return e.LoanID == t.LoanID
}

// ConcurrencyConflictError indicates an optimistic-lock mismatch on the loan
// aggregate. Callers are expected to retry with fresh state.
type ConcurrencyConflictError struct {
	LoanID uuid.UUID
}

func (e ConcurrencyConflictError) Error() string {
	return "concurrent modification detected for loan: " + e.LoanID.String()
}

func (e ConcurrencyConflictError) Is(target error) bool {
	t, ok := target.(ConcurrencyConflictError)
	if !ok {
		return false
	}
	if t.LoanID == uuid.Nil {
		return true
	}
	return e.LoanID == t.LoanID
}

// AllocationMismatchError indicates a custom allocation whose split does not
// sum to the payment amount or exceeds a bucket's outstanding balance
type AllocationMismatchError struct {
	Reason string
}

func (e AllocationMismatchError) Error() string {
	return "allocation mismatch: " + e.Reason
}

func (e AllocationMismatchError) Is(target error) bool {
	t, ok := target.(AllocationMismatchError)
	if !ok {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// LoanNotFoundError indicates a missing loan
type LoanNotFoundError struct {
	LoanID uuid.UUID
}

func (e LoanNotFoundError) Error() string {
	return "loan not found: " + e.LoanID.String()
}

func (e LoanNotFoundError) Is(target error) bool {
	t, ok := target.(LoanNotFoundError)
	if !ok {
		return false
	}
	if t.LoanID == uuid.Nil {
		return true
	}
	return e.LoanID == t.LoanID
}
