package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method selects the amortization formula used to build a schedule
type Method string

const (
	// MethodDecliningBalance charges each period's interest on the remaining
	// principal and keeps the total payment level across installments.
	MethodDecliningBalance Method = "DECLINING_BALANCE"

	// MethodFlat charges interest on the original principal for the whole
	// term and splits principal and interest evenly across installments.
	MethodFlat Method = "FLAT"
)

// Terms holds the immutable financial terms of a loan, fixed at disbursement
type Terms struct {
	Principal      decimal.Decimal `json:"principal"`
	Currency       string          `json:"currency"`
	AnnualRate     decimal.Decimal `json:"annual_rate"` // 0.05 == 5% nominal per year
	DurationMonths int             `json:"duration_months"`
	Method         Method          `json:"method"`
	Fee            decimal.Decimal `json:"fee"` // flat servicing fee spread across installments
	DisbursedAt    time.Time       `json:"disbursed_at"`
	FirstDueDate   time.Time       `json:"first_due_date"`
}

// Validate checks the terms invariants: principal > 0, rate >= 0, duration >= 1
func (t Terms) Validate() error {
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if t.AnnualRate.IsNegative() {
		return ValidationError{Field: "annual_rate", Reason: "must not be negative"}
	}
	if t.DurationMonths < 1 {
		return ValidationError{Field: "duration_months", Reason: "must be at least 1"}
	}
	if len(t.Currency) != 3 {
		return ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}
	if t.Method != MethodDecliningBalance && t.Method != MethodFlat {
		return ValidationError{Field: "method", Reason: "unknown amortization method"}
	}
	if t.Fee.IsNegative() {
		return ValidationError{Field: "fee", Reason: "must not be negative"}
	}
	if t.FirstDueDate.Before(t.DisbursedAt) {
		return ValidationError{Field: "first_due_date", Reason: "must not precede disbursement date"}
	}
	return nil
}

// PeriodRate returns the monthly interest rate derived from the annual rate
func (t Terms) PeriodRate() decimal.Decimal {
	return t.AnnualRate.Div(decimal.NewFromInt(12))
}
