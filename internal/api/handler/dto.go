package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// DisburseLoanRequest carries the approved-application snapshot used to open
// a loan. Monetary amounts travel as decimal strings to keep cents exact.
type DisburseLoanRequest struct {
	BorrowerName   string `json:"borrower_name" binding:"required"`
	NationalID     string `json:"national_id" binding:"required"`
	BranchCode     string `json:"branch_code"`
	Principal      string `json:"principal" binding:"required"`
	Currency       string `json:"currency" binding:"required,len=3"`
	AnnualRate     string `json:"annual_rate" binding:"required"`
	DurationMonths int    `json:"duration_months" binding:"required,min=1"`
	Method         string `json:"method" binding:"required,oneof=FLAT DECLINING_BALANCE"`
	Fee            string `json:"fee"`
	DisbursedAt    string `json:"disbursed_at"`    // RFC 3339 date, defaults to today
	FirstDueDate   string `json:"first_due_date"`  // RFC 3339 date, defaults to one month out
}

// CreatePaymentRequest carries a payment to apply against a loan
type CreatePaymentRequest struct {
	Amount    string        `json:"amount" binding:"required"`
	Currency  string        `json:"currency" binding:"omitempty,len=3"` // empty means the loan's own currency
	Mode      string        `json:"mode" binding:"omitempty,oneof=STANDARD PRINCIPAL_PRIORITY CUSTOM"`
	Split     *SplitRequest `json:"split,omitempty"`
	ValueDate string        `json:"value_date"` // RFC 3339 date, defaults to today
	Method    string        `json:"method" binding:"required,oneof=CASH TRANSFER MOBILE CHEQUE"`
	Reference string        `json:"reference"`
	TellerID  string        `json:"teller_id"`
}

// SplitRequest is the explicit bucket split for CUSTOM mode payments
type SplitRequest struct {
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Penalty   string `json:"penalty"`
}

// PayoffQuoteRequest selects the settlement date for an early payoff quote
type PayoffQuoteRequest struct {
	AsOf string `json:"as_of"` // RFC 3339 date, defaults to today
}

// SettlePayoffRequest executes an early payoff at the quoted amount
type SettlePayoffRequest struct {
	ValueDate string `json:"value_date"`
	Method    string `json:"method" binding:"required,oneof=CASH TRANSFER MOBILE CHEQUE"`
	Reference string `json:"reference"`
	TellerID  string `json:"teller_id"`
}

// CloseLoanRequest transitions a loan to a terminal administrative status
type CloseLoanRequest struct {
	Status string `json:"status" binding:"required,oneof=DEFAULTED WRITTEN_OFF"`
	Actor  string `json:"actor"` // operator identity for audit attribution
}

// CreateNoteRequest adds a collection note to a loan
type CreateNoteRequest struct {
	Author string `json:"author" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// LoanResponse represents a loan account in API responses
type LoanResponse struct {
	ID                   string                `json:"id"`
	BorrowerName         string                `json:"borrower_name"`
	NationalID           string                `json:"national_id"`
	BranchCode           string                `json:"branch_code,omitempty"`
	Principal            string                `json:"principal"`
	Currency             string                `json:"currency"`
	AnnualRate           string                `json:"annual_rate"`
	DurationMonths       int                   `json:"duration_months"`
	Method               string                `json:"method"`
	Status               string                `json:"status"`
	OutstandingPrincipal string                `json:"outstanding_principal"`
	OutstandingInterest  string                `json:"outstanding_interest"`
	OutstandingPenalty   string                `json:"outstanding_penalty"`
	TotalOutstanding     string                `json:"total_outstanding"`
	InstallmentsPaid     int                   `json:"installments_paid"`
	NextDueDate          string                `json:"next_due_date,omitempty"`
	Schedule             []InstallmentResponse `json:"schedule,omitempty"`
	CreatedAt            string                `json:"created_at"`
	UpdatedAt            string                `json:"updated_at"`
}

// InstallmentResponse represents one scheduled installment
type InstallmentResponse struct {
	Number      int    `json:"number"`
	DueDate     string `json:"due_date"`
	Principal   string `json:"principal"`
	Interest    string `json:"interest"`
	Fee         string `json:"fee,omitempty"`
	Penalty     string `json:"penalty,omitempty"`
	Residual    string `json:"residual"`
	DaysOverdue int    `json:"days_overdue,omitempty"`
	Status      string `json:"status"`
	PaidAt      string `json:"paid_at,omitempty"`
}

// PaymentResponse represents an applied payment with its allocation breakdown
type PaymentResponse struct {
	ID               string `json:"id"`
	LoanID           string `json:"loan_id"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Mode             string `json:"mode"`
	PrincipalApplied string `json:"principal_applied"`
	InterestApplied  string `json:"interest_applied"`
	PenaltyApplied   string `json:"penalty_applied"`
	ValueDate        string `json:"value_date"`
	Method           string `json:"method"`
	Reference        string `json:"reference,omitempty"`
	TellerID         string `json:"teller_id,omitempty"`
	Snapshot         struct {
		Principal string `json:"principal"`
		Interest  string `json:"interest"`
		Penalty   string `json:"penalty"`
	} `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// PayoffQuoteResponse represents an early settlement quote
type PayoffQuoteResponse struct {
	AsOf            string `json:"as_of"`
	Principal       string `json:"principal"`
	Interest        string `json:"interest"`
	Penalty         string `json:"penalty"`
	Discount        string `json:"discount"`
	PayoffAmount    string `json:"payoff_amount"`
	InterestSavings string `json:"interest_savings"`
	PenaltySavings  string `json:"penalty_savings"`
}

// NoteResponse represents a collection note
type NoteResponse struct {
	ID        string `json:"id"`
	LoanID    string `json:"loan_id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// EventResponse represents one audit trail entry
type EventResponse struct {
	ID            string      `json:"id"`
	LoanID        string      `json:"loan_id"`
	Type          string      `json:"type"`
	Payload       interface{} `json:"payload,omitempty"`
	ActorID       string      `json:"actor_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	RecordedAt    string      `json:"recorded_at"`
}

// SweepResponse summarizes an accrual run
type SweepResponse struct {
	Total   int `json:"total"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

func mapLoanToResponse(acc *loan.Account, withSchedule bool) LoanResponse {
	resp := LoanResponse{
		ID:                   acc.ID.String(),
		BorrowerName:         acc.BorrowerName,
		NationalID:           acc.NationalID,
		BranchCode:           acc.BranchCode,
		Principal:            acc.Terms.Principal.StringFixed(2),
		Currency:             acc.Terms.Currency,
		AnnualRate:           acc.Terms.AnnualRate.String(),
		DurationMonths:       acc.Terms.DurationMonths,
		Method:               string(acc.Terms.Method),
		Status:               string(acc.Status),
		OutstandingPrincipal: acc.OutstandingPrincipal.StringFixed(2),
		OutstandingInterest:  acc.OutstandingInterest.StringFixed(2),
		OutstandingPenalty:   acc.OutstandingPenalty.StringFixed(2),
		TotalOutstanding:     acc.TotalOutstanding().StringFixed(2),
		InstallmentsPaid:     acc.InstallmentsPaid,
		CreatedAt:            acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            acc.UpdatedAt.Format(time.RFC3339),
	}
	if acc.NextDueDate != nil {
		resp.NextDueDate = acc.NextDueDate.Format("2006-01-02")
	}
	if withSchedule {
		resp.Schedule = mapScheduleToResponse(acc.Installments)
	}
	return resp
}

func mapScheduleToResponse(installments []*loan.Installment) []InstallmentResponse {
	out := make([]InstallmentResponse, 0, len(installments))
	for _, inst := range installments {
		item := InstallmentResponse{
			Number:      inst.Number,
			DueDate:     inst.DueDate.Format("2006-01-02"),
			Principal:   inst.Principal.StringFixed(2),
			Interest:    inst.Interest.StringFixed(2),
			Residual:    inst.Residual().StringFixed(2),
			DaysOverdue: inst.DaysOverdue,
			Status:      string(inst.Status),
		}
		if inst.Fee.IsPositive() {
			item.Fee = inst.Fee.StringFixed(2)
		}
		if inst.Penalty.IsPositive() {
			item.Penalty = inst.Penalty.StringFixed(2)
		}
		if inst.PaidAt != nil {
			item.PaidAt = inst.PaidAt.Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return out
}

func mapPaymentToResponse(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID.String(),
		LoanID:           p.LoanID.String(),
		Amount:           p.Amount.StringFixed(2),
		Currency:         p.Currency,
		Mode:             string(p.Mode),
		PrincipalApplied: p.PrincipalApplied.StringFixed(2),
		InterestApplied:  p.InterestApplied.StringFixed(2),
		PenaltyApplied:   p.PenaltyApplied.StringFixed(2),
		ValueDate:        p.ValueDate.Format("2006-01-02"),
		Method:           string(p.Method),
		Reference:        p.Reference,
		TellerID:         p.TellerID,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	resp.Snapshot.Principal = p.Snapshot.Principal.StringFixed(2)
	resp.Snapshot.Interest = p.Snapshot.Interest.StringFixed(2)
	resp.Snapshot.Penalty = p.Snapshot.Penalty.StringFixed(2)
	return resp
}

func mapQuoteToResponse(q *loan.PayoffQuote) PayoffQuoteResponse {
	return PayoffQuoteResponse{
		AsOf:            q.AsOf.Format("2006-01-02"),
		Principal:       q.Principal.StringFixed(2),
		Interest:        q.Interest.StringFixed(2),
		Penalty:         q.Penalty.StringFixed(2),
		Discount:        q.Discount.StringFixed(2),
		PayoffAmount:    q.PayoffAmount.StringFixed(2),
		InterestSavings: q.InterestSavings.StringFixed(2),
		PenaltySavings:  q.PenaltySavings.StringFixed(2),
	}
}

func mapNoteToResponse(note *audit.CollectionNote) NoteResponse {
	return NoteResponse{
		ID:        note.ID.String(),
		LoanID:    note.LoanID.String(),
		Author:    note.Author,
		Text:      note.Text,
		CreatedAt: note.CreatedAt.Format(time.RFC3339),
	}
}

func mapEventToResponse(event *audit.Event) EventResponse {
	return EventResponse{
		ID:            event.ID.String(),
		LoanID:        event.LoanID.String(),
		Type:          string(event.Type),
		Payload:       event.Payload,
		ActorID:       event.ActorID,
		CorrelationID: event.CorrelationID,
		RecordedAt:    event.RecordedAt.Format(time.RFC3339),
	}
}

// parseAmount parses a decimal string field, rejecting malformed values
func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, loan.ValidationError{Field: field, Reason: "not a valid decimal"}
	}
	return d, nil
}

// parseOptionalAmount parses a decimal string field, empty meaning zero
func parseOptionalAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return parseAmount(field, value)
}

// parseDate parses an RFC 3339 date or datetime, empty meaning the zero time
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, loan.ValidationError{Field: field, Reason: "not a valid date"}
	}
	return t, nil
}
