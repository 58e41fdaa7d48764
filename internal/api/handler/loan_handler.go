package handler

import (
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/api/middleware"
	"github.com/microfin-loan-servicing/internal/api/service"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// LoanHandler handles HTTP requests for loan lifecycle operations
type LoanHandler struct {
	loanService service.LoanService
	logger      *slog.Logger
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(logger *slog.Logger, loanService service.LoanService) *LoanHandler {
	return &LoanHandler{
		loanService: loanService,
		logger:      logger,
	}
}

// Create disburses a new loan from an approved application snapshot
func (h *LoanHandler) Create(c *gin.Context) {
	var req DisburseLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	terms, err := termsFromRequest(&req)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	ctx := servicing.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	acc, err := h.loanService.Disburse(ctx, loan.ApplicationSnapshot{
		BorrowerName: req.BorrowerName,
		NationalID:   req.NationalID,
		BranchCode:   req.BranchCode,
		Terms:        terms,
	})
	if err != nil {
		h.logger.Error("Failed to disburse loan", "borrower", req.BorrowerName, "error", err)
		RespondDomainError(c, err)
		return
	}

	RespondCreated(c, mapLoanToResponse(acc, true))
}

// GetByID retrieves loan details, returns 404 if not found
func (h *LoanHandler) GetByID(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	acc, err := h.loanService.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapLoanToResponse(acc, false))
}

// GetSchedule retrieves the full installment schedule of a loan
func (h *LoanHandler) GetSchedule(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	acc, err := h.loanService.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapScheduleToResponse(acc.Installments))
}

// PayoffQuote computes the early settlement amount for a given date
func (h *LoanHandler) PayoffQuote(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	var req PayoffQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	asOf, err := parseDate("as_of", req.AsOf)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	quote, err := h.loanService.QuotePayoff(c.Request.Context(), id, asOf)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapQuoteToResponse(quote))
}

// SettlePayoff executes an early payoff at the quoted amount
func (h *LoanHandler) SettlePayoff(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	var req SettlePayoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	valueDate, err := parseDate("value_date", req.ValueDate)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	ctx := servicing.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	applied, err := h.loanService.SettlePayoff(ctx, id, servicing.EarlyPayoffRequest{
		ValueDate: valueDate,
		Method:    payment.Method(req.Method),
		Reference: req.Reference,
		TellerID:  req.TellerID,
	})
	if err != nil {
		h.logger.Error("Failed to settle early payoff", "loan_id", id.String(), "error", err)
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapPaymentToResponse(applied))
}

// Close transitions a loan to Defaulted or WrittenOff
func (h *LoanHandler) Close(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	var req CloseLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ctx := servicing.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	acc, err := h.loanService.Close(ctx, id, loan.Status(req.Status), req.Actor)
	if err != nil {
		h.logger.Error("Failed to close loan", "loan_id", id.String(), "status", req.Status, "error", err)
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapLoanToResponse(acc, false))
}

// Accrue recomputes overdue counters and penalties for one loan
func (h *LoanHandler) Accrue(c *gin.Context) {
	id, ok := h.loanID(c)
	if !ok {
		return
	}

	changed, acc, err := h.loanService.Accrue(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, gin.H{
		"changed": changed,
		"loan":    mapLoanToResponse(acc, false),
	})
}

// Sweep runs the accrual pass over all serviceable loans
func (h *LoanHandler) Sweep(c *gin.Context) {
	report := h.loanService.Sweep(c.Request.Context())
	RespondOK(c, SweepResponse{
		Total:   report.Total,
		Changed: report.Changed,
		Failed:  report.Failed,
	})
}

func (h *LoanHandler) loanID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid loan ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid loan ID")
		return uuid.Nil, false
	}
	return id, true
}

func termsFromRequest(req *DisburseLoanRequest) (loan.Terms, error) {
	principal, err := parseAmount("principal", req.Principal)
	if err != nil {
		return loan.Terms{}, err
	}
	rate, err := parseAmount("annual_rate", req.AnnualRate)
	if err != nil {
		return loan.Terms{}, err
	}
	fee, err := parseOptionalAmount("fee", req.Fee)
	if err != nil {
		return loan.Terms{}, err
	}
	disbursedAt, err := parseDate("disbursed_at", req.DisbursedAt)
	if err != nil {
		return loan.Terms{}, err
	}
	firstDue, err := parseDate("first_due_date", req.FirstDueDate)
	if err != nil {
		return loan.Terms{}, err
	}

	if disbursedAt.IsZero() {
		disbursedAt = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if firstDue.IsZero() {
		firstDue = disbursedAt.AddDate(0, 1, 0)
	}

	return loan.Terms{
		Principal:      principal,
		Currency:       req.Currency,
		AnnualRate:     rate,
		DurationMonths: req.DurationMonths,
		Method:         loan.Method(req.Method),
		Fee:            fee,
		DisbursedAt:    disbursedAt,
		FirstDueDate:   firstDue,
	}, nil
}

// splitFromRequest converts an optional split DTO into the domain type
func splitFromRequest(req *SplitRequest) (*loan.Split, error) {
	if req == nil {
		return nil, nil
	}
	principal, err := parseOptionalAmount("split.principal", req.Principal)
	if err != nil {
		return nil, err
	}
	interest, err := parseOptionalAmount("split.interest", req.Interest)
	if err != nil {
		return nil, err
	}
	penalty, err := parseOptionalAmount("split.penalty", req.Penalty)
	if err != nil {
		return nil, err
	}
	return &loan.Split{Principal: principal, Interest: interest, Penalty: penalty}, nil
}
