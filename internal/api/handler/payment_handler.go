package handler

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/api/middleware"
	"github.com/microfin-loan-servicing/internal/api/service"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// PaymentHandler handles HTTP requests for payment operations
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Create applies a payment against a loan and returns the allocation breakdown
func (h *PaymentHandler) Create(c *gin.Context) {
	instr, ok := h.bindInstruction(c)
	if !ok {
		return
	}

	ctx := servicing.WithCorrelationID(c.Request.Context(), middleware.GetCorrelationID(c))
	applied, err := h.paymentService.Apply(ctx, instr)
	if err != nil {
		h.logger.Error("Failed to apply payment",
			"payment_id", instr.ID.String(),
			"loan_id", instr.LoanID.String(),
			"error", err,
		)
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapPaymentToResponse(applied))
}

// Enqueue queues a payment instruction for asynchronous application by the
// worker. Responds 202 with the instruction ID, which is also the payment ID
// once applied.
func (h *PaymentHandler) Enqueue(c *gin.Context) {
	instr, ok := h.bindInstruction(c)
	if !ok {
		return
	}

	if err := h.paymentService.Enqueue(c.Request.Context(), instr); err != nil {
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, gin.H{
		"payment_id": instr.ID.String(),
		"loan_id":    instr.LoanID.String(),
		"status":     "QUEUED",
	})
}

// GetByID retrieves payment details by its ID, returns 404 if not found
func (h *PaymentHandler) GetByID(c *gin.Context) {
	idParam := c.Param("payment_id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid payment ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid payment ID")
		return
	}

	p, err := h.paymentService.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	RespondOK(c, mapPaymentToResponse(p))
}

// GetByLoanID retrieves paginated payment history for a loan
func (h *PaymentHandler) GetByLoanID(c *gin.Context) {
	loanIDParam := c.Param("id")
	loanID, err := uuid.Parse(loanIDParam)
	if err != nil {
		h.logger.Error("Invalid loan ID", "loan_id", loanIDParam, "error", err)
		RespondBadRequest(c, "Invalid loan ID")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	payments, total, err := h.paymentService.ListByLoan(
		c.Request.Context(),
		loanID,
		pagination.Page,
		pagination.PerPage,
	)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	items := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		items = append(items, mapPaymentToResponse(p))
	}

	RespondWithPaginatedData(c, http.StatusOK, items, pagination.Page, pagination.PerPage, int(total))
}

// bindInstruction parses and validates the payment request body into a
// domain instruction. A fresh instruction ID is minted per request.
func (h *PaymentHandler) bindInstruction(c *gin.Context) (*payment.Instruction, bool) {
	loanIDParam := c.Param("id")
	loanID, err := uuid.Parse(loanIDParam)
	if err != nil {
		h.logger.Error("Invalid loan ID", "loan_id", loanIDParam, "error", err)
		RespondBadRequest(c, "Invalid loan ID")
		return nil, false
	}

	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return nil, false
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		RespondDomainError(c, err)
		return nil, false
	}

	valueDate, err := parseDate("value_date", req.ValueDate)
	if err != nil {
		RespondDomainError(c, err)
		return nil, false
	}

	split, err := splitFromRequest(req.Split)
	if err != nil {
		RespondDomainError(c, err)
		return nil, false
	}

	mode := loan.AllocationMode(req.Mode)
	if mode == "" {
		mode = loan.ModeStandard
	}

	return &payment.Instruction{
		ID:        uuid.New(),
		LoanID:    loanID,
		Amount:    amount,
		Currency:  req.Currency,
		Mode:      mode,
		Split:     split,
		ValueDate: valueDate,
		Method:    payment.Method(req.Method),
		Reference: req.Reference,
		TellerID:  req.TellerID,
	}, true
}
