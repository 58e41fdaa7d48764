package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
)

// RespondUnprocessable sends a 422 response for requests that are well-formed
// but rejected by the servicing rules
func RespondUnprocessable(c *gin.Context, code, message string) {
	RespondWithError(c, http.StatusUnprocessableEntity, code, message)
}

// RespondDomainError translates servicing errors into HTTP status codes.
// Unrecognized errors become an opaque 500.
func RespondDomainError(c *gin.Context, err error) {
	var (
		validationErr  loan.ValidationError
		mismatchErr    loan.AllocationMismatchError
		notFoundErr    loan.LoanNotFoundError
		pmtNotFoundErr payment.ErrPaymentNotFound
		closedErr      loan.LoanClosedError
		conflictErr    loan.ConcurrencyConflictError
		overpayErr     loan.OverpaymentError
	)

	switch {
	case errors.As(err, &validationErr):
		RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error())
	case errors.As(err, &mismatchErr):
		RespondWithError(c, http.StatusBadRequest, "ALLOCATION_MISMATCH", mismatchErr.Error())
	case errors.As(err, &notFoundErr):
		RespondNotFound(c, "Loan not found")
	case errors.As(err, &pmtNotFoundErr):
		RespondNotFound(c, "Payment not found")
	case errors.As(err, &closedErr):
		RespondWithError(c, http.StatusConflict, "LOAN_CLOSED", closedErr.Error())
	case errors.As(err, &conflictErr):
		RespondWithError(c, http.StatusConflict, "CONCURRENT_MODIFICATION", "Loan was modified concurrently, retry the request")
	case errors.As(err, &overpayErr):
		RespondUnprocessable(c, "OVERPAYMENT", overpayErr.Error())
	default:
		RespondInternalError(c)
	}
}
