package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/microfin-loan-servicing/internal/api/handler"
	"github.com/microfin-loan-servicing/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	loanHandler *handler.LoanHandler,
	paymentHandler *handler.PaymentHandler,
	noteHandler *handler.NoteHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		loans := v1.Group("/loans")
		{
			loans.POST("", loanHandler.Create)
			loans.GET("/:id", loanHandler.GetByID)
			loans.GET("/:id/schedule", loanHandler.GetSchedule)

			loans.POST("/:id/payments", paymentHandler.Create)
			loans.POST("/:id/payment-instructions", paymentHandler.Enqueue)
			loans.GET("/:id/payments", paymentHandler.GetByLoanID)

			loans.POST("/:id/payoff-quote", loanHandler.PayoffQuote)
			loans.POST("/:id/payoff", loanHandler.SettlePayoff)
			loans.POST("/:id/close", loanHandler.Close)
			loans.POST("/:id/accrual", loanHandler.Accrue)

			loans.POST("/:id/notes", noteHandler.Create)
			loans.GET("/:id/notes", noteHandler.List)
			loans.GET("/:id/events", noteHandler.ListEvents)
		}

		payments := v1.Group("/payments")
		{
			payments.GET("/:payment_id", paymentHandler.GetByID)
		}

		v1.POST("/accrual/sweep", loanHandler.Sweep)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
