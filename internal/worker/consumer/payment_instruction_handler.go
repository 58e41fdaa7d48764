package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/platform/messaging/producers"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// PaymentInstructionHandler handles incoming payment instruction messages
// from Kafka
type PaymentInstructionHandler struct {
	servicer servicing.Servicer
	producer producers.DeadLetterPublisher
	logger   *slog.Logger
}

// NewPaymentInstructionHandler creates a new handler
func NewPaymentInstructionHandler(
	logger *slog.Logger,
	servicer servicing.Servicer,
	producer producers.DeadLetterPublisher,
) *PaymentInstructionHandler {
	return &PaymentInstructionHandler{
		servicer: servicer,
		producer: producer,
		logger:   logger,
	}
}

// HandleMessage processes Kafka messages. Returning nil commits the offset;
// returning an error leaves the message for redelivery.
func (h *PaymentInstructionHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var instr payment.Instruction
	if err := json.Unmarshal(value, &instr); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal payment instruction from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
			} else {
				h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	h.logger.Info("Received payment instruction",
		"payment_id", instr.ID.String(),
		"loan_id", instr.LoanID.String(),
		"amount", instr.Amount.String(),
		"mode", string(instr.Mode),
	)

	if _, err := h.servicer.ApplyPayment(ctx, &instr); err != nil {
		if isPermanentFailure(err) {
			h.logger.Error("Payment instruction rejected, sending to DLQ",
				"payment_id", instr.ID.String(),
				"loan_id", instr.LoanID.String(),
				"error", err,
			)
			if h.producer != nil {
				if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, err.Error()); dlqErr != nil {
					h.logger.Error("Failed to publish rejected instruction to DLQ",
						"dlq_error", dlqErr,
						"payment_id", instr.ID.String(),
					)
					return dlqErr
				}
			}
			return nil // Rejected for good, commit offset
		}

		// Transient failures (lock conflicts, infrastructure errors) retry
		h.logger.Error("Failed to apply payment instruction, will retry",
			"payment_id", instr.ID.String(),
			"loan_id", instr.LoanID.String(),
			"error", err,
		)
		return fmt.Errorf("applying payment %s failed: %w", instr.ID.String(), err)
	}

	h.logger.Info("Successfully applied payment instruction", "payment_id", instr.ID.String())
	return nil
}

// isPermanentFailure reports whether redelivering the instruction can never
// succeed, so it belongs in the DLQ instead of the retry loop
func isPermanentFailure(err error) bool {
	var (
		validationErr loan.ValidationError
		mismatchErr   loan.AllocationMismatchError
		overpayErr    loan.OverpaymentError
		closedErr     loan.LoanClosedError
		notFoundErr   loan.LoanNotFoundError
	)
	return errors.As(err, &validationErr) ||
		errors.As(err, &mismatchErr) ||
		errors.As(err, &overpayErr) ||
		errors.As(err, &closedErr) ||
		errors.As(err, &notFoundErr)
}
