package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/microfin-loan-servicing/internal/domain/loan"
)

// Instruction is the wire format for asynchronous payment requests flowing
// through the message queue. The instruction ID doubles as the payment ID,
// which makes redelivery idempotent.
type Instruction struct {
	ID        uuid.UUID           `json:"id"`
	LoanID    uuid.UUID           `json:"loan_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Currency  string              `json:"currency,omitempty"`
	Mode      loan.AllocationMode `json:"mode"`
	Split     *loan.Split         `json:"split,omitempty"`
	ValueDate time.Time           `json:"value_date"`
	Method    Method              `json:"method"`
	Reference string              `json:"reference"`
	TellerID  string              `json:"teller_id,omitempty"`
}
