package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies loan lifecycle events in the audit trail
type EventType string

const (
	EventTypeDisbursed      EventType = "LOAN_DISBURSED"
	EventTypePaymentApplied EventType = "PAYMENT_APPLIED"
	EventTypeStatusChanged  EventType = "STATUS_CHANGED"
	EventTypeAccrualRun     EventType = "ACCRUAL_RUN"
	EventTypeEarlyPayoff    EventType = "EARLY_PAYOFF"
)

// Event is an append-only record of a loan lifecycle transition, consumed by
// reporting. The payload carries the event-specific detail as JSON.
type Event struct {
	ID            uuid.UUID       `json:"id" bson:"id"`
	LoanID        uuid.UUID       `json:"loan_id" bson:"loan_id"`
	Type          EventType       `json:"type" bson:"type"`
	Payload       json.RawMessage `json:"payload" bson:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	ActorID       string          `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at" bson:"recorded_at"`
}

// NewEvent creates an audit event, marshalling the detail payload
func NewEvent(loanID uuid.UUID, eventType EventType, detail interface{}, actorID, correlationID string, now time.Time) (*Event, error) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New(),
		LoanID:        loanID,
		Type:          eventType,
		Payload:       payload,
		CorrelationID: correlationID,
		ActorID:       actorID,
		RecordedAt:    now,
	}, nil
}
