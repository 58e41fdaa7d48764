package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/outbox"
	"github.com/microfin-loan-servicing/internal/platform/messaging/producers"
)

// EventPublisher publishes outbox messages to the loan events topic and the
// audit trail
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	auditRepo  audit.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	outboxRepo outbox.Repository,
	auditRepo audit.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent delivers one outbox message: to Kafka for downstream
// consumers, to MongoDB for the queryable audit trail, then marks the
// message processed. The Kafka write is synchronous, so a message is only
// marked processed once delivery is confirmed.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal loan event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID, "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	// Add correlation ID to logger
	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Attempting to publish outbox message",
		"outbox_id", message.ID, "event_id", event.ID, "loan_id", event.LoanID, "type", event.Type,
	)

	if err := p.producer.Publish(ctx, event.LoanID.String(), event); err != nil {
		logger.Error("Failed to publish loan event to Kafka", "outbox_id", message.ID, "event_id", event.ID, "error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	if err := p.auditRepo.CreateEvent(ctx, event); err != nil {
		logger.Error("Failed to store loan event in MongoDB", "outbox_id", message.ID, "event_id", event.ID, "error", err)
		return fmt.Errorf("failed to store event %s: %w", event.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "event_id", event.ID, "error", err,
		)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", event.ID, message.ID, err)
	}

	logger.Info("Outbox message successfully processed and marked as PROCESSED", "outbox_id", message.ID, "event_id", event.ID)
	return nil
}
