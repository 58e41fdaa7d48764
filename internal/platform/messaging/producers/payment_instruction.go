package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/microfin-loan-servicing/internal/config"
	"github.com/segmentio/kafka-go"
)

type PaymentInstructionProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// Creates the instruction intake producer and ensures topic exists
func NewPaymentInstructionProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*PaymentInstructionProducer, error) {
	if cfg.InstructionsTopic == "" {
		return nil, fmt.Errorf("kafka instructions topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for instruction producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.InstructionsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure instructions topic %s exists for instruction producer: %w", cfg.InstructionsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.InstructionsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Using async for high throughput
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages asynchronously", "topic", cfg.InstructionsTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote messages asynchronously", "topic", cfg.InstructionsTopic, "count", len(messages))
			}
		},
	}

	return &PaymentInstructionProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.InstructionsTopic,
	}, nil
}

func (p *PaymentInstructionProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for instruction producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message via instruction producer",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via instruction producer: %w", p.topic, err)
	}

	p.logger.Debug("Published message via instruction producer",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *PaymentInstructionProducer) Close() error {
	p.logger.Info("Closing payment instruction Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close instruction kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
