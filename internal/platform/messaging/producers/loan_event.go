package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/microfin-loan-servicing/internal/config"
	"github.com/segmentio/kafka-go"
)

// LoanEventProducer publishes loan lifecycle events from the outbox.
// Writes are synchronous so that delivery can be confirmed before the outbox
// message is marked processed.
type LoanEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func NewLoanEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*LoanEventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for loan event producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists for loan event producer: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write event messages synchronously", "topic", cfg.EventsTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote event messages synchronously", "topic", cfg.EventsTopic, "count", len(messages))
			}
		},
	}

	return &LoanEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

func (p *LoanEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for loan event producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message via loan event producer",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via loan event producer: %w", p.topic, err)
	}

	p.logger.Debug("Published message via loan event producer",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *LoanEventProducer) Close() error {
	p.logger.Info("Closing loan event Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close loan event kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
