package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/internal/validation"
	"github.com/voyagekit/compass/pkg/models"
)

const (
	InterestSignalsDLQTopic = "interest-signals-dlq"
	ConsumerGroup           = "interest-signal-processors"

	maxProcessingRetries = 3
)

// SignalMessage is the wire envelope for interest signals. The signal itself
// travels as raw JSON so it can be schema-validated before decoding.
type SignalMessage struct {
	EventID    uuid.UUID       `json:"event_id"`
	Signal     json.RawMessage `json:"signal"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

type KafkaProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

// SignalHandler receives decoded, schema-valid interest signals.
type SignalHandler func(ctx context.Context, signal models.InterestSignal) error

type MessageBus struct {
	producer  *KafkaProducer
	consumer  *KafkaConsumer
	dlqWriter *kafka.Writer
	validator *validation.SchemaValidator
	topic     string
	logger    *logrus.Logger
}

func NewMessageBus(cfg *config.Config, validator *validation.SchemaValidator, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.InterestSignals

	producer := &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by actor so one actor's signals stay ordered
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}

	consumer := &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        ConsumerGroup,
			MinBytes:       10e3, // 10KB
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        InterestSignalsDLQTopic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:  producer,
		consumer:  consumer,
		dlqWriter: dlqWriter,
		validator: validator,
		topic:     topic,
		logger:    logger,
	}, nil
}

// PublishInterestSignal wraps a signal in an envelope and writes it to the
// interest-signals topic, keyed by actor.
func (mb *MessageBus) PublishInterestSignal(signal models.InterestSignal) error {
	signalBytes, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	message := SignalMessage{
		EventID:   uuid.New(),
		Signal:    signalBytes,
		Timestamp: time.Now(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(signal.ActorID.String()),
		Value: messageBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(message.EventID.String())},
			{Key: "actor_id", Value: []byte(signal.ActorID.String())},
			{Key: "timestamp", Value: []byte(message.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.producer.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		mb.logger.WithError(err).WithField("event_id", message.EventID).Error("Failed to publish signal to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": message.EventID,
		"actor_id": signal.ActorID,
		"topic":    mb.topic,
	}).Info("Interest signal published to Kafka")

	return nil
}

// ConsumeSignals reads envelopes off the interest-signals topic, validates
// and decodes each signal, and hands it to the handler with retries.
// Payloads that fail schema validation are sent straight to the DLQ; retrying
// them cannot help.
func (mb *MessageBus) ConsumeSignals(ctx context.Context, handler SignalHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.consumer.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read message from Kafka")
				continue
			}

			var envelope SignalMessage
			if err := json.Unmarshal(message.Value, &envelope); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal Kafka message")
				continue
			}

			signal, err := mb.decodeSignal(envelope)
			if err != nil {
				mb.logger.WithError(err).WithField("event_id", envelope.EventID).Warn("Rejecting invalid interest signal")
				if dlqErr := mb.sendToDLQ(ctx, envelope, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				}
				continue
			}

			if err := mb.processWithRetry(ctx, envelope, signal, handler); err != nil {
				mb.logger.WithError(err).WithField("event_id", envelope.EventID).Error("Failed to process signal after retries")

				if dlqErr := mb.sendToDLQ(ctx, envelope, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				}
			}
		}
	}
}

func (mb *MessageBus) decodeSignal(envelope SignalMessage) (models.InterestSignal, error) {
	var signal models.InterestSignal

	result := mb.validator.ValidateInterestSignal([]byte(envelope.Signal))
	if !result.Valid {
		return signal, fmt.Errorf("signal failed schema validation: %v", result.Errors)
	}

	if err := json.Unmarshal(envelope.Signal, &signal); err != nil {
		return signal, fmt.Errorf("failed to decode signal: %w", err)
	}

	if signal.Timestamp.IsZero() {
		signal.Timestamp = envelope.Timestamp
	}
	if signal.Source == models.SignalSourceExplicit {
		signal.Confidence = 1.0
	}

	return signal, nil
}

func (mb *MessageBus) processWithRetry(ctx context.Context, envelope SignalMessage, signal models.InterestSignal, handler SignalHandler) error {
	baseDelay := time.Second

	for attempt := 0; attempt <= maxProcessingRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			mb.logger.WithFields(logrus.Fields{
				"event_id": envelope.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying signal processing")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := handler(ctx, signal); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": envelope.EventID,
				"attempt":  attempt,
			}).Warn("Signal processing failed")

			if attempt == maxProcessingRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}

		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, envelope SignalMessage, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_message": envelope,
		"error":            originalError.Error(),
		"dlq_timestamp":    time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte(envelope.EventID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(envelope.EventID.String())},
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"event_id": envelope.EventID,
		"error":    originalError.Error(),
	}).Warn("Message sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errs []error

	if err := mb.producer.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := mb.consumer.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := mb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}
	return nil
}
