// Package broker publishes enrollment lifecycle events to Kafka.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Enrollment lifecycle event types.
const (
	EnrollmentCreated   = "enrollment.created"
	EnrollmentApproved  = "enrollment.approved"
	EnrollmentRejected  = "enrollment.rejected"
	EnrollmentCancelled = "enrollment.cancelled"
)

// EnrollmentEvent is the message body written to the enrollments topic.
type EnrollmentEvent struct {
	Type         string     `json:"type"`
	EventID      uuid.UUID  `json:"event_id"`
	EnrollmentID uuid.UUID  `json:"enrollment_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Status       string     `json:"status"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// Publisher emits enrollment events.
type Publisher interface {
	PublishEnrollment(ctx context.Context, evt EnrollmentEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes enrollment events to Kafka, keyed by event ID so one
// event's transitions stay ordered within a partition.
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

// NewProducer creates an asynchronous Kafka producer for topic. Writes
// return once buffered; delivery failures are logged by the writer.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newProducer(newWriter(brokers, topic, logger), logger)
}

func newWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		MaxAttempts:  3,
		Async:        true,
		Completion:   completionLogger(logger),
	}
}

// completionLogger reports batches the async writer could not deliver.
func completionLogger(logger *zap.Logger) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range msgs {
			logger.Warn("enrollment event not delivered",
				zap.String("topic", m.Topic),
				zap.ByteString("key", m.Key),
				zap.Error(err),
			)
		}
	}
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, logger: logger}
}

// PublishEnrollment streams one enrollment transition to Kafka.
func (p *Producer) PublishEnrollment(ctx context.Context, evt EnrollmentEvent) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.Type, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.EventID.String()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.logger.Debug("published enrollment event", zap.String("type", evt.Type), zap.String("enrollment_id", evt.EnrollmentID.String()))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Nop discards every event. Used when Kafka is disabled.
type Nop struct{}

func (Nop) PublishEnrollment(context.Context, EnrollmentEvent) error { return nil }
func (Nop) Close() error                                            { return nil }
