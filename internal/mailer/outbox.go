package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/queue"
)

const sendTimeout = 10 * time.Second

// Message is one outbound email. LogID, when set, points at an email_logs
// row the caller already created (a reminder claim); otherwise the outbox
// records one.
type Message struct {
	EmailType    string
	EventID      uuid.UUID
	EnrollmentID uuid.UUID
	To           string
	Subject      string
	HTML         string
	LogID        *uuid.UUID
}

// LogStore records outbound mail.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// Enqueuer pushes email jobs for the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Outbox hands mail to the worker queue.
type Outbox struct {
	logs   LogStore
	queue  Enqueuer
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewOutbox creates an outbox. logs may be nil to skip the audit row.
func NewOutbox(logs LogStore, q Enqueuer, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{logs: logs, queue: q, logger: logger}
}

// Enqueue records and queues msg, returning any queue error.
func (o *Outbox) Enqueue(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("email %s has no recipient", msg.EmailType)
	}
	if msg.LogID == nil && o.logs != nil {
		el := &models.EmailLog{
			EventID:        &msg.EventID,
			EnrollmentID:   &msg.EnrollmentID,
			EmailType:      msg.EmailType,
			RecipientEmail: msg.To,
			Subject:        msg.Subject,
		}
		if err := o.logs.Create(ctx, el); err != nil {
			o.logger.Warn("email log create failed", zap.String("email_type", msg.EmailType), zap.Error(err))
		} else {
			msg.LogID = &el.ID
		}
	}
	err := o.queue.EnqueueEmail(ctx, queue.EmailPayload{
		EmailType:      msg.EmailType,
		EventID:        msg.EventID,
		EnrollmentID:   msg.EnrollmentID,
		EmailLogID:     msg.LogID,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
	})
	if err != nil {
		metrics.EmailsTotal.WithLabelValues("enqueue_failed").Inc()
		return fmt.Errorf("enqueue %s email: %w", msg.EmailType, err)
	}
	metrics.EmailsTotal.WithLabelValues("enqueued").Inc()
	return nil
}

// SendBestEffort queues msg in the background. Failures are logged, never returned.
func (o *Outbox) SendBestEffort(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		if err := o.Enqueue(ctx, msg); err != nil {
			o.logger.Warn("best-effort email dropped",
				zap.String("email_type", msg.EmailType),
				zap.String("enrollment_id", msg.EnrollmentID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background sends finish.
func (o *Outbox) Wait() {
	o.wg.Wait()
}
