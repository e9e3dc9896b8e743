// Package worker drains the outbound email queue.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/pkg/queue"
)

// Queue is the job source. *queue.Queue satisfies it.
type Queue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (deadLettered bool, err error)
}

// Sender delivers one email. *mailer.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// LogUpdater records delivery results. *emaillogs.Repository satisfies it.
type LogUpdater interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor sends queued email jobs and records the outcome in email_logs.
type EmailProcessor struct {
	queue   Queue
	sender  Sender
	logs    LogUpdater
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email processor. logs may be nil.
func NewEmailProcessor(q Queue, sender Sender, logs LogUpdater, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{queue: q, sender: sender, logs: logs, logger: logger, backoff: queue.RetryBackoff, now: time.Now}
}

// Process executes one email job. A returned error means the job should be retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeEmail(job)
	if err != nil {
		p.logger.Error("dropping undecodable job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	err = p.sender.Send(ctx, payload.RecipientEmail, payload.Subject, payload.BodyHTML)
	if errors.Is(err, mailer.ErrDisabled) {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		p.markFailed(ctx, payload, err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	metrics.EmailsTotal.WithLabelValues("sent").Inc()
	if p.logs != nil && payload.EmailLogID != nil {
		if err := p.logs.MarkSent(ctx, *payload.EmailLogID, p.now()); err != nil {
			p.logger.Warn("mark email sent failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
		}
	}
	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("enrollment_id", payload.EnrollmentID.String()),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) error {
	p.logger.Info("email worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return nil
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			p.retry(ctx, job, err)
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) retry(ctx context.Context, job *queue.Job, cause error) {
	dead, err := p.queue.Retry(context.WithoutCancel(ctx), job)
	if err != nil {
		p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !dead {
		return
	}
	metrics.EmailsTotal.WithLabelValues("dead_lettered").Inc()
	if payload, err := queue.DecodeEmail(job); err == nil {
		p.markFailed(ctx, payload, cause.Error())
	}
}

func (p *EmailProcessor) markFailed(ctx context.Context, payload queue.EmailPayload, reason string) {
	if p.logs == nil || payload.EmailLogID == nil {
		return
	}
	if err := p.logs.MarkFailed(context.WithoutCancel(ctx), *payload.EmailLogID, reason); err != nil {
		p.logger.Warn("record email failure failed", zap.String("email_log_id", payload.EmailLogID.String()), zap.Error(err))
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
