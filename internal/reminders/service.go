package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/internal/models"
)

// Store loads reminder candidates. *Repository satisfies it.
type Store interface {
	PublishedStarting(ctx context.Context, ranges []TimeRange) ([]*models.Event, error)
	ApprovedRecipients(ctx context.Context, eventID uuid.UUID) ([]Recipient, error)
}

// Ledger claims reminder sends so repeated sweeps skip them. *emaillogs.Repository satisfies it.
type Ledger interface {
	Claim(ctx context.Context, el *models.EmailLog) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// Mailer queues outbound email. *mailer.Outbox satisfies it.
type Mailer interface {
	Enqueue(ctx context.Context, msg mailer.Message) error
}

// Options configure a Service.
type Options struct {
	// Dedup claims each (enrollment, window) in the ledger before sending.
	Dedup   bool
	BaseURL string
}

// Result counts the outcome of one sweep.
type Result struct {
	Events  int `json:"events"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Service runs reminder sweeps.
type Service struct {
	store  Store
	ledger Ledger
	mail   Mailer
	opts   Options
	logger *zap.Logger
}

// NewService creates a reminder service. ledger may be nil when opts.Dedup is false.
func NewService(store Store, ledger Ledger, mail Mailer, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		opts.Dedup = false
	}
	return &Service{store: store, ledger: ledger, mail: mail, opts: opts, logger: logger}
}

// Sweep sends one reminder per approved enrollment of every event due at now.
// Individual send failures are counted and never abort the sweep.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SweepDuration)

	ranges := make([]TimeRange, 0, len(Windows))
	for _, w := range Windows {
		from, to := w.Range(now)
		ranges = append(ranges, TimeRange{From: from, To: to})
	}
	candidates, err := s.store.PublishedStarting(ctx, ranges)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, due := range SelectDueReminders(candidates, now) {
		res.Events++
		recipients, err := s.store.ApprovedRecipients(ctx, due.Event.ID)
		if err != nil {
			s.logger.Error("load reminder recipients failed", zap.String("event_id", due.Event.ID.String()), zap.Error(err))
			continue
		}
		for _, rc := range recipients {
			result := s.remind(ctx, due, rc)
			metrics.RemindersTotal.WithLabelValues(due.Window.EmailType, result).Inc()
			switch result {
			case "sent":
				res.Sent++
			case "skipped":
				res.Skipped++
			default:
				res.Failed++
			}
		}
	}

	s.logger.Info("reminder sweep finished",
		zap.Int("events", res.Events),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", timer.Duration()),
	)
	return res, nil
}

func (s *Service) remind(ctx context.Context, due Due, rc Recipient) string {
	log := s.logger.With(
		zap.String("event_id", due.Event.ID.String()),
		zap.String("enrollment_id", rc.EnrollmentID.String()),
		zap.String("window", due.Window.EmailType),
	)

	subject, html, err := mailer.ReminderEmail(mailer.EventDetails{
		RecipientName: rc.FullName,
		EventTitle:    due.Event.Title,
		Location:      due.Event.Location,
		StartDate:     due.Event.StartDate,
		Link:          mailer.EventLink(s.opts.BaseURL, due.Event.Slug),
	}, due.Window.Label)
	if err != nil {
		log.Error("render reminder failed", zap.Error(err))
		return "failed"
	}

	msg := mailer.Message{
		EmailType:    due.Window.EmailType,
		EventID:      due.Event.ID,
		EnrollmentID: rc.EnrollmentID,
		To:           rc.Email,
		Subject:      subject,
		HTML:         html,
	}

	if s.opts.Dedup {
		key := DedupKey(rc.EnrollmentID, due.Window)
		el := &models.EmailLog{
			EventID:        &due.Event.ID,
			EnrollmentID:   &rc.EnrollmentID,
			EmailType:      due.Window.EmailType,
			RecipientEmail: rc.Email,
			Subject:        subject,
			DedupKey:       &key,
		}
		claimed, err := s.ledger.Claim(ctx, el)
		if err != nil {
			log.Error("claim reminder failed", zap.Error(err))
			return "failed"
		}
		if !claimed {
			return "skipped"
		}
		msg.LogID = &el.ID
	}

	if err := s.mail.Enqueue(ctx, msg); err != nil {
		log.Warn("queue reminder failed", zap.Error(err))
		if msg.LogID != nil {
			if relErr := s.ledger.Release(ctx, *msg.LogID); relErr != nil {
				log.Error("release reminder claim failed", zap.Error(relErr))
			}
		}
		return "failed"
	}
	return "sent"
}

// DedupKey identifies one reminder in the ledger.
func DedupKey(enrollmentID uuid.UUID, w Window) string {
	return fmt.Sprintf("reminder:%s:%s", enrollmentID, w.EmailType)
}
