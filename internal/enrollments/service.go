package enrollments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/broker"
)

// Action is an admin decision on a pending enrollment.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ParseAction accepts APPROVE or REJECT in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", errdef.NewValidationFailed("unknown action %q", s)
}

// Notifier creates in-app notifications. *notifications.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
	NotifyMany(ctx context.Context, userIDs []uuid.UUID, tmpl models.Notification) int
}

// Directory looks up users. *auth.Repository satisfies it.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// MailSink accepts outbound mail without blocking or failing. *mailer.Outbox satisfies it.
type MailSink interface {
	SendBestEffort(ctx context.Context, msg mailer.Message)
}

// EnrollResult is the outcome of Enroll. Waitlisted is informational: the
// event was full when the request was made, so approval may be refused.
type EnrollResult struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Waitlisted bool               `json:"waitlisted"`
}

// Service runs the enrollment workflow. Side effects (notifications, email,
// broker events) happen after commit and never fail the operation.
type Service struct {
	store     Store
	users     Directory
	notifier  Notifier
	mail      MailSink
	publisher broker.Publisher
	baseURL   string
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates an enrollment service. publisher may be nil.
func NewService(store Store, users Directory, notifier Notifier, mail MailSink, publisher broker.Publisher, baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = broker.Nop{}
	}
	return &Service{
		store:     store,
		users:     users,
		notifier:  notifier,
		mail:      mail,
		publisher: publisher,
		baseURL:   baseURL,
		now:       time.Now,
		logger:    logger,
	}
}

// Enroll creates a PENDING enrollment for the caller. Capacity never blocks
// creation; it only decides whether the caller is told they are waitlisted.
func (s *Service) Enroll(ctx context.Context, caller auth.Caller, eventID uuid.UUID) (*EnrollResult, error) {
	if caller.UserID == uuid.Nil {
		return nil, errdef.NewUnauthenticated("missing caller identity")
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		metrics.EnrollmentsTotal.WithLabelValues("not_found").Inc()
		return nil, errdef.NewNotFound("event %s is not open for enrollment", eventID)
	}

	enrollment, err := s.store.Create(ctx, eventID, caller.UserID)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	waitlisted := IsFull(event)
	if waitlisted {
		metrics.EnrollmentsTotal.WithLabelValues("waitlisted").Inc()
	} else {
		metrics.EnrollmentsTotal.WithLabelValues("created").Inc()
	}
	s.logger.Info("enrollment created",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.Bool("waitlisted", waitlisted),
	)

	s.notifyEnrollment(ctx, caller, event, waitlisted)
	s.publish(ctx, broker.EnrollmentCreated, enrollment, nil)
	return &EnrollResult{Enrollment: enrollment, Waitlisted: waitlisted}, nil
}

// Cancel removes the caller's enrollment. Cancelling an approved enrollment
// releases its seat in the same transaction.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, eventID uuid.UUID) error {
	if caller.UserID == uuid.Nil {
		return errdef.NewUnauthenticated("missing caller identity")
	}
	var cancelled *models.Enrollment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockEvent(ctx, eventID); err != nil {
			return err
		}
		e, err := tx.LockEnrollment(ctx, eventID, caller.UserID)
		if err != nil {
			return err
		}
		if e.Status == models.EnrollmentApproved {
			if err := tx.DecrementAttendees(ctx, eventID); err != nil {
				return err
			}
		}
		if err := tx.Delete(ctx, e.ID); err != nil {
			return err
		}
		cancelled = e
		return nil
	})
	if err != nil {
		return err
	}

	metrics.CancellationsTotal.WithLabelValues(string(cancelled.Status)).Inc()
	s.logger.Info("enrollment cancelled",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.String("previous_status", string(cancelled.Status)),
	)
	cancelled.Status = models.EnrollmentCancelled
	s.publish(ctx, broker.EnrollmentCancelled, cancelled, nil)
	return nil
}

// Decide applies an admin decision to a PENDING enrollment. Approval is
// refused with CapacityExceeded when the event is full; deciding an
// enrollment that is no longer PENDING is a Conflict and writes nothing.
func (s *Service) Decide(ctx context.Context, caller auth.Caller, eventID, userID uuid.UUID, action Action, note *string) (*models.Enrollment, error) {
	admin, err := auth.RequireAdmin(caller)
	if err != nil {
		return nil, err
	}
	if action != ActionApprove && action != ActionReject {
		return nil, errdef.NewValidationFailed("unknown action %q", action)
	}
	if note != nil && strings.TrimSpace(*note) == "" {
		note = nil
	}

	var (
		event   *models.Event
		updated *models.Enrollment
	)
	err = s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		if event, err = tx.LockEvent(ctx, eventID); err != nil {
			return err
		}
		current, err := tx.LockEnrollment(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if current.Status != models.EnrollmentPending {
			return errdef.NewConflict("enrollment is already %s", current.Status)
		}

		d := Decision{EnrollmentID: current.ID, AdminNote: note}
		if action == ActionApprove {
			if IsFull(event) {
				return errdef.NewCapacityExceeded("event %s is full", eventID)
			}
			ok, err := tx.IncrementAttendees(ctx, eventID)
			if err != nil {
				return err
			}
			if !ok {
				return errdef.NewCapacityExceeded("event %s is full", eventID)
			}
			at := s.now().UTC()
			d.Status = models.EnrollmentApproved
			d.ApprovedBy = &admin.UserID
			d.ApprovedAt = &at
		} else {
			d.Status = models.EnrollmentRejected
		}
		updated, err = tx.UpdateDecision(ctx, d)
		return err
	})
	metrics.DecisionsTotal.WithLabelValues(string(action), outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("enrollment decided",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID.String()),
		zap.String("action", string(action)),
		zap.String("admin_id", admin.UserID.String()),
	)
	s.notifyDecision(ctx, admin, event, updated)
	if action == ActionApprove {
		s.publish(ctx, broker.EnrollmentApproved, updated, &admin.UserID)
	} else {
		s.publish(ctx, broker.EnrollmentRejected, updated, &admin.UserID)
	}
	return updated, nil
}

// ListEnrollments returns an event's enrollments for an admin, optionally filtered by status.
func (s *Service) ListEnrollments(ctx context.Context, caller auth.Caller, eventID uuid.UUID, status *models.EnrollmentStatus) ([]models.Enrollment, error) {
	if _, err := auth.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, errdef.NewValidationFailed("unknown status %q", *status)
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListByEvent(ctx, eventID, status)
}

// MyEnrollment returns the caller's own enrollment for an event.
func (s *Service) MyEnrollment(ctx context.Context, caller auth.Caller, eventID uuid.UUID) (*models.Enrollment, error) {
	if caller.UserID == uuid.Nil {
		return nil, errdef.NewUnauthenticated("missing caller identity")
	}
	return s.store.Get(ctx, eventID, caller.UserID)
}

func (s *Service) notifyEnrollment(ctx context.Context, caller auth.Caller, event *models.Event, waitlisted bool) {
	name := caller.Email
	if u, err := s.users.GetByID(ctx, caller.UserID); err == nil {
		name = u.FullName
	}

	admins, err := s.users.AdminIDs(ctx)
	if err != nil {
		s.logger.Warn("load admins failed", zap.Error(err))
	}
	if len(admins) > 0 {
		s.notifier.NotifyMany(ctx, admins, models.Notification{
			SenderID:   &caller.UserID,
			Type:       models.NotificationEventEnrollment,
			Title:      "New event enrollment",
			Message:    fmt.Sprintf("%s requested to join %s.", name, event.Title),
			EntityType: models.EntityEvent,
			EntityID:   &event.ID,
		})
	}

	msg := fmt.Sprintf("Your request to join %s is awaiting approval.", event.Title)
	if waitlisted {
		msg = fmt.Sprintf("%s is currently full. You are on the waitlist and will be notified if a seat is approved for you.", event.Title)
	}
	s.notify(ctx, &models.Notification{
		UserID:     caller.UserID,
		Type:       models.NotificationEventEnrollment,
		Title:      "Enrollment received",
		Message:    msg,
		EntityType: models.EntityEvent,
		EntityID:   &event.ID,
	})
}

func (s *Service) notifyDecision(ctx context.Context, admin auth.AdminIdentity, event *models.Event, e *models.Enrollment) {
	n := &models.Notification{
		UserID:     e.UserID,
		SenderID:   &admin.UserID,
		EntityType: models.EntityEvent,
		EntityID:   &event.ID,
	}
	if e.Status == models.EnrollmentApproved {
		n.Type = models.NotificationEventApproved
		n.Title = "Enrollment approved"
		n.Message = fmt.Sprintf("You're confirmed for %s.", event.Title)
	} else {
		n.Type = models.NotificationEventRejected
		n.Title = "Enrollment declined"
		n.Message = fmt.Sprintf("Your request to join %s was declined.", event.Title)
	}
	if e.AdminNote != nil {
		n.Message += " Note: " + *e.AdminNote
	}
	s.notify(ctx, n)

	if e.Status == models.EnrollmentApproved {
		s.sendApprovalEmail(ctx, event, e)
	}
}

func (s *Service) sendApprovalEmail(ctx context.Context, event *models.Event, e *models.Enrollment) {
	u, err := s.users.GetByID(ctx, e.UserID)
	if err != nil {
		s.logger.Warn("approval email skipped, user lookup failed", zap.String("user_id", e.UserID.String()), zap.Error(err))
		return
	}
	subject, html, err := mailer.ApprovedEmail(mailer.EventDetails{
		RecipientName: u.FullName,
		EventTitle:    event.Title,
		Location:      event.Location,
		StartDate:     event.StartDate,
		Link:          mailer.EventLink(s.baseURL, event.Slug),
	})
	if err != nil {
		s.logger.Error("approval email render failed", zap.Error(err))
		return
	}
	s.mail.SendBestEffort(ctx, mailer.Message{
		EmailType:    models.EmailTypeEnrollmentApproved,
		EventID:      event.ID,
		EnrollmentID: e.ID,
		To:           u.Email,
		Subject:      subject,
		HTML:         html,
	})
}

func (s *Service) notify(ctx context.Context, n *models.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification dropped", zap.String("user_id", n.UserID.String()), zap.String("type", string(n.Type)), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, typ string, e *models.Enrollment, actor *uuid.UUID) {
	err := s.publisher.PublishEnrollment(ctx, broker.EnrollmentEvent{
		Type:         typ,
		EventID:      e.EventID,
		EnrollmentID: e.ID,
		UserID:       e.UserID,
		Status:       string(e.Status),
		ActorID:      actor,
		OccurredAt:   s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("enrollment event not published", zap.String("type", typ), zap.Error(err))
	}
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch errdef.KindOf(err) {
	case "":
		return "ok"
	case errdef.KindNotFound:
		return "not_found"
	case errdef.KindConflict:
		return "conflict"
	case errdef.KindCapacityExceeded:
		return "capacity_exceeded"
	case errdef.KindForbidden, errdef.KindUnauthenticated:
		return "denied"
	case errdef.KindValidationFailed:
		return "invalid"
	default:
		return "error"
	}
}
