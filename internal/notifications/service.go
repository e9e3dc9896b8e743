package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/metrics"
	"github.com/corkboard/backend/internal/models"
)

// EventNotification is the websocket event name for a new notification.
const EventNotification = "notification"

// Store is notification persistence.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Pusher delivers live events to a user's open connections. *realtime.Hub satisfies it.
type Pusher interface {
	Push(userID uuid.UUID, event string, payload interface{})
}

// Service creates notifications and serves a user's inbox.
type Service struct {
	store  Store
	pusher Pusher
	logger *zap.Logger
}

// NewService creates a notification service. pusher may be nil.
func NewService(store Store, pusher Pusher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, pusher: pusher, logger: logger}
}

// Notify stores exactly one notification and pushes it live. Live delivery
// is best effort and never affects the result.
func (s *Service) Notify(ctx context.Context, n *models.Notification) error {
	if err := validate(n); err != nil {
		return err
	}
	if err := s.store.Create(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Type), "error").Inc()
		return fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Type), "created").Inc()
	if s.pusher != nil {
		s.pusher.Push(n.UserID, EventNotification, n)
	}
	return nil
}

// NotifyMany sends tmpl to each recipient as an independent insert. A failed
// insert is logged and does not stop the rest. It returns how many were created.
func (s *Service) NotifyMany(ctx context.Context, userIDs []uuid.UUID, tmpl models.Notification) int {
	created := 0
	for _, id := range userIDs {
		n := tmpl
		n.UserID = id
		if err := s.Notify(ctx, &n); err != nil {
			s.logger.Warn("notification dropped",
				zap.String("user_id", id.String()),
				zap.String("type", string(tmpl.Type)),
				zap.Error(err),
			)
			continue
		}
		created++
	}
	return created
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	return s.store.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	return s.store.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func validate(n *models.Notification) error {
	switch {
	case n.UserID == uuid.Nil:
		return errdef.NewValidationFailed("notification needs a recipient")
	case n.Type == "":
		return errdef.NewValidationFailed("notification needs a type")
	case n.Title == "":
		return errdef.NewValidationFailed("notification needs a title")
	}
	return nil
}
