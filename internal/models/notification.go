package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags what caused a notification.
type NotificationType string

const (
	NotificationEventEnrollment   NotificationType = "EVENT_ENROLLMENT"
	NotificationEventApproved     NotificationType = "EVENT_APPROVED"
	NotificationEventRejected     NotificationType = "EVENT_REJECTED"
	NotificationConnectionRequest NotificationType = "CONNECTION_REQUEST"
)

// Entity types used in Notification.EntityType.
const (
	EntityEvent = "event"
	EntityUser  = "user"
)

// Notification is an in-app message addressed to one user.
// EntityType/EntityID loosely point back to what caused it and are not foreign keys.
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	SenderID   *uuid.UUID       `json:"sender_id,omitempty"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityType string           `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID       `json:"entity_id,omitempty"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
