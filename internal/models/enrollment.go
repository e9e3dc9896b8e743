package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus is the state of a user's enrollment in an event.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentApproved  EnrollmentStatus = "APPROVED"
	EnrollmentRejected  EnrollmentStatus = "REJECTED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Valid reports whether s is a known enrollment status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentPending, EnrollmentApproved, EnrollmentRejected, EnrollmentCancelled:
		return true
	}
	return false
}

// Enrollment is one user's request to attend one event. At most one exists per (event, user).
type Enrollment struct {
	ID         uuid.UUID        `json:"id"`
	EventID    uuid.UUID        `json:"event_id"`
	UserID     uuid.UUID        `json:"user_id"`
	Status     EnrollmentStatus `json:"status"`
	ApprovedAt *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy *uuid.UUID       `json:"approved_by,omitempty"`
	AdminNote  *string          `json:"admin_note,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	// User is populated by admin listings.
	User *UserPublic `json:"user,omitempty"`
}
