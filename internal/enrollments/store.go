package enrollments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/corkboard/backend/internal/models"
)

// Store is enrollment persistence. Lookups report missing rows with errdef
// NotFound; Create reports a duplicate (event, user) pair with errdef Conflict.
type Store interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	Create(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error)
	Get(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, status *models.EnrollmentStatus) ([]models.Enrollment, error)

	// WithTx runs fn in one transaction, committing if fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes that must commit together. Implementations lock
// the event row before the enrollment row.
type Tx interface {
	LockEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	LockEnrollment(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error)
	UpdateDecision(ctx context.Context, d Decision) (*models.Enrollment, error)
	// IncrementAttendees adds one approved seat. It reports false, changing
	// nothing, when the event is already full.
	IncrementAttendees(ctx context.Context, eventID uuid.UUID) (bool, error)
	// DecrementAttendees releases one approved seat, never going below zero.
	DecrementAttendees(ctx context.Context, eventID uuid.UUID) error
	Delete(ctx context.Context, enrollmentID uuid.UUID) error
}

// Decision is the audit data written when an admin decides an enrollment.
type Decision struct {
	EnrollmentID uuid.UUID
	Status       models.EnrollmentStatus
	ApprovedBy   *uuid.UUID
	ApprovedAt   *time.Time
	AdminNote    *string
}
