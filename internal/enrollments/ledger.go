package enrollments

import "github.com/corkboard/backend/internal/models"

// IsFull reports whether an event has no approved seats left. A nil
// MaxAttendees means unlimited capacity.
func IsFull(e *models.Event) bool {
	return e.MaxAttendees != nil && e.CurrentAttendees >= *e.MaxAttendees
}
