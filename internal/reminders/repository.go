package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corkboard/backend/internal/events"
	"github.com/corkboard/backend/internal/models"
)

// TimeRange is an inclusive start-date range.
type TimeRange struct {
	From, To time.Time
}

// Recipient is an approved enrollee of an event.
type Recipient struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	Email        string
	FullName     string
}

// Repository reads reminder candidates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PublishedStarting returns published events starting in any of ranges.
func (r *Repository) PublishedStarting(ctx context.Context, ranges []TimeRange) ([]*models.Event, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	args := []any{string(models.EventStatusPublished)}
	conds := make([]string, 0, len(ranges))
	for _, tr := range ranges {
		args = append(args, tr.From, tr.To)
		conds = append(conds, fmt.Sprintf("start_date BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	q := `SELECT ` + events.Columns + ` FROM events
		WHERE status = $1 AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY start_date ASC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminder events: %w", err)
	}
	defer rows.Close()
	var list []*models.Event
	for rows.Next() {
		e, err := events.ScanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder event: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ApprovedRecipients returns the approved enrollees of an event.
func (r *Repository) ApprovedRecipients(ctx context.Context, eventID uuid.UUID) ([]Recipient, error) {
	const q = `SELECT ee.id, u.id, u.email, u.full_name
		FROM event_enrollments ee
		JOIN users u ON u.id = ee.user_id
		WHERE ee.event_id = $1 AND ee.status = $2
		ORDER BY ee.created_at ASC`
	rows, err := r.pool.Query(ctx, q, eventID, string(models.EnrollmentApproved))
	if err != nil {
		return nil, fmt.Errorf("list reminder recipients: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Recipient, error) {
		var rc Recipient
		err := row.Scan(&rc.EnrollmentID, &rc.UserID, &rc.Email, &rc.FullName)
		return rc, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reminder recipients: %w", err)
	}
	return list, nil
}
