package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/database"
)

// Columns is the event column list matching ScanEvent.
const Columns = `id, slug, title, description, location, start_date, end_date, max_attendees, current_attendees, status, organizer_id, created_at, updated_at`

const slugConstraint = "events_slug_key"

// slugAttempts bounds how many suffixed slugs Create tries after a collision.
const slugAttempts = 3

// ScanEvent scans a row selected with Columns.
func ScanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.Description, &e.Location, &e.StartDate, &e.EndDate,
		&e.MaxAttendees, &e.CurrentAttendees, &e.Status, &e.OrganizerID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event, deriving a unique slug from its title.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (slug, title, description, location, start_date, end_date, max_attendees, status, organizer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, current_attendees, created_at, updated_at`
	base := MakeSlug(e.Title)
	s := base
	for attempt := 0; ; attempt++ {
		err := r.pool.QueryRow(ctx, q, s, e.Title, e.Description, e.Location, e.StartDate, e.EndDate,
			e.MaxAttendees, string(e.Status), e.OrganizerID).
			Scan(&e.ID, &e.CurrentAttendees, &e.CreatedAt, &e.UpdatedAt)
		if err == nil {
			e.Slug = s
			return nil
		}
		if !database.IsUniqueViolation(err, slugConstraint) || attempt >= slugAttempts {
			if database.IsForeignKeyViolation(err) {
				return errdef.NewNotFound("organizer %s not found", e.OrganizerID)
			}
			return fmt.Errorf("create event: %w", err)
		}
		s = withSuffix(base)
	}
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := ScanEvent(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// GetBySlug returns an event by slug.
func (r *Repository) GetBySlug(ctx context.Context, s string) (*models.Event, error) {
	e, err := ScanEvent(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM events WHERE slug = $1`, s))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("event %q not found", s)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %q: %w", s, err)
	}
	return e, nil
}

// ListUpcoming returns published events starting after now, soonest first.
func (r *Repository) ListUpcoming(ctx context.Context, now time.Time, limit, offset int) ([]models.Event, error) {
	const q = `SELECT ` + Columns + ` FROM events
		WHERE status = $1 AND start_date > $2
		ORDER BY start_date ASC
		LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, q, string(models.EventStatusPublished), now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	list := []models.Event{}
	for rows.Next() {
		e, err := ScanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// UpdateStatus sets the event status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.EventStatus) (*models.Event, error) {
	const q = `UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + Columns
	e, err := ScanEvent(r.pool.QueryRow(ctx, q, string(status), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}
	return e, nil
}
