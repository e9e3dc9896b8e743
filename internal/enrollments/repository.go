package enrollments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/events"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/database"
)

const (
	columns          = `id, event_id, user_id, status, approved_at, approved_by, admin_note, created_at, updated_at`
	prefixedColumns  = `e.id, e.event_id, e.user_id, e.status, e.approved_at, e.approved_by, e.admin_note, e.created_at, e.updated_at`
	listUserColumns  = `u.id, u.email, u.full_name, u.role, u.created_at`
	uniqueConstraint = "event_enrollments_event_user_key"
)

func scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := row.Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.ApprovedAt, &e.ApprovedBy, &e.AdminNote, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an enrollment repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetEvent returns the event an enrollment refers to.
func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	e, err := events.ScanEvent(r.pool.QueryRow(ctx, `SELECT `+events.Columns+` FROM events WHERE id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return e, nil
}

// Create inserts a PENDING enrollment. The unique (event_id, user_id)
// constraint serializes concurrent requests for the same pair.
func (r *Repository) Create(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	const q = `INSERT INTO event_enrollments (event_id, user_id, status) VALUES ($1, $2, $3) RETURNING ` + columns
	e, err := scanEnrollment(r.pool.QueryRow(ctx, q, eventID, userID, string(models.EnrollmentPending)))
	switch {
	case database.IsUniqueViolation(err, uniqueConstraint):
		return nil, errdef.NewConflict("already enrolled in event %s", eventID)
	case database.IsForeignKeyViolation(err):
		return nil, errdef.NewNotFound("event %s not found", eventID)
	case err != nil:
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return e, nil
}

// Get returns the enrollment of a user in an event.
func (r *Repository) Get(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT ` + columns + ` FROM event_enrollments WHERE event_id = $1 AND user_id = $2`
	e, err := scanEnrollment(r.pool.QueryRow(ctx, q, eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("no enrollment for event %s", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

// ListByEvent returns an event's enrollments with their users, oldest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, status *models.EnrollmentStatus) ([]models.Enrollment, error) {
	q := `SELECT ` + prefixedColumns + `, ` + listUserColumns + `
		FROM event_enrollments e
		JOIN users u ON u.id = e.user_id
		WHERE e.event_id = $1`
	args := []interface{}{eventID}
	if status != nil {
		q += ` AND e.status = $2`
		args = append(args, string(*status))
	}
	q += ` ORDER BY e.created_at ASC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	list := []models.Enrollment{}
	for rows.Next() {
		var e models.Enrollment
		var u models.UserPublic
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.ApprovedAt, &e.ApprovedBy, &e.AdminNote, &e.CreatedAt, &e.UpdatedAt,
			&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.User = &u
		list = append(list, e)
	}
	return list, rows.Err()
}

// WithTx runs fn in a transaction. The commit is not cancelled with ctx, so a
// client disconnect cannot leave the outcome unknown after fn succeeded.
func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	e, err := events.ScanEvent(t.tx.QueryRow(ctx, `SELECT `+events.Columns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("event %s not found", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock event: %w", err)
	}
	return e, nil
}

func (t *pgTx) LockEnrollment(ctx context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT ` + columns + ` FROM event_enrollments WHERE event_id = $1 AND user_id = $2 FOR UPDATE`
	e, err := scanEnrollment(t.tx.QueryRow(ctx, q, eventID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("no enrollment for event %s", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	return e, nil
}

func (t *pgTx) UpdateDecision(ctx context.Context, d Decision) (*models.Enrollment, error) {
	const q = `UPDATE event_enrollments
		SET status = $1, approved_by = $2, approved_at = $3, admin_note = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + columns
	e, err := scanEnrollment(t.tx.QueryRow(ctx, q, string(d.Status), d.ApprovedBy, d.ApprovedAt, d.AdminNote, d.EnrollmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errdef.NewNotFound("enrollment %s not found", d.EnrollmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("update enrollment: %w", err)
	}
	return e, nil
}

func (t *pgTx) IncrementAttendees(ctx context.Context, eventID uuid.UUID) (bool, error) {
	const q = `UPDATE events SET current_attendees = current_attendees + 1, updated_at = NOW()
		WHERE id = $1 AND (max_attendees IS NULL OR current_attendees < max_attendees)`
	tag, err := t.tx.Exec(ctx, q, eventID)
	if err != nil {
		return false, fmt.Errorf("increment attendees: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) DecrementAttendees(ctx context.Context, eventID uuid.UUID) error {
	const q = `UPDATE events SET current_attendees = GREATEST(current_attendees - 1, 0), updated_at = NOW() WHERE id = $1`
	if _, err := t.tx.Exec(ctx, q, eventID); err != nil {
		return fmt.Errorf("decrement attendees: %w", err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, enrollmentID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM event_enrollments WHERE id = $1`, enrollmentID); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}
