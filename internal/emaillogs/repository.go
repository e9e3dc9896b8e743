package emaillogs

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
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records a pending email. DedupKey is ignored; use Claim for keyed rows.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (event_id, enrollment_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	el.Status = models.EmailLogStatusPending
	if err := r.pool.QueryRow(ctx, q, el.EventID, el.EnrollmentID, el.EmailType, el.RecipientEmail, el.Subject, el.Status).
		Scan(&el.ID, &el.CreatedAt); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	return nil
}

// Claim records a pending email under el.DedupKey. It reports false, with no
// error, when a row with the same key already exists.
func (r *Repository) Claim(ctx context.Context, el *models.EmailLog) (bool, error) {
	if el.DedupKey == nil {
		return false, errdef.NewValidationFailed("claim requires a dedup key")
	}
	const q = `INSERT INTO email_logs (event_id, enrollment_id, email_type, recipient_email, subject, status, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id, created_at`
	el.Status = models.EmailLogStatusPending
	err := r.pool.QueryRow(ctx, q, el.EventID, el.EnrollmentID, el.EmailType, el.RecipientEmail, el.Subject, el.Status, *el.DedupKey).
		Scan(&el.ID, &el.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim email log: %w", err)
	}
	return true, nil
}

// Release drops a claim so a later sweep can try again.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM email_logs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("release email log: %w", err)
	}
	return nil
}

// MarkSent sets status to sent.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE email_logs SET status = $1, sent_at = $2, error_message = NULL WHERE id = $3`
	if _, err := r.pool.Exec(ctx, q, models.EmailLogStatusSent, at, id); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// MarkFailed sets status to failed with the delivery error.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE email_logs SET status = $1, error_message = $2 WHERE id = $3`
	if _, err := r.pool.Exec(ctx, q, models.EmailLogStatusFailed, reason, id); err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return nil
}

// ListByEvent returns email logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, event_id, enrollment_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EventID, &el.EnrollmentID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
