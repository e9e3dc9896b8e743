//go:build integration

// Package inttest starts throwaway backing services for integration tests.
package inttest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/database"
)

// SetupDB starts a PostgreSQL container, runs the migrations and returns a pool.
func SetupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "corkboard",
				"POSTGRES_PASSWORD": "corkboard",
				"POSTGRES_DB":       "corkboard_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start postgres")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://corkboard:corkboard@%s:%s/corkboard_test?sslmode=disable", host, port.Port())
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	require.NoError(t, err, "failed to connect to postgres")
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool), "failed to migrate")
	return pool
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, pool *pgxpool.Pool, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Email: uuid.NewString() + "@example.com", FullName: "Test User", Role: role}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash, full_name, role) VALUES ($1, 'x', $2, $3) RETURNING id, created_at, updated_at`,
		u.Email, u.FullName, string(role)).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	require.NoError(t, err)
	return u
}

// CreateEvent inserts a published event starting at start.
func CreateEvent(t *testing.T, pool *pgxpool.Pool, organizer uuid.UUID, max *int, start time.Time) *models.Event {
	t.Helper()
	e := &models.Event{
		Slug:         "event-" + uuid.NewString(),
		Title:        "Integration Event",
		StartDate:    start,
		EndDate:      start.Add(2 * time.Hour),
		MaxAttendees: max,
		Status:       models.EventStatusPublished,
		OrganizerID:  organizer,
	}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO events (slug, title, start_date, end_date, max_attendees, status, organizer_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		e.Slug, e.Title, e.StartDate, e.EndDate, e.MaxAttendees, string(e.Status), e.OrganizerID).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	require.NoError(t, err)
	return e
}
