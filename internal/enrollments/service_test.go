package enrollments

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/broker"
)

type fixture struct {
	store     *memStore
	users     *fakeDirectory
	notifier  *fakeNotifier
	mail      *fakeMail
	publisher *fakePublisher
	svc       *Service
	admin     auth.Caller
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		users:     newFakeDirectory(),
		notifier:  &fakeNotifier{},
		mail:      &fakeMail{},
		publisher: &fakePublisher{},
	}
	f.svc = NewService(f.store, f.users, f.notifier, f.mail, f.publisher, "https://corkboard.test", nil)
	admin := f.users.add(models.RoleAdmin)
	f.admin = auth.Caller{UserID: admin.ID, Email: admin.Email, Role: models.RoleAdmin}
	return f
}

func (f *fixture) member() auth.Caller {
	u := f.users.add(models.RoleIndividual)
	return auth.Caller{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func intPtr(n int) *int { return &n }

func TestIsFull(t *testing.T) {
	assert.False(t, IsFull(&models.Event{}))
	assert.False(t, IsFull(&models.Event{MaxAttendees: intPtr(2), CurrentAttendees: 1}))
	assert.True(t, IsFull(&models.Event{MaxAttendees: intPtr(2), CurrentAttendees: 2}))
	assert.True(t, IsFull(&models.Event{MaxAttendees: intPtr(0)}))
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("approve")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)

	a, err = ParseAction(" REJECT ")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, a)

	_, err = ParseAction("MAYBE")
	assert.True(t, errdef.IsValidationFailed(err))
}

func TestEnroll(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(10), models.EventStatusPublished)
	user := f.member()

	res, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)
	assert.False(t, res.Waitlisted)
	assert.Equal(t, models.EnrollmentPending, res.Enrollment.Status)
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees, "enrolling never takes a seat")

	adminNotes := f.notifier.forUser(f.admin.UserID)
	require.Len(t, adminNotes, 1)
	assert.Equal(t, models.NotificationEventEnrollment, adminNotes[0].Type)
	assert.Equal(t, user.UserID, *adminNotes[0].SenderID)
	assert.Equal(t, event.ID, *adminNotes[0].EntityID)
	assert.Len(t, f.notifier.forUser(user.UserID), 1)
	assert.Equal(t, []string{broker.EnrollmentCreated}, f.publisher.types())

	_, err = f.svc.Enroll(ctx, user, event.ID)
	assert.True(t, errdef.IsConflict(err), "duplicate enrollment")
}

func TestEnroll_EventMustBePublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := f.member()

	_, err := f.svc.Enroll(ctx, user, uuid.New())
	assert.True(t, errdef.IsNotFound(err))

	for _, status := range []models.EventStatus{models.EventStatusDraft, models.EventStatusCancelled, models.EventStatusCompleted} {
		event := f.store.addEvent(nil, status)
		_, err := f.svc.Enroll(ctx, user, event.ID)
		assert.True(t, errdef.IsNotFound(err), "status %s", status)
	}
	assert.Empty(t, f.store.enrollments)
}

func TestEnroll_Unauthenticated(t *testing.T) {
	f := newFixture()
	event := f.store.addEvent(nil, models.EventStatusPublished)
	_, err := f.svc.Enroll(context.Background(), auth.Caller{}, event.ID)
	assert.True(t, errdef.IsUnauthenticated(err))
}

// A full event still accepts enrollment; approval is what gets refused.
func TestScenario_LastSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(1), models.EventStatusPublished)
	first, second := f.member(), f.member()

	_, err := f.svc.Enroll(ctx, first, event.ID)
	require.NoError(t, err)
	approved, err := f.svc.Decide(ctx, f.admin, event.ID, first.UserID, ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentApproved, approved.Status)
	assert.Equal(t, f.admin.UserID, *approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, 1, f.store.event(event.ID).CurrentAttendees)

	res, err := f.svc.Enroll(ctx, second, event.ID)
	require.NoError(t, err)
	assert.True(t, res.Waitlisted)

	_, err = f.svc.Decide(ctx, f.admin, event.ID, second.UserID, ActionApprove, nil)
	assert.True(t, errdef.IsCapacityExceeded(err))

	pending, err := f.svc.MyEnrollment(ctx, second, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPending, pending.Status)
	assert.Equal(t, 1, f.store.event(event.ID).CurrentAttendees)
}

// Cancelling an approved enrollment frees its seat for the next approval.
func TestScenario_CancelFreesSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(1), models.EventStatusPublished)
	first, second := f.member(), f.member()

	_, err := f.svc.Enroll(ctx, first, event.ID)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, second, event.ID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, f.admin, event.ID, first.UserID, ActionApprove, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(ctx, first, event.ID))
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees)
	_, err = f.svc.MyEnrollment(ctx, first, event.ID)
	assert.True(t, errdef.IsNotFound(err), "cancellation deletes the row")

	_, err = f.svc.Decide(ctx, f.admin, event.ID, second.UserID, ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.event(event.ID).CurrentAttendees)

	// the freed user may enroll again
	_, err = f.svc.Enroll(ctx, first, event.ID)
	require.NoError(t, err)
}

func TestScenario_Unlimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(nil, models.EventStatusPublished)

	for i := 0; i < 25; i++ {
		u := f.member()
		res, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
		assert.False(t, res.Waitlisted)
		_, err = f.svc.Decide(ctx, f.admin, event.ID, u.UserID, ActionApprove, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 25, f.store.event(event.ID).CurrentAttendees)
}

func TestDecide_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)
	user := f.member()
	_, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)
	f.notifier.sent = nil

	note := "Venue is members only."
	rejected, err := f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionReject, &note)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentRejected, rejected.Status)
	assert.Equal(t, note, *rejected.AdminNote)
	assert.Nil(t, rejected.ApprovedBy)
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees)

	notes := f.notifier.forUser(user.UserID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationEventRejected, notes[0].Type)
	assert.Contains(t, notes[0].Message, note)
	assert.Empty(t, f.mail.sent, "rejection sends no email")

	// REJECTED is terminal
	_, err = f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionApprove, nil)
	assert.True(t, errdef.IsConflict(err))
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees)
}

func TestDecide_ApproveNotifiesAndEmails(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)
	user := f.member()
	_, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)
	f.notifier.sent = nil

	approved, err := f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionApprove, nil)
	require.NoError(t, err)

	notes := f.notifier.forUser(user.UserID)
	require.Len(t, notes, 1, "exactly one notification for the affected user")
	assert.Equal(t, models.NotificationEventApproved, notes[0].Type)

	require.Len(t, f.mail.sent, 1)
	msg := f.mail.sent[0]
	assert.Equal(t, models.EmailTypeEnrollmentApproved, msg.EmailType)
	assert.Equal(t, f.users.users[user.UserID].Email, msg.To)
	assert.Equal(t, approved.ID, msg.EnrollmentID)
	assert.Contains(t, msg.HTML, "https://corkboard.test/events/"+event.Slug)

	assert.Equal(t, []string{broker.EnrollmentCreated, broker.EnrollmentApproved}, f.publisher.types())

	_, err = f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionApprove, nil)
	assert.True(t, errdef.IsConflict(err), "second approval is rejected")
	assert.Equal(t, 1, f.store.event(event.ID).CurrentAttendees)
}

func TestDecide_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)
	user := f.member()
	_, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, f.member(), event.ID, user.UserID, ActionApprove, nil)
	assert.True(t, errdef.IsForbidden(err))

	_, err = f.svc.Decide(ctx, f.admin, event.ID, user.UserID, Action("MAYBE"), nil)
	assert.True(t, errdef.IsValidationFailed(err))

	_, err = f.svc.Decide(ctx, f.admin, event.ID, uuid.New(), ActionApprove, nil)
	assert.True(t, errdef.IsNotFound(err))

	_, err = f.svc.Decide(ctx, f.admin, uuid.New(), user.UserID, ActionApprove, nil)
	assert.True(t, errdef.IsNotFound(err))

	still, err := f.svc.MyEnrollment(ctx, user, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPending, still.Status)
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees)
}

func TestDecide_RollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)
	user := f.member()
	_, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)

	f.store.failUpdate = errBoom
	_, err = f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionApprove, nil)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, errdef.KindInternal, errdef.KindOf(err))
	assert.Zero(t, f.store.event(event.ID).CurrentAttendees, "increment rolled back with the failed update")
	assert.Empty(t, f.mail.sent)
}

func TestDecide_SideEffectFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)
	user := f.member()
	_, err := f.svc.Enroll(ctx, user, event.ID)
	require.NoError(t, err)

	f.notifier.err = errBoom
	f.publisher.err = errBoom
	delete(f.users.users, user.UserID)

	approved, err := f.svc.Decide(ctx, f.admin, event.ID, user.UserID, ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentApproved, approved.Status)
	assert.Empty(t, f.mail.sent, "email skipped when the user cannot be resolved")
}

func TestDecide_ConcurrentApprovalsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	const seats, applicants = 3, 12
	event := f.store.addEvent(intPtr(seats), models.EventStatusPublished)

	var users []auth.Caller
	for i := 0; i < applicants; i++ {
		u := f.member()
		_, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
		users = append(users, u)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
		full     int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u auth.Caller) {
			defer wg.Done()
			_, err := f.svc.Decide(ctx, f.admin, event.ID, u.UserID, ActionApprove, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				approved++
			case errdef.IsCapacityExceeded(err):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, seats, approved)
	assert.Equal(t, applicants-seats, full)
	assert.Equal(t, seats, f.store.event(event.ID).CurrentAttendees)
	assert.Equal(t, f.store.approvedCount(event.ID), f.store.event(event.ID).CurrentAttendees)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(intPtr(5), models.EventStatusPublished)

	t.Run("pending keeps the counter", func(t *testing.T) {
		u := f.member()
		_, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, u, event.ID))
		assert.Zero(t, f.store.event(event.ID).CurrentAttendees)
	})

	t.Run("rejected is just removed", func(t *testing.T) {
		u := f.member()
		_, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
		_, err = f.svc.Decide(ctx, f.admin, event.ID, u.UserID, ActionReject, nil)
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, u, event.ID))
		_, err = f.svc.MyEnrollment(ctx, u, event.ID)
		assert.True(t, errdef.IsNotFound(err))
	})

	t.Run("missing", func(t *testing.T) {
		assert.True(t, errdef.IsNotFound(f.svc.Cancel(ctx, f.member(), event.ID)))
		assert.True(t, errdef.IsNotFound(f.svc.Cancel(ctx, f.member(), uuid.New())))
	})

	t.Run("counter never goes negative", func(t *testing.T) {
		u := f.member()
		_, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
		_, err = f.svc.Decide(ctx, f.admin, event.ID, u.UserID, ActionApprove, nil)
		require.NoError(t, err)
		f.store.mu.Lock()
		f.store.events[event.ID].CurrentAttendees = 0
		f.store.mu.Unlock()

		require.NoError(t, f.svc.Cancel(ctx, u, event.ID))
		assert.Zero(t, f.store.event(event.ID).CurrentAttendees)
	})
}

func TestListEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	event := f.store.addEvent(nil, models.EventStatusPublished)
	a, b := f.member(), f.member()
	for _, u := range []auth.Caller{a, b} {
		_, err := f.svc.Enroll(ctx, u, event.ID)
		require.NoError(t, err)
	}
	_, err := f.svc.Decide(ctx, f.admin, event.ID, a.UserID, ActionApprove, nil)
	require.NoError(t, err)

	all, err := f.svc.ListEnrollments(ctx, f.admin, event.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.EnrollmentPending
	pending, err := f.svc.ListEnrollments(ctx, f.admin, event.ID, &status)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.UserID, pending[0].UserID)

	_, err = f.svc.ListEnrollments(ctx, a, event.ID, nil)
	assert.True(t, errdef.IsForbidden(err))

	bogus := models.EnrollmentStatus("MAYBE")
	_, err = f.svc.ListEnrollments(ctx, f.admin, event.ID, &bogus)
	assert.True(t, errdef.IsValidationFailed(err))

	_, err = f.svc.ListEnrollments(ctx, f.admin, uuid.New(), nil)
	assert.True(t, errdef.IsNotFound(err))
}
