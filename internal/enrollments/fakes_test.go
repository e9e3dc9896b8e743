package enrollments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/broker"
)

// memStore is an in-memory Store. WithTx holds the store lock for the whole
// transaction and restores a snapshot when fn fails.
type memStore struct {
	mu          sync.Mutex
	events      map[uuid.UUID]*models.Event
	enrollments map[uuid.UUID]*models.Enrollment
	failUpdate  error
}

func newMemStore() *memStore {
	return &memStore{
		events:      map[uuid.UUID]*models.Event{},
		enrollments: map[uuid.UUID]*models.Enrollment{},
	}
}

func (m *memStore) addEvent(max *int, status models.EventStatus) *models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &models.Event{
		ID:           uuid.New(),
		Slug:         "event-" + uuid.NewString()[:8],
		Title:        "Design Meetup",
		StartDate:    time.Now().Add(48 * time.Hour),
		EndDate:      time.Now().Add(50 * time.Hour),
		MaxAttendees: max,
		Status:       status,
		OrganizerID:  uuid.New(),
	}
	m.events[e.ID] = e
	return e
}

func (m *memStore) event(id uuid.UUID) models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

func (m *memStore) approvedCount(eventID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.enrollments {
		if e.EventID == eventID && e.Status == models.EnrollmentApproved {
			n++
		}
	}
	return n
}

func (m *memStore) find(eventID, userID uuid.UUID) *models.Enrollment {
	for _, e := range m.enrollments {
		if e.EventID == eventID && e.UserID == userID {
			return e
		}
	}
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, errdef.NewNotFound("event %s not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return nil, errdef.NewNotFound("event %s not found", eventID)
	}
	if m.find(eventID, userID) != nil {
		return nil, errdef.NewConflict("already enrolled in event %s", eventID)
	}
	now := time.Now()
	e := &models.Enrollment{ID: uuid.New(), EventID: eventID, UserID: userID, Status: models.EnrollmentPending, CreatedAt: now, UpdatedAt: now}
	m.enrollments[e.ID] = e
	cp := *e
	return &cp, nil
}

func (m *memStore) Get(_ context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(eventID, userID)
	if e == nil {
		return nil, errdef.NewNotFound("no enrollment for event %s", eventID)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListByEvent(_ context.Context, eventID uuid.UUID, status *models.EnrollmentStatus) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []models.Enrollment{}
	for _, e := range m.enrollments {
		if e.EventID == eventID && (status == nil || e.Status == *status) {
			list = append(list, *e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *memStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make(map[uuid.UUID]models.Event, len(m.events))
	for id, e := range m.events {
		events[id] = *e
	}
	enrollments := make(map[uuid.UUID]models.Enrollment, len(m.enrollments))
	for id, e := range m.enrollments {
		enrollments[id] = *e
	}

	if err := fn(&memTx{m: m}); err != nil {
		m.events = map[uuid.UUID]*models.Event{}
		for id, e := range events {
			e := e
			m.events[id] = &e
		}
		m.enrollments = map[uuid.UUID]*models.Enrollment{}
		for id, e := range enrollments {
			e := e
			m.enrollments[id] = &e
		}
		return err
	}
	return nil
}

type memTx struct {
	m *memStore
}

func (t *memTx) LockEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := t.m.events[id]
	if !ok {
		return nil, errdef.NewNotFound("event %s not found", id)
	}
	cp := *e
	return &cp, nil
}

func (t *memTx) LockEnrollment(_ context.Context, eventID, userID uuid.UUID) (*models.Enrollment, error) {
	e := t.m.find(eventID, userID)
	if e == nil {
		return nil, errdef.NewNotFound("no enrollment for event %s", eventID)
	}
	cp := *e
	return &cp, nil
}

func (t *memTx) UpdateDecision(_ context.Context, d Decision) (*models.Enrollment, error) {
	if t.m.failUpdate != nil {
		return nil, t.m.failUpdate
	}
	e, ok := t.m.enrollments[d.EnrollmentID]
	if !ok {
		return nil, errdef.NewNotFound("enrollment %s not found", d.EnrollmentID)
	}
	e.Status, e.ApprovedBy, e.ApprovedAt, e.AdminNote = d.Status, d.ApprovedBy, d.ApprovedAt, d.AdminNote
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (t *memTx) IncrementAttendees(_ context.Context, id uuid.UUID) (bool, error) {
	e := t.m.events[id]
	if e.MaxAttendees != nil && e.CurrentAttendees >= *e.MaxAttendees {
		return false, nil
	}
	e.CurrentAttendees++
	return true, nil
}

func (t *memTx) DecrementAttendees(_ context.Context, id uuid.UUID) error {
	if e := t.m.events[id]; e.CurrentAttendees > 0 {
		e.CurrentAttendees--
	}
	return nil
}

func (t *memTx) Delete(_ context.Context, id uuid.UUID) error {
	delete(t.m.enrollments, id)
	return nil
}

type fakeDirectory struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*models.User
	admins []uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[uuid.UUID]*models.User{}}
}

func (d *fakeDirectory) add(role models.Role) *models.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: uuid.NewString()[:8] + "@example.com", FullName: "User", Role: role}
	d.users[u.ID] = u
	if role == models.RoleAdmin {
		d.admins = append(d.admins, u.ID)
	}
	return u
}

func (d *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, errdef.NewNotFound("user %s not found", id)
	}
	return u, nil
}

func (d *fakeDirectory) AdminIDs(context.Context) ([]uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.admins...), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, notif *models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, *notif)
	return nil
}

func (n *fakeNotifier) NotifyMany(ctx context.Context, ids []uuid.UUID, tmpl models.Notification) int {
	created := 0
	for _, id := range ids {
		c := tmpl
		c.UserID = id
		if n.Notify(ctx, &c) == nil {
			created++
		}
	}
	return created
}

func (n *fakeNotifier) forUser(id uuid.UUID) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Notification
	for _, s := range n.sent {
		if s.UserID == id {
			out = append(out, s)
		}
	}
	return out
}

type fakeMail struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (f *fakeMail) SendBestEffort(_ context.Context, msg mailer.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []broker.EnrollmentEvent
	err    error
}

func (p *fakePublisher) PublishEnrollment(_ context.Context, evt broker.EnrollmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")
