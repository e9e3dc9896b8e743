package events

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/response"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store is the event persistence the handler needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListUpcoming(ctx context.Context, now time.Time, limit, offset int) ([]models.Event, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.EventStatus) (*models.Event, error)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title        string    `json:"title" binding:"required"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartDate    time.Time `json:"start_date" binding:"required"`
	EndDate      time.Time `json:"end_date" binding:"required"`
	MaxAttendees *int      `json:"max_attendees" binding:"omitempty,min=0"`
	Publish      bool      `json:"publish"`
}

// StatusRequest is the body for PATCH /events/:id/status.
type StatusRequest struct {
	Status models.EventStatus `json:"status" binding:"required"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, now: time.Now, logger: logger}
}

// Create handles POST /events. The caller becomes the organizer.
func (h *Handler) Create(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !req.EndDate.After(req.StartDate) {
		response.BadRequest(c, "end_date must be after start_date")
		return
	}

	status := models.EventStatusDraft
	if req.Publish {
		status = models.EventStatusPublished
	}
	e := &models.Event{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		MaxAttendees: req.MaxAttendees,
		Status:       status,
		OrganizerID:  caller.UserID,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.fail(c, "create event failed", err)
		return
	}
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.String("slug", e.Slug))
	response.Created(c, e)
}

// Get handles GET /events/:id. The parameter may be an ID or a slug.
func (h *Handler) Get(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	param := c.Param("id")
	var e *models.Event
	if id, perr := uuid.Parse(param); perr == nil {
		e, err = h.store.GetByID(c.Request.Context(), id)
	} else {
		e, err = h.store.GetBySlug(c.Request.Context(), param)
	}
	if err != nil {
		h.fail(c, "get event failed", err)
		return
	}
	if e.Status != models.EventStatusPublished && canManage(caller, e) != nil {
		response.Error(c, errdef.NewNotFound("event %q not found", param))
		return
	}
	response.OK(c, e)
}

// List handles GET /events: published upcoming events. Supports ?limit= and ?offset=.
func (h *Handler) List(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	list, err := h.store.ListUpcoming(c.Request.Context(), h.now(), limit, offset)
	if err != nil {
		h.fail(c, "list events failed", err)
		return
	}
	response.OK(c, list)
}

// UpdateStatus handles PATCH /events/:id/status (organizer or admin).
func (h *Handler) UpdateStatus(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !req.Status.Valid() {
		response.BadRequest(c, "unknown status "+string(req.Status))
		return
	}

	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get event failed", err)
		return
	}
	if err := canManage(caller, e); err != nil {
		response.Error(c, err)
		return
	}
	if !CanTransition(e.Status, req.Status) {
		response.Error(c, errdef.NewConflict("event cannot move from %s to %s", e.Status, req.Status))
		return
	}

	updated, err := h.store.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, "update event status failed", err)
		return
	}
	h.logger.Info("event status changed",
		zap.String("event_id", id.String()),
		zap.String("from", string(e.Status)),
		zap.String("to", string(req.Status)),
	)
	response.OK(c, updated)
}

// canManage allows the organizer and admins.
func canManage(caller auth.Caller, e *models.Event) error {
	if caller.UserID == e.OrganizerID {
		return nil
	}
	_, err := auth.RequireAdmin(caller)
	return err
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if errdef.KindOf(err) == errdef.KindInternal {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(c, err)
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
