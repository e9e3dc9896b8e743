package enrollments

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/response"
)

// DecideRequest is the body for PATCH /events/:id/enrollments/:userId.
type DecideRequest struct {
	Action    string  `json:"action" binding:"required"`
	AdminNote *string `json:"adminNote" binding:"omitempty,max=1000"`
}

// EnrollResponse is returned by POST /events/:id/enroll.
type EnrollResponse struct {
	EnrollResult
	Message string `json:"message"`
}

// Handler handles enrollment HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an enrollment handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Enroll handles POST /events/:id/enroll.
func (h *Handler) Enroll(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	eventID, ok := parseID(c, "id", "invalid event id")
	if !ok {
		return
	}
	res, err := h.svc.Enroll(c.Request.Context(), caller, eventID)
	if err != nil {
		h.fail(c, "enroll failed", err)
		return
	}
	msg := "Enrollment request submitted and awaiting approval."
	if res.Waitlisted {
		msg = "The event is full. You have been added to the waitlist."
	}
	response.Created(c, EnrollResponse{EnrollResult: *res, Message: msg})
}

// Cancel handles DELETE /events/:id/enroll.
func (h *Handler) Cancel(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	eventID, ok := parseID(c, "id", "invalid event id")
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), caller, eventID); err != nil {
		h.fail(c, "cancel enrollment failed", err)
		return
	}
	response.OK(c, gin.H{"message": "Enrollment cancelled."})
}

// Mine handles GET /events/:id/enroll.
func (h *Handler) Mine(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	eventID, ok := parseID(c, "id", "invalid event id")
	if !ok {
		return
	}
	e, err := h.svc.MyEnrollment(c.Request.Context(), caller, eventID)
	if err != nil {
		h.fail(c, "get enrollment failed", err)
		return
	}
	response.OK(c, e)
}

// List handles GET /events/:id/enrollments (admin). Supports ?status=.
func (h *Handler) List(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	eventID, ok := parseID(c, "id", "invalid event id")
	if !ok {
		return
	}
	var status *models.EnrollmentStatus
	if v := c.Query("status"); v != "" {
		s := models.EnrollmentStatus(v)
		status = &s
	}
	list, err := h.svc.ListEnrollments(c.Request.Context(), caller, eventID, status)
	if err != nil {
		h.fail(c, "list enrollments failed", err)
		return
	}
	response.OK(c, list)
}

// Decide handles PATCH /events/:id/enrollments/:userId (admin).
func (h *Handler) Decide(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := auth.RequireAdmin(caller); err != nil {
		response.Error(c, err)
		return
	}
	eventID, ok := parseID(c, "id", "invalid event id")
	if !ok {
		return
	}
	userID, ok := parseID(c, "userId", "invalid user id")
	if !ok {
		return
	}
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		response.Error(c, err)
		return
	}
	e, err := h.svc.Decide(c.Request.Context(), caller, eventID, userID, action, req.AdminNote)
	if err != nil {
		h.fail(c, "decide enrollment failed", err)
		return
	}
	response.OK(c, e)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if errdef.KindOf(err) == errdef.KindInternal {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	response.Error(c, err)
}

func parseID(c *gin.Context, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, msg)
		return uuid.Nil, false
	}
	return id, true
}
