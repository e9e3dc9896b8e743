package notifications

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Handler handles the notification inbox endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a notification handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /notifications. Supports ?unread=true, ?limit=, ?offset=.
func (h *Handler) List(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	list, err := h.svc.List(c.Request.Context(), caller.UserID, unread, limit, offset)
	if err != nil {
		h.fail(c, "list notifications failed", err)
		return
	}
	response.OK(c, list)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.svc.UnreadCount(c.Request.Context(), caller.UserID)
	if err != nil {
		h.fail(c, "count unread failed", err)
		return
	}
	response.OK(c, gin.H{"count": n})
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.svc.MarkRead(c.Request.Context(), caller.UserID, id)
	if err != nil {
		h.fail(c, "mark read failed", err)
		return
	}
	response.OK(c, n)
}

// MarkAllRead handles PATCH /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.svc.MarkAllRead(c.Request.Context(), caller.UserID)
	if err != nil {
		h.fail(c, "mark all read failed", err)
		return
	}
	response.OK(c, gin.H{"updated": n})
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	if errdef.KindOf(err) == errdef.KindInternal {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(c, err)
}
