package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/middleware"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/pkg/response"
)

// Lister reads email logs for an event.
type Lister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	logs   Lister
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(logs Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, logger: logger}
}

// ListByEvent handles GET /events/:id/emails (admin only).
func (h *Handler) ListByEvent(c *gin.Context) {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := auth.RequireAdmin(caller); err != nil {
		response.Error(c, err)
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.logs.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list email logs failed", zap.String("event_id", eventID.String()), zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
