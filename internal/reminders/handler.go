package reminders

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/corkboard/backend/pkg/response"
)

// Sweeper runs one reminder sweep. *Service satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*Result, error)
}

// Handler exposes the cron trigger.
type Handler struct {
	sweeper Sweeper
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler creates a reminders handler.
func NewHandler(sweeper Sweeper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sweeper: sweeper, logger: logger, now: time.Now}
}

// Trigger runs a sweep. GET /events/reminders behind the cron secret.
func (h *Handler) Trigger(c *gin.Context) {
	res, err := h.sweeper.Sweep(c.Request.Context(), h.now())
	if err != nil {
		h.logger.Error("reminder sweep failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}
