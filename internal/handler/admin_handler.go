package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OutboxReplayer republishes outbox events.
type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	replayer OutboxReplayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replayer: replayer, logger: logger}
}

// ReplayOutboxEvent serves POST /admin/outbox/replay?id=.
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	idStr := c.Query("id")
	if idStr == "" {
		respondError(c, h.logger, "ReplayOutboxEvent", badRequest("id", "this field is required"))
		return
	}
	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(c, h.logger, "ReplayOutboxEvent", badRequest("id", "must be an integer"))
		return
	}

	if err := h.replayer.ReplayEvent(c.Request.Context(), eventID); err != nil {
		respondError(c, h.logger, "ReplayOutboxEvent", err)
		return
	}
	h.logger.Info("Outbox event replayed by operator", zap.Int64("event_id", eventID))
	c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
}

// ReplayFailedEvents serves POST /admin/outbox/replay-failed?limit=100.
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	replayed, err := h.replayer.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "ReplayFailedEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "success_count": replayed, "limit": limit})
}
