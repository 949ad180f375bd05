package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
)

type AdminHandler struct {
	pipeline services.RecomputeTrigger
	logger   *logrus.Logger
}

func NewAdminHandler(pipeline services.RecomputeTrigger, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Recompute serves POST /api/v1/admin/recompute. The trigger is
// asynchronous and idempotent: a run already in progress is reported as
// skipped, never queued.
func (h *AdminHandler) Recompute(c *gin.Context) {
	started := h.pipeline.TriggerRecompute()

	status := "started"
	if !started {
		status = "skipped"
	}

	h.logger.WithField("status", status).Info("Batch recompute requested")

	c.JSON(http.StatusAccepted, gin.H{
		"status": status,
	})
}
