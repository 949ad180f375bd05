package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
)

const defaultDiscoveryCount = 3

type DiscoveryHandler struct {
	discovery services.DiscoveryProvider
	logger    *logrus.Logger
}

func NewDiscoveryHandler(discovery services.DiscoveryProvider, logger *logrus.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discovery: discovery,
		logger:    logger,
	}
}

// Get serves GET /api/v1/discovery/:actorId?n= with long-tail item ids from
// the published latent model. An actor without training history gets an
// empty list, not an error.
func (h *DiscoveryHandler) Get(c *gin.Context) {
	actorID, err := uuid.Parse(c.Param("actorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_ACTOR_ID",
				"message": "Invalid actor ID format",
			},
		})
		return
	}

	n := defaultDiscoveryCount
	if nStr := c.Query("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_COUNT",
					"message": "n must be an integer between 1 and 100",
				},
			})
			return
		}
		n = parsed
	}

	items, err := h.discovery.LongTailCandidates(actorID, n)
	if err != nil {
		if errors.Is(err, services.ErrModelUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":    "MODEL_UNAVAILABLE",
					"message": "No latent model has been trained yet",
				},
			})
			return
		}

		h.logger.WithError(err).WithField("actor_id", actorID).Error("Failed to select discovery candidates")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "DISCOVERY_FAILED",
				"message": "Failed to select discovery candidates",
			},
		})
		return
	}

	if items == nil {
		items = []uuid.UUID{}
	}

	c.JSON(http.StatusOK, gin.H{
		"actor_id": actorID,
		"items":    items,
	})
}
