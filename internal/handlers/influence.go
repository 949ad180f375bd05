package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
)

type InfluenceHandler struct {
	influence services.InfluenceProvider
	logger    *logrus.Logger
}

func NewInfluenceHandler(influence services.InfluenceProvider, logger *logrus.Logger) *InfluenceHandler {
	return &InfluenceHandler{
		influence: influence,
		logger:    logger,
	}
}

// Get serves GET /api/v1/influence/:nodeId against the published graph
// snapshot.
func (h *InfluenceHandler) Get(c *gin.Context) {
	nodeID := c.Param("nodeId")
	if nodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_NODE_ID",
				"message": "Node ID is required",
			},
		})
		return
	}

	score, err := h.influence.InfluenceScore(nodeID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrModelUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":    "SNAPSHOT_UNAVAILABLE",
					"message": "No influence snapshot has been published yet",
				},
			})
		case errors.Is(err, services.ErrNodeNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "NODE_NOT_FOUND",
					"message": "Node is not present in the influence graph",
				},
			})
		default:
			h.logger.WithError(err).WithField("node_id", nodeID).Error("Failed to look up influence score")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "INFLUENCE_LOOKUP_FAILED",
					"message": "Failed to look up influence score",
				},
			})
		}
		return
	}

	c.JSON(http.StatusOK, score)
}
