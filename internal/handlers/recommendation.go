package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/pkg/models"
)

type RecommendationHandler struct {
	orchestrator services.RecommendationProvider
	metrics      *services.EngineMetrics
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	orchestrator services.RecommendationProvider,
	metrics *services.EngineMetrics,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger,
	}
}

// Get serves GET /api/v1/recommendations/:actorId. Contextual constraints
// arrive as query parameters and bind onto ScoringConstraints.
func (h *RecommendationHandler) Get(c *gin.Context) {
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

	var constraints models.ScoringConstraints
	if err := c.ShouldBindQuery(&constraints); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_CONSTRAINTS",
				"message": "Invalid constraint parameters",
				"details": err.Error(),
			},
		})
		return
	}

	set, err := h.orchestrator.Recommend(c.Request.Context(), actorID, constraints)
	if err != nil {
		h.logger.WithError(err).WithField("actor_id", actorID).Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}

	if h.metrics != nil {
		outcome := "miss"
		if set.Meta.CacheHit {
			outcome = "hit"
		}
		h.metrics.CacheHits.WithLabelValues(outcome).Inc()
	}

	c.JSON(http.StatusOK, set)
}
