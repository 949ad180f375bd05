package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/validation"
	"github.com/voyagekit/compass/pkg/models"
)

// SignalPublisher is the message bus surface the ingestion handler needs.
type SignalPublisher interface {
	PublishInterestSignal(signal models.InterestSignal) error
}

type SignalHandler struct {
	publisher SignalPublisher
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewSignalHandler(publisher SignalPublisher, validator *validation.SchemaValidator, logger *logrus.Logger) *SignalHandler {
	return &SignalHandler{
		publisher: publisher,
		validator: validator,
		logger:    logger,
	}
}

// Ingest serves POST /api/v1/signals. The signal is schema-validated and
// handed to Kafka; persistence happens asynchronously in the consumer, so
// the response is 202, not 201.
func (h *SignalHandler) Ingest(c *gin.Context) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "INGESTION_UNAVAILABLE",
				"message": "Signal ingestion is not configured",
			},
		})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Failed to read request body",
			},
		})
		return
	}

	if result := h.validator.ValidateInterestSignal(body); !result.Valid {
		c.JSON(http.StatusBadRequest, result.ToAPIError())
		return
	}

	var signal models.InterestSignal
	if err := json.Unmarshal(body, &signal); err != nil {
		// Schema validation passed, so this only catches type-level drift.
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid signal payload",
			},
		})
		return
	}

	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}
	if signal.Source == models.SignalSourceExplicit {
		signal.Confidence = 1.0
	}

	if err := h.publisher.PublishInterestSignal(signal); err != nil {
		h.logger.WithError(err).WithField("actor_id", signal.ActorID).Error("Failed to publish interest signal")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "INGESTION_FAILED",
				"message": "Failed to queue interest signal",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"actor_id": signal.ActorID,
	})
}
