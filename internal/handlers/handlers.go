package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/internal/validation"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Influence      *InfluenceHandler
	Discovery      *DiscoveryHandler
	Signal         *SignalHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, svc *services.Services, validator *validation.SchemaValidator) *Handlers {
	var publisher SignalPublisher
	if svc.MessageBus != nil {
		publisher = svc.MessageBus
	}

	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Orchestrator, svc.Metrics, logger),
		Influence:      NewInfluenceHandler(svc.Influence, logger),
		Discovery:      NewDiscoveryHandler(svc.Recommender, logger),
		Signal:         NewSignalHandler(publisher, validator, logger),
		Admin:          NewAdminHandler(svc.Pipeline, logger),
	}
}
