package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/internal/database"
	"github.com/voyagekit/compass/internal/messaging"
	"github.com/voyagekit/compass/pkg/models"
)

// Providers groups the storage-backed data sources the engine reads from.
// Callers construct them against real databases; tests substitute fakes.
type Providers struct {
	Catalog      ItemCatalogProvider
	Interactions InteractionLogProvider
	Signals      InterestSignalStore
	Graph        SubscriptionGraphProvider
}

type Services struct {
	Health       *HealthService
	Metrics      *EngineMetrics
	MessageBus   *messaging.MessageBus
	Profiles     *InterestProfileAggregator
	Scoring      *ScoringEngine
	Influence    *InfluenceGraphService
	Recommender  *LatentFactorRecommender
	Orchestrator *RecommendationOrchestrator
	Pipeline     *BatchPipeline

	signals  InterestSignalStore
	validate *validator.Validate
	logger   *logrus.Logger
}

func New(
	cfg *config.Config,
	logger *logrus.Logger,
	db *database.Database,
	metrics *EngineMetrics,
	providers Providers,
	messageBus *messaging.MessageBus,
) (*Services, error) {
	profiles := NewInterestProfileAggregator(providers.Signals, &cfg.Engine.Interest, logger)
	scoring := NewScoringEngine(&cfg.Engine.Scoring, logger)
	influence := NewInfluenceGraphService(providers.Graph, &cfg.Engine.Influence, logger)
	recommender := NewLatentFactorRecommender(providers.Interactions, &cfg.Engine.Latent, &cfg.Engine.LongTail, logger)

	orchestrator := NewRecommendationOrchestrator(
		scoring, profiles, providers.Catalog, influence, recommender,
		db.Redis, &cfg.Engine, logger,
	)

	pipeline := NewBatchPipeline(influence, recommender, metrics, cfg.Engine.Pipeline.Interval, logger)
	healthService := NewHealthService(cfg, logger, db, influence, recommender)

	return &Services{
		Health:       healthService,
		Metrics:      metrics,
		MessageBus:   messageBus,
		Profiles:     profiles,
		Scoring:      scoring,
		Influence:    influence,
		Recommender:  recommender,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		signals:      providers.Signals,
		validate:     validator.New(),
		logger:       logger,
	}, nil
}

// Start launches the batch pipeline and, when a message bus is configured,
// the interest signal consumer. The consumer runs until ctx is cancelled.
func (s *Services) Start(ctx context.Context) {
	s.Pipeline.Start()

	if s.MessageBus != nil {
		go func() {
			if err := s.MessageBus.ConsumeSignals(ctx, s.HandleInterestSignal); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Error("Interest signal consumer stopped")
			}
		}()
	}
}

// Stop shuts the pipeline down and closes the message bus.
func (s *Services) Stop() {
	s.Pipeline.Stop()

	if s.MessageBus != nil {
		if err := s.MessageBus.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close message bus")
		}
	}
}

// HandleInterestSignal persists one validated signal and drops the actor's
// cached recommendations so the next request sees the updated profile.
func (s *Services) HandleInterestSignal(ctx context.Context, signal models.InterestSignal) error {
	if err := s.validate.Struct(signal); err != nil {
		return fmt.Errorf("invalid interest signal: %w", err)
	}

	if err := s.signals.Append(ctx, signal); err != nil {
		return fmt.Errorf("failed to store interest signal: %w", err)
	}

	if err := s.Orchestrator.InvalidateActor(ctx, signal.ActorID); err != nil {
		s.logger.WithError(err).WithField("actor_id", signal.ActorID).Warn("Failed to invalidate cached recommendations")
	}

	s.logger.WithFields(logrus.Fields{
		"actor_id": signal.ActorID,
		"category": signal.Category,
		"keyword":  signal.Keyword,
		"source":   signal.Source,
	}).Debug("Interest signal stored")

	return nil
}
