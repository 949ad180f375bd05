package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/voyagekit/compass/pkg/models"
)

// ItemCatalogProvider serves candidate items with their static attributes.
type ItemCatalogProvider interface {
	ActiveItems(ctx context.Context) ([]models.CandidateItem, error)
}

// InteractionLogProvider serves the append-only interaction/rating log
// used for model training and edge derivation.
type InteractionLogProvider interface {
	Interactions(ctx context.Context) ([]models.InteractionRecord, error)
}

// SubscriptionGraphProvider serves the weighted actor/publisher/item edges
// the influence graph is built from.
type SubscriptionGraphProvider interface {
	Edges(ctx context.Context) ([]models.SubscriptionEdge, error)
}

// InterestSignalStore appends and queries explicit and inferred interest
// signals. Signals are superseded by later ones, never deleted.
type InterestSignalStore interface {
	Append(ctx context.Context, signal models.InterestSignal) error
	SignalsForActor(ctx context.Context, actorID uuid.UUID) ([]models.InterestSignal, error)
}

// InterestProfileProvider aggregates raw signals into one weight map per
// actor.
type InterestProfileProvider interface {
	Profile(ctx context.Context, actorID uuid.UUID) (*models.InterestProfile, error)
}

// InfluenceProvider exposes the published graph snapshot to the request
// path.
type InfluenceProvider interface {
	Snapshot() *models.GraphSnapshot
	InfluenceScore(nodeID string) (*models.InfluenceScore, error)
}

// DiscoveryProvider exposes long-tail candidates from the published latent
// model.
type DiscoveryProvider interface {
	Model() *models.LatentModel
	LongTailCandidates(actorID uuid.UUID, n int) ([]uuid.UUID, error)
	Predict(actorID, itemID uuid.UUID) (float64, bool)
}

// RecommendationProvider is the orchestrator surface the HTTP handlers
// depend on.
type RecommendationProvider interface {
	Recommend(ctx context.Context, actorID uuid.UUID, constraints models.ScoringConstraints) (*models.RecommendationSet, error)
	InvalidateActor(ctx context.Context, actorID uuid.UUID) error
}

// RecomputeTrigger starts the batch pipeline. Start reports whether a run
// was actually started; an in-progress run causes the trigger to be
// skipped, not queued.
type RecomputeTrigger interface {
	TriggerRecompute() bool
}
