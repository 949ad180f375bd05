package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

// RecommendationOrchestrator composes interest-driven base scores, the
// social-proof signal from the influence graph, and long-tail discovery
// picks into one explained response. It owns the caching and degradation
// policy: a stale or missing graph snapshot or latent model downgrades the
// response and flags it in the metadata instead of failing the request.
type RecommendationOrchestrator struct {
	scoring   *ScoringEngine
	profiles  InterestProfileProvider
	catalog   ItemCatalogProvider
	influence InfluenceProvider
	discovery DiscoveryProvider
	reasons   *ReasonBuilder
	redis     *redis.Client
	config    *config.EngineConfig
	logger    *logrus.Logger
}

func NewRecommendationOrchestrator(
	scoring *ScoringEngine,
	profiles InterestProfileProvider,
	catalog ItemCatalogProvider,
	influence InfluenceProvider,
	discovery DiscoveryProvider,
	redisClient *redis.Client,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *RecommendationOrchestrator {
	s := cfg.Scoring
	return &RecommendationOrchestrator{
		scoring:   scoring,
		profiles:  profiles,
		catalog:   catalog,
		influence: influence,
		discovery: discovery,
		reasons:   NewReasonBuilder(s.InterestWeight, s.LocalWeight, s.PopularityWeight, s.RatingWeight, s.AccessibilityWeight),
		redis:     redisClient,
		config:    cfg,
		logger:    logger,
	}
}

// Recommend produces the full ranked and explained response for one actor.
// The request path is read-only against the latest published profile, graph
// snapshot and latent model; concurrent requests share no mutable state.
func (o *RecommendationOrchestrator) Recommend(
	ctx context.Context,
	actorID uuid.UUID,
	constraints models.ScoringConstraints,
) (*models.RecommendationSet, error) {
	if timeout := o.config.Orchestrator.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	profile, err := o.profiles.Profile(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interest profile: %w", err)
	}

	cacheKey := o.cacheKey(actorID, constraints, profile.Fingerprint)
	if cached := o.cachedSet(ctx, cacheKey); cached != nil {
		o.logger.WithField("actor_id", actorID).Debug("Recommendation cache hit")
		return cached, nil
	}

	candidates, err := o.catalog.ActiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate items: %w", err)
	}
	byID := make(map[uuid.UUID]*models.CandidateItem, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}

	items := o.scoring.Rank(candidates, profile, constraints)
	meta := models.ResponseMetadata{GeneratedAt: time.Now()}

	socialWeight := o.applySocialProof(items, &meta)

	for i := range items {
		items[i].ReasoningText = o.reasons.Explain(&items[i], byID[items[i].ItemID], profile, socialWeight)
	}

	discovery := o.buildDiscovery(actorID, byID, &meta)

	set := &models.RecommendationSet{
		ActorID:   actorID,
		Items:     items,
		Discovery: discovery,
		Meta:      meta,
	}

	o.cacheSet(ctx, cacheKey, set)

	o.logger.WithFields(logrus.Fields{
		"actor_id":  actorID,
		"items":     len(items),
		"discovery": len(discovery),
		"degraded":  meta.SocialProofUnavailable || meta.DiscoveryUnavailable,
	}).Info("Recommendations generated")

	return set, nil
}

// applySocialProof mixes the normalized influence rank into the final
// scores and re-sorts. A missing or stale snapshot zeroes the social weight
// and sets the degradation flag; base scores then pass through unchanged in
// ordering.
func (o *RecommendationOrchestrator) applySocialProof(items []models.ScoredRecommendation, meta *models.ResponseMetadata) float64 {
	socialWeight := o.config.Orchestrator.SocialWeight

	snap := o.influence.Snapshot()
	if snap == nil || snap.Rank == nil || o.stale(snap.ComputedAt) {
		meta.SocialProofUnavailable = true
		socialWeight = 0
	} else {
		meta.RankConverged = snap.Rank.Converged

		// Min-max normalize over the current rank vector.
		first := true
		var lo, hi float64
		for _, rank := range snap.Rank.Scores {
			if first || rank < lo {
				lo = rank
			}
			if first || rank > hi {
				hi = rank
			}
			first = false
		}
		if hi > lo {
			for i := range items {
				if rank, ok := snap.Rank.Scores[items[i].ItemID.String()]; ok {
					items[i].Breakdown.SocialProof = (rank - lo) / (hi - lo)
				}
			}
		}
	}

	for i := range items {
		items[i].FinalScore = items[i].Breakdown.BaseScore*(1-socialWeight) +
			items[i].Breakdown.SocialProof*socialWeight
	}
	sortRecommendations(items)
	for i := range items {
		items[i].Position = i + 1
	}
	return socialWeight
}

// buildDiscovery fetches long-tail picks from the latent model. Any failure
// or staleness degrades to an empty section with the flag set; an actor
// without training interactions legitimately gets an empty section with no
// flag.
func (o *RecommendationOrchestrator) buildDiscovery(
	actorID uuid.UUID,
	byID map[uuid.UUID]*models.CandidateItem,
	meta *models.ResponseMetadata,
) []models.ScoredRecommendation {
	model := o.discovery.Model()
	if model == nil || o.stale(model.TrainedAt) {
		meta.DiscoveryUnavailable = true
		return nil
	}

	ids, err := o.discovery.LongTailCandidates(actorID, o.config.Orchestrator.DiscoveryCount)
	if err != nil {
		o.logger.WithError(err).WithField("actor_id", actorID).Warn("Long-tail discovery failed")
		meta.DiscoveryUnavailable = true
		return nil
	}

	discovery := make([]models.ScoredRecommendation, 0, len(ids))
	for i, id := range ids {
		pred, _ := o.discovery.Predict(actorID, id)
		rec := models.ScoredRecommendation{
			ItemID:     id,
			FinalScore: clamp01(pred),
			Breakdown:  models.ScoreBreakdown{LatentScore: clamp01(pred)},
			Position:   i + 1,
		}
		item := byID[id]
		if item != nil {
			rec.ItemType = item.Type
		}
		rec.ReasoningText = o.reasons.ExplainDiscovery(item)
		discovery = append(discovery, rec)
	}
	return discovery
}

// InvalidateActor drops every cached response for the actor, across all
// constraint combinations and profile fingerprints.
func (o *RecommendationOrchestrator) InvalidateActor(ctx context.Context, actorID uuid.UUID) error {
	if o.redis == nil {
		return nil
	}

	pattern := fmt.Sprintf("recommendations:%s:*", actorID.String())
	keys, err := o.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	if len(keys) > 0 {
		return o.redis.Del(ctx, keys...).Err()
	}
	return nil
}

func (o *RecommendationOrchestrator) stale(computedAt time.Time) bool {
	maxAge := o.config.Orchestrator.MaxSnapshotAge
	return maxAge > 0 && time.Since(computedAt) > maxAge
}

// cacheKey embeds the profile fingerprint, so profile changes invalidate
// implicitly without touching redis.
func (o *RecommendationOrchestrator) cacheKey(actorID uuid.UUID, c models.ScoringConstraints, fingerprint string) string {
	hour := "-"
	if c.HourOfDay != nil {
		hour = fmt.Sprintf("%d", *c.HourOfDay)
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%.1f|%t", c.BudgetCeiling, c.PartySize, hour, c.MaxWalkingDistance, c.RequiresAccessible)
	return fmt.Sprintf("recommendations:%s:%x:%s", actorID.String(), h.Sum64(), fingerprint)
}

func (o *RecommendationOrchestrator) cachedSet(ctx context.Context, key string) *models.RecommendationSet {
	if o.redis == nil {
		return nil
	}

	data, err := o.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var set models.RecommendationSet
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		o.logger.WithError(err).Warn("Dropping undecodable cached recommendation set")
		return nil
	}
	set.Meta.CacheHit = true
	return &set
}

func (o *RecommendationOrchestrator) cacheSet(ctx context.Context, key string, set *models.RecommendationSet) {
	if o.redis == nil {
		return
	}

	data, err := json.Marshal(set)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to encode recommendation set for caching")
		return
	}
	if err := o.redis.Set(ctx, key, data, o.config.Orchestrator.CacheTTL).Err(); err != nil {
		o.logger.WithError(err).Warn("Failed to cache recommendation set")
	}
}
