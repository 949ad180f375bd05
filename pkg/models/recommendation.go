package models

import (
	"time"

	"github.com/google/uuid"
)

// ScoreBreakdown itemizes the named components behind one final score.
// Every component is clamped to [0,1] before weighting.
type ScoreBreakdown struct {
	InterestMatch  float64 `json:"interest_match"`
	LocalScore     float64 `json:"local_score"`
	Popularity     float64 `json:"popularity"`
	Rating         float64 `json:"rating"`
	Accessibility  float64 `json:"accessibility"`
	HighlightBonus float64 `json:"highlight_bonus"`
	BaseScore      float64 `json:"base_score"`
	SocialProof    float64 `json:"social_proof"`
	LatentScore    float64 `json:"latent_score,omitempty"`
}

// ScoredRecommendation is one ranked, explained item.
type ScoredRecommendation struct {
	ItemID        uuid.UUID      `json:"item_id"`
	ItemType      ItemType       `json:"item_type,omitempty"`
	Breakdown     ScoreBreakdown `json:"score_breakdown"`
	FinalScore    float64        `json:"final_score"`
	ReasoningText string         `json:"reasoning_text,omitempty"`
	Position      int            `json:"position"`
}

// ResponseMetadata carries the non-fatal degradation flags of one
// recommendation response. Degraded signal sources never fail a request;
// they surface here instead.
type ResponseMetadata struct {
	SocialProofUnavailable bool      `json:"social_proof_unavailable"`
	DiscoveryUnavailable   bool      `json:"discovery_unavailable"`
	RankConverged          bool      `json:"rank_converged"`
	CacheHit               bool      `json:"cache_hit"`
	GeneratedAt            time.Time `json:"generated_at"`
}

// RecommendationSet is the full response of the recommendation API: the
// ranked interest-driven list plus long-tail discovery picks.
type RecommendationSet struct {
	ActorID   uuid.UUID              `json:"actor_id"`
	Items     []ScoredRecommendation `json:"items"`
	Discovery []ScoredRecommendation `json:"discovery,omitempty"`
	Meta      ResponseMetadata       `json:"meta"`
}
