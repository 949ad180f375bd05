package services

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/voyagekit/compass/pkg/models"
)

// ReasonKind classifies which score component an explanation leads with.
type ReasonKind string

const (
	ReasonInterest   ReasonKind = "interest"
	ReasonLocal      ReasonKind = "local"
	ReasonPopularity ReasonKind = "popularity"
	ReasonRating     ReasonKind = "rating"
	ReasonSocial     ReasonKind = "social"
	ReasonDiscovery  ReasonKind = "discovery"
	ReasonGeneric    ReasonKind = "generic"
)

// ReasonBuilder turns a score breakdown into one human-readable sentence.
// The explanation leads with the component that contributed most weight to
// the final score, so the text always reflects the actual ranking cause.
type ReasonBuilder struct {
	config *scoringWeights
	folder cases.Caser
}

type scoringWeights struct {
	interest      float64
	local         float64
	popularity    float64
	rating        float64
	accessibility float64
}

func NewReasonBuilder(interest, local, popularity, rating, accessibility float64) *ReasonBuilder {
	return &ReasonBuilder{
		config: &scoringWeights{
			interest:      interest,
			local:         local,
			popularity:    popularity,
			rating:        rating,
			accessibility: accessibility,
		},
		folder: cases.Fold(),
	}
}

// Explain writes the reasoning sentence for one ranked item.
func (b *ReasonBuilder) Explain(
	rec *models.ScoredRecommendation,
	item *models.CandidateItem,
	profile *models.InterestProfile,
	socialWeight float64,
) string {
	type contribution struct {
		kind   ReasonKind
		weight float64
	}
	base := 1 - socialWeight
	contributions := []contribution{
		{ReasonInterest, rec.Breakdown.InterestMatch * b.config.interest * base},
		{ReasonLocal, rec.Breakdown.LocalScore * b.config.local * base},
		{ReasonPopularity, rec.Breakdown.Popularity * b.config.popularity * base},
		{ReasonRating, rec.Breakdown.Rating * b.config.rating * base},
		{ReasonSocial, rec.Breakdown.SocialProof * socialWeight},
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].weight > contributions[j].weight
	})

	text := b.text(contributions[0].kind, rec, item, profile)
	if rec.Breakdown.HighlightBonus > 0 {
		text += fmt.Sprintf(", and %s is a destination highlight", b.itemName(item))
	}
	return text
}

// ExplainDiscovery writes the reasoning sentence for a long-tail pick.
func (b *ReasonBuilder) ExplainDiscovery(item *models.CandidateItem) string {
	return fmt.Sprintf("A lesser-known %s picked for you to discover", b.itemNoun(item))
}

func (b *ReasonBuilder) text(
	kind ReasonKind,
	rec *models.ScoredRecommendation,
	item *models.CandidateItem,
	profile *models.InterestProfile,
) string {
	switch kind {
	case ReasonInterest:
		if interest := b.matchedInterest(item, profile); interest != "" {
			return fmt.Sprintf("Matches your interest in %s", interest)
		}
		return "Closely matches your stated interests"
	case ReasonLocal:
		return fmt.Sprintf("A strong local recommendation among nearby %ss", b.itemNoun(item))
	case ReasonPopularity:
		return "Popular with fellow travelers"
	case ReasonRating:
		return "Consistently well rated by past guests"
	case ReasonSocial:
		return "Favored by travelers you follow"
	case ReasonDiscovery:
		return b.ExplainDiscovery(item)
	default:
		return "Recommended for you"
	}
}

// matchedInterest returns the highest-weighted profile interest that the
// item's categories actually match, or empty if none do.
func (b *ReasonBuilder) matchedInterest(item *models.CandidateItem, profile *models.InterestProfile) string {
	if item == nil || profile.IsEmpty() {
		return ""
	}

	folded := make(map[string]struct{}, len(item.Categories))
	for _, c := range item.Categories {
		folded[b.fold(c)] = struct{}{}
	}

	best := ""
	bestWeight := 0.0
	for key, weight := range profile.Weights {
		_, byKeyword := folded[b.fold(key.Keyword)]
		_, byCategory := folded[b.fold(key.Category)]
		if !byKeyword && !byCategory {
			continue
		}
		if weight > bestWeight || (weight == bestWeight && key.Keyword < best) {
			best = key.Keyword
			bestWeight = weight
		}
	}
	return best
}

func (b *ReasonBuilder) fold(term string) string {
	return b.folder.String(strings.TrimSpace(term))
}

func (b *ReasonBuilder) itemName(item *models.CandidateItem) string {
	if item != nil && item.Name != "" {
		return item.Name
	}
	return "this"
}

func (b *ReasonBuilder) itemNoun(item *models.CandidateItem) string {
	if item == nil {
		return "spot"
	}
	switch item.Type {
	case models.ItemTypeExcursion:
		return "excursion"
	case models.ItemTypeMealVenue:
		return "dining spot"
	case models.ItemTypeAttraction:
		return "attraction"
	default:
		return "spot"
	}
}
