package services

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

// ScoringEngine computes the fixed multi-factor composite score per
// candidate item. Hard contextual constraints filter; everything else is a
// weighted component clamped to [0,1].
type ScoringEngine struct {
	config *config.ScoringConfig
	logger *logrus.Logger
	folder cases.Caser
}

func NewScoringEngine(cfg *config.ScoringConfig, logger *logrus.Logger) *ScoringEngine {
	return &ScoringEngine{
		config: cfg,
		logger: logger,
		folder: cases.Fold(),
	}
}

// Rank filters and scores candidates against one actor's interest profile
// and hard constraints, returning a deterministically ordered list. No
// surviving candidates yields an empty list, not an error.
func (e *ScoringEngine) Rank(
	candidates []models.CandidateItem,
	profile *models.InterestProfile,
	constraints models.ScoringConstraints,
) []models.ScoredRecommendation {
	scored := make([]models.ScoredRecommendation, 0, len(candidates))

	for i := range candidates {
		item := &candidates[i]
		if !e.passesConstraints(item, constraints) {
			continue
		}
		scored = append(scored, e.Score(item, profile, constraints))
	}

	sortRecommendations(scored)

	for i := range scored {
		scored[i].Position = i + 1
	}

	return scored
}

// Score computes the composite for one already-filtered item.
func (e *ScoringEngine) Score(
	item *models.CandidateItem,
	profile *models.InterestProfile,
	constraints models.ScoringConstraints,
) models.ScoredRecommendation {
	breakdown := models.ScoreBreakdown{
		InterestMatch: e.interestMatch(item, profile),
		LocalScore:    clamp01(item.LocalScore),
		Popularity:    clamp01(item.Popularity),
		Rating:        clamp01(item.Rating),
		Accessibility: e.accessibility(item, constraints),
	}

	score := breakdown.InterestMatch*e.config.InterestWeight +
		breakdown.LocalScore*e.config.LocalWeight +
		breakdown.Popularity*e.config.PopularityWeight +
		breakdown.Rating*e.config.RatingWeight +
		breakdown.Accessibility*e.config.AccessibilityWeight

	if item.Highlight {
		breakdown.HighlightBonus = e.config.HighlightBonus
		score += e.config.HighlightBonus
	}
	score = clamp01(score)
	breakdown.BaseScore = score

	return models.ScoredRecommendation{
		ItemID:     item.ID,
		ItemType:   item.Type,
		Breakdown:  breakdown,
		FinalScore: score,
	}
}

// passesConstraints applies the hard filters: budget ceiling, party size,
// active window against the request hour, and walking distance. Violations
// drop the item entirely rather than penalizing its score.
func (e *ScoringEngine) passesConstraints(item *models.CandidateItem, c models.ScoringConstraints) bool {
	if c.BudgetCeiling > 0 && item.BudgetTier > c.BudgetCeiling {
		return false
	}
	if c.PartySize > 0 {
		if item.MinPartySize > 0 && c.PartySize < item.MinPartySize {
			return false
		}
		if item.MaxPartySize > 0 && c.PartySize > item.MaxPartySize {
			return false
		}
	}
	if c.HourOfDay != nil && !item.ActiveWindow.Contains(*c.HourOfDay) {
		return false
	}
	if c.MaxWalkingDistance > 0 && item.Location.WalkingDistance > c.MaxWalkingDistance {
		return false
	}
	return true
}

// interestMatch averages the matched effective weights over the actor's
// TOTAL interest count. Unmatched weights are never redistributed to other
// terms; an actor without interests scores 0 here.
func (e *ScoringEngine) interestMatch(item *models.CandidateItem, profile *models.InterestProfile) float64 {
	if profile.IsEmpty() {
		return 0
	}

	itemTerms := make(map[string]struct{}, len(item.Categories))
	for _, cat := range item.Categories {
		itemTerms[e.canonical(cat)] = struct{}{}
	}

	matched := 0.0
	for key, weight := range profile.Weights {
		if _, ok := itemTerms[key.Keyword]; ok {
			matched += weight
			continue
		}
		if _, ok := itemTerms[key.Category]; ok {
			matched += weight
		}
	}

	return clamp01(matched / float64(len(profile.Weights)))
}

func (e *ScoringEngine) accessibility(item *models.CandidateItem, c models.ScoringConstraints) float64 {
	if c.RequiresAccessible && !item.Accessible {
		return 0
	}
	return 1
}

func (e *ScoringEngine) canonical(term string) string {
	return norm.NFC.String(e.folder.String(strings.TrimSpace(term)))
}

// sortRecommendations orders by score descending, breaking ties by
// popularity descending and then item id ascending so equal inputs always
// produce identical orderings.
func sortRecommendations(scored []models.ScoredRecommendation) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		if scored[i].Breakdown.Popularity != scored[j].Breakdown.Popularity {
			return scored[i].Breakdown.Popularity > scored[j].Breakdown.Popularity
		}
		return scored[i].ItemID.String() < scored[j].ItemID.String()
	})
}
