package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/voyagekit/compass/pkg/models"
)

func testReasonBuilder() *ReasonBuilder {
	return NewReasonBuilder(0.4, 0.3, 0.15, 0.10, 0.05)
}

func reasonProfile(weights map[models.InterestKey]float64) *models.InterestProfile {
	return &models.InterestProfile{
		ActorID: uuid.New(),
		Weights: weights,
	}
}

func TestExplain_LeadsWithDominantComponent(t *testing.T) {
	b := testReasonBuilder()

	tests := []struct {
		name      string
		breakdown models.ScoreBreakdown
		social    float64
		want      string
	}{
		{
			name:      "interest dominates",
			breakdown: models.ScoreBreakdown{InterestMatch: 0.9, LocalScore: 0.2},
			want:      "Closely matches your stated interests",
		},
		{
			name:      "local dominates",
			breakdown: models.ScoreBreakdown{InterestMatch: 0.1, LocalScore: 0.9},
			want:      "A strong local recommendation among nearby excursions",
		},
		{
			name:      "popularity dominates",
			breakdown: models.ScoreBreakdown{Popularity: 1.0, Rating: 0.5},
			want:      "Popular with fellow travelers",
		},
		{
			name:      "rating dominates",
			breakdown: models.ScoreBreakdown{Rating: 1.0, Popularity: 0.2},
			want:      "Consistently well rated by past guests",
		},
		{
			name:      "social proof dominates under high social weight",
			breakdown: models.ScoreBreakdown{SocialProof: 1.0, InterestMatch: 0.5},
			social:    0.9,
			want:      "Favored by travelers you follow",
		},
	}

	item := &models.CandidateItem{Type: models.ItemTypeExcursion, Name: "Reef Snorkel Tour"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.ScoredRecommendation{Breakdown: tt.breakdown}
			got := b.Explain(rec, item, reasonProfile(nil), tt.social)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExplain_NamesTheMatchedInterest(t *testing.T) {
	b := testReasonBuilder()

	item := &models.CandidateItem{
		Type:       models.ItemTypeExcursion,
		Name:       "Reef Snorkel Tour",
		Categories: []string{"Snorkeling", "water sports"},
	}
	profile := reasonProfile(map[models.InterestKey]float64{
		{Category: "activity", Keyword: "snorkeling"}: 0.9,
		{Category: "activity", Keyword: "hiking"}:     1.0,
	})

	rec := &models.ScoredRecommendation{
		Breakdown: models.ScoreBreakdown{InterestMatch: 0.9},
	}

	// Hiking carries more weight but only snorkeling matches the item, and
	// the category comparison is case-insensitive.
	got := b.Explain(rec, item, profile, 0.1)
	assert.Equal(t, "Matches your interest in snorkeling", got)
}

func TestExplain_HighlightSuffix(t *testing.T) {
	b := testReasonBuilder()

	item := &models.CandidateItem{
		Type:      models.ItemTypeMealVenue,
		Name:      "Harborside Grill",
		Highlight: true,
	}
	rec := &models.ScoredRecommendation{
		Breakdown: models.ScoreBreakdown{Rating: 1.0, HighlightBonus: 0.2},
	}

	got := b.Explain(rec, item, reasonProfile(nil), 0.1)
	assert.Equal(t, "Consistently well rated by past guests, and Harborside Grill is a destination highlight", got)
}

func TestExplainDiscovery_ItemNoun(t *testing.T) {
	b := testReasonBuilder()

	tests := []struct {
		item *models.CandidateItem
		want string
	}{
		{&models.CandidateItem{Type: models.ItemTypeExcursion}, "A lesser-known excursion picked for you to discover"},
		{&models.CandidateItem{Type: models.ItemTypeMealVenue}, "A lesser-known dining spot picked for you to discover"},
		{&models.CandidateItem{Type: models.ItemTypeAttraction}, "A lesser-known attraction picked for you to discover"},
		{nil, "A lesser-known spot picked for you to discover"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.ExplainDiscovery(tt.item))
	}
}
