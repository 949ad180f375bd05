package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

type fakeCatalog struct {
	items []models.CandidateItem
	err   error
}

func (f *fakeCatalog) ActiveItems(ctx context.Context) ([]models.CandidateItem, error) {
	return f.items, f.err
}

type fakeProfiles struct {
	profile *models.InterestProfile
	err     error
}

func (f *fakeProfiles) Profile(ctx context.Context, actorID uuid.UUID) (*models.InterestProfile, error) {
	return f.profile, f.err
}

type fakeInfluence struct {
	snap *models.GraphSnapshot
}

func (f *fakeInfluence) Snapshot() *models.GraphSnapshot { return f.snap }

func (f *fakeInfluence) InfluenceScore(nodeID string) (*models.InfluenceScore, error) {
	if f.snap == nil {
		return nil, ErrModelUnavailable
	}
	rank, ok := f.snap.Rank.Scores[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return &models.InfluenceScore{NodeID: nodeID, Rank: rank}, nil
}

type fakeDiscovery struct {
	model *models.LatentModel
	ids   []uuid.UUID
	err   error
	preds map[uuid.UUID]float64
}

func (f *fakeDiscovery) Model() *models.LatentModel { return f.model }

func (f *fakeDiscovery) LongTailCandidates(actorID uuid.UUID, n int) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) > n {
		return f.ids[:n], nil
	}
	return f.ids, nil
}

func (f *fakeDiscovery) Predict(actorID, itemID uuid.UUID) (float64, bool) {
	pred, ok := f.preds[itemID]
	return pred, ok
}

func testOrchestrator(
	profiles InterestProfileProvider,
	catalog ItemCatalogProvider,
	influence InfluenceProvider,
	discovery DiscoveryProvider,
) *RecommendationOrchestrator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := config.DefaultEngineConfig()
	scoring := NewScoringEngine(&engine.Scoring, logger)
	return NewRecommendationOrchestrator(scoring, profiles, catalog, influence, discovery, nil, &engine, logger)
}

func emptyProfile(actorID uuid.UUID) *models.InterestProfile {
	return &models.InterestProfile{ActorID: actorID, Weights: map[models.InterestKey]float64{}, Fingerprint: "empty"}
}

func plainItem(name string, local, popularity, rating float64) models.CandidateItem {
	return models.CandidateItem{
		ID:         uuid.New(),
		Type:       models.ItemTypeAttraction,
		Name:       name,
		LocalScore: local,
		Popularity: popularity,
		Rating:     rating,
	}
}

func TestRecommend_DegradesWhenNoSnapshotsPublished(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("harbor walk", 1.0, 1.0, 1.0)

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{item}},
		&fakeInfluence{},
		&fakeDiscovery{},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)

	assert.True(t, set.Meta.SocialProofUnavailable)
	assert.True(t, set.Meta.DiscoveryUnavailable)
	assert.False(t, set.Meta.CacheHit)
	require.Len(t, set.Items, 1)
	assert.Equal(t, set.Items[0].Breakdown.BaseScore, set.Items[0].FinalScore,
		"zero social weight leaves the base score untouched")
	assert.Empty(t, set.Discovery)
}

func TestRecommend_SocialProofReordersCloseScores(t *testing.T) {
	actorID := uuid.New()
	strong := plainItem("old town tour", 1.0, 1.0, 1.0) // base 0.60
	boosted := plainItem("fish market", 1.0, 0.9, 0.9)  // base 0.575

	snap := &models.GraphSnapshot{
		Rank: &models.RankVector{
			Scores: map[string]float64{
				boosted.ID.String(): 0.6,
				"publisher-1":       0.2,
			},
			Converged: true,
		},
		ComputedAt: time.Now(),
	}

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{strong, boosted}},
		&fakeInfluence{snap: snap},
		&fakeDiscovery{},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)

	assert.False(t, set.Meta.SocialProofUnavailable)
	assert.True(t, set.Meta.RankConverged)
	require.Len(t, set.Items, 2)

	// boosted: 0.575*0.9 + 1.0*0.1 = 0.6175 beats strong: 0.60*0.9 = 0.54.
	assert.Equal(t, boosted.ID, set.Items[0].ItemID)
	assert.InDelta(t, 0.6175, set.Items[0].FinalScore, 1e-9)
	assert.InDelta(t, 1.0, set.Items[0].Breakdown.SocialProof, 1e-9, "top rank min-max normalizes to 1")
	assert.Equal(t, strong.ID, set.Items[1].ItemID)
	assert.InDelta(t, 0.54, set.Items[1].FinalScore, 1e-9)
	assert.Zero(t, set.Items[1].Breakdown.SocialProof, "nodes outside the graph get no social proof")
	assert.Equal(t, 1, set.Items[0].Position)
	assert.Equal(t, 2, set.Items[1].Position)
}

func TestRecommend_StaleSnapshotDegrades(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("cliff hike", 0.8, 0.5, 0.5)

	snap := &models.GraphSnapshot{
		Rank:       &models.RankVector{Scores: map[string]float64{item.ID.String(): 1}, Converged: true},
		ComputedAt: time.Now().Add(-48 * time.Hour),
	}

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{item}},
		&fakeInfluence{snap: snap},
		&fakeDiscovery{},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)

	assert.True(t, set.Meta.SocialProofUnavailable)
	assert.Equal(t, set.Items[0].Breakdown.BaseScore, set.Items[0].FinalScore)
}

func TestRecommend_DiscoverySection(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("botanical garden", 0.7, 0.4, 0.6)
	hidden := plainItem("tea house", 0.2, 0.1, 0.9)

	discovery := &fakeDiscovery{
		model: &models.LatentModel{TrainedAt: time.Now()},
		ids:   []uuid.UUID{hidden.ID},
		preds: map[uuid.UUID]float64{hidden.ID: 1.4},
	}

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{item, hidden}},
		&fakeInfluence{},
		discovery,
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)

	assert.False(t, set.Meta.DiscoveryUnavailable)
	require.Len(t, set.Discovery, 1)
	assert.Equal(t, hidden.ID, set.Discovery[0].ItemID)
	assert.Equal(t, models.ItemTypeAttraction, set.Discovery[0].ItemType)
	assert.Equal(t, 1.0, set.Discovery[0].FinalScore, "predictions clamp into [0,1]")
	assert.NotEmpty(t, set.Discovery[0].ReasoningText)
}

func TestRecommend_ActorWithoutTrainingHistoryGetsEmptyDiscovery(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("promenade", 0.5, 0.5, 0.5)

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{item}},
		&fakeInfluence{},
		&fakeDiscovery{model: &models.LatentModel{TrainedAt: time.Now()}},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)

	assert.Empty(t, set.Discovery)
	assert.False(t, set.Meta.DiscoveryUnavailable, "a cold-start actor is not a degradation")
}

func TestRecommend_DiscoveryFailureSetsFlag(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("promenade", 0.5, 0.5, 0.5)

	o := testOrchestrator(
		&fakeProfiles{profile: emptyProfile(actorID)},
		&fakeCatalog{items: []models.CandidateItem{item}},
		&fakeInfluence{},
		&fakeDiscovery{model: &models.LatentModel{TrainedAt: time.Now()}, err: errors.New("boom")},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)
	assert.True(t, set.Meta.DiscoveryUnavailable)
}

func TestRecommend_ReasoningLeadsWithInterestMatch(t *testing.T) {
	actorID := uuid.New()
	item := plainItem("reef snorkel trip", 0.2, 0.1, 0.1)
	item.Categories = []string{"Snorkeling"}

	profile := &models.InterestProfile{
		ActorID: actorID,
		Weights: map[models.InterestKey]float64{
			{Category: "water sports", Keyword: "snorkeling"}: 1.0,
		},
		Fingerprint: "fp-1",
	}

	o := testOrchestrator(
		&fakeProfiles{profile: profile},
		&fakeCatalog{items: []models.CandidateItem{item}},
		&fakeInfluence{},
		&fakeDiscovery{},
	)

	set, err := o.Recommend(context.Background(), actorID, models.ScoringConstraints{})
	require.NoError(t, err)
	require.Len(t, set.Items, 1)
	assert.Contains(t, set.Items[0].ReasoningText, "interest in snorkeling")
}

func TestRecommend_ProfileFailurePropagates(t *testing.T) {
	o := testOrchestrator(
		&fakeProfiles{err: errors.New("store down")},
		&fakeCatalog{},
		&fakeInfluence{},
		&fakeDiscovery{},
	)

	_, err := o.Recommend(context.Background(), uuid.New(), models.ScoringConstraints{})
	assert.Error(t, err)
}

func TestCacheKey_SensitiveToConstraintsAndFingerprint(t *testing.T) {
	o := testOrchestrator(&fakeProfiles{}, &fakeCatalog{}, &fakeInfluence{}, &fakeDiscovery{})
	actorID := uuid.New()

	base := o.cacheKey(actorID, models.ScoringConstraints{}, "fp-1")
	hour := 9
	assert.NotEqual(t, base, o.cacheKey(actorID, models.ScoringConstraints{HourOfDay: &hour}, "fp-1"))
	assert.NotEqual(t, base, o.cacheKey(actorID, models.ScoringConstraints{PartySize: 4}, "fp-1"))
	assert.NotEqual(t, base, o.cacheKey(actorID, models.ScoringConstraints{}, "fp-2"))
	assert.Equal(t, base, o.cacheKey(actorID, models.ScoringConstraints{}, "fp-1"))
}

func TestInvalidateActor_NoCacheConfigured(t *testing.T) {
	o := testOrchestrator(&fakeProfiles{}, &fakeCatalog{}, &fakeInfluence{}, &fakeDiscovery{})
	assert.NoError(t, o.InvalidateActor(context.Background(), uuid.New()))
}
