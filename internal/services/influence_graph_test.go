package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

type MockSubscriptionGraphProvider struct {
	mock.Mock
}

func (m *MockSubscriptionGraphProvider) Edges(ctx context.Context) ([]models.SubscriptionEdge, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SubscriptionEdge), args.Error(1)
}

func testInfluenceService(cfg *config.InfluenceConfig) *InfluenceGraphService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	if cfg == nil {
		def := config.DefaultEngineConfig().Influence
		cfg = &def
	}
	return NewInfluenceGraphService(&MockSubscriptionGraphProvider{}, cfg, logger)
}

func edge(from, to string, weight float64) models.SubscriptionEdge {
	return models.SubscriptionEdge{From: from, To: to, Weight: weight, Timestamp: time.Now()}
}

func TestPropagateRank_ThreeNodeCycle(t *testing.T) {
	svc := testInfluenceService(nil)

	edges := []models.SubscriptionEdge{
		edge("a", "b", 1), edge("b", "c", 1), edge("c", "a", 1),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	require.True(t, snap.Rank.Converged)
	for _, node := range []string{"a", "b", "c"} {
		assert.InDelta(t, 1.0/3.0, snap.Rank.Scores[node], 1e-6, "symmetric cycle converges to uniform rank")
	}
}

func TestPropagateRank_DanglingNodePreservesMass(t *testing.T) {
	svc := testInfluenceService(nil)

	// d has no outgoing edges; its mass redistributes each iteration.
	edges := []models.SubscriptionEdge{
		edge("a", "b", 2), edge("b", "d", 1), edge("a", "d", 1),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	sum := 0.0
	for _, score := range snap.Rank.Scores {
		sum += score
	}
	assert.InDelta(t, 1.0, sum, 1e-6, "rank mass must be preserved with dangling nodes")
	assert.True(t, snap.Rank.Converged)
}

func TestPropagateRank_SumIsOneOnLargerGraph(t *testing.T) {
	svc := testInfluenceService(nil)

	edges := []models.SubscriptionEdge{
		edge("a", "b", 3), edge("b", "a", 1), edge("a", "c", 2),
		edge("c", "d", 1), edge("d", "a", 5), edge("e", "a", 1),
		edge("b", "c", 2),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	sum := 0.0
	for _, score := range snap.Rank.Scores {
		sum += score
		assert.GreaterOrEqual(t, score, 0.0)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestPropagateRank_IterationCapPublishesUnconverged(t *testing.T) {
	cfg := config.DefaultEngineConfig().Influence
	cfg.MaxIterations = 2
	cfg.Epsilon = 1e-15
	svc := testInfluenceService(&cfg)

	edges := []models.SubscriptionEdge{
		edge("a", "b", 1), edge("b", "c", 1), edge("c", "a", 1), edge("a", "c", 1),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err, "hitting the cap is not a fatal error")

	assert.False(t, snap.Rank.Converged)
	assert.Equal(t, 2, snap.Rank.Iterations)
	assert.NotEmpty(t, snap.Rank.Scores)
}

func TestCompute_EmptyGraph(t *testing.T) {
	svc := testInfluenceService(nil)

	snap, err := svc.Compute(context.Background(), nil, time.Now())
	require.NoError(t, err)

	assert.Empty(t, snap.Rank.Scores)
	assert.Empty(t, snap.Communities)
	assert.Zero(t, snap.NodeCount)
}

func TestDetectCommunities_TwoClusters(t *testing.T) {
	svc := testInfluenceService(nil)

	// Two triangles joined by nothing.
	edges := []models.SubscriptionEdge{
		edge("a", "b", 5), edge("b", "c", 5), edge("c", "a", 5),
		edge("x", "y", 5), edge("y", "z", 5), edge("z", "x", 5),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	assert.Equal(t, snap.Communities["a"], snap.Communities["b"])
	assert.Equal(t, snap.Communities["b"], snap.Communities["c"])
	assert.Equal(t, snap.Communities["x"], snap.Communities["y"])
	assert.Equal(t, snap.Communities["y"], snap.Communities["z"])
	assert.NotEqual(t, snap.Communities["a"], snap.Communities["x"])
}

func TestDetectCommunities_ThresholdExcludesWeakEdges(t *testing.T) {
	cfg := config.DefaultEngineConfig().Influence
	cfg.MinEdgeWeight = 2.0
	svc := testInfluenceService(&cfg)

	// The bridge a-x is below the community threshold.
	edges := []models.SubscriptionEdge{
		edge("a", "b", 5), edge("b", "a", 5),
		edge("x", "y", 5), edge("y", "x", 5),
		edge("a", "x", 1),
	}
	snap, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	assert.NotEqual(t, snap.Communities["a"], snap.Communities["x"])
}

func TestDetectCommunities_Deterministic(t *testing.T) {
	svc := testInfluenceService(nil)

	edges := []models.SubscriptionEdge{
		edge("a", "b", 2), edge("b", "c", 2), edge("c", "d", 2),
		edge("d", "a", 2), edge("b", "d", 2),
	}

	first, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)
	second, err := svc.Compute(context.Background(), edges, time.Now())
	require.NoError(t, err)

	assert.Equal(t, first.Communities, second.Communities)
}

func TestInfluenceScore_Lifecycle(t *testing.T) {
	provider := new(MockSubscriptionGraphProvider)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.DefaultEngineConfig().Influence
	svc := NewInfluenceGraphService(provider, &cfg, logger)

	// Before any publication the model is unavailable.
	_, err := svc.InfluenceScore("a")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	provider.On("Edges", mock.Anything).Return([]models.SubscriptionEdge{
		edge("a", "b", 1), edge("b", "a", 1),
	}, nil)

	_, err = svc.Recompute(context.Background())
	require.NoError(t, err)

	score, err := svc.InfluenceScore("a")
	require.NoError(t, err)
	assert.Equal(t, "a", score.NodeID)
	assert.Greater(t, score.Rank, 0.0)
	assert.True(t, score.Converged)

	_, err = svc.InfluenceScore("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRecompute_CancelledContextLeavesSnapshotUntouched(t *testing.T) {
	provider := new(MockSubscriptionGraphProvider)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.DefaultEngineConfig().Influence
	svc := NewInfluenceGraphService(provider, &cfg, logger)

	provider.On("Edges", mock.Anything).Return([]models.SubscriptionEdge{
		edge("a", "b", 1),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Recompute(ctx)
	require.Error(t, err)
	assert.Nil(t, svc.Snapshot(), "failed builds never publish partial progress")
}

func TestEdgeTimeDecayReducesWeight(t *testing.T) {
	cfg := config.DefaultEngineConfig().Influence
	cfg.EdgeDecayHalfLife = time.Hour
	svc := testInfluenceService(&cfg)

	now := time.Now()
	old := models.SubscriptionEdge{From: "a", To: "old", Weight: 4, Timestamp: now.Add(-2 * time.Hour)}
	fresh := models.SubscriptionEdge{From: "a", To: "fresh", Weight: 4, Timestamp: now}

	graph := svc.buildGraph([]models.SubscriptionEdge{old, fresh}, now)

	var oldWeight, freshWeight float64
	for _, e := range graph.outEdges[graph.nodeIndex["a"]] {
		switch graph.nodeIDs[e.to] {
		case "old":
			oldWeight = e.weight
		case "fresh":
			freshWeight = e.weight
		}
	}
	assert.InDelta(t, 1.0, oldWeight, 1e-9, "two half-lives quarter the weight")
	assert.InDelta(t, 4.0, freshWeight, 1e-9)
	assert.False(t, math.IsNaN(oldWeight))
}
