package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

// influenceGraph is the index-based adjacency structure rank propagation
// runs over: a sorted node-id slice plus an id→index map, with weighted
// out-edge lists per node. Cyclic and irregular graphs are handled without
// object references.
type influenceGraph struct {
	nodeIDs   []string
	nodeIndex map[string]int
	outEdges  [][]weightedEdge
	outWeight []float64
	edgeCount int
}

type weightedEdge struct {
	to     int
	weight float64
}

// InfluenceGraphService builds the weighted actor/publisher/item graph and
// computes a converged rank vector plus a community partition. Results are
// published as one immutable snapshot behind an atomic pointer; the
// request path only ever reads the latest published snapshot.
type InfluenceGraphService struct {
	provider SubscriptionGraphProvider
	config   *config.InfluenceConfig
	logger   *logrus.Logger

	snapshot atomic.Pointer[models.GraphSnapshot]
}

func NewInfluenceGraphService(
	provider SubscriptionGraphProvider,
	cfg *config.InfluenceConfig,
	logger *logrus.Logger,
) *InfluenceGraphService {
	return &InfluenceGraphService{
		provider: provider,
		config:   cfg,
		logger:   logger,
	}
}

// Snapshot returns the latest published snapshot, or nil if none has been
// published yet.
func (s *InfluenceGraphService) Snapshot() *models.GraphSnapshot {
	return s.snapshot.Load()
}

// InfluenceScore answers a single-node influence lookup against the
// published snapshot.
func (s *InfluenceGraphService) InfluenceScore(nodeID string) (*models.InfluenceScore, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, ErrModelUnavailable
	}

	rank, ok := snap.Rank.Scores[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}

	return &models.InfluenceScore{
		NodeID:    nodeID,
		Rank:      rank,
		Community: snap.Communities[nodeID],
		Converged: snap.Rank.Converged,
	}, nil
}

// Recompute rebuilds the graph from the provider and publishes a fresh
// snapshot. The new snapshot is built fully aside and swapped in with one
// pointer update; on any failure the previous snapshot stays authoritative.
func (s *InfluenceGraphService) Recompute(ctx context.Context) (*models.GraphSnapshot, error) {
	edges, err := s.provider.Edges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription edges: %w", err)
	}

	snap, err := s.Compute(ctx, edges, time.Now())
	if err != nil {
		return nil, err
	}

	s.snapshot.Store(snap)

	s.logger.WithFields(logrus.Fields{
		"nodes":      snap.NodeCount,
		"edges":      snap.EdgeCount,
		"iterations": snap.Rank.Iterations,
		"converged":  snap.Rank.Converged,
		"delta":      snap.Rank.ConvergenceDelta,
	}).Info("Influence snapshot published")

	return snap, nil
}

// Compute runs rank propagation and community detection over the given
// edge list without publishing. An empty edge list yields an empty
// snapshot, not an error.
func (s *InfluenceGraphService) Compute(ctx context.Context, edges []models.SubscriptionEdge, now time.Time) (*models.GraphSnapshot, error) {
	graph := s.buildGraph(edges, now)

	rank, err := s.propagateRank(ctx, graph, now)
	if err != nil {
		return nil, err
	}

	communities, err := s.detectCommunities(ctx, graph)
	if err != nil {
		return nil, err
	}

	return &models.GraphSnapshot{
		Rank:        rank,
		Communities: communities,
		NodeCount:   len(graph.nodeIDs),
		EdgeCount:   graph.edgeCount,
		ComputedAt:  now,
	}, nil
}

// buildGraph aggregates duplicate edges by weight sum, applies optional
// time decay, and lays the result out as index-based adjacency.
func (s *InfluenceGraphService) buildGraph(edges []models.SubscriptionEdge, now time.Time) *influenceGraph {
	type edgeKey struct{ from, to string }
	weights := make(map[edgeKey]float64)
	nodeSet := make(map[string]struct{})

	for _, e := range edges {
		if e.Weight < 0 || e.From == "" || e.To == "" {
			continue
		}
		w := e.Weight
		if half := s.config.EdgeDecayHalfLife; half > 0 {
			if age := now.Sub(e.Timestamp); age > 0 {
				w *= math.Exp(-math.Ln2 * age.Seconds() / half.Seconds())
			}
		}
		weights[edgeKey{e.From, e.To}] += w
		nodeSet[e.From] = struct{}{}
		nodeSet[e.To] = struct{}{}
	}

	nodeIDs := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	nodeIndex := make(map[string]int, len(nodeIDs))
	for i, id := range nodeIDs {
		nodeIndex[id] = i
	}

	graph := &influenceGraph{
		nodeIDs:   nodeIDs,
		nodeIndex: nodeIndex,
		outEdges:  make([][]weightedEdge, len(nodeIDs)),
		outWeight: make([]float64, len(nodeIDs)),
	}

	for key, w := range weights {
		if w <= 0 {
			continue
		}
		from, to := nodeIndex[key.from], nodeIndex[key.to]
		graph.outEdges[from] = append(graph.outEdges[from], weightedEdge{to: to, weight: w})
		graph.outWeight[from] += w
		graph.edgeCount++
	}

	// Deterministic iteration order inside each adjacency list.
	for i := range graph.outEdges {
		sort.Slice(graph.outEdges[i], func(a, b int) bool {
			return graph.outEdges[i][a].to < graph.outEdges[i][b].to
		})
	}

	return graph
}

// propagateRank runs damped power iteration. Dangling nodes redistribute
// their entire rank mass uniformly each iteration, preserving sum(rank)=1.
// Hitting the iteration cap is not fatal: the vector is returned with
// Converged=false.
func (s *InfluenceGraphService) propagateRank(ctx context.Context, graph *influenceGraph, now time.Time) (*models.RankVector, error) {
	n := len(graph.nodeIDs)
	if n == 0 {
		return &models.RankVector{
			Scores:     map[string]float64{},
			Converged:  true,
			ComputedAt: now,
		}, nil
	}

	d := s.config.DampingFactor
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	var (
		iterations int
		delta      float64
		converged  bool
	)

	for iterations = 1; iterations <= s.config.MaxIterations; iterations++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base := (1 - d) / float64(n)
		dangling := 0.0
		for i := range next {
			next[i] = base
		}

		for u := 0; u < n; u++ {
			if graph.outWeight[u] == 0 {
				dangling += rank[u]
				continue
			}
			share := d * rank[u] / graph.outWeight[u]
			for _, edge := range graph.outEdges[u] {
				next[edge.to] += share * edge.weight
			}
		}

		if dangling > 0 {
			share := d * dangling / float64(n)
			for i := range next {
				next[i] += share
			}
		}

		delta = 0
		for i := range next {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank

		if delta < s.config.Epsilon {
			converged = true
			break
		}
	}
	if iterations > s.config.MaxIterations {
		iterations = s.config.MaxIterations
	}

	if !converged {
		s.logger.WithFields(logrus.Fields{
			"iterations": iterations,
			"delta":      delta,
			"epsilon":    s.config.Epsilon,
		}).Warn("Rank propagation hit iteration cap before convergence")
	}

	// Guard the sum invariant against floating-point drift.
	if sum := floats.Sum(rank); sum > 0 {
		floats.Scale(1/sum, rank)
	}

	scores := make(map[string]float64, n)
	for i, id := range graph.nodeIDs {
		scores[id] = rank[i]
	}

	return &models.RankVector{
		Scores:           scores,
		Converged:        converged,
		Iterations:       iterations,
		ConvergenceDelta: delta,
		ComputedAt:       now,
	}, nil
}

// detectCommunities runs iterative label propagation over the undirected
// view of the graph, considering only edges at or above the configured
// minimum weight. Nodes are visited in sorted-id order and label ties
// resolve to the smallest label, so the partition is deterministic.
func (s *InfluenceGraphService) detectCommunities(ctx context.Context, graph *influenceGraph) (map[string]int, error) {
	n := len(graph.nodeIDs)
	communities := make(map[string]int, n)
	if n == 0 {
		return communities, nil
	}

	neighbors := make([][]weightedEdge, n)
	for u := 0; u < n; u++ {
		for _, edge := range graph.outEdges[u] {
			if edge.weight < s.config.MinEdgeWeight {
				continue
			}
			neighbors[u] = append(neighbors[u], edge)
			neighbors[edge.to] = append(neighbors[edge.to], weightedEdge{to: u, weight: edge.weight})
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	for iter := 0; iter < s.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed := false
		for u := 0; u < n; u++ {
			if len(neighbors[u]) == 0 {
				continue
			}

			tally := make(map[int]float64)
			for _, edge := range neighbors[u] {
				tally[labels[edge.to]] += edge.weight
			}

			best, bestWeight := labels[u], 0.0
			first := true
			for label, weight := range tally {
				if first || weight > bestWeight || (weight == bestWeight && label < best) {
					best, bestWeight = label, weight
					first = false
				}
			}

			if best != labels[u] {
				labels[u] = best
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	// Renumber labels densely in first-seen (sorted node id) order.
	renumber := make(map[int]int)
	for i, id := range graph.nodeIDs {
		label := labels[i]
		if _, ok := renumber[label]; !ok {
			renumber[label] = len(renumber)
		}
		communities[id] = renumber[label]
	}

	return communities, nil
}
