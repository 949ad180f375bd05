package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

// ratedIndex is one observed (counterpart index, preference) pair in the
// sparse interaction matrix.
type ratedIndex struct {
	index  int
	rating float64
}

// LatentFactorRecommender trains a rank-k factorization of the actor-by-item
// interaction matrix with alternating least squares and serves long-tail
// discovery candidates from the trained factors. Training builds a complete
// model aside and publishes it with a single pointer swap; actors and items
// absent from the training set are simply dropped from prediction output.
type LatentFactorRecommender struct {
	provider InteractionLogProvider
	config   *config.LatentConfig
	longTail *config.LongTailConfig
	logger   *logrus.Logger

	model   atomic.Pointer[models.LatentModel]
	version atomic.Int64

	// Exposure tracking behind the coverage and diversity metrics.
	statsMu     sync.Mutex
	itemExposed map[uuid.UUID]int
	listCount   int
	listLenSum  int
}

func NewLatentFactorRecommender(
	provider InteractionLogProvider,
	latentCfg *config.LatentConfig,
	longTailCfg *config.LongTailConfig,
	logger *logrus.Logger,
) *LatentFactorRecommender {
	return &LatentFactorRecommender{
		provider:    provider,
		config:      latentCfg,
		longTail:    longTailCfg,
		logger:      logger,
		itemExposed: make(map[uuid.UUID]int),
	}
}

// Model returns the latest published model, or nil if none has been trained.
func (r *LatentFactorRecommender) Model() *models.LatentModel {
	return r.model.Load()
}

// Predict returns the dot-product preference estimate for one actor/item
// pair. The second return is false when no model is published or either
// side is untrained.
func (r *LatentFactorRecommender) Predict(actorID, itemID uuid.UUID) (float64, bool) {
	model := r.model.Load()
	if model == nil {
		return 0, false
	}
	af, ok := model.ActorFactors[actorID]
	if !ok {
		return 0, false
	}
	itf, ok := model.ItemFactors[itemID]
	if !ok {
		return 0, false
	}
	return floats.Dot(af, itf), true
}

// Recompute retrains from the interaction log and publishes the new model.
// On any failure the previously published model remains authoritative.
func (r *LatentFactorRecommender) Recompute(ctx context.Context) (*models.LatentModel, error) {
	records, err := r.provider.Interactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction log: %w", err)
	}

	model, err := r.Train(ctx, records, time.Now())
	if err != nil {
		return nil, err
	}

	model.Version = r.version.Add(1)
	r.model.Store(model)

	r.logger.WithFields(logrus.Fields{
		"version": model.Version,
		"rank":    model.Rank,
		"actors":  len(model.ActorFactors),
		"items":   len(model.ItemFactors),
	}).Info("Latent model published")

	return model, nil
}

// Train runs alternating least squares over the given records without
// publishing. Records with unusable fields are skipped; an entirely empty
// training set is ErrInsufficientData.
func (r *LatentFactorRecommender) Train(ctx context.Context, records []models.InteractionRecord, now time.Time) (*models.LatentModel, error) {
	type cell struct{ actor, item uuid.UUID }
	ratings := make(map[cell]float64)
	counts := make(map[uuid.UUID]int)
	history := make(map[uuid.UUID]map[uuid.UUID]struct{})
	skipped := 0

	for _, rec := range records {
		if rec.ActorID == uuid.Nil || rec.ItemID == uuid.Nil || rec.PreferenceWeight < 0 {
			skipped++
			continue
		}
		key := cell{rec.ActorID, rec.ItemID}
		if cur, ok := ratings[key]; !ok || rec.PreferenceWeight > cur {
			ratings[key] = rec.PreferenceWeight
		}
		counts[rec.ItemID]++
		seen, ok := history[rec.ActorID]
		if !ok {
			seen = make(map[uuid.UUID]struct{})
			history[rec.ActorID] = seen
		}
		seen[rec.ItemID] = struct{}{}
	}
	if skipped > 0 {
		r.logger.WithField("skipped", skipped).Warn("Dropped malformed interaction records from training set")
	}
	if len(ratings) == 0 {
		return nil, fmt.Errorf("%w: no usable interaction records", ErrInsufficientData)
	}

	actorIDs := make([]uuid.UUID, 0, len(history))
	for id := range history {
		actorIDs = append(actorIDs, id)
	}
	sortUUIDs(actorIDs)
	itemIDs := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		itemIDs = append(itemIDs, id)
	}
	sortUUIDs(itemIDs)

	actorIndex := make(map[uuid.UUID]int, len(actorIDs))
	for i, id := range actorIDs {
		actorIndex[id] = i
	}
	itemIndex := make(map[uuid.UUID]int, len(itemIDs))
	for i, id := range itemIDs {
		itemIndex[id] = i
	}

	actorObs := make([][]ratedIndex, len(actorIDs))
	itemObs := make([][]ratedIndex, len(itemIDs))
	for key, rating := range ratings {
		a, i := actorIndex[key.actor], itemIndex[key.item]
		actorObs[a] = append(actorObs[a], ratedIndex{index: i, rating: rating})
		itemObs[i] = append(itemObs[i], ratedIndex{index: a, rating: rating})
	}
	for _, obs := range actorObs {
		sort.Slice(obs, func(a, b int) bool { return obs[a].index < obs[b].index })
	}
	for _, obs := range itemObs {
		sort.Slice(obs, func(a, b int) bool { return obs[a].index < obs[b].index })
	}

	k := r.config.Factors
	rng := rand.New(rand.NewSource(r.config.Seed))
	actorFactors := make([][]float64, len(actorIDs))
	for i := range actorFactors {
		actorFactors[i] = make([]float64, k)
	}
	itemFactors := make([][]float64, len(itemIDs))
	for i := range itemFactors {
		row := make([]float64, k)
		for j := range row {
			row[j] = 0.1 * rng.Float64()
		}
		itemFactors[i] = row
	}

	for iter := 0; iter < r.config.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.solveSide(actorFactors, itemFactors, actorObs)
		r.solveSide(itemFactors, actorFactors, itemObs)
	}

	itemsByCount := append([]uuid.UUID(nil), itemIDs...)
	sort.Slice(itemsByCount, func(a, b int) bool {
		ca, cb := counts[itemsByCount[a]], counts[itemsByCount[b]]
		if ca != cb {
			return ca < cb
		}
		return bytes.Compare(itemsByCount[a][:], itemsByCount[b][:]) < 0
	})

	model := &models.LatentModel{
		Rank:              k,
		ActorFactors:      make(map[uuid.UUID][]float64, len(actorIDs)),
		ItemFactors:       make(map[uuid.UUID][]float64, len(itemIDs)),
		ItemsByCount:      itemsByCount,
		InteractionCounts: counts,
		ActorHistory:      history,
		TrainedAt:         now,
	}
	for i, id := range actorIDs {
		model.ActorFactors[id] = actorFactors[i]
	}
	for i, id := range itemIDs {
		model.ItemFactors[id] = itemFactors[i]
	}
	return model, nil
}

// solveSide re-solves every row of target with the counterpart factors held
// fixed: the standard ALS ridge-regression update per observed row.
func (r *LatentFactorRecommender) solveSide(target, fixed [][]float64, observations [][]ratedIndex) {
	k := r.config.Factors
	a := mat.NewSymDense(k, nil)
	b := mat.NewVecDense(k, nil)

	for row, obs := range observations {
		if len(obs) == 0 {
			continue
		}
		a.Zero()
		b.Zero()
		for _, o := range obs {
			y := fixed[o.index]
			for p := 0; p < k; p++ {
				b.SetVec(p, b.AtVec(p)+o.rating*y[p])
				for q := p; q < k; q++ {
					a.SetSym(p, q, a.At(p, q)+y[p]*y[q])
				}
			}
		}
		ridge := r.config.Regularization*float64(len(obs)) + 1e-9
		for p := 0; p < k; p++ {
			a.SetSym(p, p, a.At(p, p)+ridge)
		}

		var chol mat.Cholesky
		if !chol.Factorize(a) {
			continue
		}
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, b); err != nil {
			continue
		}
		copy(target[row], x.RawVector().Data)
	}
}

// LongTailCandidates returns up to n long-tail discovery item ids for the
// actor, best predicted preference first. Candidates come from the actor's
// top predictions intersected with the long-tail partition; when the
// intersection misses the quota the partition is widened in fixed steps
// while the reported threshold steps down, until the quota is met or the
// threshold reaches zero. An untrained actor yields an empty slice, not an
// error.
func (r *LatentFactorRecommender) LongTailCandidates(actorID uuid.UUID, n int) ([]uuid.UUID, error) {
	model := r.model.Load()
	if model == nil {
		return nil, ErrModelUnavailable
	}
	if n <= 0 {
		return nil, nil
	}

	af, ok := model.ActorFactors[actorID]
	if !ok {
		return []uuid.UUID{}, nil
	}
	seen := model.ActorHistory[actorID]

	type prediction struct {
		itemID uuid.UUID
		score  float64
	}
	predictions := make([]prediction, 0, len(model.ItemFactors))
	for itemID, itf := range model.ItemFactors {
		if _, done := seen[itemID]; done {
			continue
		}
		predictions = append(predictions, prediction{itemID: itemID, score: floats.Dot(af, itf)})
	}
	sort.Slice(predictions, func(a, b int) bool {
		if predictions[a].score != predictions[b].score {
			return predictions[a].score > predictions[b].score
		}
		return bytes.Compare(predictions[a].itemID[:], predictions[b].itemID[:]) < 0
	})
	if len(predictions) > n {
		predictions = predictions[:n]
	}

	threshold := r.longTail.Percentile
	fraction := threshold
	var picked []uuid.UUID
	for {
		tail := model.LongTailSet(fraction)
		picked = picked[:0]
		for _, p := range predictions {
			if _, ok := tail[p.itemID]; ok {
				picked = append(picked, p.itemID)
			}
		}
		if len(picked) >= n || fraction >= 1 {
			break
		}
		threshold = math.Max(0, threshold-r.longTail.RelaxStep)
		fraction = math.Min(1, fraction+r.longTail.RelaxStep)
		r.logger.WithFields(logrus.Fields{
			"actor_id":  actorID,
			"threshold": threshold,
			"picked":    len(picked),
			"quota":     n,
		}).Debug("Relaxing long-tail threshold")
	}

	result := append([]uuid.UUID(nil), picked...)
	r.recordExposure(result)
	return result, nil
}

func (r *LatentFactorRecommender) recordExposure(items []uuid.UUID) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.listCount++
	r.listLenSum += len(items)
	for _, id := range items {
		r.itemExposed[id]++
	}
}

// Metrics reports discovery quality over everything recommended so far:
// catalog coverage, mean list length, and 1 minus the Gini concentration
// of item exposure.
func (r *LatentFactorRecommender) Metrics() models.RecommenderMetrics {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	var m models.RecommenderMetrics
	if r.listCount > 0 {
		m.AvgListLength = float64(r.listLenSum) / float64(r.listCount)
	}
	if model := r.model.Load(); model != nil && len(model.ItemFactors) > 0 {
		m.CatalogCoverage = float64(len(r.itemExposed)) / float64(len(model.ItemFactors))
	}
	if len(r.itemExposed) > 0 {
		exposures := make([]float64, 0, len(r.itemExposed))
		total := 0.0
		for _, c := range r.itemExposed {
			exposures = append(exposures, float64(c))
			total += float64(c)
		}
		sort.Float64s(exposures)
		weighted := 0.0
		n := float64(len(exposures))
		for i, x := range exposures {
			weighted += (2*float64(i+1) - n - 1) * x
		}
		m.DiversityIndex = 1 - weighted/(n*total)
	}
	return m
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(a, b int) bool {
		return bytes.Compare(ids[a][:], ids[b][:]) < 0
	})
}
