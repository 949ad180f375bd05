package models

import (
	"time"

	"github.com/google/uuid"
)

// LatentModel is one published factorization of the actor-by-item
// interaction matrix: rank-k factor vectors per trained actor and item,
// plus the long-tail partition derived from the same training set. A model
// is immutable once published.
type LatentModel struct {
	Version      int64                   `json:"version"`
	Rank         int                     `json:"rank"`
	ActorFactors map[uuid.UUID][]float64 `json:"-"`
	ItemFactors  map[uuid.UUID][]float64 `json:"-"`

	// ItemsByCount lists all trained item ids sorted ascending by
	// training-set interaction count (ties by item id). The long-tail set
	// at percentile p is the prefix of length p*len(ItemsByCount).
	ItemsByCount      []uuid.UUID       `json:"-"`
	InteractionCounts map[uuid.UUID]int `json:"-"`

	// ActorHistory holds the items each trained actor interacted with, so
	// discovery never re-surfaces them.
	ActorHistory map[uuid.UUID]map[uuid.UUID]struct{} `json:"-"`

	TrainedAt time.Time `json:"trained_at"`
}

// LongTailSize returns the size of the long-tail prefix at the given
// percentile threshold.
func (m *LatentModel) LongTailSize(percentile float64) int {
	if percentile <= 0 {
		return 0
	}
	if percentile >= 1 {
		return len(m.ItemsByCount)
	}
	return int(percentile * float64(len(m.ItemsByCount)))
}

// LongTailSet returns the set of long-tail item ids at the given
// percentile threshold.
func (m *LatentModel) LongTailSet(percentile float64) map[uuid.UUID]struct{} {
	size := m.LongTailSize(percentile)
	set := make(map[uuid.UUID]struct{}, size)
	for _, id := range m.ItemsByCount[:size] {
		set[id] = struct{}{}
	}
	return set
}

// RecommenderMetrics are the discovery quality metrics exposed by the
// latent factor recommender.
type RecommenderMetrics struct {
	CatalogCoverage float64 `json:"catalog_coverage"`
	AvgListLength   float64 `json:"avg_list_length"`
	DiversityIndex  float64 `json:"diversity_index"`
}
