package models

import "time"

// RankVector is the converged (or capped) result of rank propagation over
// the influence graph. Scores of a converged vector sum to 1 within the
// stopping epsilon.
type RankVector struct {
	Scores           map[string]float64 `json:"scores"`
	Converged        bool               `json:"converged"`
	Iterations       int                `json:"iterations"`
	ConvergenceDelta float64            `json:"convergence_delta"`
	ComputedAt       time.Time          `json:"computed_at"`
}

// InfluenceScore is the per-node answer of the influence API: global rank
// plus community membership.
type InfluenceScore struct {
	NodeID    string  `json:"node_id"`
	Rank      float64 `json:"rank"`
	Community int     `json:"community"`
	Converged bool    `json:"converged"`
}

// GraphSnapshot bundles one published rank vector with its community
// partition. Snapshots are immutable once published; readers always see a
// complete pair.
type GraphSnapshot struct {
	Rank        *RankVector    `json:"rank"`
	Communities map[string]int `json:"communities"`
	NodeCount   int            `json:"node_count"`
	EdgeCount   int            `json:"edge_count"`
	ComputedAt  time.Time      `json:"computed_at"`
}
