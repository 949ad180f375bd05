package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionRecord is one observed actor/item interaction: an explicit
// rating or an implicit signal (booking, visit, dwell). Records are
// append-only and never mutated.
type InteractionRecord struct {
	ActorID          uuid.UUID `json:"actor_id" db:"actor_id" validate:"required"`
	ItemID           uuid.UUID `json:"item_id" db:"item_id" validate:"required"`
	PreferenceWeight float64   `json:"preference_weight" db:"preference_weight" validate:"min=0"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}

// SubscriptionEdge is one weighted directed edge of the influence graph,
// derived from subscriptions and interactions between actors, publishers
// and items. Weight is an interaction count and is strictly non-negative.
type SubscriptionEdge struct {
	From      string    `json:"from" db:"from_node"`
	To        string    `json:"to" db:"to_node"`
	Weight    float64   `json:"weight" db:"weight" validate:"min=0"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// NodeType classifies influence graph nodes.
type NodeType string

const (
	NodeTypeActor     NodeType = "actor"
	NodeTypePublisher NodeType = "publisher"
	NodeTypeItem      NodeType = "item"
)

// GraphNode is a node declaration accompanying subscription edges.
type GraphNode struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
}
