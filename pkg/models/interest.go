package models

import (
	"time"

	"github.com/google/uuid"
)

// SignalSource distinguishes interests a passenger declared themselves from
// interests extracted out of linked social-media activity.
type SignalSource string

const (
	SignalSourceExplicit SignalSource = "explicit"
	SignalSourceInferred SignalSource = "inferred"
)

// InterestSignal is a single weighted (category, keyword) preference record.
// Explicit signals carry confidence 1.0; inferred signals carry the
// extractor's confidence in [0,1].
type InterestSignal struct {
	ActorID    uuid.UUID    `json:"actor_id" db:"actor_id" validate:"required"`
	Category   string       `json:"category" db:"category" validate:"required,min=1,max=64"`
	Keyword    string       `json:"keyword" db:"keyword" validate:"required,min=1,max=128"`
	Source     SignalSource `json:"source" db:"source" validate:"required,oneof=explicit inferred"`
	Confidence float64      `json:"confidence" db:"confidence" validate:"min=0,max=1"`
	Timestamp  time.Time    `json:"timestamp" db:"timestamp"`
}

// InterestKey identifies one aggregated interest after keyword
// canonicalization.
type InterestKey struct {
	Category string `json:"category"`
	Keyword  string `json:"keyword"`
}

// InterestProfile is the aggregated view of an actor's signals: one
// effective weight per (category, keyword) key. Fingerprint changes
// whenever any effective weight changes and is used for cache keying.
type InterestProfile struct {
	ActorID     uuid.UUID               `json:"actor_id"`
	Weights     map[InterestKey]float64 `json:"-"`
	Fingerprint string                  `json:"fingerprint"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// IsEmpty reports whether the actor has no usable interest data. Downstream
// consumers treat this as "no interest data", never as an error.
func (p *InterestProfile) IsEmpty() bool {
	return p == nil || len(p.Weights) == 0
}
