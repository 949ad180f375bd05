package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemType discriminates point-of-interest variants. Dispatch is by this
// field, not by type hierarchies.
type ItemType string

const (
	ItemTypeExcursion  ItemType = "excursion"
	ItemTypeMealVenue  ItemType = "meal_venue"
	ItemTypeAttraction ItemType = "attraction"
)

// ActiveWindow is the daily window (hours, inclusive start, exclusive end)
// during which an item can be booked or visited.
type ActiveWindow struct {
	StartHour int `json:"start_hour" db:"window_start_hour" validate:"min=0,max=23"`
	EndHour   int `json:"end_hour" db:"window_end_hour" validate:"min=1,max=24"`
}

// Contains reports whether the given hour of day falls inside the window.
// Windows may wrap past midnight (e.g. 22-2 for a night bar).
func (w ActiveWindow) Contains(hour int) bool {
	if w.StartHour == w.EndHour {
		return true // degenerate window means always open
	}
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Location carries the item's position and the walking distance from the
// nearest port gate or ship berth, in meters.
type Location struct {
	Latitude        float64 `json:"latitude" db:"latitude"`
	Longitude       float64 `json:"longitude" db:"longitude"`
	WalkingDistance float64 `json:"walking_distance_m" db:"walking_distance_m"`
}

// CandidateItem is a scoreable point of interest. Popularity, Rating and
// LocalScore are pre-normalized to [0,1] upstream (ratings from a 5-point
// scale).
type CandidateItem struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Type         ItemType     `json:"type" db:"type" validate:"required,oneof=excursion meal_venue attraction"`
	Name         string       `json:"name" db:"name"`
	Categories   []string     `json:"categories" db:"categories"`
	Popularity   float64      `json:"popularity" db:"popularity" validate:"min=0,max=1"`
	Rating       float64      `json:"rating" db:"rating" validate:"min=0,max=1"`
	LocalScore   float64      `json:"local_score" db:"local_score" validate:"min=0,max=1"`
	BudgetTier   int          `json:"budget_tier" db:"budget_tier" validate:"min=0"`
	MinPartySize int          `json:"min_party_size" db:"min_party_size"`
	MaxPartySize int          `json:"max_party_size" db:"max_party_size"`
	Location     Location     `json:"location"`
	ActiveWindow ActiveWindow `json:"active_window"`
	Highlight    bool         `json:"highlight" db:"highlight"`
	Accessible   bool         `json:"accessible" db:"accessible"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// ScoringConstraints are the hard contextual constraints of one request.
// Items violating any of them are filtered out, not score-penalized.
// Zero values (nil for HourOfDay) mean "unconstrained".
type ScoringConstraints struct {
	BudgetCeiling      int     `json:"budget_ceiling" form:"budget_ceiling" binding:"omitempty,min=0"`
	PartySize          int     `json:"party_size" form:"party_size" binding:"omitempty,min=1"`
	HourOfDay          *int    `json:"hour_of_day,omitempty" form:"hour_of_day" binding:"omitempty,min=0,max=23"`
	MaxWalkingDistance float64 `json:"max_walking_distance_m" form:"max_walking_distance_m" binding:"omitempty,min=0"`
	RequiresAccessible bool    `json:"requires_accessible" form:"requires_accessible"`
}
