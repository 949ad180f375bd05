package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/voyagekit/compass/internal/config"
	"github.com/voyagekit/compass/pkg/models"
)

// InterestProfileAggregator merges explicit and inferred interest signals
// into one effective weight per (category, keyword) key. An explicit
// signal pins the key to 1.0 regardless of inferred signals; otherwise the
// key takes the maximum inferred confidence, optionally discounted by an
// exponential recency decay.
type InterestProfileAggregator struct {
	store  InterestSignalStore
	config *config.InterestConfig
	logger *logrus.Logger
	folder cases.Caser
}

func NewInterestProfileAggregator(
	store InterestSignalStore,
	cfg *config.InterestConfig,
	logger *logrus.Logger,
) *InterestProfileAggregator {
	return &InterestProfileAggregator{
		store:  store,
		config: cfg,
		logger: logger,
		folder: cases.Fold(),
	}
}

// Profile aggregates all signals for one actor. An actor with no signals
// gets an empty profile, not an error.
func (a *InterestProfileAggregator) Profile(ctx context.Context, actorID uuid.UUID) (*models.InterestProfile, error) {
	signals, err := a.store.SignalsForActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interest signals: %w", err)
	}

	profile := a.Aggregate(actorID, signals, time.Now())

	a.logger.WithFields(logrus.Fields{
		"actor_id": actorID,
		"signals":  len(signals),
		"keys":     len(profile.Weights),
	}).Debug("Interest profile aggregated")

	return profile, nil
}

// Aggregate resolves an ordered signal sequence into effective weights.
// Pure aggregation over the given signals; now anchors the recency decay.
func (a *InterestProfileAggregator) Aggregate(actorID uuid.UUID, signals []models.InterestSignal, now time.Time) *models.InterestProfile {
	weights := make(map[models.InterestKey]float64)
	explicit := make(map[models.InterestKey]bool)

	for _, signal := range signals {
		key := a.canonicalKey(signal.Category, signal.Keyword)
		if key.Keyword == "" {
			continue
		}

		switch signal.Source {
		case models.SignalSourceExplicit:
			// Explicit signals always force confidence to 1.0.
			weights[key] = 1.0
			explicit[key] = true
		case models.SignalSourceInferred:
			if explicit[key] {
				continue
			}
			confidence := clamp01(signal.Confidence)
			if half := a.config.DecayHalfLife; half > 0 {
				age := now.Sub(signal.Timestamp)
				if age > 0 {
					confidence *= math.Exp(-math.Ln2 * age.Seconds() / half.Seconds())
				}
			}
			if confidence > weights[key] {
				weights[key] = confidence
			}
		}
	}

	return &models.InterestProfile{
		ActorID:     actorID,
		Weights:     weights,
		Fingerprint: fingerprint(weights),
		GeneratedAt: now,
	}
}

// canonicalKey folds case and normalizes unicode so "Snorkeling" and
// "snorkeling" merge into one key.
func (a *InterestProfileAggregator) canonicalKey(category, keyword string) models.InterestKey {
	return models.InterestKey{
		Category: a.canonicalTerm(category),
		Keyword:  a.canonicalTerm(keyword),
	}
}

func (a *InterestProfileAggregator) canonicalTerm(term string) string {
	return norm.NFC.String(a.folder.String(strings.TrimSpace(term)))
}

// fingerprint hashes the sorted key/weight pairs. Any effective weight
// change produces a new fingerprint, which changes downstream cache keys.
func fingerprint(weights map[models.InterestKey]float64) string {
	keys := make([]models.InterestKey, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Category != keys[j].Category {
			return keys[i].Category < keys[j].Category
		}
		return keys[i].Keyword < keys[j].Keyword
	})

	h := fnv.New64a()
	for _, key := range keys {
		fmt.Fprintf(h, "%s\x00%s\x00%.9f\x00", key.Category, key.Keyword, weights[key])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
