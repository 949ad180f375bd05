package providers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/pkg/models"
)

// DatabaseQuerier is the Postgres surface the providers need. Satisfied by
// pgxpool.Pool and by pgxmock in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// CatalogStore serves active candidate items from Postgres. A row that
// fails to scan is skipped and counted, never fatal to the batch.
type CatalogStore struct {
	db      DatabaseQuerier
	metrics *services.EngineMetrics
	logger  *logrus.Logger
}

func NewCatalogStore(db DatabaseQuerier, metrics *services.EngineMetrics, logger *logrus.Logger) *CatalogStore {
	return &CatalogStore{db: db, metrics: metrics, logger: logger}
}

func (s *CatalogStore) ActiveItems(ctx context.Context) ([]models.CandidateItem, error) {
	query := `
		SELECT id, type, name, categories, popularity, rating, local_score,
		       budget_tier, min_party_size, max_party_size,
		       latitude, longitude, walking_distance_m,
		       window_start_hour, window_end_hour,
		       highlight, accessible, created_at
		FROM catalog_items
		WHERE active = true`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog items: %w", err)
	}
	defer rows.Close()

	var items []models.CandidateItem
	for rows.Next() {
		var item models.CandidateItem
		err := rows.Scan(
			&item.ID,
			&item.Type,
			&item.Name,
			&item.Categories,
			&item.Popularity,
			&item.Rating,
			&item.LocalScore,
			&item.BudgetTier,
			&item.MinPartySize,
			&item.MaxPartySize,
			&item.Location.Latitude,
			&item.Location.Longitude,
			&item.Location.WalkingDistance,
			&item.ActiveWindow.StartHour,
			&item.ActiveWindow.EndHour,
			&item.Highlight,
			&item.Accessible,
			&item.CreatedAt,
		)
		if err != nil {
			s.skipRow("catalog", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog items: %w", err)
	}
	return items, nil
}

func (s *CatalogStore) skipRow(source string, err error) {
	if s.metrics != nil {
		s.metrics.ScanErrors.WithLabelValues(source).Inc()
	}
	s.logger.WithError(err).WithField("source", source).Warn("Skipping unscannable row")
}

// InteractionStore serves the append-only interaction log.
type InteractionStore struct {
	db      DatabaseQuerier
	metrics *services.EngineMetrics
	logger  *logrus.Logger
}

func NewInteractionStore(db DatabaseQuerier, metrics *services.EngineMetrics, logger *logrus.Logger) *InteractionStore {
	return &InteractionStore{db: db, metrics: metrics, logger: logger}
}

func (s *InteractionStore) Interactions(ctx context.Context) ([]models.InteractionRecord, error) {
	query := `
		SELECT actor_id, item_id, preference_weight, timestamp
		FROM interaction_log
		ORDER BY timestamp`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction log: %w", err)
	}
	defer rows.Close()

	var records []models.InteractionRecord
	for rows.Next() {
		var rec models.InteractionRecord
		if err := rows.Scan(&rec.ActorID, &rec.ItemID, &rec.PreferenceWeight, &rec.Timestamp); err != nil {
			if s.metrics != nil {
				s.metrics.ScanErrors.WithLabelValues("interactions").Inc()
			}
			s.logger.WithError(err).Warn("Skipping unscannable interaction record")
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interaction log: %w", err)
	}
	return records, nil
}

// SignalStore persists and queries interest signals. Later signals
// supersede earlier ones at aggregation time; nothing is deleted here.
type SignalStore struct {
	db      DatabaseQuerier
	metrics *services.EngineMetrics
	logger  *logrus.Logger
}

func NewSignalStore(db DatabaseQuerier, metrics *services.EngineMetrics, logger *logrus.Logger) *SignalStore {
	return &SignalStore{db: db, metrics: metrics, logger: logger}
}

func (s *SignalStore) Append(ctx context.Context, signal models.InterestSignal) error {
	query := `
		INSERT INTO interest_signals (actor_id, category, keyword, source, confidence, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		signal.ActorID, signal.Category, signal.Keyword,
		string(signal.Source), signal.Confidence, signal.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append interest signal: %w", err)
	}
	return nil
}

func (s *SignalStore) SignalsForActor(ctx context.Context, actorID uuid.UUID) ([]models.InterestSignal, error) {
	query := `
		SELECT actor_id, category, keyword, source, confidence, timestamp
		FROM interest_signals
		WHERE actor_id = $1
		ORDER BY timestamp`

	rows, err := s.db.Query(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interest signals: %w", err)
	}
	defer rows.Close()

	var signals []models.InterestSignal
	for rows.Next() {
		var sig models.InterestSignal
		if err := rows.Scan(&sig.ActorID, &sig.Category, &sig.Keyword, &sig.Source, &sig.Confidence, &sig.Timestamp); err != nil {
			if s.metrics != nil {
				s.metrics.ScanErrors.WithLabelValues("signals").Inc()
			}
			s.logger.WithError(err).Warn("Skipping unscannable interest signal")
			continue
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interest signals: %w", err)
	}
	return signals, nil
}
