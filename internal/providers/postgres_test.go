package providers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func catalogRowValues(item models.CandidateItem) []interface{} {
	return []interface{}{
		item.ID, item.Type, item.Name, item.Categories,
		item.Popularity, item.Rating, item.LocalScore,
		item.BudgetTier, item.MinPartySize, item.MaxPartySize,
		item.Location.Latitude, item.Location.Longitude, item.Location.WalkingDistance,
		item.ActiveWindow.StartHour, item.ActiveWindow.EndHour,
		item.Highlight, item.Accessible, item.CreatedAt,
	}
}

var catalogColumns = []string{
	"id", "type", "name", "categories", "popularity", "rating", "local_score",
	"budget_tier", "min_party_size", "max_party_size",
	"latitude", "longitude", "walking_distance_m",
	"window_start_hour", "window_end_hour",
	"highlight", "accessible", "created_at",
}

func TestCatalogStore_ActiveItems(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	item := models.CandidateItem{
		ID:         uuid.New(),
		Type:       models.ItemTypeExcursion,
		Name:       "reef snorkel",
		Categories: []string{"snorkeling", "water"},
		Popularity: 0.7,
		Rating:     0.9,
		LocalScore: 0.6,
		BudgetTier: 2,
		ActiveWindow: models.ActiveWindow{
			StartHour: 8,
			EndHour:   16,
		},
		Accessible: true,
		CreatedAt:  time.Now(),
	}

	rows := pgxmock.NewRows(catalogColumns).AddRow(catalogRowValues(item)...)
	mockDB.ExpectQuery("SELECT").WillReturnRows(rows)

	store := NewCatalogStore(mockDB, nil, testLogger())
	items, err := store.ActiveItems(context.Background())

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.Equal(t, item.Categories, items[0].Categories)
	assert.Equal(t, 8, items[0].ActiveWindow.StartHour)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCatalogStore_BadRowSkippedAndCounted(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	good := models.CandidateItem{
		ID:        uuid.New(),
		Type:      models.ItemTypeAttraction,
		Name:      "old town",
		CreatedAt: time.Now(),
	}

	bad := catalogRowValues(good)
	bad[4] = "not-a-float" // popularity column

	rows := pgxmock.NewRows(catalogColumns).
		AddRow(bad...).
		AddRow(catalogRowValues(good)...)
	mockDB.ExpectQuery("SELECT").WillReturnRows(rows)

	metrics := services.NewEngineMetrics(prometheus.NewRegistry())
	store := NewCatalogStore(mockDB, metrics, testLogger())

	items, err := store.ActiveItems(context.Background())

	require.NoError(t, err, "one bad row never aborts the batch")
	require.Len(t, items, 1)
	assert.Equal(t, good.ID, items[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScanErrors.WithLabelValues("catalog")))
}

func TestInteractionStore_Interactions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	actor, item := uuid.New(), uuid.New()
	now := time.Now()
	rows := pgxmock.NewRows([]string{"actor_id", "item_id", "preference_weight", "timestamp"}).
		AddRow(actor, item, 0.8, now)
	mockDB.ExpectQuery("SELECT").WillReturnRows(rows)

	store := NewInteractionStore(mockDB, nil, testLogger())
	records, err := store.Interactions(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, actor, records[0].ActorID)
	assert.Equal(t, 0.8, records[0].PreferenceWeight)
}

func TestSignalStore_AppendAndQuery(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	actor := uuid.New()
	now := time.Now()
	signal := models.InterestSignal{
		ActorID:    actor,
		Category:   "water sports",
		Keyword:    "snorkeling",
		Source:     models.SignalSourceExplicit,
		Confidence: 1.0,
		Timestamp:  now,
	}

	mockDB.ExpectExec("INSERT INTO interest_signals").
		WithArgs(actor, "water sports", "snorkeling", "explicit", 1.0, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewSignalStore(mockDB, nil, testLogger())
	require.NoError(t, store.Append(context.Background(), signal))

	rows := pgxmock.NewRows([]string{"actor_id", "category", "keyword", "source", "confidence", "timestamp"}).
		AddRow(actor, "water sports", "snorkeling", models.SignalSourceExplicit, 1.0, now)
	mockDB.ExpectQuery("SELECT").WithArgs(actor).WillReturnRows(rows)

	signals, err := store.SignalsForActor(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, models.SignalSourceExplicit, signals[0].Source)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
